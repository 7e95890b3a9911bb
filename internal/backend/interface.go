package backend

import (
	"context"

	"dompet/internal/ledger"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Result is an opened ledger store and what is needed to shut it down.
type Result struct {
	Store ledger.Store
	// Ping checks the backing database. Nil for the in-memory store.
	Ping    func(ctx context.Context) error
	Cleanup CleanupFunc
}

// Close runs Cleanup when one is set.
func (r *Result) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory opens ledger stores based on configuration.
type Factory interface {
	CreateStore(ctx context.Context, config Config) (*Result, error)
}

type Config struct {
	Type BackendType

	SQLiteDBPath string
	PostgresURL  string
	// DataDirectory holds seed files for the memory backend.
	DataDirectory string
}

type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgresBackend:
		return true
	default:
		return false
	}
}

// BusConfig selects the ledger change transport.
type BusConfig struct {
	Type BusType

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string
}

type BusType string

const (
	NoBus    BusType = "none"
	AMQPBus  BusType = "amqp"
	KafkaBus BusType = "kafka"
)

func (bt BusType) IsValid() bool {
	switch bt {
	case NoBus, AMQPBus, KafkaBus:
		return true
	default:
		return false
	}
}
