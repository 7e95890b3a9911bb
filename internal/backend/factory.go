package backend

import (
	"context"
	"fmt"
	"log/slog"

	"dompet/internal/amqp"
	"dompet/internal/config"
	"dompet/internal/events"
	"dompet/internal/events/kafka"
	"dompet/internal/ledger/memory"
	"dompet/internal/sheets"
	gsheet "dompet/internal/sheets/google"
	sheetmem "dompet/internal/sheets/memory"
	"dompet/internal/storage"
	"dompet/internal/storage/postgres"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) *DefaultFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

var _ Factory = (*DefaultFactory)(nil)

func (f *DefaultFactory) CreateStore(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteStore(config)
	case PostgresBackend:
		return f.createPostgresStore(ctx, config)
	case MemoryBackend:
		return f.createMemoryStore(config), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteStore(config Config) (*Result, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	return &Result{Store: repo, Ping: repo.Ping, Cleanup: repo.Close}, nil
}

func (f *DefaultFactory) createPostgresStore(ctx context.Context, config Config) (*Result, error) {
	store, err := postgres.Open(ctx, config.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Postgres store: %w", err)
	}
	f.logger.Info("Initialized Postgres backend")
	return &Result{Store: store, Ping: store.Ping, Cleanup: store.Close}, nil
}

func (f *DefaultFactory) createMemoryStore(config Config) *Result {
	dataDir := config.DataDirectory
	if dataDir == "" {
		dataDir = "data"
	}
	store := memory.NewFromFiles(dataDir)
	f.logger.Info("Initialized memory backend", "data_directory", dataDir)
	return &Result{Store: store}
}

// NewPublisher opens the publishing side of the configured event bus.
func (f *DefaultFactory) NewPublisher(config BusConfig) (events.Publisher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	switch config.Type {
	case AMQPBus:
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize AMQP client: %w", err)
		}
		f.logger.Info("Initialized AMQP publisher", "exchange", config.AMQPExchange, "queue", config.AMQPQueue)
		return client, nil
	case KafkaBus:
		f.logger.Info("Initialized Kafka publisher", "brokers", config.KafkaBrokers, "topic", config.KafkaTopic)
		return kafka.NewPublisher(config.KafkaBrokers, config.KafkaTopic), nil
	default:
		return events.Nop{}, nil
	}
}

// NewSubscriber opens the consuming side of the configured event bus.
func (f *DefaultFactory) NewSubscriber(config BusConfig) (events.Subscriber, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	switch config.Type {
	case AMQPBus:
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize AMQP client: %w", err)
		}
		return client, nil
	case KafkaBus:
		if config.KafkaGroupID == "" {
			return nil, fmt.Errorf("Kafka group ID is required to consume")
		}
		return kafka.NewSubscriber(config.KafkaBrokers, config.KafkaTopic, config.KafkaGroupID), nil
	default:
		return events.Nop{}, nil
	}
}

// NewMirror returns the Google Sheets mirror when a spreadsheet is configured
// and an in-process one otherwise.
func (f *DefaultFactory) NewMirror(ctx context.Context, cfg *config.Config) (sheets.TransactionMirror, error) {
	if !cfg.MirrorEnabled() {
		f.logger.Warn("No spreadsheet configured, mirroring into memory only")
		return sheetmem.New(), nil
	}
	client, err := gsheet.New(ctx, gsheet.Options{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		OAuthClientJSON: cfg.GoogleOAuthClientJSON,
		OAuthClientFile: cfg.GoogleOAuthClientFile,
		OAuthTokenJSON:  cfg.GoogleOAuthTokenJSON,
		OAuthTokenFile:  cfg.GoogleOAuthTokenFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	f.logger.Info("Initialized Google Sheets mirror", "sheet", cfg.GoogleSheetName)
	return client, nil
}
