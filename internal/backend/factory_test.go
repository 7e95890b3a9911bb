package backend

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"dompet/internal/config"
	"dompet/internal/core"
	"dompet/internal/events"
	"dompet/internal/events/kafka"
	sheetmem "dompet/internal/sheets/memory"
)

func TestCreateStore(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(nil)

	t.Run("memory", func(t *testing.T) {
		res, err := f.CreateStore(ctx, Config{Type: MemoryBackend, DataDirectory: t.TempDir()})
		if err != nil {
			t.Fatal(err)
		}
		cats, err := res.Store.ListCategories(ctx, core.OwnerScope{})
		if err != nil || len(cats) == 0 {
			t.Fatalf("expected default categories, got %v (err %v)", cats, err)
		}
		if res.Ping != nil {
			t.Error("memory store has nothing to ping")
		}
		if err := res.Close(); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("sqlite", func(t *testing.T) {
		res, err := f.CreateStore(ctx, Config{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(t.TempDir(), "db", "dompet.db")})
		if err != nil {
			t.Fatal(err)
		}
		defer res.Close()
		if err := res.Ping(ctx); err != nil {
			t.Fatalf("Ping() error = %v", err)
		}
		cats, err := res.Store.ListCategories(ctx, core.OwnerScope{})
		if err != nil || len(cats) == 0 {
			t.Fatalf("expected seeded categories, got %v (err %v)", cats, err)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		for _, cfg := range []Config{
			{Type: "sheets"},
			{Type: SQLiteBackend},
			{Type: PostgresBackend},
		} {
			if _, err := f.CreateStore(ctx, cfg); err == nil {
				t.Errorf("expected error for %+v", cfg)
			}
		}
	})
}

func TestFromAppConfig(t *testing.T) {
	app := &config.Config{DataBackend: "postgres", PostgresURL: "postgres://x", EventBus: "kafka", KafkaBrokers: []string{"k:9092"}, KafkaTopic: "t"}
	cfg, err := FromAppConfig(app)
	if err != nil || cfg.Type != PostgresBackend || cfg.PostgresURL != "postgres://x" {
		t.Fatalf("unexpected config %+v (err %v)", cfg, err)
	}
	bus, err := BusFromAppConfig(app)
	if err != nil || bus.Type != KafkaBus || bus.KafkaTopic != "t" {
		t.Fatalf("unexpected bus %+v (err %v)", bus, err)
	}

	if _, err := FromAppConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "sheets"}); err == nil {
		t.Error("expected error for unknown backend")
	}
	if _, err := BusFromAppConfig(&config.Config{EventBus: "nats"}); err == nil {
		t.Error("expected error for unknown bus")
	}
}

func TestNewPublisherAndSubscriber(t *testing.T) {
	f := NewFactory(nil)

	pub, err := f.NewPublisher(BusConfig{Type: NoBus})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := pub.(events.Nop); !ok {
		t.Fatalf("expected Nop publisher, got %T", pub)
	}

	pub, err = f.NewPublisher(BusConfig{Type: KafkaBus, KafkaBrokers: []string{"localhost:9092"}, KafkaTopic: "dompet.ledger"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := pub.(*kafka.Publisher); !ok {
		t.Fatalf("expected kafka publisher, got %T", pub)
	}
	_ = pub.Close()

	if _, err := f.NewSubscriber(BusConfig{Type: KafkaBus, KafkaBrokers: []string{"localhost:9092"}, KafkaTopic: "t"}); err == nil || !strings.Contains(err.Error(), "group ID") {
		t.Fatalf("expected group id error, got %v", err)
	}
	if _, err := f.NewPublisher(BusConfig{Type: AMQPBus}); err == nil {
		t.Fatal("expected validation error for incomplete amqp config")
	}
}

func TestNewMirrorWithoutSpreadsheet(t *testing.T) {
	m, err := NewFactory(nil).NewMirror(context.Background(), &config.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := m.(*sheetmem.Mirror); !ok {
		t.Fatalf("expected in-memory mirror, got %T", m)
	}
}
