package config

import (
	"testing"
	"time"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.Auth.Secret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.Auth.Secret)
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "DATABASE_DRIVER", "KAFKA_BROKERS", "CONFLICT_RETRIES", "BARCODE_CACHE_TTL_SECONDS", "SEED_DEMO_DATA", "APP_ENV"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Address() != ":8080" {
		t.Fatalf("expected :8080, got %s", cfg.Address())
	}
	if cfg.Database.Driver != "postgres" {
		t.Fatalf("expected postgres driver, got %s", cfg.Database.Driver)
	}
	if cfg.Kafka.Brokers != nil {
		t.Fatalf("expected no kafka brokers, got %v", cfg.Kafka.Brokers)
	}
	if cfg.Engine.ConflictRetries != 5 || !cfg.Engine.SeedDemoData {
		t.Fatalf("unexpected engine defaults: %+v", cfg.Engine)
	}
	if cfg.Redis.TTL != 5*time.Minute {
		t.Fatalf("expected 5m cache ttl, got %s", cfg.Redis.TTL)
	}
	if !cfg.Logger.Development || cfg.IsProduction() {
		t.Fatalf("expected development defaults, got %+v", cfg.Logger)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_DRIVER", "SQLITE")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,,")
	t.Setenv("CONFLICT_RETRIES", "2")
	t.Setenv("SEED_DEMO_DATA", "false")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("BARCODE_CACHE_TTL_SECONDS", "-1")

	cfg := Load()
	if !cfg.IsProduction() || cfg.Logger.Development {
		t.Fatalf("expected production settings")
	}
	if cfg.Database.Driver != "sqlite" {
		t.Fatalf("expected sqlite, got %s", cfg.Database.Driver)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers: %v", cfg.Kafka.Brokers)
	}
	if cfg.Engine.ConflictRetries != 2 || cfg.Engine.SeedDemoData {
		t.Fatalf("unexpected engine config: %+v", cfg.Engine)
	}
	if cfg.Redis.DB != 3 || cfg.Redis.TTL != 5*time.Minute {
		t.Fatalf("unexpected redis config: %+v", cfg.Redis)
	}
}
