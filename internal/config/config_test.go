package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDevelopmentDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Economy.LoanDailyRate.String() != "0.05" {
		t.Fatalf("unexpected loan rate %s", cfg.Economy.LoanDailyRate)
	}
	if cfg.Economy.EnforcementCooldown != 20*time.Hour {
		t.Fatalf("unexpected cooldown %s", cfg.Economy.EnforcementCooldown)
	}
	if cfg.DBMaxConns != 10 || cfg.RedisPoolSize != 20 {
		t.Fatalf("unexpected pool sizes db=%d redis=%d", cfg.DBMaxConns, cfg.RedisPoolSize)
	}
	if cfg.Economy.EncounterTimeout != 30*time.Minute {
		t.Fatalf("unexpected encounter timeout %s", cfg.Economy.EncounterTimeout)
	}
	if cfg.ShutdownPeriod != 10*time.Second {
		t.Fatalf("unexpected shutdown period %s", cfg.ShutdownPeriod)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %s", cfg.Address())
	}
}

func TestSecondsOverrideDuration(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("SHUTDOWN_TIMEOUT_SECONDS", "3")
	t.Setenv("SHUTDOWN_TIMEOUT", "1m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ShutdownPeriod != 3*time.Second {
		t.Fatalf("expected 3s, got %s", cfg.ShutdownPeriod)
	}
}

func TestProductionRequiresBackends(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected missing DATABASE_URL to fail")
	}
}

func TestInvalidDecimalIsReported(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("LOAN_DAILY_RATE", "five percent")

	if _, err := Load(); err == nil {
		t.Fatal("expected invalid LOAN_DAILY_RATE to fail")
	}
}

func TestYAMLFileFillsUnsetKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "economy.yaml")
	if err := os.WriteFile(path, []byte("AUCTION_TAX_RATE: \"0.1\"\nKAFKA_BROKERS: \"a:9092, b:9092\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv(configFileEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Economy.AuctionTaxRate.String() != "0.1" {
		t.Fatalf("unexpected tax rate %s", cfg.Economy.AuctionTaxRate)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "b:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
}
