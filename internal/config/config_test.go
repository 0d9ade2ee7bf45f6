package config

import (
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "secret")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.HTTPAddress != defaultHTTPAddress {
		t.Fatalf("unexpected http address %q", cfg.HTTPAddress)
	}
	if cfg.DatabaseDriver != DatabaseDriverSQLite {
		t.Fatalf("unexpected database driver %q", cfg.DatabaseDriver)
	}
	if cfg.TokenTTL != 7*24*time.Hour {
		t.Fatalf("unexpected token ttl %s", cfg.TokenTTL)
	}
	if cfg.StoreTimeout != 5*time.Second {
		t.Fatalf("unexpected store timeout %s", cfg.StoreTimeout)
	}
	if cfg.SessionIdle != 30*time.Minute {
		t.Fatalf("unexpected session idle timeout %s", cfg.SessionIdle)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Fatalf("unexpected allowed origins %v", cfg.AllowedOrigins)
	}
}

func TestLoadRejectsNonPositiveSessionIdleTimeout(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "secret")
	configViper.Set("collab.session_idle_timeout_seconds", 0)

	if _, err := Load(configViper); err == nil {
		t.Fatalf("expected error for zero session idle timeout")
	}
}

func TestLoadRequiresSigningSecret(t *testing.T) {
	if _, err := Load(NewViper()); err == nil {
		t.Fatalf("expected error for missing signing secret")
	}
}

func TestLoadRequiresDSNForPostgres(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "secret")
	configViper.Set("database.driver", "Postgres")

	if _, err := Load(configViper); err == nil {
		t.Fatalf("expected error for missing postgres dsn")
	}

	configViper.Set("database.dsn", "postgres://cowrite@localhost/cowrite")
	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.DatabaseDriver != DatabaseDriverPostgres {
		t.Fatalf("expected driver to be normalized, got %q", cfg.DatabaseDriver)
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "secret")
	configViper.Set("database.driver", "mysql")

	if _, err := Load(configViper); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}

func TestLoadSplitsCommaSeparatedOrigins(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "secret")
	configViper.Set("cors.allowed_origins", []string{"https://a.example.com, https://b.example.com"})

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example.com" {
		t.Fatalf("unexpected allowed origins %v", cfg.AllowedOrigins)
	}
}
