package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidateForDemo(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "demo"
	if err := cfg.Validate(); err != nil {
		t.Errorf("demo defaults should validate: %v", err)
	}
}

func TestValidateRequiresOwnerKey(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "server"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("server mode without a key should fail validation")
	}
	if !strings.Contains(err.Error(), "private_key or encrypted_key_path") {
		t.Errorf("error = %v, want owner key complaint", err)
	}

	cfg.Owner.PrivateKey = "abc123"
	if err := cfg.Validate(); err != nil {
		t.Errorf("server mode with raw key should validate: %v", err)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "bogus"
	cfg.LogLevel = "loud"
	cfg.Engine.FeeBps = 5000
	cfg.Redis.Addr = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation failure")
	}
	for _, want := range []string{"unknown mode", "unknown log_level", "fee_bps", "redis: addr"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
mode = "demo"
log_level = "debug"

[engine]
fee_bps = 500
min_bet = "2.5"

[server]
port = 9090
read_timeout = "30s"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "demo" || cfg.LogLevel != "debug" {
		t.Errorf("mode/log_level = %s/%s, want demo/debug", cfg.Mode, cfg.LogLevel)
	}
	if cfg.Engine.FeeBps != 500 || cfg.Engine.MinBet != "2.5" {
		t.Errorf("engine = %d/%s, want 500/2.5", cfg.Engine.FeeBps, cfg.Engine.MinBet)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout.Duration != 30*time.Second {
		t.Errorf("read_timeout = %v, want 30s", cfg.Server.ReadTimeout.Duration)
	}
	// Untouched sections keep their defaults.
	if cfg.Postgres.Port != 5432 {
		t.Errorf("postgres port = %d, want default 5432", cfg.Postgres.Port)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("WAGERPOOL_ENGINE_FEE_BPS", "750")
	t.Setenv("WAGERPOOL_OWNER_PRIVATE_KEY", "deadbeef")
	t.Setenv("WAGERPOOL_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("WAGERPOOL_POSTGRES_RUN_MIGRATIONS", "false")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.FeeBps != 750 {
		t.Errorf("fee_bps = %d, want 750", cfg.Engine.FeeBps)
	}
	if cfg.Owner.PrivateKey != "deadbeef" {
		t.Errorf("private_key = %q, want deadbeef", cfg.Owner.PrivateKey)
	}
	want := []string{"https://a.example", "https://b.example"}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[0] != want[0] || cfg.Server.CORSOrigins[1] != want[1] {
		t.Errorf("cors_origins = %v, want %v", cfg.Server.CORSOrigins, want)
	}
	if cfg.Postgres.RunMigrations {
		t.Error("run_migrations should be overridden to false")
	}
}
