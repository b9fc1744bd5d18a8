package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLoadWritesDefaultConfig(t *testing.T) {
	logger := zerolog.Nop()
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, resolved, err := Load(&logger, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if resolved != path {
		t.Fatalf("expected resolved path %s, got %s", path, resolved)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default config to be written: %v", err)
	}

	def := Default()
	if cfg.Addr != def.Addr || cfg.Store.Driver != def.Store.Driver || cfg.Bus.Driver != def.Bus.Driver {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Auth.TokenTTL != def.Auth.TokenTTL {
		t.Fatalf("expected token ttl %s, got %s", def.Auth.TokenTTL, cfg.Auth.TokenTTL)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadPrecedence(t *testing.T) {
	logger := zerolog.Nop()
	path := filepath.Join(t.TempDir(), "config.yaml")
	file := `
addr: ":9000"
history_limit: 10
store:
  driver: mongo
  mongo_database: fromfile
bus:
  driver: nats
`
	if err := os.WriteFile(path, []byte(file), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("ROOMCHAT_BUS_DRIVER", "redis")
	t.Setenv("ROOMCHAT_AUTH_TOKEN_TTL", "1h")
	t.Setenv("ROOMCHAT_HISTORY_LIMIT", "25")

	cfg, _, err := Load(&logger, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Addr != ":9000" {
		t.Errorf("expected addr from file, got %s", cfg.Addr)
	}
	if cfg.Store.Driver != StoreMongo || cfg.Store.MongoDatabase != "fromfile" {
		t.Errorf("expected mongo store from file, got %+v", cfg.Store)
	}
	if cfg.Store.MongoURI != Default().Store.MongoURI {
		t.Errorf("expected default mongo uri, got %s", cfg.Store.MongoURI)
	}
	if cfg.Bus.Driver != BusRedis {
		t.Errorf("expected env to override bus driver, got %s", cfg.Bus.Driver)
	}
	if cfg.Auth.TokenTTL != time.Hour {
		t.Errorf("expected token ttl 1h, got %s", cfg.Auth.TokenTTL)
	}
	if cfg.HistoryLimit != 25 {
		t.Errorf("expected history limit 25, got %d", cfg.HistoryLimit)
	}

	cfg.UpdateFrom(Config{Addr: ":7000"})
	if cfg.Addr != ":7000" {
		t.Errorf("expected override addr, got %s", cfg.Addr)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{name: "no secret", mutate: func(c *Config) { c.Auth.JWTSecret = "" }, want: "jwt_secret"},
		{name: "bad store", mutate: func(c *Config) { c.Store.Driver = "postgres" }, want: "store.driver"},
		{name: "bad bus", mutate: func(c *Config) { c.Bus.Driver = "kafka" }, want: "bus.driver"},
		{name: "avatar template", mutate: func(c *Config) { c.AvatarURL = "https://example.com/a.png" }, want: "avatar_url"},
		{name: "no history", mutate: func(c *Config) { c.HistoryLimit = 0 }, want: "history_limit"},
		{name: "redis addr", mutate: func(c *Config) { c.Bus.Driver = BusRedis; c.Bus.RedisAddr = "" }, want: "redis_addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}
