package config

import (
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}

	if cfg.Port != "8080" || cfg.StorageDriver != StorageMemory {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.HTTPTimeout != 10*time.Second || cfg.PeriodicSyncInterval != time.Hour {
		t.Fatalf("unexpected durations %+v", cfg)
	}
	if cfg.RefreshConcurrency != 4 {
		t.Fatalf("expected refresh concurrency 4, got %d", cfg.RefreshConcurrency)
	}
	if cfg.Level() != log.InfoLevel {
		t.Fatalf("expected info level, got %s", cfg.Level())
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("PUBLIC_ORIGIN", "https://weather.example.com/app")
	t.Setenv("STORAGE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", "/var/lib/weather-shell/cache.db")
	t.Setenv("PERIODIC_SYNC_INTERVAL", "15m")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}
	if cfg.Port != "9090" || cfg.StorageDriver != StorageSQLite || cfg.PeriodicSyncInterval != 15*time.Minute {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Level() != log.DebugLevel {
		t.Fatalf("expected debug level, got %s", cfg.Level())
	}

	origin, err := cfg.Origin()
	if err != nil {
		t.Fatalf("Origin failed: %v", err)
	}
	if origin.String() != "https://weather.example.com/" {
		t.Fatalf("origin should drop the path, got %s", origin)
	}
}

func TestFromEnvRejectsInvalid(t *testing.T) {
	tests := map[string]map[string]string{
		"bad driver":       {"STORAGE_DRIVER": "redis"},
		"bad duration":     {"HTTP_TIMEOUT": "soon"},
		"zero timeout":     {"HTTP_TIMEOUT": "0s"},
		"bad origin":       {"PUBLIC_ORIGIN": "not a url"},
		"too many refresh": {"REFRESH_CONCURRENCY": "32"},
	}

	for name, vars := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range vars {
				t.Setenv(k, v)
			}
			if _, err := FromEnv(); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}
