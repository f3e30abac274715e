package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFromFileAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  user: dispatch
  password: dispatch
  name: dispatch
rabbitmq:
  user: guest
  password: guest
`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.Database.Host != "localhost" || cfg.Database.Port != 5432 {
		t.Errorf("database defaults not applied: %+v", cfg.Database)
	}
	if cfg.Redis.GeoKey != "drivers_geo" {
		t.Errorf("redis geo_key default = %q", cfg.Redis.GeoKey)
	}
	if cfg.JWT.SecretKey == "" {
		t.Error("jwt secret default not generated")
	}

	d := cfg.Dispatch
	if d.InitialRadiusKM != 2 || d.RadiusIncrementKM != 0.5 || d.MaxRadiusKM != 10 {
		t.Errorf("dispatch radius defaults = %+v", d)
	}
	if d.OfferWait.Std() != 10*time.Second || d.OverallDeadline.Std() != 10*time.Minute || d.SweepInterval.Std() != 5*time.Second {
		t.Errorf("dispatch timing defaults = %+v", d)
	}
}

func TestLoadFromFileOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  user: dispatch
  password: dispatch
  name: dispatch
rabbitmq:
  user: guest
  password: guest
dispatch:
  initial_radius_km: 1
  radius_increment_km: 0.25
  max_radius_km: 4
  offer_wait: 2s
  overall_deadline: 1m
  sweep_interval: 500ms
`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Dispatch.MaxRadiusKM != 4 {
		t.Errorf("max_radius_km = %v, want 4", cfg.Dispatch.MaxRadiusKM)
	}
	if cfg.Dispatch.OfferWait.Std() != 2*time.Second {
		t.Errorf("offer_wait = %v, want 2s", cfg.Dispatch.OfferWait)
	}
	if cfg.Dispatch.SweepInterval.Std() != 500*time.Millisecond {
		t.Errorf("sweep_interval = %v, want 500ms", cfg.Dispatch.SweepInterval)
	}
}

func TestLoadFromFileValidation(t *testing.T) {
	path := writeConfig(t, `
database:
  user: dispatch
  name: dispatch
rabbitmq:
  user: guest
  password: guest
`)

	_, err := LoadFromFile(path)
	if err == nil {
		t.Fatal("expected validation error for missing database.password")
	}
	if !strings.Contains(err.Error(), "database.password") {
		t.Errorf("error should name the missing field, got: %v", err)
	}
}
