package config

import (
	"testing"
	"time"

	"github.com/i474232898/sensor-map-sync/internal/telemetry"
)

var configKeys = []string{
	"DEVICE_IDS", "SMARTCITIZEN_BASE_URL", "SMARTCITIZEN_TOKEN", "SMARTCITIZEN_ROLLUP",
	"BLUEPRINT", "FETCH_INTERVAL", "FETCH_TIMEOUT", "HTTP_TIMEOUT", "CURSOR_GRANULARITY",
	"MIN_FIX_QUALITY", "MIN_LATITUDE", "MAX_LATITUDE", "PORT", "INFLUX_URL", "INFLUX_TOKEN",
	"INFLUX_ORG", "INFLUX_BUCKET", "GEOCODER_API_KEY", "LOG_FILE", "LOG_MAX_SIZE_MB",
	"LOG_MAX_BACKUPS", "LOG_MAX_AGE_DAYS",
}

// clearEnv blanks every key so the host environment cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configKeys {
		t.Setenv(k, "")
	}
	t.Setenv("CACHE_DIR", "storage/cache")
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}
	if len(cfg.Devices) != 1 || cfg.Devices[0] != "15695" {
		t.Errorf("unexpected devices %v", cfg.Devices)
	}
	if cfg.FetchInterval != 15*time.Minute || cfg.FetchTimeout != 2*time.Minute || cfg.HTTPTimeout != 30*time.Second {
		t.Errorf("unexpected durations %v %v %v", cfg.FetchInterval, cfg.FetchTimeout, cfg.HTTPTimeout)
	}
	if cfg.CursorGranularity != telemetry.CursorDay {
		t.Errorf("expected day cursor, got %s", cfg.CursorGranularity)
	}
	if cfg.ScrubPolicy() != telemetry.DefaultScrubPolicy() {
		t.Errorf("unexpected scrub policy %+v", cfg.ScrubPolicy())
	}
	if cfg.Port != "8080" || cfg.Blueprint != "sc_air" || cfg.Rollup != "1m" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DEVICE_IDS", " 15695, 16549 ,,")
	t.Setenv("CACHE_DIR", "")
	t.Setenv("CURSOR_GRANULARITY", "exact")
	t.Setenv("MIN_FIX_QUALITY", "1")
	t.Setenv("MIN_LATITUDE", "50.5")
	t.Setenv("FETCH_TIMEOUT", "45s")
	t.Setenv("INFLUX_URL", "http://localhost:8086")
	t.Setenv("INFLUX_ORG", "citizens")
	t.Setenv("INFLUX_BUCKET", "air")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}
	if len(cfg.Devices) != 2 || cfg.Devices[1] != "16549" {
		t.Errorf("unexpected devices %v", cfg.Devices)
	}
	if cfg.CacheDir != "" {
		t.Errorf("empty CACHE_DIR should select memory store, got %q", cfg.CacheDir)
	}
	if cfg.CursorGranularity != telemetry.CursorExact || cfg.FetchTimeout != 45*time.Second {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	p := cfg.ScrubPolicy()
	if p.MinFixQuality != 1 || p.MinLatitude != 50.5 || p.MaxLatitude != telemetry.DefaultMaxLatitude {
		t.Errorf("unexpected scrub policy %+v", p)
	}
}

func TestFromEnvRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad duration", map[string]string{"FETCH_INTERVAL": "soon"}},
		{"bad granularity", map[string]string{"CURSOR_GRANULARITY": "hour"}},
		{"inverted latitude bounds", map[string]string{"MIN_LATITUDE": "60", "MAX_LATITUDE": "40"}},
		{"influx without bucket", map[string]string{"INFLUX_URL": "http://localhost:8086", "INFLUX_ORG": "o"}},
		{"non numeric port", map[string]string{"PORT": "http"}},
		{"no devices", map[string]string{"DEVICE_IDS": ","}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := FromEnv(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
