package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/i474232898/sensor-map-sync/internal/common"
	"github.com/i474232898/sensor-map-sync/internal/telemetry"
)

type AppConfig struct {
	// Devices to keep in sync.
	Devices []telemetry.DeviceID `validate:"min=1,dive,required"`

	// CacheDir holds one blob per device. Empty keeps the cache in memory.
	CacheDir string

	SmartCitizenBaseURL string `validate:"required,url"`
	SmartCitizenToken   string
	Rollup              string `validate:"required"`
	Blueprint           string `validate:"required"`

	// FetchInterval controls how often every device is synced.
	FetchInterval time.Duration `validate:"gt=0"`
	// FetchTimeout bounds one remote fetch; HTTPTimeout bounds one request.
	FetchTimeout time.Duration `validate:"gte=0"`
	HTTPTimeout  time.Duration `validate:"gt=0"`

	CursorGranularity telemetry.CursorGranularity `validate:"oneof=day exact"`

	MinFixQuality int     `validate:"gte=0"`
	MinLatitude   float64 `validate:"gte=-90,lte=90"`
	MaxLatitude   float64 `validate:"gte=-90,lte=90,gtfield=MinLatitude"`

	Port string `validate:"required,numeric"`

	// InfluxDB mirror; disabled when InfluxURL is empty.
	InfluxURL    string `validate:"omitempty,url"`
	InfluxToken  string
	InfluxOrg    string `validate:"required_with=InfluxURL"`
	InfluxBucket string `validate:"required_with=InfluxURL"`

	// GeocoderAPIKey enables reverse geocoding of the map centre.
	GeocoderAPIKey string

	LogFile       string
	LogMaxSizeMB  int `validate:"gte=0"`
	LogMaxBackups int `validate:"gte=0"`
	LogMaxAgeDays int `validate:"gte=0"`
}

// ScrubPolicy returns the configured scrub thresholds.
func (c *AppConfig) ScrubPolicy() telemetry.ScrubPolicy {
	return telemetry.ScrubPolicy{
		MinFixQuality: c.MinFixQuality,
		MinLatitude:   c.MinLatitude,
		MaxLatitude:   c.MaxLatitude,
	}
}

// Load reads configuration from .env and the environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	return FromEnv()
}

// FromEnv builds and validates the configuration from the process environment.
func FromEnv() (*AppConfig, error) {
	cfg := &AppConfig{}

	for _, id := range common.SplitList(getenvDefault("DEVICE_IDS", "15695")) {
		cfg.Devices = append(cfg.Devices, telemetry.DeviceID(id))
	}

	// CACHE_DIR= (set but empty) selects the in-memory store.
	cfg.CacheDir = "storage/cache"
	if v, ok := os.LookupEnv("CACHE_DIR"); ok {
		cfg.CacheDir = v
	}

	cfg.SmartCitizenBaseURL = getenvDefault("SMARTCITIZEN_BASE_URL", "https://api.smartcitizen.me/v0")
	cfg.SmartCitizenToken = os.Getenv("SMARTCITIZEN_TOKEN")
	cfg.Rollup = getenvDefault("SMARTCITIZEN_ROLLUP", "1m")
	cfg.Blueprint = getenvDefault("BLUEPRINT", "sc_air")

	var err error
	if cfg.FetchInterval, err = getenvDuration("FETCH_INTERVAL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout, err = getenvDuration("FETCH_TIMEOUT", 2*time.Minute); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}

	cfg.CursorGranularity = telemetry.CursorGranularity(getenvDefault("CURSOR_GRANULARITY", string(telemetry.CursorDay)))

	cfg.MinFixQuality = getenvInt("MIN_FIX_QUALITY", telemetry.DefaultMinFixQuality)
	cfg.MinLatitude = getenvFloat("MIN_LATITUDE", telemetry.DefaultMinLatitude)
	cfg.MaxLatitude = getenvFloat("MAX_LATITUDE", telemetry.DefaultMaxLatitude)

	cfg.Port = getenvDefault("PORT", "8080")

	cfg.InfluxURL = os.Getenv("INFLUX_URL")
	cfg.InfluxToken = os.Getenv("INFLUX_TOKEN")
	cfg.InfluxOrg = os.Getenv("INFLUX_ORG")
	cfg.InfluxBucket = os.Getenv("INFLUX_BUCKET")

	cfg.GeocoderAPIKey = os.Getenv("GEOCODER_API_KEY")

	cfg.LogFile = os.Getenv("LOG_FILE")
	cfg.LogMaxSizeMB = getenvInt("LOG_MAX_SIZE_MB", 50)
	cfg.LogMaxBackups = getenvInt("LOG_MAX_BACKUPS", 5)
	cfg.LogMaxAgeDays = getenvInt("LOG_MAX_AGE_DAYS", 30)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
		log.Printf("WARN: ignoring invalid %s=%q: %v", key, v, err)
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
		log.Printf("WARN: ignoring invalid %s=%q: %v", key, v, err)
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
