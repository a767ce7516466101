package main

import (
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/i474232898/sensor-map-sync/internal/config"
	"github.com/i474232898/sensor-map-sync/internal/export"
	"github.com/i474232898/sensor-map-sync/internal/geo"
	"github.com/i474232898/sensor-map-sync/internal/logging"
	"github.com/i474232898/sensor-map-sync/internal/store"
	"github.com/i474232898/sensor-map-sync/internal/telemetry"
	"github.com/i474232898/sensor-map-sync/internal/telemetry/smartcitizen"
)

// app holds the wired components shared by all commands.
type app struct {
	cfg      *config.AppConfig
	store    telemetry.CacheStore
	engine   *telemetry.Engine
	geocoder geo.Resolver
	closers  []func()
}

// newApp loads the configuration and wires store, fetcher, sinks and engine.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	a := &app{cfg: cfg}

	logFile := logging.Setup(logging.Options{
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	a.onClose(logFile)

	if cfg.CacheDir == "" {
		log.Println("INFO: CACHE_DIR is empty; cache is kept in memory only")
		a.store = store.NewMemoryStore()
	} else {
		fs, err := store.NewFileStore(cfg.CacheDir)
		if err != nil {
			return nil, err
		}
		a.store = fs
	}

	blueprint, err := smartcitizen.LookupBlueprint(cfg.Blueprint)
	if err != nil {
		return nil, err
	}

	// Shared HTTP client for outbound API calls.
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	fetcher := smartcitizen.NewClient(httpClient, smartcitizen.Options{
		BaseURL:   cfg.SmartCitizenBaseURL,
		Token:     cfg.SmartCitizenToken,
		Rollup:    cfg.Rollup,
		Blueprint: blueprint,
	})

	var sinks []telemetry.Sink
	if cfg.InfluxURL != "" {
		influx := export.NewInfluxSink(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket)
		a.closers = append(a.closers, influx.Close)
		sinks = append(sinks, influx)
		log.Printf("INFO: mirroring new readings to influxdb bucket %s", cfg.InfluxBucket)
	}

	if cfg.GeocoderAPIKey != "" {
		a.geocoder = geo.NewGoogleResolver(cfg.GeocoderAPIKey)
	}

	a.engine = telemetry.NewEngine(
		a.store,
		fetcher,
		telemetry.NewScrubber(cfg.ScrubPolicy()),
		telemetry.EngineConfig{
			Granularity:  cfg.CursorGranularity,
			FetchTimeout: cfg.FetchTimeout,
		},
		sinks...,
	)
	return a, nil
}

func (a *app) onClose(c io.Closer) {
	a.closers = append(a.closers, func() { _ = c.Close() })
}

// Close releases resources in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// devices returns ids when given, otherwise the configured devices.
func (a *app) devices(ids []string) []telemetry.DeviceID {
	if len(ids) == 0 {
		return a.cfg.Devices
	}
	out := make([]telemetry.DeviceID, 0, len(ids))
	for _, id := range ids {
		out = append(out, telemetry.DeviceID(id))
	}
	return out
}
