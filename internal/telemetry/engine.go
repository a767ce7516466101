package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// State is a step of a single sync run.
type State string

const (
	StateStart          State = "START"
	StateLoadingCache   State = "LOADING_CACHE"
	StateCacheHit       State = "CACHE_HIT"
	StateCacheMiss      State = "CACHE_MISS"
	StateFetching       State = "FETCHING"
	StateScrubbing      State = "SCRUBBING"
	StateMerging        State = "MERGING"
	StateGrowthDetected State = "GROWTH_DETECTED"
	StateNoGrowth       State = "NO_GROWTH"
	StatePersisting     State = "PERSISTING"
	StateDone           State = "DONE"
)

// CacheStatus describes how the baseline was obtained.
type CacheStatus string

const (
	CacheHit     CacheStatus = "hit"
	CacheMiss    CacheStatus = "miss"
	CacheCorrupt CacheStatus = "corrupt"
)

// Report is the operator-facing summary of one sync run.
type Report struct {
	RunID     string        `json:"runId"`
	Device    DeviceID      `json:"device"`
	Cache     CacheStatus   `json:"cache"`
	Cursor    *time.Time    `json:"cursor,omitempty"`
	Baseline  int           `json:"baseline"`
	Fetched   int           `json:"fetched"`
	Dropped   int           `json:"dropped"`
	Added     int           `json:"added"`
	Size      int           `json:"size"`
	Freshest  *time.Time    `json:"freshest,omitempty"`
	Persisted bool          `json:"persisted"`
	Started   time.Time     `json:"started"`
	Duration  time.Duration `json:"duration"`
	States    []State       `json:"states"`
	Error     string        `json:"error,omitempty"`
}

func (r *Report) enter(s State) {
	r.States = append(r.States, s)
}

// EngineConfig tunes an Engine.
type EngineConfig struct {
	Granularity  CursorGranularity
	FetchTimeout time.Duration // 0 disables the per-run fetch deadline
}

// Engine runs incremental syncs: load cache, fetch the delta since the
// cursor, scrub, merge and persist when the dataset grew.
type Engine struct {
	store    CacheStore
	fetcher  Fetcher
	scrubber *Scrubber
	sinks    []Sink
	cfg      EngineConfig

	flights singleflight.Group

	mu       sync.RWMutex
	datasets map[DeviceID]Dataset
	reports  map[DeviceID]Report
}

// NewEngine creates a new Engine.
func NewEngine(store CacheStore, fetcher Fetcher, scrubber *Scrubber, cfg EngineConfig, sinks ...Sink) *Engine {
	if scrubber == nil {
		scrubber = NewScrubber(DefaultScrubPolicy())
	}
	if cfg.Granularity == "" {
		cfg.Granularity = CursorDay
	}
	return &Engine{
		store:    store,
		fetcher:  fetcher,
		scrubber: scrubber,
		sinks:    sinks,
		cfg:      cfg,
		datasets: make(map[DeviceID]Dataset),
		reports:  make(map[DeviceID]Report),
	}
}

// Sync runs one sync cycle for device. Concurrent calls for the same device
// share a single run and its result.
func (e *Engine) Sync(ctx context.Context, device DeviceID) (Report, error) {
	v, err, shared := e.flights.Do(string(device), func() (interface{}, error) {
		return e.run(ctx, device)
	})
	if shared {
		log.Printf("DEBUG: sync for %s joined an in-flight run", device)
	}
	report, _ := v.(Report)
	return report, err
}

func (e *Engine) run(ctx context.Context, device DeviceID) (report Report, err error) {
	report = Report{
		RunID:   uuid.NewString(),
		Device:  device,
		Started: time.Now().UTC(),
	}
	report.enter(StateStart)
	defer func() {
		report.Duration = time.Since(report.Started)
		if err != nil {
			report.Error = err.Error()
			log.Printf("ERROR: sync for device %s failed in %s: %v", device, report.States[len(report.States)-1], err)
		}
		e.rememberReport(report)
	}()

	report.enter(StateLoadingCache)
	baseline, err := e.store.Load(ctx, device)
	switch {
	case err == nil:
		report.enter(StateCacheHit)
		report.Cache = CacheHit
	case errors.Is(err, ErrCacheNotFound):
		log.Printf("INFO: no cache for device %s yet; fetching full history", device)
		report.enter(StateCacheMiss)
		report.Cache = CacheMiss
		baseline = NewDataset(device)
	case errors.Is(err, ErrCacheCorrupt):
		log.Printf("WARN: cache for device %s is corrupt (%v); fetching full history", device, err)
		report.enter(StateCacheMiss)
		report.Cache = CacheCorrupt
		baseline = NewDataset(device)
	default:
		return report, fmt.Errorf("load cache for %s: %w", device, err)
	}
	report.Baseline = baseline.Len()
	report.Cursor = Cursor(baseline, e.cfg.Granularity)

	report.enter(StateFetching)
	raw, err := e.fetch(ctx, device, report.Cursor)
	if err != nil {
		return report, err
	}
	report.Fetched = raw.Len()

	report.enter(StateScrubbing)
	if raw.Device == "" {
		raw.Device = device
	}
	fresh, scrub, err := e.scrubber.Scrub(raw)
	if err != nil {
		return report, err
	}
	report.Dropped = scrub.Dropped
	log.Printf("INFO: device %s: dropped %d of %d fetched rows, %d kept", device, scrub.Dropped, scrub.Raw, scrub.Kept)

	report.enter(StateMerging)
	merged, added := Merge(baseline, fresh)
	merged.Device = device
	report.Size = merged.Len()
	report.Added = merged.Len() - baseline.Len()
	if last, ok := merged.Last(); ok {
		ts := last.Timestamp
		report.Freshest = &ts
	}

	if report.Added <= 0 {
		report.enter(StateNoGrowth)
		e.remember(device, merged)
		log.Printf("INFO: device %s: no new rows; cache left as is (%d rows)", device, report.Size)
		report.enter(StateDone)
		return report, nil
	}

	report.enter(StateGrowthDetected)
	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("sync for %s abandoned before persisting: %w", device, err)
	}

	report.enter(StatePersisting)
	if err := e.store.Save(ctx, device, merged); err != nil {
		return report, fmt.Errorf("save cache for %s: %w", device, err)
	}
	report.Persisted = true
	e.remember(device, merged)
	log.Printf("INFO: device %s: added %d rows, %d cached, freshest %s",
		device, report.Added, report.Size, report.Freshest.Format(time.RFC3339))

	e.notify(ctx, device, added)

	report.enter(StateDone)
	return report, nil
}

func (e *Engine) fetch(ctx context.Context, device DeviceID, since *time.Time) (Dataset, error) {
	if e.fetcher == nil {
		return Dataset{}, fmt.Errorf("%w: no fetcher configured", ErrFetch)
	}

	fctx := ctx
	if e.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, e.cfg.FetchTimeout)
		defer cancel()
	}

	raw, err := e.fetcher.Fetch(fctx, device, since)
	if err != nil {
		// Only our own deadline counts as a timeout; a caller cancellation is a failure.
		timedOut := errors.Is(err, context.DeadlineExceeded) || errors.Is(fctx.Err(), context.DeadlineExceeded)
		if timedOut && ctx.Err() == nil {
			return Dataset{}, fmt.Errorf("%w: %s after %s: %v", ErrFetchTimeout, e.fetcher.Name(), e.cfg.FetchTimeout, err)
		}
		return Dataset{}, fmt.Errorf("%w: %s for device %s: %v", ErrFetch, e.fetcher.Name(), device, err)
	}
	if err := ctx.Err(); err != nil {
		return Dataset{}, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	return raw, nil
}

func (e *Engine) notify(ctx context.Context, device DeviceID, added []Reading) {
	for _, s := range e.sinks {
		if err := s.Write(ctx, device, added); err != nil {
			log.Printf("WARN: sink %s failed for device %s: %v", s.Name(), device, err)
		}
	}
}

func (e *Engine) remember(device DeviceID, ds Dataset) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.datasets[device] = ds
}

func (e *Engine) rememberReport(r Report) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reports[r.Device] = r
}

// Snapshot returns a copy of the latest dataset held for device.
func (e *Engine) Snapshot(device DeviceID) (Dataset, error) {
	e.mu.RLock()
	ds, ok := e.datasets[device]
	e.mu.RUnlock()
	if !ok {
		return Dataset{}, ErrNotFound
	}
	return ds.Clone(), nil
}

// Warm loads the cached dataset for device into memory without fetching.
// A missing or corrupt cache is not an error.
func (e *Engine) Warm(ctx context.Context, device DeviceID) error {
	ds, err := e.store.Load(ctx, device)
	if err != nil {
		if errors.Is(err, ErrCacheNotFound) || errors.Is(err, ErrCacheCorrupt) {
			log.Printf("INFO: nothing to warm for device %s: %v", device, err)
			return nil
		}
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.datasets[device] = ds
	return nil
}

// LastReport returns the report of the latest completed run for device.
func (e *Engine) LastReport(device DeviceID) (Report, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.reports[device]
	if !ok {
		return Report{}, ErrNotFound
	}
	return r, nil
}
