package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/i474232898/sensor-map-sync/internal/telemetry"
)

// MemoryStore is a concurrency-safe in-memory cache store. Datasets are
// copied on the way in and out so callers never share rows with it.
type MemoryStore struct {
	mu sync.RWMutex

	// key: device id
	data map[telemetry.DeviceID]telemetry.Dataset

	// corrupt marks devices whose next Load reports ErrCacheCorrupt.
	corrupt map[telemetry.DeviceID]bool

	saves map[telemetry.DeviceID]int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:    make(map[telemetry.DeviceID]telemetry.Dataset),
		corrupt: make(map[telemetry.DeviceID]bool),
		saves:   make(map[telemetry.DeviceID]int),
	}
}

// Load returns a copy of the dataset held for device.
func (s *MemoryStore) Load(_ context.Context, device telemetry.DeviceID) (telemetry.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.corrupt[device] {
		return telemetry.Dataset{}, fmt.Errorf("%w: device %s", telemetry.ErrCacheCorrupt, device)
	}
	ds, ok := s.data[device]
	if !ok {
		return telemetry.Dataset{}, fmt.Errorf("%w: device %s", telemetry.ErrCacheNotFound, device)
	}
	return ds.Clone(), nil
}

// Save replaces the dataset held for device.
func (s *MemoryStore) Save(ctx context.Context, device telemetry.DeviceID, ds telemetry.Dataset) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[device] = ds.Clone()
	delete(s.corrupt, device)
	s.saves[device]++
	return nil
}

// MarkCorrupt makes the next Load for device fail with ErrCacheCorrupt until
// a Save replaces it.
func (s *MemoryStore) MarkCorrupt(device telemetry.DeviceID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corrupt[device] = true
}

// Saves returns how many times Save succeeded for device.
func (s *MemoryStore) Saves(device telemetry.DeviceID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves[device]
}
