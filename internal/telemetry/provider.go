package telemetry

import (
	"context"
	"time"
)

// Fetcher abstracts the remote telemetry API.
// A nil since requests the full history; otherwise only readings newer than since.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, device DeviceID, since *time.Time) (Dataset, error)
}

// CacheStore is the contract both the file store and the in-memory store satisfy.
type CacheStore interface {
	Load(ctx context.Context, device DeviceID) (Dataset, error)
	Save(ctx context.Context, device DeviceID, ds Dataset) error
}

// Sink receives readings newly added to a device's cache after they are persisted.
type Sink interface {
	Name() string
	Write(ctx context.Context, device DeviceID, added []Reading) error
}
