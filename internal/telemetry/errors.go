package telemetry

import "errors"

var (
	// ErrCacheNotFound is returned by a CacheStore when no blob exists for a device.
	ErrCacheNotFound = errors.New("cache not found")
	// ErrCacheCorrupt is returned by a CacheStore when a blob cannot be decoded.
	ErrCacheCorrupt = errors.New("cache corrupt")
	// ErrSchema is returned when expected columns are absent from fetched or cached data.
	ErrSchema = errors.New("schema error")
	// ErrFetch wraps any failure of the remote fetcher.
	ErrFetch = errors.New("fetch failed")
	// ErrFetchTimeout is returned when the remote fetch exceeds its deadline.
	ErrFetchTimeout = errors.New("fetch timed out")
	// ErrPersist wraps failures writing the cache blob.
	ErrPersist = errors.New("persist failed")
	// ErrNotFound is returned by read paths when no data is held for a device.
	ErrNotFound = errors.New("no data for device")
)
