package geo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/kelvins/geocoder"
)

// ErrNoAddress is returned when the geocoder knows no address for a position.
var ErrNoAddress = errors.New("no address found")

// Resolver turns a position into a human readable address.
type Resolver interface {
	Reverse(ctx context.Context, lat, lon float64) (string, error)
}

// keyMu guards the geocoder package's global API key.
var keyMu sync.Mutex

// GoogleResolver reverse geocodes through the Google Maps API. Results are
// cached per ~10 m cell since a map centre barely moves between syncs.
type GoogleResolver struct {
	apiKey string
	lookup func(geocoder.Location) ([]geocoder.Address, error)

	mu    sync.Mutex
	cache map[[2]int64]string
}

// NewGoogleResolver creates a resolver using apiKey.
func NewGoogleResolver(apiKey string) *GoogleResolver {
	r := &GoogleResolver{apiKey: apiKey, cache: make(map[[2]int64]string)}
	r.lookup = r.reverse
	return r
}

func (r *GoogleResolver) reverse(loc geocoder.Location) ([]geocoder.Address, error) {
	keyMu.Lock()
	defer keyMu.Unlock()
	geocoder.ApiKey = r.apiKey
	return geocoder.GeocodingReverse(loc)
}

// Reverse returns the formatted address closest to lat/lon.
func (r *GoogleResolver) Reverse(ctx context.Context, lat, lon float64) (string, error) {
	key := [2]int64{int64(math.Round(lat * 1e4)), int64(math.Round(lon * 1e4))}
	r.mu.Lock()
	if addr, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return addr, nil
	}
	r.mu.Unlock()

	type result struct {
		addrs []geocoder.Address
		err   error
	}
	done := make(chan result, 1)
	go func() {
		addrs, err := r.lookup(geocoder.Location{Latitude: lat, Longitude: lon})
		done <- result{addrs, err}
	}()

	var res result
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res = <-done:
	}
	if res.err != nil {
		return "", fmt.Errorf("reverse geocode %.5f,%.5f: %w", lat, lon, res.err)
	}

	addr := ""
	for _, a := range res.addrs {
		if a.FormattedAddress != "" {
			addr = a.FormattedAddress
			break
		}
	}
	if addr == "" {
		return "", ErrNoAddress
	}

	r.mu.Lock()
	r.cache[key] = addr
	r.mu.Unlock()
	return addr, nil
}
