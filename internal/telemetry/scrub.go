package telemetry

import (
	"fmt"
	"math"
	"strings"
)

// Default scrub thresholds.
const (
	DefaultMinFixQuality = 2
	DefaultMinLatitude   = 1.0
	DefaultMaxLatitude   = 90.0
)

// ScrubPolicy holds the thresholds a reading must pass to be kept.
// A reading is kept when FixQuality > MinFixQuality and
// MinLatitude < Latitude <= MaxLatitude.
type ScrubPolicy struct {
	MinFixQuality int
	MinLatitude   float64
	MaxLatitude   float64
}

// DefaultScrubPolicy returns the policy used when nothing is configured.
func DefaultScrubPolicy() ScrubPolicy {
	return ScrubPolicy{
		MinFixQuality: DefaultMinFixQuality,
		MinLatitude:   DefaultMinLatitude,
		MaxLatitude:   DefaultMaxLatitude,
	}
}

// ScrubReport summarises a scrub pass for operators.
type ScrubReport struct {
	Raw     int `json:"raw"`
	Dropped int `json:"dropped"`
	Kept    int `json:"kept"`
}

// Scrubber validates raw batches against a ScrubPolicy.
type Scrubber struct {
	policy ScrubPolicy
}

// NewScrubber creates a Scrubber.
func NewScrubber(policy ScrubPolicy) *Scrubber {
	return &Scrubber{policy: policy}
}

// Policy returns the scrubber's thresholds.
func (s *Scrubber) Policy() ScrubPolicy {
	return s.policy
}

// Keep reports whether r passes the policy.
func (s *Scrubber) Keep(r Reading) bool {
	if r.Latitude == nil || r.Longitude == nil || r.FixQuality == nil {
		return false
	}
	lat, lon := *r.Latitude, *r.Longitude
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	if *r.FixQuality <= s.policy.MinFixQuality {
		return false
	}
	if lat <= s.policy.MinLatitude || lat > s.policy.MaxLatitude {
		return false
	}
	return true
}

// Scrub returns a new dataset holding only the readings of raw that pass the
// policy, sorted by timestamp. raw is not modified.
func (s *Scrubber) Scrub(raw Dataset) (Dataset, ScrubReport, error) {
	report := ScrubReport{Raw: raw.Len()}

	if raw.Len() > 0 {
		if missing := raw.MissingColumns(); len(missing) > 0 {
			return Dataset{}, report, fmt.Errorf("%w: device %s batch lacks %s",
				ErrSchema, raw.Device, strings.Join(missing, ", "))
		}
	}

	out := Dataset{Device: raw.Device}
	if raw.Columns != nil {
		out.Columns = append([]string(nil), raw.Columns...)
	}

	for _, r := range raw.Readings {
		if !s.Keep(r) {
			continue
		}
		out.Readings = append(out.Readings, r.Clone())
	}
	sortReadings(out.Readings)

	report.Kept = out.Len()
	report.Dropped = report.Raw - report.Kept
	return out, report, nil
}
