package telemetry

import "time"

// CursorGranularity controls how the cursor sent to the fetcher is derived
// from the last cached reading.
type CursorGranularity string

const (
	// CursorDay truncates the cursor to the start of its UTC calendar day.
	CursorDay CursorGranularity = "day"
	// CursorExact sends the last timestamp unchanged.
	CursorExact CursorGranularity = "exact"
)

// Cursor returns the lower bound for the next fetch, or nil when ds is empty.
func Cursor(ds Dataset, g CursorGranularity) *time.Time {
	last, ok := ds.Last()
	if !ok {
		return nil
	}
	ts := last.Timestamp.UTC()
	if g != CursorExact {
		ts = time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	}
	return &ts
}

// Merge appends the fresh readings that are not already present in baseline
// (matched by timestamp) and re-sorts the result. Baseline rows win on
// duplicate timestamps. The readings actually appended are returned as added.
// Neither input is modified.
func Merge(baseline, fresh Dataset) (merged Dataset, added []Reading) {
	out := baseline.Clone()
	out.Columns = unionColumns(baseline.Columns, fresh.Columns)

	seen := make(map[int64]bool, baseline.Len())
	for _, r := range baseline.Readings {
		seen[r.Timestamp.UnixNano()] = true
	}

	for _, r := range fresh.Readings {
		key := r.Timestamp.UnixNano()
		if seen[key] {
			continue
		}
		seen[key] = true
		c := r.Clone()
		out.Readings = append(out.Readings, c)
		added = append(added, c)
	}
	sortReadings(out.Readings)
	return out, added
}
