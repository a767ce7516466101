package telemetry

import (
	"sort"
	"time"
)

// Column names shared by every blueprint. The GPS columns are required for a
// reading to be placed on a map.
const (
	ColumnLatitude   = "GPS_LAT"
	ColumnLongitude  = "GPS_LONG"
	ColumnFixQuality = "GPS_FIX"
)

// RequiredColumns lists the columns a fetched or cached dataset must carry.
var RequiredColumns = []string{ColumnLatitude, ColumnLongitude, ColumnFixQuality}

// DeviceID identifies a remote sensor unit.
type DeviceID string

func (d DeviceID) String() string {
	return string(d)
}

// Reading is one timestamped sensor observation.
type Reading struct {
	Timestamp  time.Time          `json:"timestamp"` // always UTC
	Latitude   *float64           `json:"lat,omitempty"`
	Longitude  *float64           `json:"lon,omitempty"`
	FixQuality *int               `json:"fix,omitempty"`
	Values     map[string]float64 `json:"values,omitempty"`
}

// Clone returns a deep copy of r.
func (r Reading) Clone() Reading {
	out := Reading{Timestamp: r.Timestamp}
	if r.Latitude != nil {
		v := *r.Latitude
		out.Latitude = &v
	}
	if r.Longitude != nil {
		v := *r.Longitude
		out.Longitude = &v
	}
	if r.FixQuality != nil {
		v := *r.FixQuality
		out.FixQuality = &v
	}
	if r.Values != nil {
		out.Values = make(map[string]float64, len(r.Values))
		for k, v := range r.Values {
			out.Values[k] = v
		}
	}
	return out
}

// Dataset is the collection of readings for exactly one device.
// Readings are ordered by Timestamp ascending after any scrub or merge.
type Dataset struct {
	Device   DeviceID  `json:"device"`
	Columns  []string  `json:"columns"`
	Readings []Reading `json:"readings"`
}

// NewDataset returns an empty dataset for device.
func NewDataset(device DeviceID) Dataset {
	return Dataset{Device: device}
}

// Len returns the number of readings.
func (d Dataset) Len() int {
	return len(d.Readings)
}

// Last returns the latest reading. ok is false for an empty dataset.
func (d Dataset) Last() (Reading, bool) {
	if len(d.Readings) == 0 {
		return Reading{}, false
	}
	return d.Readings[len(d.Readings)-1], true
}

// Clone returns a deep copy of d.
func (d Dataset) Clone() Dataset {
	out := Dataset{Device: d.Device}
	if d.Columns != nil {
		out.Columns = append([]string(nil), d.Columns...)
	}
	if d.Readings != nil {
		out.Readings = make([]Reading, len(d.Readings))
		for i, r := range d.Readings {
			out.Readings[i] = r.Clone()
		}
	}
	return out
}

// HasColumn reports whether name is one of the dataset's columns.
func (d Dataset) HasColumn(name string) bool {
	for _, c := range d.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// MissingColumns returns the required columns absent from d.
func (d Dataset) MissingColumns() []string {
	var missing []string
	for _, c := range RequiredColumns {
		if !d.HasColumn(c) {
			missing = append(missing, c)
		}
	}
	return missing
}

// IsSorted reports whether readings are in ascending timestamp order.
func (d Dataset) IsSorted() bool {
	return sort.SliceIsSorted(d.Readings, func(i, j int) bool {
		return d.Readings[i].Timestamp.Before(d.Readings[j].Timestamp)
	})
}

// Channels returns the sensor channel columns, GPS columns excluded, sorted.
func (d Dataset) Channels() []string {
	var out []string
	for _, c := range d.Columns {
		switch c {
		case ColumnLatitude, ColumnLongitude, ColumnFixQuality:
			continue
		}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func sortReadings(readings []Reading) {
	sort.SliceStable(readings, func(i, j int) bool {
		return readings[i].Timestamp.Before(readings[j].Timestamp)
	})
}

// unionColumns merges column lists keeping first-seen order.
func unionColumns(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range lists {
		for _, c := range l {
			if seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}
