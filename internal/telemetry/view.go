package telemetry

import (
	"math"
	"sort"
	"time"
)

// Point is a single mappable sample of one channel.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Value     float64   `json:"value"`
}

// Cell is one square of a density grid. Intensity is Mean normalised to 0-1
// across the grid.
type Cell struct {
	CenterLat float64 `json:"centerLat"`
	CenterLon float64 `json:"centerLon"`
	Count     int     `json:"count"`
	Mean      float64 `json:"mean"`
	Intensity float64 `json:"intensity"`
}

// Grid is the density view of a channel.
type Grid struct {
	Channel  string  `json:"channel"`
	CellDeg  float64 `json:"cellDeg"`
	Cells    []Cell  `json:"cells"`
	MinValue float64 `json:"minValue"`
	MaxValue float64 `json:"maxValue"`
}

// Center is the mean position of a dataset.
type Center struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Samples int     `json:"samples"`
}

// DefaultCellDeg is roughly 100 m of latitude.
const DefaultCellDeg = 0.001

// Between returns the readings with from <= timestamp <= to. A zero bound is open.
func Between(ds Dataset, from, to time.Time) Dataset {
	out := Dataset{Device: ds.Device, Columns: ds.Columns}
	for _, r := range ds.Readings {
		if !from.IsZero() && r.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && r.Timestamp.After(to) {
			continue
		}
		out.Readings = append(out.Readings, r)
	}
	return out
}

// Points returns the positioned samples of channel, skipping readings that
// lack a position or a value for it.
func Points(ds Dataset, channel string) []Point {
	var out []Point
	for _, r := range ds.Readings {
		if r.Latitude == nil || r.Longitude == nil {
			continue
		}
		v, ok := r.Values[channel]
		if !ok || math.IsNaN(v) {
			continue
		}
		out = append(out, Point{
			Timestamp: r.Timestamp,
			Lat:       *r.Latitude,
			Lon:       *r.Longitude,
			Value:     v,
		})
	}
	return out
}

// Density bins the points of channel into square cells of cellDeg degrees and
// averages the channel value per cell.
func Density(ds Dataset, channel string, cellDeg float64) Grid {
	if cellDeg <= 0 {
		cellDeg = DefaultCellDeg
	}
	grid := Grid{Channel: channel, CellDeg: cellDeg}

	type key struct{ x, y int64 }
	type acc struct {
		sum   float64
		count int
	}
	cells := make(map[key]*acc)
	for _, p := range Points(ds, channel) {
		k := key{
			x: int64(math.Floor(p.Lon / cellDeg)),
			y: int64(math.Floor(p.Lat / cellDeg)),
		}
		a, ok := cells[k]
		if !ok {
			a = &acc{}
			cells[k] = a
		}
		a.sum += p.Value
		a.count++
	}
	if len(cells) == 0 {
		return grid
	}

	grid.MinValue = math.Inf(1)
	grid.MaxValue = math.Inf(-1)
	for k, a := range cells {
		mean := a.sum / float64(a.count)
		grid.Cells = append(grid.Cells, Cell{
			CenterLat: (float64(k.y) + 0.5) * cellDeg,
			CenterLon: (float64(k.x) + 0.5) * cellDeg,
			Count:     a.count,
			Mean:      mean,
		})
		grid.MinValue = math.Min(grid.MinValue, mean)
		grid.MaxValue = math.Max(grid.MaxValue, mean)
	}

	span := grid.MaxValue - grid.MinValue
	for i := range grid.Cells {
		if span == 0 {
			grid.Cells[i].Intensity = 1
			continue
		}
		grid.Cells[i].Intensity = (grid.Cells[i].Mean - grid.MinValue) / span
	}

	sort.Slice(grid.Cells, func(i, j int) bool {
		a, b := grid.Cells[i], grid.Cells[j]
		if a.CenterLat != b.CenterLat {
			return a.CenterLat < b.CenterLat
		}
		return a.CenterLon < b.CenterLon
	})
	return grid
}

// MeanCenter returns the mean latitude/longitude of the positioned readings.
// ok is false when no reading has a position.
func MeanCenter(ds Dataset) (Center, bool) {
	var c Center
	var sumLat, sumLon float64
	for _, r := range ds.Readings {
		if r.Latitude == nil || r.Longitude == nil {
			continue
		}
		sumLat += *r.Latitude
		sumLon += *r.Longitude
		c.Samples++
	}
	if c.Samples == 0 {
		return c, false
	}
	c.Lat = sumLat / float64(c.Samples)
	c.Lon = sumLon / float64(c.Samples)
	return c, true
}
