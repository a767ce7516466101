package telemetry

import (
	"math"
	"testing"
	"time"
)

func TestBetweenIsInclusive(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	ds := Dataset{Readings: []Reading{
		{Timestamp: base},
		{Timestamp: base.Add(time.Hour)},
		{Timestamp: base.Add(2 * time.Hour)},
	}}

	got := Between(ds, base, base.Add(time.Hour))
	if got.Len() != 2 {
		t.Fatalf("expected 2 readings, got %d", got.Len())
	}
	if open := Between(ds, time.Time{}, time.Time{}); open.Len() != 3 {
		t.Fatalf("expected open range to keep all readings, got %d", open.Len())
	}
}

func TestPointsSkipsMissingValues(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	ds := Dataset{Readings: []Reading{
		fix(base, 56.1, 10.1, 3),
		{Timestamp: base.Add(time.Minute), Latitude: ptrFloat(56), Longitude: ptrFloat(10), Values: map[string]float64{"NOISE_A": 40}},
		{Timestamp: base.Add(2 * time.Minute), Values: map[string]float64{"PMS5003_PM_25": 3}},
	}}

	points := Points(ds, "PMS5003_PM_25")
	if len(points) != 1 {
		t.Fatalf("expected 1 point, got %d", len(points))
	}
	if points[0].Lat != 56.1 || points[0].Lon != 10.1 {
		t.Fatalf("unexpected point %+v", points[0])
	}
}

func TestDensityAveragesPerCell(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	reading := func(i int, lat, lon, v float64) Reading {
		return Reading{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Latitude:  ptrFloat(lat),
			Longitude: ptrFloat(lon),
			Values:    map[string]float64{"PM": v},
		}
	}
	ds := Dataset{Readings: []Reading{
		reading(0, 56.0001, 10.0001, 10),
		reading(1, 56.0002, 10.0002, 20),
		reading(2, 56.0101, 10.0101, 40),
	}}

	grid := Density(ds, "PM", 0.01)
	if len(grid.Cells) != 2 {
		t.Fatalf("expected 2 cells, got %d", len(grid.Cells))
	}
	first := grid.Cells[0]
	if first.Count != 2 || first.Mean != 15 || first.Intensity != 0 {
		t.Fatalf("unexpected first cell %+v", first)
	}
	second := grid.Cells[1]
	if second.Count != 1 || second.Mean != 40 || second.Intensity != 1 {
		t.Fatalf("unexpected second cell %+v", second)
	}
	if grid.MinValue != 15 || grid.MaxValue != 40 {
		t.Fatalf("unexpected bounds %v..%v", grid.MinValue, grid.MaxValue)
	}
	if math.Abs(first.CenterLat-56.005) > 1e-9 {
		t.Fatalf("unexpected cell centre %v", first.CenterLat)
	}
}

func TestMeanCenter(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	if _, ok := MeanCenter(NewDataset("1")); ok {
		t.Fatal("expected no centre for an empty dataset")
	}
	c, ok := MeanCenter(Dataset{Readings: []Reading{
		fix(base, 56, 10, 3),
		fix(base.Add(time.Minute), 58, 12, 3),
		{Timestamp: base.Add(2 * time.Minute)},
	}})
	if !ok || c.Lat != 57 || c.Lon != 11 || c.Samples != 2 {
		t.Fatalf("unexpected centre %+v", c)
	}
}
