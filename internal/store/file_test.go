package store

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/i474232898/sensor-map-sync/internal/telemetry"
)

func ptrFloat(v float64) *float64 { return &v }
func ptrInt(v int) *int           { return &v }

func sampleDataset(device telemetry.DeviceID) telemetry.Dataset {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return telemetry.Dataset{
		Device:  device,
		Columns: []string{telemetry.ColumnLatitude, telemetry.ColumnLongitude, telemetry.ColumnFixQuality, "PMS5003_PM_25"},
		Readings: []telemetry.Reading{
			{
				Timestamp:  base,
				Latitude:   ptrFloat(56.16),
				Longitude:  ptrFloat(10.2),
				FixQuality: ptrInt(3),
				Values:     map[string]float64{"PMS5003_PM_25": 7.5},
			},
			{
				// zero-valued fields must survive the round trip
				Timestamp:  base.Add(time.Minute),
				Latitude:   ptrFloat(0),
				Longitude:  ptrFloat(0),
				FixQuality: ptrInt(0),
				Values:     map[string]float64{"PMS5003_PM_25": 0},
			},
			{
				Timestamp: base.Add(2 * time.Minute),
				Values:    map[string]float64{"PMS5003_PM_25": 9.25},
			},
		},
	}
}

func assertSameDataset(t *testing.T, want, got telemetry.Dataset) {
	t.Helper()
	if got.Device != want.Device {
		t.Fatalf("device: expected %q, got %q", want.Device, got.Device)
	}
	if len(got.Columns) != len(want.Columns) {
		t.Fatalf("columns: expected %v, got %v", want.Columns, got.Columns)
	}
	for i := range want.Columns {
		if got.Columns[i] != want.Columns[i] {
			t.Fatalf("columns: expected %v, got %v", want.Columns, got.Columns)
		}
	}
	if got.Len() != want.Len() {
		t.Fatalf("expected %d readings, got %d", want.Len(), got.Len())
	}
	for i := range want.Readings {
		w, g := want.Readings[i], got.Readings[i]
		if !g.Timestamp.Equal(w.Timestamp) {
			t.Fatalf("row %d: expected timestamp %s, got %s", i, w.Timestamp, g.Timestamp)
		}
		if !sameFloat(w.Latitude, g.Latitude) || !sameFloat(w.Longitude, g.Longitude) {
			t.Fatalf("row %d: position mismatch", i)
		}
		if (w.FixQuality == nil) != (g.FixQuality == nil) || (w.FixQuality != nil && *w.FixQuality != *g.FixQuality) {
			t.Fatalf("row %d: fix quality mismatch", i)
		}
		if len(w.Values) != len(g.Values) {
			t.Fatalf("row %d: expected values %v, got %v", i, w.Values, g.Values)
		}
		for k, v := range w.Values {
			if gv, ok := g.Values[k]; !ok || gv != v {
				t.Fatalf("row %d: expected %s=%v, got %v", i, k, v, g.Values)
			}
		}
	}
}

func sameFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	ds := sampleDataset("15695")
	if err := s.Save(ctx, "15695", ds); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := s.Load(ctx, "15695")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertSameDataset(t, ds, got)
}

func TestFileStoreLoadNotFound(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	_, err = s.Load(context.Background(), "15695")
	if !errors.Is(err, telemetry.ErrCacheNotFound) {
		t.Fatalf("expected ErrCacheNotFound, got %v", err)
	}
}

func TestFileStoreLoadCorrupt(t *testing.T) {
	tests := []struct {
		name    string
		content func(t *testing.T) []byte
	}{
		{
			name:    "garbage",
			content: func(*testing.T) []byte { return []byte("not a gob stream") },
		},
		{
			name:    "empty file",
			content: func(*testing.T) []byte { return nil },
		},
		{
			name: "truncated",
			content: func(t *testing.T) []byte {
				var buf bytes.Buffer
				if err := gob.NewEncoder(&buf).Encode(toBlob("15695", sampleDataset("15695"))); err != nil {
					t.Fatalf("encode failed: %v", err)
				}
				return buf.Bytes()[:buf.Len()/2]
			},
		},
		{
			name: "wrong version",
			content: func(t *testing.T) []byte {
				b := toBlob("15695", sampleDataset("15695"))
				b.Version = blobVersion + 1
				var buf bytes.Buffer
				if err := gob.NewEncoder(&buf).Encode(b); err != nil {
					t.Fatalf("encode failed: %v", err)
				}
				return buf.Bytes()
			},
		},
		{
			name: "other device",
			content: func(t *testing.T) []byte {
				var buf bytes.Buffer
				if err := gob.NewEncoder(&buf).Encode(toBlob("999", sampleDataset("999"))); err != nil {
					t.Fatalf("encode failed: %v", err)
				}
				return buf.Bytes()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			s, err := NewFileStore(dir)
			if err != nil {
				t.Fatalf("NewFileStore failed: %v", err)
			}
			path, _ := s.Path("15695")
			if err := os.WriteFile(path, tt.content(t), 0o600); err != nil {
				t.Fatalf("write failed: %v", err)
			}

			_, err = s.Load(context.Background(), "15695")
			if !errors.Is(err, telemetry.ErrCacheCorrupt) {
				t.Fatalf("expected ErrCacheCorrupt, got %v", err)
			}
		})
	}
}

func TestFileStoreLoadSchemaError(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	ds := sampleDataset("15695")
	ds.Columns = []string{"PMS5003_PM_25"}
	if err := s.Save(ctx, "15695", ds); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	_, err = s.Load(ctx, "15695")
	if !errors.Is(err, telemetry.ErrSchema) {
		t.Fatalf("expected ErrSchema, got %v", err)
	}
}

func TestFileStoreSaveOverwritesAtomically(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	first := sampleDataset("15695")
	if err := s.Save(ctx, "15695", first); err != nil {
		t.Fatalf("first Save failed: %v", err)
	}
	second := sampleDataset("15695")
	second.Readings = second.Readings[:1]
	if err := s.Save(ctx, "15695", second); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	got, err := s.Load(ctx, "15695")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertSameDataset(t, second, got)

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the blob in the cache dir, found %d entries", len(entries))
	}
}

func TestFileStoreSaveFailureKeepsPreviousBlob(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	if err := s.Save(ctx, "15695", sampleDataset("15695")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	path, _ := s.Path("15695")
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	// CreateTemp fails when the cache dir is gone.
	broken := &FileStore{dir: filepath.Join(dir, "missing")}
	err = broken.Save(ctx, "15695", sampleDataset("15695"))
	if !errors.Is(err, telemetry.ErrPersist) {
		t.Fatalf("expected ErrPersist, got %v", err)
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Fatal("blob changed after a failed save")
	}
}

func TestFileStoreRejectsUnsafeDeviceID(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	if _, err := s.Path("../etc"); err == nil {
		t.Fatal("expected error for path traversal device id")
	}
	if err := s.Save(context.Background(), "a/b", sampleDataset("a/b")); err == nil {
		t.Fatal("expected error saving with invalid device id")
	}
}
