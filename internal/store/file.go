package store

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/i474232898/sensor-map-sync/internal/telemetry"
)

const (
	blobMagic   = "SCKCACHE"
	blobVersion = 1
)

var validDeviceID = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// blob is the on-disk form of a Dataset.
type blob struct {
	Magic   string
	Version int
	Device  string
	Columns []string
	Rows    []row
}

// row stores optional fields with explicit presence bits: gob omits zero
// values, so a pointer to 0 would otherwise decode as nil.
type row struct {
	UnixNano   int64
	Has        uint8
	Latitude   float64
	Longitude  float64
	FixQuality int
	Values     map[string]float64
}

const (
	hasLatitude uint8 = 1 << iota
	hasLongitude
	hasFixQuality
)

// FileStore keeps one gob blob per device under a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the cache directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Path returns the blob path for device.
func (s *FileStore) Path(device telemetry.DeviceID) (string, error) {
	if !validDeviceID.MatchString(string(device)) {
		return "", fmt.Errorf("invalid device id %q", device)
	}
	return filepath.Join(s.dir, "SCK_"+string(device)+".gob"), nil
}

// Load reads the blob for device.
func (s *FileStore) Load(ctx context.Context, device telemetry.DeviceID) (telemetry.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return telemetry.Dataset{}, err
	}
	path, err := s.Path(device)
	if err != nil {
		return telemetry.Dataset{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return telemetry.Dataset{}, fmt.Errorf("%w: %s", telemetry.ErrCacheNotFound, path)
		}
		return telemetry.Dataset{}, err
	}
	defer f.Close()

	var b blob
	if err := gob.NewDecoder(f).Decode(&b); err != nil {
		return telemetry.Dataset{}, fmt.Errorf("%w: decode %s: %v", telemetry.ErrCacheCorrupt, path, err)
	}
	if b.Magic != blobMagic || b.Version != blobVersion {
		return telemetry.Dataset{}, fmt.Errorf("%w: %s has magic %q version %d", telemetry.ErrCacheCorrupt, path, b.Magic, b.Version)
	}
	if b.Device != string(device) {
		return telemetry.Dataset{}, fmt.Errorf("%w: %s belongs to device %q", telemetry.ErrCacheCorrupt, path, b.Device)
	}

	ds := fromBlob(b)
	if ds.Len() > 0 {
		if missing := ds.MissingColumns(); len(missing) > 0 {
			return telemetry.Dataset{}, fmt.Errorf("%w: cached %s lacks %s", telemetry.ErrSchema, path, strings.Join(missing, ", "))
		}
	}
	return ds, nil
}

// Save atomically replaces the blob for device: the dataset is written to a
// temp file in the same directory which is then renamed over the blob.
func (s *FileStore) Save(ctx context.Context, device telemetry.DeviceID, ds telemetry.Dataset) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.Path(device)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", telemetry.ErrPersist, err)
	}
	tmpPath := tmp.Name()

	if err := gob.NewEncoder(tmp).Encode(toBlob(device, ds)); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: encode %s: %v", telemetry.ErrPersist, device, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: sync temp file: %v", telemetry.ErrPersist, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: close temp file: %v", telemetry.ErrPersist, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: rename temp file: %v", telemetry.ErrPersist, err)
	}
	return nil
}

func toBlob(device telemetry.DeviceID, ds telemetry.Dataset) blob {
	b := blob{
		Magic:   blobMagic,
		Version: blobVersion,
		Device:  string(device),
		Columns: ds.Columns,
		Rows:    make([]row, len(ds.Readings)),
	}
	for i, r := range ds.Readings {
		out := row{
			UnixNano: r.Timestamp.UnixNano(),
			Values:   r.Values,
		}
		if r.Latitude != nil {
			out.Has |= hasLatitude
			out.Latitude = *r.Latitude
		}
		if r.Longitude != nil {
			out.Has |= hasLongitude
			out.Longitude = *r.Longitude
		}
		if r.FixQuality != nil {
			out.Has |= hasFixQuality
			out.FixQuality = *r.FixQuality
		}
		b.Rows[i] = out
	}
	return b
}

func fromBlob(b blob) telemetry.Dataset {
	ds := telemetry.Dataset{
		Device:  telemetry.DeviceID(b.Device),
		Columns: b.Columns,
	}
	if len(b.Rows) > 0 {
		ds.Readings = make([]telemetry.Reading, len(b.Rows))
	}
	for i, r := range b.Rows {
		reading := telemetry.Reading{
			Timestamp: time.Unix(0, r.UnixNano).UTC(),
			Values:    r.Values,
		}
		if r.Has&hasLatitude != 0 {
			lat := r.Latitude
			reading.Latitude = &lat
		}
		if r.Has&hasLongitude != 0 {
			lon := r.Longitude
			reading.Longitude = &lon
		}
		if r.Has&hasFixQuality != 0 {
			fix := r.FixQuality
			reading.FixQuality = &fix
		}
		ds.Readings[i] = reading
	}
	return ds
}
