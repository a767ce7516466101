package export

import (
	"context"
	"fmt"
	"log"
	"sort"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/i474232898/sensor-map-sync/internal/telemetry"
)

// Measurement is the InfluxDB measurement readings are written to.
const Measurement = "air_quality"

// maxBatch caps the number of points sent in one write request.
const maxBatch = 5000

// InfluxSink mirrors newly added readings into an InfluxDB bucket.
type InfluxSink struct {
	client influxdb2.Client
	org    string
	bucket string
}

// NewInfluxSink connects to the InfluxDB server at url.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	client := influxdb2.NewClientWithOptions(url, token,
		influxdb2.DefaultOptions().SetHTTPRequestTimeout(30))
	return &InfluxSink{client: client, org: org, bucket: bucket}
}

func (s *InfluxSink) Name() string {
	return "influxdb"
}

// Write stores added as points tagged with the device id.
func (s *InfluxSink) Write(ctx context.Context, device telemetry.DeviceID, added []telemetry.Reading) error {
	points := Points(device, added)
	if len(points) == 0 {
		return nil
	}

	writeAPI := s.client.WriteAPIBlocking(s.org, s.bucket)
	for start := 0; start < len(points); start += maxBatch {
		end := start + maxBatch
		if end > len(points) {
			end = len(points)
		}
		if err := writeAPI.WritePoint(ctx, points[start:end]...); err != nil {
			return fmt.Errorf("write %d points to %s: %w", end-start, s.bucket, err)
		}
	}
	log.Printf("DEBUG: mirrored %d readings of device %s to influxdb", len(points), device)
	return nil
}

// Close releases the client's connections.
func (s *InfluxSink) Close() {
	s.client.Close()
}

// Points converts readings to InfluxDB points. Readings without any field are skipped.
func Points(device telemetry.DeviceID, readings []telemetry.Reading) []*write.Point {
	out := make([]*write.Point, 0, len(readings))
	for _, r := range readings {
		p := influxdb2.NewPointWithMeasurement(Measurement).
			AddTag("device_id", string(device)).
			SetTime(r.Timestamp)

		fields := 0
		if r.Latitude != nil {
			p.AddField("latitude", *r.Latitude)
			fields++
		}
		if r.Longitude != nil {
			p.AddField("longitude", *r.Longitude)
			fields++
		}
		if r.FixQuality != nil {
			p.AddField("fix_quality", *r.FixQuality)
			fields++
		}

		channels := make([]string, 0, len(r.Values))
		for ch := range r.Values {
			channels = append(channels, ch)
		}
		sort.Strings(channels)
		for _, ch := range channels {
			p.AddField(ch, r.Values[ch])
			fields++
		}

		if fields == 0 {
			continue
		}
		out = append(out, p)
	}
	return out
}
