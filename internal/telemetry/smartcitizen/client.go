package smartcitizen

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/sensor-map-sync/internal/telemetry"
)

// DefaultBaseURL is the public SmartCitizen API.
const DefaultBaseURL = "https://api.smartcitizen.me/v0"

// historyStart is the lower bound used when a device reports no creation date.
var historyStart = time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)

// Options configures a Client.
type Options struct {
	BaseURL   string
	Token     string
	Rollup    string // sample frequency requested from the API, e.g. "1m"
	Blueprint Blueprint
	Backoff   BackoffConfig
}

// Client implements telemetry.Fetcher against the SmartCitizen API.
type Client struct {
	name      string
	baseURL   string
	token     string
	rollup    string
	blueprint Blueprint
	httpCfg   HTTPClientConfig
	circuit   *gobreaker.CircuitBreaker
	now       func() time.Time
}

// NewClient creates a SmartCitizen client.
func NewClient(client *http.Client, opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Rollup == "" {
		opts.Rollup = "1m"
	}
	if opts.Backoff == (BackoffConfig{}) {
		opts.Backoff = DefaultBackoff
	}

	return &Client{
		name:      "smartcitizen",
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		token:     opts.Token,
		rollup:    opts.Rollup,
		blueprint: opts.Blueprint,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: opts.Backoff,
		},
		circuit: newBreaker("smartcitizen"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (c *Client) Name() string {
	return c.name
}

type apiSensor struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Unit        string `json:"unit"`
}

type apiDevice struct {
	ID        int        `json:"id"`
	Name      string     `json:"name"`
	CreatedAt *time.Time `json:"created_at"`
	Data      struct {
		Sensors []apiSensor `json:"sensors"`
	} `json:"data"`
}

type apiReadings struct {
	SensorID int                 `json:"sensor_id"`
	Readings [][]json.RawMessage `json:"readings"`
}

// mappedSensor is a remote sensor bound to a dataset column.
type mappedSensor struct {
	sensor apiSensor
	column string
}

// Fetch returns the readings of device newer than since (full history when
// since is nil), pivoted into one Reading per timestamp. Sensors are
// requested one after another.
func (c *Client) Fetch(ctx context.Context, device telemetry.DeviceID, since *time.Time) (telemetry.Dataset, error) {
	dev, err := c.device(ctx, device)
	if err != nil {
		return telemetry.Dataset{}, err
	}

	sensors := c.mapSensors(dev.Data.Sensors)
	ds := telemetry.Dataset{Device: device}
	for _, m := range sensors {
		ds.Columns = append(ds.Columns, m.column)
	}
	if len(sensors) == 0 {
		log.Printf("WARN: device %s reports no sensors known to blueprint %s", device, c.blueprint.Name)
		return ds, nil
	}

	from := c.from(dev, since)
	to := c.now().Format(time.RFC3339)

	// The API may return the cursor itself; exact cursors are exclusive.
	exact := since != nil && !isDay(*since)

	rows := make(map[int64]*telemetry.Reading)
	for _, m := range sensors {
		samples, err := c.readings(ctx, device, m.sensor.ID, from, to)
		if err != nil {
			return telemetry.Dataset{}, fmt.Errorf("sensor %d (%s): %w", m.sensor.ID, m.column, err)
		}
		for _, s := range samples {
			if exact && !s.ts.After(*since) {
				continue
			}
			key := s.ts.UnixNano()
			r, ok := rows[key]
			if !ok {
				r = &telemetry.Reading{Timestamp: s.ts}
				rows[key] = r
			}
			assign(r, m.column, s.value)
		}
	}

	keys := make([]int64, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	ds.Readings = make([]telemetry.Reading, 0, len(keys))
	for _, k := range keys {
		ds.Readings = append(ds.Readings, *rows[k])
	}

	log.Printf("DEBUG: fetched %d rows across %d sensors for device %s from %s", len(ds.Readings), len(sensors), device, from)
	return ds, nil
}

// mapSensors keeps the first remote sensor per column in blueprint order.
func (c *Client) mapSensors(sensors []apiSensor) []mappedSensor {
	byColumn := make(map[string]apiSensor)
	for _, s := range sensors {
		col, ok := c.blueprint.Column(s)
		if !ok {
			continue
		}
		if _, dup := byColumn[col]; dup {
			continue
		}
		byColumn[col] = s
	}

	var out []mappedSensor
	for _, ch := range c.blueprint.Channels {
		if s, ok := byColumn[ch.Column]; ok {
			out = append(out, mappedSensor{sensor: s, column: ch.Column})
		}
	}
	return out
}

// from formats the lower bound of the readings query. Day-aligned cursors are
// sent as a calendar date.
func (c *Client) from(dev apiDevice, since *time.Time) string {
	if since == nil {
		start := historyStart
		if dev.CreatedAt != nil && !dev.CreatedAt.IsZero() {
			start = dev.CreatedAt.UTC()
		}
		return start.Format("2006-01-02")
	}
	if isDay(*since) {
		return since.UTC().Format("2006-01-02")
	}
	return since.UTC().Format(time.RFC3339)
}

func isDay(t time.Time) bool {
	t = t.UTC()
	return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
}

func (c *Client) device(ctx context.Context, device telemetry.DeviceID) (apiDevice, error) {
	u := fmt.Sprintf("%s/devices/%s", c.baseURL, url.PathEscape(string(device)))

	var dev apiDevice
	if err := c.getJSON(ctx, u, &dev); err != nil {
		return apiDevice{}, fmt.Errorf("device %s: %w", device, err)
	}
	return dev, nil
}

type sample struct {
	ts    time.Time
	value float64
}

func (c *Client) readings(ctx context.Context, device telemetry.DeviceID, sensorID int, from, to string) ([]sample, error) {
	values := url.Values{}
	values.Set("sensor_id", strconv.Itoa(sensorID))
	values.Set("rollup", c.rollup)
	values.Set("function", "avg")
	values.Set("from", from)
	values.Set("to", to)
	u := fmt.Sprintf("%s/devices/%s/readings?%s", c.baseURL, url.PathEscape(string(device)), values.Encode())

	var payload apiReadings
	if err := c.getJSON(ctx, u, &payload); err != nil {
		return nil, err
	}

	out := make([]sample, 0, len(payload.Readings))
	for i, pair := range payload.Readings {
		if len(pair) != 2 {
			return nil, fmt.Errorf("reading %d: expected [timestamp, value], got %d items", i, len(pair))
		}
		var tsStr string
		if err := json.Unmarshal(pair[0], &tsStr); err != nil {
			return nil, fmt.Errorf("reading %d: timestamp: %w", i, err)
		}
		ts, err := time.Parse(time.RFC3339, tsStr)
		if err != nil {
			return nil, fmt.Errorf("reading %d: timestamp: %w", i, err)
		}
		var v *float64
		if err := json.Unmarshal(pair[1], &v); err != nil {
			return nil, fmt.Errorf("reading %d: value: %w", i, err)
		}
		if v == nil || math.IsNaN(*v) {
			continue
		}
		out = append(out, sample{ts: ts.UTC(), value: *v})
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, u string, dst interface{}) error {
	buildRequest := func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("malformed response from %s: %w", resp.Request.URL.Path, err)
	}
	return nil
}

func assign(r *telemetry.Reading, column string, v float64) {
	switch column {
	case telemetry.ColumnLatitude:
		r.Latitude = &v
	case telemetry.ColumnLongitude:
		r.Longitude = &v
	case telemetry.ColumnFixQuality:
		q := int(math.Round(v))
		r.FixQuality = &q
	default:
		if r.Values == nil {
			r.Values = make(map[string]float64)
		}
		r.Values[column] = v
	}
}
