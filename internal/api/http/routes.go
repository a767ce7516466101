package httpapi

import (
	"context"
	"errors"
	"log"
	"slices"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/sensor-map-sync/internal/geo"
	"github.com/i474232898/sensor-map-sync/internal/telemetry"
)

var validate = validator.New()

// Service is the part of the sync engine the HTTP layer needs.
type Service interface {
	Sync(ctx context.Context, device telemetry.DeviceID) (telemetry.Report, error)
	Snapshot(device telemetry.DeviceID) (telemetry.Dataset, error)
	LastReport(device telemetry.DeviceID) (telemetry.Report, error)
}

// Options configures optional route behaviour.
type Options struct {
	// Devices restricts the API to these ids. Empty allows any id.
	Devices []telemetry.DeviceID
	// Geocoder adds an address to the centre response when set.
	Geocoder geo.Resolver
	// SyncTimeout bounds a sync triggered over HTTP. Zero means no extra bound.
	SyncTimeout time.Duration
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service Service, opts Options) {
	known := make(map[telemetry.DeviceID]bool, len(opts.Devices))
	for _, d := range opts.Devices {
		known[d] = true
	}

	v1 := app.Group("/api/v1")

	v1.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	devices := v1.Group("/devices/:id", func(c *fiber.Ctx) error {
		device := telemetry.DeviceID(c.Params("id"))
		if len(known) > 0 && !known[device] {
			return fiber.NewError(fiber.StatusNotFound, "unknown device "+string(device))
		}
		c.Locals("device", device)
		return c.Next()
	})

	devices.Post("/sync", func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		if opts.SyncTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, opts.SyncTimeout)
			defer cancel()
		}

		report, err := service.Sync(ctx, deviceOf(c))
		if err != nil {
			return c.Status(syncStatus(err)).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
				"report":  report,
			})
		}
		return c.JSON(report)
	})

	devices.Get("/status", func(c *fiber.Ctx) error {
		report, err := service.LastReport(deviceOf(c))
		if err != nil {
			return dataError(err, "no sync has run for this device")
		}
		return c.JSON(report)
	})

	devices.Get("/channels", func(c *fiber.Ctx) error {
		ds, err := service.Snapshot(deviceOf(c))
		if err != nil {
			return dataError(err, "no data for this device")
		}
		return c.JSON(fiber.Map{
			"device":   ds.Device,
			"channels": ds.Channels(),
		})
	})

	devices.Get("/readings", func(c *fiber.Ctx) error {
		ds, q, err := viewInput(c, service)
		if err != nil {
			return err
		}
		points := telemetry.Points(ds, q.Channel)
		if points == nil {
			points = []telemetry.Point{}
		}
		return c.JSON(fiber.Map{
			"device":  ds.Device,
			"channel": q.Channel,
			"from":    q.From,
			"to":      q.To,
			"count":   len(points),
			"points":  points,
		})
	})

	devices.Get("/heatmap", func(c *fiber.Ctx) error {
		ds, q, err := viewInput(c, service)
		if err != nil {
			return err
		}
		grid := telemetry.Density(ds, q.Channel, q.Cell)
		if grid.Cells == nil {
			grid.Cells = []telemetry.Cell{}
		}
		return c.JSON(fiber.Map{
			"device": ds.Device,
			"from":   q.From,
			"to":     q.To,
			"grid":   grid,
		})
	})

	devices.Get("/center", func(c *fiber.Ctx) error {
		ds, err := service.Snapshot(deviceOf(c))
		if err != nil {
			return dataError(err, "no data for this device")
		}
		center, ok := telemetry.MeanCenter(ds)
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "no positioned readings for this device")
		}

		resp := fiber.Map{
			"device":  ds.Device,
			"lat":     center.Lat,
			"lon":     center.Lon,
			"samples": center.Samples,
		}
		if opts.Geocoder != nil {
			addr, err := opts.Geocoder.Reverse(c.UserContext(), center.Lat, center.Lon)
			if err != nil {
				log.Printf("WARN: reverse geocoding failed for device %s: %v", ds.Device, err)
			} else {
				resp["address"] = addr
			}
		}
		return c.JSON(resp)
	})
}

func deviceOf(c *fiber.Ctx) telemetry.DeviceID {
	d, _ := c.Locals("device").(telemetry.DeviceID)
	return d
}

// syncStatus maps a failed sync to an HTTP status.
func syncStatus(err error) int {
	switch {
	case errors.Is(err, telemetry.ErrFetchTimeout):
		return fiber.StatusGatewayTimeout
	case errors.Is(err, telemetry.ErrFetch):
		return fiber.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func dataError(err error, notFound string) error {
	if errors.Is(err, telemetry.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, notFound)
	}
	return fiber.NewError(fiber.StatusInternalServerError, "failed to read device data")
}

// viewQuery holds query parameters of the map views.
type viewQuery struct {
	From    time.Time `json:"from"`
	To      time.Time `json:"to"`
	Channel string    `json:"channel" validate:"omitempty,max=64"`
	Cell    float64   `json:"cell" validate:"gte=0,lte=1"`
}

func (q *viewQuery) bind(c *fiber.Ctx) error {
	var err error
	if s := c.Query("from"); s != "" {
		if q.From, err = parseTime(s, false); err != nil {
			return err
		}
	}
	if s := c.Query("to"); s != "" {
		if q.To, err = parseTime(s, true); err != nil {
			return err
		}
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return errors.New("to must not be before from")
	}

	q.Channel = c.Query("channel")
	if s := c.Query("cell"); s != "" {
		if q.Cell, err = strconv.ParseFloat(s, 64); err != nil {
			return errors.New("cell must be a number of degrees")
		}
	}
	return validate.Struct(q)
}

// viewInput binds the view query and returns the device data restricted to
// the requested range. An empty channel selects the first sensor channel.
func viewInput(c *fiber.Ctx, service Service) (telemetry.Dataset, viewQuery, error) {
	var q viewQuery
	if err := q.bind(c); err != nil {
		return telemetry.Dataset{}, q, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	ds, err := service.Snapshot(deviceOf(c))
	if err != nil {
		return telemetry.Dataset{}, q, dataError(err, "no data for this device")
	}

	channels := ds.Channels()
	if q.Channel == "" {
		if len(channels) == 0 {
			return telemetry.Dataset{}, q, fiber.NewError(fiber.StatusNotFound, "device has no sensor channels")
		}
		q.Channel = channels[0]
	} else if !slices.Contains(channels, q.Channel) {
		return telemetry.Dataset{}, q, fiber.NewError(fiber.StatusBadRequest, "unknown channel "+q.Channel)
	}

	return telemetry.Between(ds, q.From, q.To), q, nil
}

// parseTime accepts a calendar date (YYYY-MM-DD), RFC3339 or unix seconds.
// With endOfDay a calendar date covers the whole day.
func parseTime(s string, endOfDay bool) (time.Time, error) {
	if day, err := time.Parse(time.DateOnly, s); err == nil {
		if endOfDay {
			return day.Add(24*time.Hour - time.Nanosecond), nil
		}
		return day, nil
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC(), nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use YYYY-MM-DD, RFC3339 or unix seconds")
}
