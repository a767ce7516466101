package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/sensor-map-sync/internal/telemetry"
)

// Syncer runs one sync for a device.
type Syncer interface {
	Sync(ctx context.Context, device telemetry.DeviceID) (telemetry.Report, error)
}

// Scheduler periodically syncs the configured devices.
type Scheduler struct {
	scheduler *gocron.Scheduler
	syncer    Syncer
	devices   []telemetry.DeviceID
	interval  time.Duration
	timeout   time.Duration
}

// New creates a new Scheduler. Each device sync is bounded by timeout
// (interval when timeout is zero).
func New(devices []telemetry.DeviceID, interval, timeout time.Duration, syncer Syncer) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	if timeout <= 0 {
		timeout = interval
	}
	return &Scheduler{
		scheduler: s,
		syncer:    syncer,
		devices:   devices,
		interval:  interval,
		timeout:   timeout,
	}
}

// Start schedules the periodic job and starts the underlying scheduler. The
// first run happens immediately.
func (s *Scheduler) Start() error {
	if len(s.devices) == 0 {
		log.Println("scheduler: no devices configured; nothing to schedule")
		return nil
	}

	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 15
	}

	_, err := s.scheduler.Every(minutes).Minutes().Do(func() {
		s.RunOnce(context.Background())
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// RunOnce syncs every device concurrently and waits for all of them. Failures
// are logged; the cache of a failed device is left as it was.
func (s *Scheduler) RunOnce(ctx context.Context) {
	log.Printf("scheduler: running sync job for %d devices", len(s.devices))

	var wg sync.WaitGroup
	for _, device := range s.devices {
		device := device
		wg.Add(1)
		go func() {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			report, err := s.syncer.Sync(ctx, device)
			if err != nil {
				log.Printf("scheduler: sync failed for %s: %v", device, err)
				return
			}
			log.Printf("scheduler: device %s size=%d added=%d", device, report.Size, report.Added)
		}()
	}
	wg.Wait()
	log.Println("scheduler: completed sync job")
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
