package tracker

import (
	"context"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/arceye/vlsdk/gps"
)

// StartGPSSearch samples the coordinate every search interval and asks the core for location
// candidates near it, until StopGPSSearch. It does nothing when the GPS guide is disabled. A
// running search is restarted.
func (t *Tracker) StartGPSSearch() error {
	t.mu.Lock()
	useGuide := t.cfg.Tracker.UseGPSGuide
	t.mu.Unlock()
	if !useGuide {
		return nil
	}
	t.gpsMu.Lock()
	defer t.gpsMu.Unlock()
	t.stopGPSSearchLocked()

	job, err := t.scheduler.NewJob(
		gocron.DurationJob(t.gpsInterval),
		gocron.NewTask(t.requestDetection),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return errors.Wrap(err, "scheduling gps search")
	}
	t.gpsJob = job.ID()
	t.gpsActive.Store(true)
	t.logger.Debugw("gps search started", "interval", t.gpsInterval)
	return nil
}

// StopGPSSearch stops the GPS-assisted search.
func (t *Tracker) StopGPSSearch() {
	t.gpsMu.Lock()
	defer t.gpsMu.Unlock()
	t.stopGPSSearchLocked()
}

func (t *Tracker) stopGPSSearchLocked() {
	if !t.gpsActive.Load() {
		return
	}
	t.gpsActive.Store(false)
	if err := t.scheduler.RemoveJob(t.gpsJob); err != nil {
		t.logger.Debugw("removing gps search job", "error", err)
	}
	t.gpsJob = uuid.Nil
	t.logger.Debug("gps search stopped")
}

// GPSSearchActive reports whether the GPS-assisted search is running.
func (t *Tracker) GPSSearchActive() bool {
	return t.gpsActive.Load()
}

// requestDetection runs on the scheduler and leaves the detection itself to the tick goroutine.
// At most one detection is queued at a time.
func (t *Tracker) requestDetection() {
	if !t.gpsActive.Load() {
		return
	}
	t.mu.Lock()
	if t.detectPending {
		t.mu.Unlock()
		return
	}
	t.detectPending = true
	t.inbox = append(t.inbox, t.detectLocation)
	t.mu.Unlock()
}

func (t *Tracker) detectLocation() {
	t.mu.Lock()
	t.detectPending = false
	useGuide := t.cfg.Tracker.UseGPSGuide
	t.mu.Unlock()
	if !t.gpsActive.Load() {
		return
	}

	lat, lon := gps.LatLon(context.Background(), t.geo, t.logger)
	if useGuide && (lat == 0 || lon == 0) {
		t.logger.Error("failed to get gps coordinate")
	}
	t.DetectVLLocation(lat, lon)
	t.emitGeoCoord(lat, lon)
}
