// Package manager ties a frame source, the localization core and the request pipeline into one
// localization session, and moves the scene origin whenever the device is localized.
package manager

import (
	"context"
	"sync"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/arceye/vlsdk/camera"
	"github.com/arceye/vlsdk/config"
	"github.com/arceye/vlsdk/gps"
	"github.com/arceye/vlsdk/native"
	"github.com/arceye/vlsdk/origin"
	"github.com/arceye/vlsdk/spatialmath"
	"github.com/arceye/vlsdk/tracker"
	"github.com/arceye/vlsdk/vl"
	"github.com/arceye/vlsdk/vl/pipeline"
)

// Version is the SDK version.
const Version = "1.10.0"

// ErrClosed is returned when starting a session on a closed manager.
var ErrClosed = errors.New("manager is closed")

// Manager owns a localization session.
type Manager struct {
	logger  golog.Logger
	cfg     config.Config
	geo     *gps.CoordProvider
	pipe    *pipeline.Pipeline
	tracker *tracker.Tracker
	origin  *origin.Updater
	monitor *pipeline.NetworkMonitor

	mu      sync.Mutex
	running bool
	closed  bool
}

// New validates cfg and initializes core with it. Frames come from source; device supplies the
// coordinate for the GPS-assisted search and may be nil. Requests the core issues are answered
// back to core.
func New(
	cfg config.Config,
	core native.Core,
	source camera.FrameSource,
	device gps.Provider,
	logger golog.Logger,
	opts ...Option,
) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	var o options
	for _, opt := range opts {
		opt.apply(&o)
	}

	m := &Manager{
		logger: logger,
		cfg:    cfg,
		geo:    gps.NewCoordProvider(device, logger.Named("gps")),
		origin: origin.NewUpdater(o.transform, logger.Named("origin")),
	}

	pipeOpts := []pipeline.Option{
		pipeline.WithCapacity(cfg.QueueCapacity),
		pipeline.WithGracePeriod(cfg.QueueGracePeriod),
	}
	var trackerOpts []tracker.Option
	if o.clk != nil {
		pipeOpts = append(pipeOpts, pipeline.WithClock(o.clk))
		trackerOpts = append(trackerOpts, tracker.WithClock(o.clk))
	}
	if o.httpClient != nil {
		pipeOpts = append(pipeOpts, pipeline.WithHTTPClient(o.httpClient))
	}
	if o.gpsInterval > 0 {
		trackerOpts = append(trackerOpts, tracker.WithGPSSearchInterval(o.gpsInterval))
	}
	if cfg.SaveQueryImages {
		pipeOpts = append(pipeOpts, pipeline.WithQueryImageDir(cfg.QueryImageDir))
	}
	if o.monitor {
		urls := make([]string, 0, len(cfg.URLs))
		for _, u := range cfg.ActiveURLs() {
			urls = append(urls, u.InvokeURL)
		}
		monitor, err := pipeline.NewNetworkMonitor(urls, o.probeInterval, logger.Named("network"))
		if err != nil {
			return nil, errors.Wrap(err, "creating network monitor")
		}
		m.monitor = monitor
		pipeOpts = append(pipeOpts, pipeline.WithReachability(monitor.Reachable))
	}

	m.pipe = pipeline.New(core, logger.Named("pipeline"), pipeOpts...)
	tr, err := tracker.New(core, source, m.pipe, m.geo, logger.Named("tracker"), trackerOpts...)
	if err != nil {
		return nil, multierr.Combine(err, m.closeSupport())
	}
	m.tracker = tr
	tr.OnPoseUpdated(m.updateOrigin)

	if err := tr.Initialize(cfg); err != nil {
		return nil, multierr.Combine(err, tr.Close(context.Background()), m.closeSupport())
	}
	if m.monitor != nil {
		m.monitor.Start()
	}
	logger.Infow("vlsdk initialized", "version", Version, "core_version", tr.Version())
	return m, nil
}

// NewFromSettings is New with settings folded into the default configuration.
func NewFromSettings(
	settings config.Settings,
	core native.Core,
	source camera.FrameSource,
	device gps.Provider,
	logger golog.Logger,
	opts ...Option,
) (*Manager, error) {
	cfg := config.DefaultConfig()
	if !cfg.ApplySettings(settings) {
		logger.Warn("url list is empty")
	}
	return New(*cfg, core, source, device, logger, opts...)
}

func (m *Manager) updateOrigin(u tracker.PoseUpdate) {
	m.origin.Update(u.View, u.DeviceModel)
}

// Tracker returns the pose tracker. Tracker events are registered on it.
func (m *Manager) Tracker() *tracker.Tracker {
	return m.tracker
}

// Pipeline returns the request pipeline.
func (m *Manager) Pipeline() *pipeline.Pipeline {
	return m.pipe
}

// GeoCoord returns the coordinate provider used by the GPS-assisted search.
func (m *Manager) GeoCoord() *gps.CoordProvider {
	return m.geo
}

// Origin returns the transform moved by localization.
func (m *Manager) Origin() *origin.Transform {
	return m.origin.Transform()
}

// OnOriginUpdated registers f for every accepted origin move.
func (m *Manager) OnOriginUpdated(f func(spatialmath.Pose)) {
	m.origin.OnUpdated(f)
}

// OnPoseRequested registers f for every request sent to the localization service.
func (m *Manager) OnPoseRequested(f func(vl.RequestEvent)) {
	m.pipe.OnRequest(f)
}

// OnPoseResponded registers f for every localization result.
func (m *Manager) OnPoseResponded(f func(vl.ResponseEvent)) {
	m.pipe.OnResponse(f)
}

// State is the tracker state.
func (m *Manager) State() tracker.State {
	return m.tracker.State()
}

// Config is the configuration the session was created with.
func (m *Manager) Config() config.Config {
	return m.cfg
}

// StartSession starts pulling frames and, with the GPS guide enabled, searching for nearby
// locations. Starting a running session does nothing.
func (m *Manager) StartSession() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.running {
		return nil
	}
	if err := m.tracker.RegisterFrameLoop(); err != nil {
		return errors.Wrap(err, "starting frame loop")
	}
	if err := m.tracker.StartGPSSearch(); err != nil {
		m.tracker.UnregisterFrameLoop()
		return err
	}
	m.running = true
	m.logger.Info("session started")
	return nil
}

// StopSession stops pulling frames. Requests in flight still complete.
func (m *Manager) StopSession() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *Manager) stopLocked() {
	if !m.running {
		return
	}
	m.tracker.UnregisterFrameLoop()
	m.tracker.StopGPSSearch()
	m.running = false
	m.logger.Info("session stopped")
}

// SessionRunning reports whether a session is started.
func (m *Manager) SessionRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// ResetSession returns the tracker to its initial state.
func (m *Manager) ResetSession() {
	m.tracker.Reset()
}

// ChangeState asks the core to move to state.
func (m *Manager) ChangeState(state tracker.State) {
	m.tracker.ChangeState(state)
}

// SetTrackerConfig replaces the core configuration.
func (m *Manager) SetTrackerConfig(cfg config.TrackerConfig) {
	m.tracker.SetTrackerConfig(cfg)
}

// TrackerConfig returns the configuration the core is using.
func (m *Manager) TrackerConfig() config.TrackerConfig {
	return m.tracker.TrackerConfig()
}

// FindLocation returns the location serviced at a coordinate, or "" for none.
func (m *Manager) FindLocation(lat, lon float64) string {
	return m.tracker.FindVLLocation(lat, lon)
}

// EnableResetByDevicePose lets the core reset when the device is turned upside down.
func (m *Manager) EnableResetByDevicePose(enabled bool) {
	m.tracker.EnableResetByDevicePose(enabled)
}

func (m *Manager) closeSupport() error {
	err := m.pipe.Close()
	if m.monitor != nil {
		err = multierr.Combine(err, m.monitor.Close())
	}
	return err
}

// Close stops the session, releases the core and closes the frame source.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.stopLocked()
	m.tracker.Release()
	return multierr.Combine(m.tracker.Close(ctx), m.closeSupport())
}
