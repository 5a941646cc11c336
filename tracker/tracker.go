// Package tracker drives the localization core: every tick it hands the core one camera frame,
// services the requests the core issues, and turns the core's callbacks into engine-frame events.
//
// The core's callbacks are never acted on directly. They are queued and run by Drain on the
// goroutine that calls Tick, after the current frame is fully processed.
package tracker

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/arceye/vlsdk/camera"
	"github.com/arceye/vlsdk/config"
	"github.com/arceye/vlsdk/gps"
	"github.com/arceye/vlsdk/native"
	"github.com/arceye/vlsdk/spatialmath"
	"github.com/arceye/vlsdk/utils"
	"github.com/arceye/vlsdk/vl"
	"github.com/arceye/vlsdk/vl/pipeline"
)

const (
	// RealHeight is the assumed height of the device above the floor, in meters.
	RealHeight = 1.5

	// DetectRadius is the search radius, in meters, used for location candidates.
	DetectRadius = 100

	// DefaultGPSSearchInterval is how often the GPS-assisted search samples the coordinate.
	DefaultGPSSearchInterval = time.Second
)

// ErrNotInitialized is returned by operations that need Initialize first.
var ErrNotInitialized = errors.New("tracker is not initialized")

// An Option configures a Tracker.
type Option func(*Tracker)

// WithClock sets the clock driving the frame loop.
func WithClock(clk clock.Clock) Option {
	return func(t *Tracker) { t.clk = clk }
}

// WithGPSSearchInterval changes how often the GPS-assisted search runs.
func WithGPSSearchInterval(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.gpsInterval = d
		}
	}
}

// locationSetter is implemented by providers whose coordinate can be pinned, such as
// gps.CoordProvider. Recorded frames pin the coordinate they were captured at.
type locationSetter interface {
	SetLocation(lat, lon float64)
}

type playable interface {
	Play() error
}

// Tracker is the pose tracker.
type Tracker struct {
	logger      golog.Logger
	core        native.Core
	source      camera.FrameSource
	pipe        *pipeline.Pipeline
	geo         gps.Provider
	clk         clock.Clock
	gpsInterval time.Duration
	scheduler   gocron.Scheduler
	loop        *utils.FrameLoop

	ls listeners

	// tick goroutine only
	intrinsicSet  bool
	prevIntrinsic camera.Intrinsic
	relAltitude   float64
	deviceModel   spatialmath.Pose

	mu            sync.Mutex
	cfg           config.Config
	initialized   bool
	state         State
	inbox         []func()
	detectPending bool

	gpsMu     sync.Mutex
	gpsJob    uuid.UUID
	gpsActive atomic.Bool
}

// New returns a tracker handing frames from source to core. Requests the core issues are sent
// through pipe, which must report back to core. geo may be nil when no coordinate is available.
func New(
	core native.Core,
	source camera.FrameSource,
	pipe *pipeline.Pipeline,
	geo gps.Provider,
	logger golog.Logger,
	opts ...Option,
) (*Tracker, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, errors.Wrap(err, "creating gps search scheduler")
	}
	t := &Tracker{
		logger:      logger,
		core:        core,
		source:      source,
		pipe:        pipe,
		geo:         geo,
		clk:         clock.New(),
		gpsInterval: DefaultGPSSearchInterval,
		scheduler:   scheduler,
		relAltitude: -math.MaxFloat64,
		deviceModel: spatialmath.NewZeroPose(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Initialize configures the core and starts listening to it.
func (t *Tracker) Initialize(cfg config.Config) error {
	t.core.SetCallbacks(native.Callbacks{
		PoseUpdated: func(u native.PoseUpdate) {
			t.post(func() { t.handlePoseUpdate(u) })
		},
		StateChanged: func(state int) {
			t.post(func() { t.handleStateChanged(State(state)) })
		},
		LayerInfoChanged: func(info string) {
			t.post(func() { t.emitLayerInfo(info) })
		},
		LocationChanged: func(location string) {
			t.post(func() { t.emitLayerInfo(location) })
		},
		BuildingChanged: func(building string) {
			t.post(func() { t.emitLayerInfo(building) })
		},
		FloorChanged: func(floor string) {
			t.post(func() { t.emitLayerInfo(floor) })
		},
		ObjectDetected: func(o native.DetectedObject) {
			t.post(func() { t.handleObjectDetected(o) })
		},
		VLRequested: func(key int, info vl.RequestInfo) {
			t.post(func() { t.handleRequest(key, info) })
		},
		VLResponded: func(data native.ResponseEventData) {
			t.post(func() { t.pipe.HandleCoreResponse(data) })
		},
	})

	geoJSON := cfg.AreaGeoJSON
	if !cfg.Tracker.UseGPSGuide {
		geoJSON = ""
	}
	if err := t.core.Init(cfg.Tracker, cfg.ActiveURLs(), geoJSON); err != nil {
		return errors.Wrap(err, "initializing localization core")
	}
	t.pipe.SetPositionSupported(t.source.SupportsPositionRequests())
	t.pipe.SetUseRequestWithPosition(cfg.RequestWithPosition)

	interval := cfg.FrameInterval
	if interval <= 0 {
		interval = config.DefaultConfig().FrameInterval
	}
	t.mu.Lock()
	t.cfg = cfg
	t.initialized = true
	t.state = StateInitial
	t.loop = utils.NewFrameLoop(t.clk, interval)
	t.mu.Unlock()

	t.scheduler.Start()
	t.logger.Infow("pose tracker initialized", "core_version", t.core.Version(), "source", t.source.Kind())
	return nil
}

// post queues f to run on the tick goroutine.
func (t *Tracker) post(f func()) {
	t.mu.Lock()
	t.inbox = append(t.inbox, f)
	t.mu.Unlock()
}

// Drain runs queued callbacks, including those queued while draining, and returns how many ran.
func (t *Tracker) Drain() int {
	n := 0
	for {
		t.mu.Lock()
		queued := t.inbox
		t.inbox = nil
		t.mu.Unlock()
		if len(queued) == 0 {
			return n
		}
		for _, f := range queued {
			f()
		}
		n += len(queued)
	}
}

// deliver runs callbacks and hands finished requests to the core.
func (t *Tracker) deliver() {
	t.Drain()
	if t.pipe.Poll() > 0 {
		t.Drain()
	}
}

// Tick processes one frame from the source and delivers pending events. It returns
// camera.ErrNoFrameAvailable, possibly wrapped, when the source had no frame.
func (t *Tracker) Tick(ctx context.Context) error {
	if !t.isInitialized() {
		return ErrNotInitialized
	}
	frame, err := t.source.AcquireFrame(ctx)
	if err != nil {
		if !errors.Is(err, camera.ErrNoFrameAvailable) {
			t.logger.Errorw("failed to acquire a frame", "error", err)
		}
		t.deliver()
		return err
	}
	t.UpdateFrame(ctx, frame)
	frame.Release()
	t.deliver()
	return nil
}

// UpdateFrame converts frame into the core's conventions and hands it over.
func (t *Tracker) UpdateFrame(ctx context.Context, frame *camera.Frame) {
	if !frame.HasImage() {
		t.logger.Error("failed to acquire a requested texture")
		return
	}

	if !t.intrinsicSet || frame.Intrinsic != t.prevIntrinsic {
		t.core.SetCameraIntrinsic(frame.Intrinsic)
		t.prevIntrinsic = frame.Intrinsic
		t.intrinsicSet = true
	}

	camModel := spatialmath.ConvertHandedness(frame.LocalPose.Matrix())
	view := camModel.Inv().Transpose()
	proj := spatialmath.PackMat4(frame.ProjectionMatrix)
	proj[14] = 1

	if frame.Location != nil {
		if setter, ok := t.geo.(locationSetter); ok {
			setter.SetLocation(frame.Location.Lat(), frame.Location.Lng())
		}
	}
	if t.source.Kind() == camera.KindDatasetReplay {
		t.relAltitude = frame.RelAltitude
	}
	lat, lon := gps.LatLon(ctx, t.geo, t.logger)

	nf := native.Frame{
		ViewMatrix:      spatialmath.PackMat4(view),
		ProjMatrix:      proj,
		TexTrans:        spatialmath.PackMat3(frame.DisplayMatrix),
		GeoCoord:        [2]float64{lat, lon},
		RealHeight:      RealHeight,
		TimestampMillis: frame.Timestamp.UnixMilli(),
	}
	if frame.YUV != nil {
		nf.YUV = frame.YUV
	} else {
		nf.Texture = frame.Image
	}
	t.deviceModel = frame.LocalPose
	t.core.UpdateFrame(nf)
}

func (t *Tracker) handleRequest(key int, info vl.RequestInfo) {
	if err := t.pipe.Handle(key, info); err != nil {
		t.logger.Debugw("vl request not sent", "key", key, "error", err)
	}
}

func (t *Tracker) handlePoseUpdate(u native.PoseUpdate) {
	view := spatialmath.ConvertHandednessView(spatialmath.UnpackMat4Float64(u.View))
	t.emitPose(PoseUpdate{
		View:        view,
		Pose:        view.Inv(),
		DeviceModel: t.deviceModel.Matrix(),
		Projection:  spatialmath.UnpackMat4(u.Proj),
		Texture:     spatialmath.UnpackMat3(u.Tex),
		RelAltitude: u.RelativeAltitude,
	})

	// A zero altitude means the core has none; replayed datasets supply their own.
	if t.relAltitude != u.RelativeAltitude {
		if u.RelativeAltitude == 0 {
			t.emitRelAltitude(t.relAltitude)
		} else {
			t.relAltitude = u.RelativeAltitude
			t.emitRelAltitude(u.RelativeAltitude)
		}
	}
}

func (t *Tracker) handleStateChanged(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
	t.emitState(s)

	switch s {
	case StateVLPass:
		t.StopGPSSearch()
	case StateVLFail:
		if err := t.StartGPSSearch(); err != nil {
			t.logger.Errorw("failed to restart gps search", "error", err)
		}
	case StateInitial, StateNotRecognized, StateVLOutOfService, StateVLReceived:
	}
}

func (t *Tracker) handleObjectDetected(o native.DetectedObject) {
	m := spatialmath.ConvertHandedness(spatialmath.UnpackMat4(o.ModelMatrix))
	t.emitObject(DetectedObject{
		Name:     o.Name,
		Position: spatialmath.Position(m),
		Rotation: spatialmath.Rotation(m),
		Scale:    spatialmath.LossyScale(m),
	})
}

// RegisterFrameLoop starts calling Tick at the configured frame interval, starting playback
// first for sources that need it.
func (t *Tracker) RegisterFrameLoop() error {
	t.mu.Lock()
	loop := t.loop
	t.mu.Unlock()
	if loop == nil {
		return ErrNotInitialized
	}
	if p, ok := t.source.(playable); ok {
		if err := p.Play(); err != nil {
			return errors.Wrap(err, "starting playback")
		}
	}
	return loop.Start(func(ctx context.Context) {
		//nolint:errcheck
		t.Tick(ctx)
	})
}

// UnregisterFrameLoop stops pulling frames. No frame is pulled after it returns, though a tick
// already in progress finishes.
func (t *Tracker) UnregisterFrameLoop() {
	t.mu.Lock()
	loop := t.loop
	t.mu.Unlock()
	if loop != nil {
		loop.Stop()
	}
}

// FrameLoopRunning reports whether the frame loop is registered.
func (t *Tracker) FrameLoopRunning() bool {
	t.mu.Lock()
	loop := t.loop
	t.mu.Unlock()
	return loop != nil && loop.Running()
}

func (t *Tracker) isInitialized() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.initialized
}

// State is the last state the core reported.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Version is the core version.
func (t *Tracker) Version() string {
	return t.core.Version()
}

// Config is the configuration passed to Initialize.
func (t *Tracker) Config() config.Config {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg
}

// SetTrackerConfig replaces the core configuration.
func (t *Tracker) SetTrackerConfig(cfg config.TrackerConfig) {
	t.core.SetConfig(cfg)
	t.mu.Lock()
	t.cfg.Tracker = cfg
	t.mu.Unlock()
}

// TrackerConfig returns the configuration the core is using.
func (t *Tracker) TrackerConfig() config.TrackerConfig {
	return t.core.Config()
}

// Reset returns the core to its initial state.
func (t *Tracker) Reset() {
	t.core.Reset()
}

// ChangeState asks the core to move to s.
func (t *Tracker) ChangeState(s State) {
	t.core.ChangeState(int(s))
}

// EnableResetByDevicePose lets the core reset when the device is turned upside down.
func (t *Tracker) EnableResetByDevicePose(enabled bool) {
	t.core.EnableResetByDevicePose(enabled)
}

// DetectVLLocation asks the core for location candidates near a coordinate. Results are
// delivered to OnVLLocationDetected listeners.
func (t *Tracker) DetectVLLocation(lat, lon float64) {
	t.core.DetectVLLocation(lat, lon, DetectRadius, func(locations []string) {
		t.post(func() { t.emitVLLocations(locations) })
	})
}

// FindVLLocation returns the location serviced at a coordinate, or "" for none.
func (t *Tracker) FindVLLocation(lat, lon float64) string {
	return t.core.FindVLLocation(lat, lon)
}

// Release frees the core. The tracker must be initialized again before reuse.
func (t *Tracker) Release() {
	t.UnregisterFrameLoop()
	t.StopGPSSearch()
	t.mu.Lock()
	t.initialized = false
	t.mu.Unlock()
	t.core.Release()
}

// Close stops the frame loop and the GPS-assisted search and closes the frame source.
func (t *Tracker) Close(ctx context.Context) error {
	t.mu.Lock()
	loop := t.loop
	t.mu.Unlock()
	if loop != nil {
		loop.Close()
	}
	return multierr.Combine(
		t.scheduler.Shutdown(),
		t.source.Close(ctx),
	)
}
