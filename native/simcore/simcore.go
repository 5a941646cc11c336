// Package simcore is a localization core written in Go. It issues requests at the configured
// intervals, scores responses by confidence and walks the tracker state machine using the configured
// failure counts. It backs the replay tool and integration tests where the native solver is not
// available.
package simcore

import (
	"fmt"
	"image"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"

	"github.com/arceye/vlsdk/camera"
	"github.com/arceye/vlsdk/config"
	"github.com/arceye/vlsdk/native"
	"github.com/arceye/vlsdk/spatialmath"
	"github.com/arceye/vlsdk/tracker"
	"github.com/arceye/vlsdk/vl"
)

// Version is reported by Core.Version.
const Version = "1.0.0-sim"

// Confidence required for a pose to be accepted, per quality, when the tracker config leaves it
// unset.
const (
	DefaultConfidenceLow    = 0.05
	DefaultConfidenceMedium = 0.1
	DefaultConfidenceHigh   = 0.2
)

// Core is a native.Core implemented in Go.
type Core struct {
	logger golog.Logger
	clock  clock.Clock
	parser *vl.ResponseParser

	mu                sync.Mutex
	initialized       bool
	cfg               config.TrackerConfig
	urls              []config.VLURL
	areas             *AreaIndex
	cb                native.Callbacks
	state             tracker.State
	intrinsic         camera.Intrinsic
	resetByDevicePose bool
	lastRequest       time.Time
	nextKey           int
	pending           map[int]time.Time
	failures          int
	lastPose          string
	nextURL           int
}

// Option configures a Core.
type Option func(*Core)

// WithClock sets the clock used to pace requests.
func WithClock(clk clock.Clock) Option {
	return func(c *Core) {
		c.clock = clk
	}
}

// New returns an uninitialized core.
func New(logger golog.Logger, opts ...Option) *Core {
	c := &Core{
		logger:  logger,
		clock:   clock.New(),
		parser:  vl.NewResponseParser(logger),
		pending: map[int]time.Time{},
		areas:   &AreaIndex{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Version returns the core version.
func (c *Core) Version() string {
	return Version
}

// Init configures the core. It must be called before frames are accepted.
func (c *Core) Init(cfg config.TrackerConfig, urls []config.VLURL, areaGeoJSON string) error {
	if len(urls) == 0 {
		return errors.New("no urls to localize against")
	}
	areas, err := ParseAreas(areaGeoJSON)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
	c.urls = append([]config.VLURL(nil), urls...)
	c.areas = areas
	c.resetByDevicePose = cfg.ResetByDevicePose
	c.state = tracker.StateInitial
	c.failures = 0
	c.lastPose = ""
	c.lastRequest = time.Time{}
	c.initialized = true
	c.logger.Debugw("core initialized", "urls", len(urls), "areas", areas.Len())
	return nil
}

// SetCallbacks replaces the callbacks.
func (c *Core) SetCallbacks(cb native.Callbacks) {
	c.mu.Lock()
	c.cb = cb
	c.mu.Unlock()
}

// SetConfig replaces the tracker config.
func (c *Core) SetConfig(cfg config.TrackerConfig) {
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
}

// Config returns the tracker config.
func (c *Core) Config() config.TrackerConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Reset forgets the localization and returns to the initial state.
func (c *Core) Reset() {
	c.mu.Lock()
	events := c.resetLocked()
	c.mu.Unlock()
	events.fire()
}

// Release drops the callbacks and stops accepting frames.
func (c *Core) Release() {
	c.mu.Lock()
	c.initialized = false
	c.cb = native.Callbacks{}
	c.pending = map[int]time.Time{}
	c.mu.Unlock()
}

// SetCameraIntrinsic sets the intrinsics sent with requests.
func (c *Core) SetCameraIntrinsic(intrinsic camera.Intrinsic) {
	c.mu.Lock()
	c.intrinsic = intrinsic
	c.mu.Unlock()
}

// EnableResetByDevicePose toggles resetting when the device is held upside down.
func (c *Core) EnableResetByDevicePose(enabled bool) {
	c.mu.Lock()
	c.resetByDevicePose = enabled
	c.mu.Unlock()
}

// ChangeState forces the tracker state.
func (c *Core) ChangeState(state int) {
	c.mu.Lock()
	events := c.setStateLocked(tracker.State(state))
	c.mu.Unlock()
	events.fire()
}

// DetectVLLocation reports the serviced locations near the coordinate.
func (c *Core) DetectVLLocation(lat, lon, radius float64, found func(locations []string)) {
	c.mu.Lock()
	locations := c.areas.Within(lat, lon, radius)
	c.mu.Unlock()
	if found != nil {
		found(locations)
	}
}

// FindVLLocation returns the serviced location covering the coordinate.
func (c *Core) FindVLLocation(lat, lon float64) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	loc, _ := c.areas.Find(lat, lon)
	return loc
}

// UpdateFrame decides whether the frame should be sent for localization.
func (c *Core) UpdateFrame(frame native.Frame) {
	c.mu.Lock()
	if !c.initialized {
		c.mu.Unlock()
		return
	}
	if c.resetByDevicePose && upsideDown(frame.ViewMatrix) && c.state != tracker.StateInitial {
		events := c.resetLocked()
		c.mu.Unlock()
		c.logger.Info("device turned upside down, resetting")
		events.fire()
		return
	}

	now := c.clock.Now()
	interval := c.cfg.IntervalBefore()
	if c.state == tracker.StateVLPass {
		interval = c.cfg.IntervalAfter()
	}
	if !c.lastRequest.IsZero() && now.Sub(c.lastRequest) < interval {
		c.mu.Unlock()
		return
	}

	img, err := frameImage(frame)
	if err != nil {
		c.mu.Unlock()
		c.logger.Errorw("cannot build query image", "error", err)
		return
	}

	url := c.pickURLLocked(frame.GeoCoord)
	key := c.nextKey
	c.nextKey++
	c.pending[key] = now
	c.lastRequest = now

	withPosition := c.lastPose != ""
	info := vl.RequestInfo{
		Method:              vl.MethodPOST,
		Location:            url.Location,
		URL:                 url.InvokeURL,
		SecretKey:           url.SecretKey,
		Filename:            fmt.Sprintf("%d,%t", frame.TimestampMillis, withPosition),
		Image:               img,
		Odometry:            formatFloats(frame.ViewMatrix[:]),
		LastPose:            c.lastPose,
		RequestWithPosition: withPosition,
		WithGlobal:          c.cfg.UseWithGlobal,
	}
	if !c.intrinsic.IsZero() {
		info.CameraParam = c.intrinsic.ParamString()
	}
	requested := c.cb.VLRequested
	c.mu.Unlock()

	if requested != nil {
		requested(key, info)
	}
}

// SendSuccessResponse evaluates a response body for the request with the given key.
func (c *Core) SendSuccessResponse(key int, body string) {
	c.mu.Lock()
	if !c.takePendingLocked(key) {
		c.mu.Unlock()
		return
	}
	resp, err := c.parser.Parse(body)
	if err != nil {
		c.logger.Warnw("unreadable response", "key", key, "error", err)
		events := c.failLocked(vl.StatusUnknownError, err.Error(), body)
		c.mu.Unlock()
		events.fire()
		return
	}

	if !resp.Passed {
		events := c.failLocked(vl.StatusFailed, "localization failed", body)
		c.mu.Unlock()
		events.fire()
		return
	}
	if resp.Confidence < c.confidenceThresholdLocked() {
		events := c.failLocked(vl.StatusInaccurate, "confidence below threshold", body)
		c.mu.Unlock()
		events.fire()
		return
	}

	c.failures = 0
	c.lastPose = formatPose(resp)
	model := spatialmath.ConvertHandedness(spatialmath.TRS(resp.Position, resp.Rotation))
	update := native.PoseUpdate{
		View: spatialmath.PackMat4Float64(model.Inv()),
		Proj: spatialmath.PackMat4(mgl64.Ident4()),
		Tex:  spatialmath.PackMat3(mgl64.Ident4()),
	}
	var events eventList
	cb := c.cb
	events.add(func() {
		if cb.VLResponded != nil {
			cb.VLResponded(native.ResponseEventData{
				Timestamp:    resp.Timestamp,
				Status:       vl.StatusSuccess,
				Confidence:   resp.Confidence,
				ResponseBody: body,
			})
		}
	})
	if resp.DatasetInfo != "" {
		layer := resp.DatasetInfo
		events.add(func() {
			if cb.LayerInfoChanged != nil {
				cb.LayerInfoChanged(layer)
			}
		})
	}
	events = append(events, c.setStateLocked(tracker.StateVLPass)...)
	events.add(func() {
		if cb.PoseUpdated != nil {
			cb.PoseUpdated(update)
		}
	})
	c.mu.Unlock()
	events.fire()
}

// SendFailureResponse records a request that did not produce a response body.
func (c *Core) SendFailureResponse(key int, body string, status vl.ResponseStatus) {
	c.mu.Lock()
	if !c.takePendingLocked(key) {
		c.mu.Unlock()
		return
	}
	events := c.failLocked(status, status.String(), body)
	c.mu.Unlock()
	events.fire()
}

// Pending returns the number of requests awaiting a response.
func (c *Core) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// State returns the current tracker state.
func (c *Core) State() tracker.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Core) takePendingLocked(key int) bool {
	if _, ok := c.pending[key]; !ok {
		c.logger.Debugw("response for unknown request", "key", key)
		return false
	}
	delete(c.pending, key)
	return true
}

func (c *Core) confidenceThresholdLocked() float64 {
	switch c.cfg.VLQuality {
	case config.QualityLow:
		return orDefault(c.cfg.ConfidenceLow, DefaultConfidenceLow)
	case config.QualityHigh:
		return orDefault(c.cfg.ConfidenceHigh, DefaultConfidenceHigh)
	default:
		return orDefault(c.cfg.ConfidenceMedium, DefaultConfidenceMedium)
	}
}

func (c *Core) failLocked(status vl.ResponseStatus, message, body string) eventList {
	c.failures++
	cb := c.cb
	var events eventList
	events.add(func() {
		if cb.VLResponded != nil {
			cb.VLResponded(native.ResponseEventData{Status: status, Message: message, ResponseBody: body})
		}
	})

	switch {
	case status == vl.StatusOutOfServiceArea:
		events = append(events, c.setStateLocked(tracker.StateVLOutOfService)...)
	case reached(c.failures, c.cfg.FailureCountToReset) && c.state != tracker.StateVLPass:
		events = append(events, c.resetLocked()...)
	case c.state == tracker.StateVLPass && reached(c.failures, c.cfg.FailureCountToFail):
		events = append(events, c.setStateLocked(tracker.StateVLFail)...)
	case c.state == tracker.StateInitial && reached(c.failures, c.cfg.FailureCountToNotRecognized):
		events = append(events, c.setStateLocked(tracker.StateNotRecognized)...)
	}
	return events
}

func (c *Core) resetLocked() eventList {
	c.failures = 0
	c.lastPose = ""
	c.lastRequest = time.Time{}
	return c.setStateLocked(tracker.StateInitial)
}

func (c *Core) setStateLocked(state tracker.State) eventList {
	if c.state == state {
		return nil
	}
	c.state = state
	cb := c.cb
	var events eventList
	events.add(func() {
		if cb.StateChanged != nil {
			cb.StateChanged(int(state))
		}
	})
	return events
}

func (c *Core) pickURLLocked(geoCoord [2]float64) config.VLURL {
	if geoCoord[0] != 0 || geoCoord[1] != 0 {
		if loc, ok := c.areas.Find(geoCoord[0], geoCoord[1]); ok {
			for _, u := range c.urls {
				if u.Location == loc {
					return u
				}
			}
		}
	}
	u := c.urls[c.nextURL%len(c.urls)]
	c.nextURL++
	return u
}

// eventList holds callbacks collected under the lock and run after it is released.
type eventList []func()

func (e *eventList) add(f func()) {
	*e = append(*e, f)
}

func (e eventList) fire() {
	for _, f := range e {
		f()
	}
}

func frameImage(frame native.Frame) (image.Image, error) {
	if frame.Texture != nil {
		return frame.Texture, nil
	}
	if frame.YUV == nil {
		return nil, camera.ErrNoFrameAvailable
	}
	img, err := frame.YUV.ToImage()
	if err != nil {
		return nil, err
	}
	return camera.Upright(img, frame.YUV.Rotation), nil
}

// upsideDown reports whether the camera's up axis points towards the ground. view holds the
// transposed right-handed view matrix in row-major order.
func upsideDown(view [16]float32) bool {
	m := spatialmath.UnpackMat4(view).Transpose()
	if m.Det() == 0 {
		return false
	}
	up := m.Inv().Col(1)
	return up.Y() < -0.5
}

func reached(count, threshold int) bool {
	return threshold > 0 && count >= threshold
}

func orDefault(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}

func formatFloats(values []float32) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return strings.Join(parts, ",")
}

func formatPose(resp *vl.Response) string {
	q := resp.Rotation
	values := []float64{resp.Position.X, resp.Position.Y, resp.Position.Z, q.Real, q.Imag, q.Jmag, q.Kmag}
	parts := make([]string, len(values))
	for i, v := range values {
		if math.Abs(v) < 1e-12 {
			v = 0
		}
		parts[i] = fmt.Sprintf("%g", v)
	}
	return strings.Join(parts, ",")
}
