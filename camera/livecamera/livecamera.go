// Package livecamera implements a frame source backed by an AR-capable device camera.
package livecamera

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"

	"github.com/arceye/vlsdk/camera"
	"github.com/arceye/vlsdk/spatialmath"
)

// Device is the port onto the platform AR camera.
type Device interface {
	// AcquireLatestImage returns the most recent CPU image and a func that returns it to the
	// device. The image must be disposed exactly once.
	AcquireLatestImage(ctx context.Context) (*camera.YUVImage, func(), error)

	// Intrinsics returns the sensor intrinsics, or false when the device cannot report them.
	Intrinsics(ctx context.Context) (camera.DeviceIntrinsic, bool)

	// LocalPose is the current camera pose in the engine frame.
	LocalPose(ctx context.Context) spatialmath.Pose

	// ProjectionMatrix and DisplayMatrix report false until the device has produced its first
	// frame.
	ProjectionMatrix() (mgl64.Mat4, bool)
	DisplayMatrix() (mgl64.Mat4, bool)

	Platform() camera.Platform
}

// Source delivers YUV frames from a Device.
type Source struct {
	device   Device
	portrait bool
	clock    clock.Clock
	logger   golog.Logger

	mu             sync.Mutex
	fallbackProj   mgl64.Mat4
	warnedDefaults bool
}

// Option configures a Source.
type Option func(*Source)

// WithClock overrides the clock used to timestamp frames.
func WithClock(clk clock.Clock) Option {
	return func(s *Source) {
		s.clock = clk
	}
}

// WithFallbackProjection sets the projection used before the device reports one.
func WithFallbackProjection(m mgl64.Mat4) Option {
	return func(s *Source) {
		s.fallbackProj = m
	}
}

// New returns a Source for device shown in the given orientation.
func New(device Device, portrait bool, logger golog.Logger, opts ...Option) *Source {
	s := &Source{
		device:       device,
		portrait:     portrait,
		clock:        clock.New(),
		logger:       logger,
		fallbackProj: mgl64.Ident4(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetPortrait updates the display orientation used to resolve intrinsics.
func (s *Source) SetPortrait(portrait bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.portrait = portrait
}

// AcquireFrame implements camera.FrameSource.
func (s *Source) AcquireFrame(ctx context.Context) (*camera.Frame, error) {
	img, dispose, err := s.device.AcquireLatestImage(ctx)
	if err != nil {
		return nil, errors.Wrap(camera.ErrNoFrameAvailable, err.Error())
	}
	if dispose == nil {
		dispose = func() {}
	}
	if img == nil {
		dispose()
		return nil, camera.NewNoFrameError("device returned no image")
	}
	if err := checkPlanes(img, s.device.Platform()); err != nil {
		dispose()
		s.logger.Errorw("unsupported camera image", "error", err)
		return nil, errors.Wrap(camera.ErrNoFrameAvailable, err.Error())
	}

	frame := camera.NewFrame(dispose)
	frame.YUV = img
	frame.Timestamp = s.clock.Now()
	frame.LocalPose = s.device.LocalPose(ctx)
	frame.Intrinsic = s.intrinsic(ctx)

	if proj, ok := s.device.ProjectionMatrix(); ok {
		frame.ProjectionMatrix = proj
	} else {
		s.mu.Lock()
		frame.ProjectionMatrix = s.fallbackProj
		s.mu.Unlock()
	}
	if disp, ok := s.device.DisplayMatrix(); ok {
		frame.DisplayMatrix = camera.NormalizeDisplayMatrix(disp, s.device.Platform())
	}
	return frame, nil
}

func (s *Source) intrinsic(ctx context.Context) camera.Intrinsic {
	dev, ok := s.device.Intrinsics(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !ok {
		if !s.warnedDefaults {
			s.logger.Warnw("device intrinsics unavailable, using defaults", "intrinsic", camera.DefaultDeviceIntrinsic)
			s.warnedDefaults = true
		}
		return camera.DefaultDeviceIntrinsic
	}
	return camera.ResolveDeviceIntrinsic(dev, s.portrait)
}

func checkPlanes(img *camera.YUVImage, platform camera.Platform) error {
	want := camera.LayoutPlanar
	if platform == camera.PlatformIOS {
		want = camera.LayoutBiPlanar
	}
	if img.Layout != want {
		return errors.Errorf("%s devices deliver %d-plane images", platform, want.PlaneCount())
	}
	if len(img.Planes) != want.PlaneCount() {
		return errors.Errorf("expected %d planes, got %d", want.PlaneCount(), len(img.Planes))
	}
	return nil
}

// Kind implements camera.FrameSource.
func (s *Source) Kind() camera.Kind {
	return camera.KindLiveCamera
}

// PixelFormat implements camera.FrameSource.
func (s *Source) PixelFormat() camera.PixelFormat {
	return camera.FormatYUV420
}

// SupportsPositionRequests implements camera.FrameSource. Live devices track their own pose so
// requests may carry it.
func (s *Source) SupportsPositionRequests() bool {
	return true
}

// Close implements camera.FrameSource.
func (s *Source) Close(ctx context.Context) error {
	return nil
}
