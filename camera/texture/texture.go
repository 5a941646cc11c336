// Package texture implements a frame source fed by an externally owned image, such as a render
// target or a video player surface.
package texture

import (
	"context"
	"image"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/arceye/vlsdk/camera"
	"github.com/arceye/vlsdk/spatialmath"
)

// Source hands out whatever image was last set on it together with the pose of the camera that
// rendered it.
type Source struct {
	clock clock.Clock

	mu         sync.Mutex
	img        image.Image
	pose       spatialmath.Pose
	projection mgl64.Mat4
	display    mgl64.Mat4
	intrinsic  camera.Intrinsic
}

// Option configures a Source.
type Option func(*Source)

// WithClock overrides the clock used to timestamp frames.
func WithClock(clk clock.Clock) Option {
	return func(s *Source) {
		s.clock = clk
	}
}

// WithDefaultIntrinsic reports the built-in intrinsic scaled to a preview whose longer side is
// previewMajor. Without it frames carry a zero intrinsic and requests go out without camera
// parameters.
func WithDefaultIntrinsic(previewMajor int) Option {
	return func(s *Source) {
		s.intrinsic = camera.ScaleForPreview(camera.DefaultEditorIntrinsic, previewMajor)
	}
}

// New returns an empty Source.
func New(opts ...Option) *Source {
	s := &Source{
		clock:      clock.New(),
		pose:       spatialmath.NewZeroPose(),
		projection: mgl64.Ident4(),
		display:    mgl64.Ident4(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetImage replaces the image delivered with the next frames.
func (s *Source) SetImage(img image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.img = img
}

// SetPose sets the pose of the rendering camera.
func (s *Source) SetPose(p spatialmath.Pose) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pose = p
}

// SetProjection sets the projection matrix of the rendering camera.
func (s *Source) SetProjection(m mgl64.Mat4) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projection = m
}

// SetDisplayMatrix sets the transform applied when the texture is displayed.
func (s *Source) SetDisplayMatrix(m mgl64.Mat4) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.display = m
}

// AcquireFrame implements camera.FrameSource.
func (s *Source) AcquireFrame(ctx context.Context) (*camera.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img == nil {
		return nil, camera.NewNoFrameError("no texture set")
	}
	frame := camera.NewFrame(nil)
	frame.Image = s.img
	frame.Timestamp = s.clock.Now()
	frame.LocalPose = s.pose
	frame.Intrinsic = s.intrinsic
	frame.ProjectionMatrix = s.projection
	frame.DisplayMatrix = s.display
	return frame, nil
}

// Kind implements camera.FrameSource.
func (s *Source) Kind() camera.Kind {
	return camera.KindExternalTexture
}

// PixelFormat implements camera.FrameSource.
func (s *Source) PixelFormat() camera.PixelFormat {
	return camera.FormatRGBA
}

// SupportsPositionRequests implements camera.FrameSource.
func (s *Source) SupportsPositionRequests() bool {
	return false
}

// Close implements camera.FrameSource.
func (s *Source) Close(ctx context.Context) error {
	s.SetImage(nil)
	return nil
}
