// Package camera defines the frames handed to the pose tracker and the sources that produce them.
package camera

import (
	"image"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	geo "github.com/kellydunn/golang-geo"

	"github.com/arceye/vlsdk/spatialmath"
)

// PixelFormat describes how image data of a frame is laid out.
type PixelFormat int

const (
	// FormatYUV420 is planar YUV 4:2:0, as produced by mobile camera pipelines.
	FormatYUV420 PixelFormat = iota
	// FormatRGB is a packed 8-bit RGB texture.
	FormatRGB
	// FormatRGBA is a packed 8-bit RGBA texture.
	FormatRGBA
)

func (f PixelFormat) String() string {
	switch f {
	case FormatYUV420:
		return "yuv420"
	case FormatRGB:
		return "rgb"
	case FormatRGBA:
		return "rgba"
	default:
		return "unknown"
	}
}

// YUVLayout is the plane arrangement of a YUV image.
type YUVLayout int

const (
	// LayoutPlanar has separate Y, U and V planes.
	LayoutPlanar YUVLayout = iota
	// LayoutBiPlanar has a Y plane and an interleaved CbCr plane.
	LayoutBiPlanar
)

// PlaneCount returns how many planes an image in this layout must carry.
func (l YUVLayout) PlaneCount() int {
	if l == LayoutBiPlanar {
		return 2
	}
	return 3
}

// Plane is one plane of a YUV image.
type Plane struct {
	Data        []byte
	RowStride   int
	PixelStride int
}

// YUVImage is a camera image in planar YUV layout. Rotation is the clockwise rotation, in degrees,
// required to display the image upright.
type YUVImage struct {
	Width    int
	Height   int
	Layout   YUVLayout
	Planes   []Plane
	Rotation int
}

// Frame is one camera frame with everything the tracker needs to advance. Exactly one of YUV and
// Image is set.
type Frame struct {
	YUV   *YUVImage
	Image image.Image

	// Timestamp is the capture time of the frame.
	Timestamp time.Time
	// LocalPose is the device camera pose in the engine frame.
	LocalPose        spatialmath.Pose
	Intrinsic        Intrinsic
	ProjectionMatrix mgl64.Mat4
	DisplayMatrix    mgl64.Mat4

	// Location and RelAltitude are set by sources that carry their own positioning, such as
	// recorded datasets.
	Location    *geo.Point
	RelAltitude float64

	releaseOnce sync.Once
	release     func()
}

// NewFrame returns a frame whose Release calls release exactly once.
func NewFrame(release func()) *Frame {
	return &Frame{release: release, ProjectionMatrix: mgl64.Ident4(), DisplayMatrix: mgl64.Ident4()}
}

// PixelFormat reports the layout of the frame's image data.
func (f *Frame) PixelFormat() PixelFormat {
	if f.YUV != nil {
		return FormatYUV420
	}
	if _, ok := f.Image.(*image.RGBA); ok {
		return FormatRGBA
	}
	if _, ok := f.Image.(*image.NRGBA); ok {
		return FormatRGBA
	}
	return FormatRGB
}

// HasImage reports whether the frame carries any image data.
func (f *Frame) HasImage() bool {
	return f != nil && (f.YUV != nil || f.Image != nil)
}

// Release returns the frame's buffers to its source. It is safe to call more than once.
func (f *Frame) Release() {
	if f == nil {
		return
	}
	f.releaseOnce.Do(func() {
		if f.release != nil {
			f.release()
		}
	})
}
