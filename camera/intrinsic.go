package camera

import (
	"fmt"
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

// MajorAxisLength is the length, in pixels, of the longer side of every query image. Intrinsics
// are rescaled so that they describe an image of this size.
const MajorAxisLength = 640

// ErrNoIntrinsics is returned when a source cannot report camera intrinsics.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// Intrinsic holds pinhole camera parameters in pixels.
type Intrinsic struct {
	Fx float64 `json:"fx"`
	Fy float64 `json:"fy"`
	Cx float64 `json:"cx"`
	Cy float64 `json:"cy"`
}

var (
	// DefaultDeviceIntrinsic is used on devices that do not report intrinsics. It describes a
	// portrait 480x640 image.
	DefaultDeviceIntrinsic = Intrinsic{Fx: 474.457672, Fy: 474.457672, Cx: 240, Cy: 321.5426635}

	// DefaultEditorIntrinsic describes a 360x640 portrait image for sources without a physical
	// camera. Scale it with ScaleForPreview.
	DefaultEditorIntrinsic = Intrinsic{Fx: 469.672760, Fy: 469.672760, Cx: 179.404327, Cy: 315.172272}

	// DefaultDatasetIntrinsic is assumed for recorded frames that carry no intrinsics.
	DefaultDatasetIntrinsic = Intrinsic{Fx: 480.062, Fy: 480.054, Cx: 180.626, Cy: 318.824}
)

// IsZero reports whether any parameter is zero, which marks the intrinsic as unknown.
func (i Intrinsic) IsZero() bool {
	return i.Fx == 0 || i.Fy == 0 || i.Cx == 0 || i.Cy == 0
}

// Scale multiplies every parameter by s.
func (i Intrinsic) Scale(s float64) Intrinsic {
	return Intrinsic{Fx: i.Fx * s, Fy: i.Fy * s, Cx: i.Cx * s, Cy: i.Cy * s}
}

// Transpose swaps the x and y parameters.
func (i Intrinsic) Transpose() Intrinsic {
	return Intrinsic{Fx: i.Fy, Fy: i.Fx, Cx: i.Cy, Cy: i.Cx}
}

// ParamString renders the intrinsic the way the localization service expects it.
func (i Intrinsic) ParamString() string {
	return fmt.Sprintf("%f,%f,%f,%f", i.Fx, i.Fy, i.Cx, i.Cy)
}

// AlmostEqual compares two intrinsics within tol.
func (i Intrinsic) AlmostEqual(other Intrinsic, tol float64) bool {
	return math.Abs(i.Fx-other.Fx) <= tol && math.Abs(i.Fy-other.Fy) <= tol &&
		math.Abs(i.Cx-other.Cx) <= tol && math.Abs(i.Cy-other.Cy) <= tol
}

// DeviceIntrinsic is what a camera device reports: focal length and principal point in pixels of
// the sensor image, plus the sensor resolution.
type DeviceIntrinsic struct {
	FocalLength    r2.Point
	PrincipalPoint r2.Point
	Resolution     image.Point
}

// NeedsTranspose reports whether the sensor axes disagree with the display orientation.
func NeedsTranspose(principal r2.Point, portrait bool) bool {
	return (portrait && principal.X > principal.Y) || (!portrait && principal.X < principal.Y)
}

// MajorAxisScale returns the factor that maps the sensor resolution onto a query image whose
// longer side is MajorAxisLength.
func MajorAxisScale(principal r2.Point, resolution image.Point) float64 {
	if principal.X > principal.Y {
		if resolution.X == 0 {
			return 0
		}
		return MajorAxisLength / float64(resolution.X)
	}
	if resolution.Y == 0 {
		return 0
	}
	return MajorAxisLength / float64(resolution.Y)
}

// ResolveDeviceIntrinsic converts device-reported intrinsics into the query image space for the
// given display orientation.
func ResolveDeviceIntrinsic(dev DeviceIntrinsic, portrait bool) Intrinsic {
	scale := MajorAxisScale(dev.PrincipalPoint, dev.Resolution)
	out := Intrinsic{
		Fx: dev.FocalLength.X,
		Fy: dev.FocalLength.Y,
		Cx: dev.PrincipalPoint.X,
		Cy: dev.PrincipalPoint.Y,
	}.Scale(scale)
	if NeedsTranspose(dev.PrincipalPoint, portrait) {
		out = out.Transpose()
	}
	return out
}

// ScaleForPreview scales an intrinsic expressed for a MajorAxisLength image to a preview whose
// longer side is previewMajor.
func ScaleForPreview(i Intrinsic, previewMajor int) Intrinsic {
	return i.Scale(float64(previewMajor) / MajorAxisLength)
}

// QuerySize returns the query image dimensions for an input image, keeping the aspect ratio and
// fixing the longer side to MajorAxisLength.
func QuerySize(width, height int) image.Point {
	if width <= 0 || height <= 0 {
		return image.Point{}
	}
	if width >= height {
		return image.Pt(MajorAxisLength, int(math.Round(float64(height)*MajorAxisLength/float64(width))))
	}
	return image.Pt(int(math.Round(float64(width)*MajorAxisLength/float64(height))), MajorAxisLength)
}
