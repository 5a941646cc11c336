package camera

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Platform identifies the layout of the display transform a device reports.
type Platform int

const (
	// PlatformIOS reports display transforms with the basis in the upper-left columns.
	PlatformIOS Platform = iota
	// PlatformAndroid reports display transforms with the basis in the upper-left rows.
	PlatformAndroid
)

func (p Platform) String() string {
	switch p {
	case PlatformIOS:
		return "ios"
	case PlatformAndroid:
		return "android"
	default:
		return "unknown"
	}
}

// NormalizeDisplayMatrix converts a platform display transform into a 2D affine transform with
// unit basis vectors and whole-pixel translation. Only the upper 3x3 block of the result is used.
func NormalizeDisplayMatrix(raw mgl64.Mat4, platform Platform) mgl64.Mat4 {
	var bx, by, tr mgl64.Vec2
	switch platform {
	case PlatformAndroid:
		bx = mgl64.Vec2{raw.At(0, 0), raw.At(0, 1)}
		by = mgl64.Vec2{raw.At(1, 0), raw.At(1, 1)}
		tr = mgl64.Vec2{raw.At(0, 2), raw.At(1, 2)}
	default:
		bx = mgl64.Vec2{raw.At(0, 0), raw.At(1, 0)}
		by = mgl64.Vec2{raw.At(0, 1), raw.At(1, 1)}
		tr = mgl64.Vec2{raw.At(2, 0), raw.At(2, 1)}
	}
	if bx.Len() > 0 {
		bx = bx.Normalize()
	}
	if by.Len() > 0 {
		by = by.Normalize()
	}

	out := mgl64.Ident4()
	out.Set(0, 0, bx.X())
	out.Set(0, 1, by.X())
	out.Set(1, 0, bx.Y())
	out.Set(1, 1, by.Y())
	out.Set(2, 0, math.Round(tr.X()))
	out.Set(2, 1, math.Round(tr.Y()))
	return out
}
