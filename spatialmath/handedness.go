// Package spatialmath converts poses and matrices between the coordinate conventions used by the
// localization service, the native tracking core, and the host rendering engine.
//
// Three frames are involved:
//
//   - the service frame, in which the localization service reports poses,
//   - the right-handed (GL) frame, in which the native core exchanges matrices,
//   - the left-handed engine frame, in which host applications place content.
package spatialmath

import "github.com/go-gl/mathgl/mgl64"

var (
	flipX = mgl64.Diag4(mgl64.Vec4{-1, 1, 1, 1})
	flipZ = mgl64.Diag4(mgl64.Vec4{1, 1, -1, 1})

	// serviceToGL maps service axes onto GL axes.
	serviceToGL = mgl64.Mat4FromRows(
		mgl64.Vec4{0, 0, -1, 0},
		mgl64.Vec4{-1, 0, 0, 0},
		mgl64.Vec4{0, 1, 0, 0},
		mgl64.Vec4{0, 0, 0, 1},
	)

	// rotXMinus90 is a -90 degree rotation about the x axis.
	rotXMinus90 = mgl64.Mat4FromRows(
		mgl64.Vec4{1, 0, 0, 0},
		mgl64.Vec4{0, 0, 1, 0},
		mgl64.Vec4{0, -1, 0, 0},
		mgl64.Vec4{0, 0, 0, 1},
	)
)

// ConvertHandedness converts a model matrix between the left-handed engine frame and the
// right-handed GL frame. The conversion is its own inverse.
func ConvertHandedness(m mgl64.Mat4) mgl64.Mat4 {
	return flipX.Mul4(m).Mul4(flipZ)
}

// ConvertHandednessView converts a view matrix between the left-handed engine frame and the
// right-handed GL frame. The conversion is its own inverse.
func ConvertHandednessView(m mgl64.Mat4) mgl64.Mat4 {
	return flipZ.Mul4(m).Mul4(flipX)
}

// ConvertServiceToGL re-expresses a model matrix reported in the service frame in the GL frame.
func ConvertServiceToGL(m mgl64.Mat4) mgl64.Mat4 {
	return rotXMinus90.Mul4(m).Mul4(serviceToGL)
}
