package spatialmath

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

const defaultEpsilon = 1e-6

// Pose is a position and orientation in the engine frame.
type Pose struct {
	Position r3.Vector
	Rotation quat.Number
}

// NewZeroPose returns a pose at the origin with no rotation.
func NewZeroPose() Pose {
	return Pose{Rotation: quat.Number{Real: 1}}
}

// Matrix returns the model matrix of the pose with unit scale.
func (p Pose) Matrix() mgl64.Mat4 {
	return TRS(p.Position, p.Rotation)
}

// PoseFromMatrix decomposes a model matrix into translation and rotation.
func PoseFromMatrix(m mgl64.Mat4) Pose {
	return Pose{Position: Position(m), Rotation: Rotation(m)}
}

// TRS builds a model matrix from a translation and a rotation with unit scale.
func TRS(pos r3.Vector, rot quat.Number) mgl64.Mat4 {
	m := toMglQuat(rot).Normalize().Mat4()
	m.Set(0, 3, pos.X)
	m.Set(1, 3, pos.Y)
	m.Set(2, 3, pos.Z)
	return m
}

// Position returns the translation column of m.
func Position(m mgl64.Mat4) r3.Vector {
	c := m.Col(3)
	return r3.Vector{X: c.X(), Y: c.Y(), Z: c.Z()}
}

// Rotation extracts the orientation of m by looking along its third column with its second
// column as up. Scale in the basis columns is ignored.
func Rotation(m mgl64.Mat4) quat.Number {
	return LookRotation(m.Col(2).Vec3(), m.Col(1).Vec3())
}

// LookRotation returns the rotation whose z axis points along forward and whose y axis is as
// close to up as possible. A zero forward vector yields the identity rotation.
func LookRotation(forward, up mgl64.Vec3) quat.Number {
	if forward.Len() < defaultEpsilon {
		return quat.Number{Real: 1}
	}
	z := forward.Normalize()
	x := up.Cross(z)
	if x.Len() < defaultEpsilon {
		// up is parallel to forward; pick any perpendicular.
		x = mgl64.Vec3{0, 1, 0}.Cross(z)
		if x.Len() < defaultEpsilon {
			x = mgl64.Vec3{1, 0, 0}.Cross(z)
		}
	}
	x = x.Normalize()
	y := z.Cross(x)
	basis := mgl64.Mat4FromCols(x.Vec4(0), y.Vec4(0), z.Vec4(0), mgl64.Vec4{0, 0, 0, 1})
	return fromMglQuat(mgl64.Mat4ToQuat(basis).Normalize())
}

// LossyScale returns the length of each basis column of m.
func LossyScale(m mgl64.Mat4) r3.Vector {
	return r3.Vector{
		X: m.Col(0).Vec3().Len(),
		Y: m.Col(1).Vec3().Len(),
		Z: m.Col(2).Vec3().Len(),
	}
}

// IsValidScale reports whether every component of the lossy scale of m is positive.
func IsValidScale(m mgl64.Mat4) bool {
	s := LossyScale(m)
	return s.X > 0 && s.Y > 0 && s.Z > 0
}

// ValidTRS reports whether m is composed only of a translation, a rotation and a non-degenerate
// scale.
func ValidTRS(m mgl64.Mat4) bool {
	for _, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	if !mgl64.FloatEqualThreshold(m.At(3, 0), 0, defaultEpsilon) ||
		!mgl64.FloatEqualThreshold(m.At(3, 1), 0, defaultEpsilon) ||
		!mgl64.FloatEqualThreshold(m.At(3, 2), 0, defaultEpsilon) ||
		!mgl64.FloatEqualThreshold(m.At(3, 3), 1, defaultEpsilon) {
		return false
	}
	if !IsValidScale(m) {
		return false
	}
	x, y, z := m.Col(0).Vec3().Normalize(), m.Col(1).Vec3().Normalize(), m.Col(2).Vec3().Normalize()
	const orthoTolerance = 1e-4
	if math.Abs(x.Dot(y)) > orthoTolerance || math.Abs(y.Dot(z)) > orthoTolerance || math.Abs(x.Dot(z)) > orthoTolerance {
		return false
	}
	return math.Abs(m.Mat3().Det()) > defaultEpsilon
}

// QuatAlmostEqual reports whether a and b describe the same rotation within tol.
func QuatAlmostEqual(a, b quat.Number, tol float64) bool {
	dot := a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
	return 1-math.Abs(dot) < tol
}

func toMglQuat(q quat.Number) mgl64.Quat {
	return mgl64.Quat{W: q.Real, V: mgl64.Vec3{q.Imag, q.Jmag, q.Kmag}}
}

func fromMglQuat(q mgl64.Quat) quat.Number {
	return quat.Number{Real: q.W, Imag: q.V.X(), Jmag: q.V.Y(), Kmag: q.V.Z()}
}
