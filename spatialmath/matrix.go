package spatialmath

import (
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
)

// ErrMatrixSize is returned when a flat matrix has the wrong number of elements.
var ErrMatrixSize = errors.New("unexpected number of matrix elements")

// PackMat4 flattens m into 16 row-major floats, the layout the native core expects.
func PackMat4(m mgl64.Mat4) [16]float32 {
	var out [16]float32
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			out[r*4+c] = float32(m.At(r, c))
		}
	}
	return out
}

// UnpackMat4 builds a matrix from 16 row-major floats.
func UnpackMat4(data [16]float32) mgl64.Mat4 {
	var m mgl64.Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			m.Set(r, c, float64(data[r*4+c]))
		}
	}
	return m
}

// PackMat4Float64 is PackMat4 without the loss of precision.
func PackMat4Float64(m mgl64.Mat4) [16]float64 {
	var out [16]float64
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			out[r*4+c] = m.At(r, c)
		}
	}
	return out
}

// UnpackMat4Float64 is UnpackMat4 for double precision input.
func UnpackMat4Float64(data [16]float64) mgl64.Mat4 {
	var m mgl64.Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			m.Set(r, c, data[r*4+c])
		}
	}
	return m
}

// PackMat3 flattens the upper-left 3x3 block of m into 9 row-major floats.
func PackMat3(m mgl64.Mat4) [9]float32 {
	var out [9]float32
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r*3+c] = float32(m.At(r, c))
		}
	}
	return out
}

// UnpackMat3 places 9 row-major floats into the upper-left block of an otherwise identity matrix.
func UnpackMat3(data [9]float32) mgl64.Mat4 {
	m := mgl64.Ident4()
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			m.Set(r, c, float64(data[r*3+c]))
		}
	}
	return m
}

// Mat4FromSlice builds a matrix from a row-major slice of either 16 or 9 values.
func Mat4FromSlice(values []float64) (mgl64.Mat4, error) {
	switch len(values) {
	case 16:
		var data [16]float64
		copy(data[:], values)
		return UnpackMat4Float64(data), nil
	case 9:
		m := mgl64.Ident4()
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				m.Set(r, c, values[r*3+c])
			}
		}
		return m, nil
	default:
		return mgl64.Ident4(), errors.Wrapf(ErrMatrixSize, "got %d", len(values))
	}
}

// ParseMat4 parses a comma separated, row-major matrix.
func ParseMat4(s string) (mgl64.Mat4, error) {
	fields := strings.Split(s, ",")
	values := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return mgl64.Ident4(), errors.Wrapf(err, "parsing matrix element %q", f)
		}
		values = append(values, v)
	}
	if len(values) != 16 {
		return mgl64.Ident4(), errors.Wrapf(ErrMatrixSize, "got %d", len(values))
	}
	return Mat4FromSlice(values)
}

// FormatMat4 writes m as a comma separated, row-major string; the inverse of ParseMat4.
func FormatMat4(m mgl64.Mat4) string {
	parts := make([]string, 0, 16)
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			parts = append(parts, strconv.FormatFloat(m.At(r, c), 'f', -1, 64))
		}
	}
	return strings.Join(parts, ",")
}
