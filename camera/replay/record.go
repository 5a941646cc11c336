// Package replay plays back recorded AR sessions as a frame source.
package replay

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"

	"github.com/arceye/vlsdk/camera"
	"github.com/arceye/vlsdk/spatialmath"
)

// ErrInvalidRecord is returned for records that do not follow the dataset format.
var ErrInvalidRecord = errors.New("invalid dataset record")

const (
	recordSeparator  = "&"
	recordTerminator = "|"

	baseFieldCount     = 10
	extendedFieldCount = 11
)

// Record is one recorded frame. Matrices are in the engine frame; the intrinsic is already
// expressed for the recorded image.
type Record struct {
	// Timestamp is the capture time in milliseconds.
	Timestamp   int64
	Model       mgl64.Mat4
	Projection  mgl64.Mat4
	Display     mgl64.Mat4
	Intrinsic   camera.Intrinsic
	Latitude    float64
	Longitude   float64
	RelAltitude float64
}

// DefaultRecord is a frame at the origin with the default dataset intrinsic.
func DefaultRecord() Record {
	return Record{
		Model:      mgl64.Ident4(),
		Projection: mgl64.Ident4(),
		Display:    mgl64.Ident4(),
		Intrinsic:  camera.DefaultDatasetIntrinsic,
	}
}

// FieldOfView returns the vertical field of view, in degrees, of the record's projection.
func (r Record) FieldOfView() float64 {
	f := r.Projection.At(1, 1)
	if f == 0 {
		return 0
	}
	return 2 * math.Atan(1/f) * 180 / math.Pi
}

// Pose returns the camera pose encoded in the model matrix.
func (r Record) Pose() spatialmath.Pose {
	return spatialmath.PoseFromMatrix(r.Model)
}

// ParseRecord decodes one record line. A matrix field that is malformed is replaced by the
// identity and reported through onBadMatrix, when set; every other problem is an error.
func ParseRecord(line string, onBadMatrix func(field int, err error)) (Record, error) {
	line = strings.TrimRight(line, recordTerminator)
	fields := strings.Split(line, recordSeparator)
	if len(fields) != baseFieldCount && len(fields) != extendedFieldCount {
		return Record{}, errors.Wrapf(ErrInvalidRecord, "expected %d or %d fields, got %d", baseFieldCount, extendedFieldCount, len(fields))
	}

	rec := DefaultRecord()
	ts, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
	if err != nil {
		return Record{}, errors.Wrapf(ErrInvalidRecord, "timestamp %q", fields[0])
	}
	rec.Timestamp = ts

	for i, dst := range []*mgl64.Mat4{&rec.Model, &rec.Projection, &rec.Display} {
		m, err := spatialmath.ParseMat4(fields[i+1])
		if err != nil {
			if onBadMatrix != nil {
				onBadMatrix(i+1, err)
			}
			m = mgl64.Ident4()
		}
		*dst = m
	}

	floats := make([]float64, 0, len(fields)-4)
	for _, f := range fields[4:] {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return Record{}, errors.Wrapf(ErrInvalidRecord, "number %q", f)
		}
		floats = append(floats, v)
	}
	rec.Intrinsic = camera.Intrinsic{Fx: floats[0], Fy: floats[1], Cx: floats[2], Cy: floats[3]}
	rec.Latitude = floats[4]
	rec.Longitude = floats[5]
	if len(floats) > 6 {
		rec.RelAltitude = floats[6]
	}
	return rec, nil
}

// String encodes the record in the dataset format, including the terminator.
func (r Record) String() string {
	fields := []string{
		strconv.FormatInt(r.Timestamp, 10),
		spatialmath.FormatMat4(r.Model),
		spatialmath.FormatMat4(r.Projection),
		spatialmath.FormatMat4(r.Display),
		formatFloat(r.Intrinsic.Fx),
		formatFloat(r.Intrinsic.Fy),
		formatFloat(r.Intrinsic.Cx),
		formatFloat(r.Intrinsic.Cy),
		formatFloat(r.Latitude),
		formatFloat(r.Longitude),
	}
	if r.RelAltitude != 0 {
		fields = append(fields, formatFloat(r.RelAltitude))
	}
	return fmt.Sprintf("%s%s", strings.Join(fields, recordSeparator), recordTerminator)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
