package replay

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/disintegration/imaging"
	"github.com/go-gl/mathgl/mgl64"
	"go.viam.com/test"

	"github.com/arceye/vlsdk/camera"
	"github.com/arceye/vlsdk/spatialmath"
	"github.com/arceye/vlsdk/testutils"
)

const identityRow = "1,0,0,0,0,1,0,0,0,0,1,0,0,0,0,1"

func TestParseRecord(t *testing.T) {
	line := strings.Join([]string{
		"1000",
		"1,0,0,2,0,1,0,3,0,0,1,4,0,0,0,1",
		"1.5,0,0,0,0,2,0,0,0,0,1,0,0,0,0,1",
		identityRow,
		"480", "481", "180", "320",
		"37.5", "127.1",
	}, "&") + "|"

	rec, err := ParseRecord(line, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rec.Timestamp, test.ShouldEqual, int64(1000))
	test.That(t, rec.Pose().Position.Z, test.ShouldEqual, 4.)
	test.That(t, rec.Projection.At(1, 1), test.ShouldEqual, 2.)
	test.That(t, rec.Intrinsic, test.ShouldResemble, camera.Intrinsic{Fx: 480, Fy: 481, Cx: 180, Cy: 320})
	test.That(t, rec.Latitude, test.ShouldEqual, 37.5)
	test.That(t, rec.Longitude, test.ShouldEqual, 127.1)
	test.That(t, rec.RelAltitude, test.ShouldEqual, 0.)
	// 2*atan(1/2) in degrees.
	test.That(t, rec.FieldOfView(), test.ShouldAlmostEqual, 53.13010235415598, 1e-9)

	rec, err = ParseRecord(strings.TrimSuffix(line, "|")+"&3.5||", nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rec.RelAltitude, test.ShouldEqual, 3.5)
}

func TestParseRecordErrors(t *testing.T) {
	_, err := ParseRecord("1000&1&2", nil)
	test.That(t, errors.Is(err, ErrInvalidRecord), test.ShouldBeTrue)

	fields := []string{"abc", identityRow, identityRow, identityRow, "1", "1", "1", "1", "0", "0"}
	_, err = ParseRecord(strings.Join(fields, "&"), nil)
	test.That(t, errors.Is(err, ErrInvalidRecord), test.ShouldBeTrue)

	fields[0] = "5"
	fields[4] = "x"
	_, err = ParseRecord(strings.Join(fields, "&"), nil)
	test.That(t, errors.Is(err, ErrInvalidRecord), test.ShouldBeTrue)

	// a broken matrix falls back to identity.
	fields[4] = "1"
	fields[1] = "1,2,3"
	var badFields []int
	rec, err := ParseRecord(strings.Join(fields, "&"), func(field int, err error) {
		badFields = append(badFields, field)
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, badFields, test.ShouldResemble, []int{1})
	test.That(t, rec.Model, test.ShouldResemble, mgl64.Ident4())
}

func makeRecords(timestamps ...int64) []Record {
	records := make([]Record, 0, len(timestamps))
	for i, ts := range timestamps {
		rec := DefaultRecord()
		rec.Timestamp = ts
		rec.Model = mgl64.Translate3D(float64(i), 0, 0)
		rec.Latitude = 37.4
		rec.Longitude = 127.1
		records = append(records, rec)
	}
	return records
}

func writeDataset(t *testing.T, records []Record, withImages bool) string {
	t.Helper()
	dir := t.TempDir()
	var buf bytes.Buffer
	test.That(t, WriteRecords(&buf, records), test.ShouldBeNil)
	test.That(t, os.WriteFile(filepath.Join(dir, IndexFileName), buf.Bytes(), 0o600), test.ShouldBeNil)
	if withImages {
		ds := &Dataset{Dir: dir}
		for _, rec := range records {
			img := imaging.New(36, 64, color.White)
			test.That(t, imaging.Save(img, ds.ImagePath(rec)), test.ShouldBeNil)
		}
	}
	return dir
}

func TestRecordsRoundTrip(t *testing.T) {
	logger := testutils.NewLogger(t)
	records := makeRecords(1000, 1100, 1300)
	records[2].RelAltitude = 2.25

	var buf bytes.Buffer
	test.That(t, WriteRecords(&buf, records), test.ShouldBeNil)
	read, err := ReadRecords(&buf, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, read, test.ShouldHaveLength, 3)
	test.That(t, read[1].Timestamp, test.ShouldEqual, int64(1100))
	test.That(t, read[2].Model.ApproxEqualThreshold(records[2].Model, 1e-12), test.ShouldBeTrue)
	test.That(t, read[2].RelAltitude, test.ShouldEqual, 2.25)

	// truncated input is an error.
	buf.Reset()
	test.That(t, WriteRecords(&buf, records), test.ShouldBeNil)
	_, err = ReadRecords(bytes.NewReader(buf.Bytes()[:buf.Len()-5]), logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestReadRecordsSkipsInvalid(t *testing.T) {
	logger, logs := testutils.NewObservedLogger(t)
	var buf bytes.Buffer
	test.That(t, WriteRecords(&buf, makeRecords(1000)), test.ShouldBeNil)
	bad := "not a record"
	buf.WriteByte(byte(len(bad)))
	buf.WriteString(bad)

	read, err := ReadRecords(&buf, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, read, test.ShouldHaveLength, 1)
	test.That(t, logs.FilterMessage("skipping record").Len(), test.ShouldEqual, 1)
}

func TestPlayerPacing(t *testing.T) {
	logger := testutils.NewLogger(t)
	dir := writeDataset(t, makeRecords(1000, 1100, 1300), false)
	mock := clock.NewMock()
	p := NewPlayer(dir, nil, mock, logger)

	_, err := p.TotalSeconds()
	test.That(t, errors.Is(err, ErrDatasetNotLoaded), test.ShouldBeTrue)

	_, ok := p.Next()
	test.That(t, ok, test.ShouldBeFalse)

	test.That(t, p.Play(), test.ShouldBeNil)
	total, err := p.TotalSeconds()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, total, test.ShouldAlmostEqual, 0.3)

	_, ok = p.Next()
	test.That(t, ok, test.ShouldBeFalse)
	mock.Add(99 * time.Millisecond)
	_, ok = p.Next()
	test.That(t, ok, test.ShouldBeFalse)
	mock.Add(time.Millisecond)
	rec, ok := p.Next()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, rec.Timestamp, test.ShouldEqual, int64(1000))
	test.That(t, p.Progress(), test.ShouldAlmostEqual, 1./3)

	_, ok = p.Next()
	test.That(t, ok, test.ShouldBeFalse)
	mock.Add(200 * time.Millisecond)
	rec, ok = p.Next()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, rec.Timestamp, test.ShouldEqual, int64(1100))

	rec, ok = p.Next()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, rec.Timestamp, test.ShouldEqual, int64(1300))
	test.That(t, p.Finished(), test.ShouldBeTrue)

	// double speed halves the intervals.
	test.That(t, p.TogglePlaySpeed(), test.ShouldEqual, 2.)
	p.SetProgress(0)
	test.That(t, p.FrameIndex(), test.ShouldEqual, 0)
	test.That(t, p.Finished(), test.ShouldBeFalse)
	_, ok = p.Next()
	test.That(t, ok, test.ShouldBeFalse)
	mock.Add(50 * time.Millisecond)
	rec, ok = p.Next()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, rec.Timestamp, test.ShouldEqual, int64(1000))
	_, ok = p.Next()
	test.That(t, ok, test.ShouldBeFalse)
	mock.Add(100 * time.Millisecond)
	rec, ok = p.Next()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, rec.Timestamp, test.ShouldEqual, int64(1100))

	p.Pause()
	test.That(t, p.IsPlaying(), test.ShouldBeFalse)
	mock.Add(time.Second)
	_, ok = p.Next()
	test.That(t, ok, test.ShouldBeFalse)
}

func TestPlaySpeedCycle(t *testing.T) {
	p := NewPlayer("", nil, nil, testutils.NewLogger(t))
	test.That(t, p.PlaySpeed(), test.ShouldEqual, 1.)
	for _, want := range []float64{2, 5, 10, 1} {
		test.That(t, p.TogglePlaySpeed(), test.ShouldEqual, want)
	}
}

func TestSetProgress(t *testing.T) {
	dir := writeDataset(t, makeRecords(0, 100, 200, 300), false)
	p := NewPlayer(dir, nil, clock.NewMock(), testutils.NewLogger(t))
	test.That(t, p.Play(), test.ShouldBeNil)

	p.SetProgress(0.5)
	test.That(t, p.FrameIndex(), test.ShouldEqual, 2)
	p.SetProgress(1)
	test.That(t, p.FrameIndex(), test.ShouldEqual, 3)
	p.SetProgress(-1)
	test.That(t, p.FrameIndex(), test.ShouldEqual, 0)
	test.That(t, p.Progress(), test.ShouldEqual, 0.)
}

func TestPlayMissingDataset(t *testing.T) {
	logger, logs := testutils.NewObservedLogger(t)
	p := NewPlayer(t.TempDir(), nil, nil, logger)
	test.That(t, p.Play(), test.ShouldNotBeNil)
	test.That(t, p.IsPlaying(), test.ShouldBeFalse)
	test.That(t, logs.FilterMessage("failed to load dataset").Len(), test.ShouldEqual, 1)
}

func TestSourceFromDataset(t *testing.T) {
	logger := testutils.NewLogger(t)
	records := makeRecords(1000, 1100)
	records[0].Intrinsic = camera.Intrinsic{Fx: 500, Fy: 500, Cx: 180, Cy: 320}
	dir := writeDataset(t, records, true)
	mock := clock.NewMock()
	src := NewSource(Config{Dir: dir, Clock: mock}, logger)
	test.That(t, src.Kind(), test.ShouldEqual, camera.KindDatasetReplay)
	test.That(t, src.SupportsPositionRequests(), test.ShouldBeTrue)

	_, err := src.AcquireFrame(context.Background())
	test.That(t, errors.Is(err, camera.ErrNoFrameAvailable), test.ShouldBeTrue)

	test.That(t, src.Play(), test.ShouldBeNil)
	src.AcquireFrame(context.Background())
	mock.Add(100 * time.Millisecond)
	frame, err := src.AcquireFrame(context.Background())
	test.That(t, err, test.ShouldBeNil)
	defer frame.Release()
	test.That(t, frame.Image.Bounds(), test.ShouldResemble, image.Rect(0, 0, 36, 64))
	test.That(t, frame.Intrinsic, test.ShouldResemble, records[0].Intrinsic)
	test.That(t, frame.Location.Lat(), test.ShouldEqual, 37.4)
	test.That(t, frame.Timestamp.UnixMilli(), test.ShouldEqual, int64(1000))
	test.That(t, frame.LocalPose.Position.X, test.ShouldEqual, 0.)

	// the next record is scheduled but not yet due.
	_, err = src.AcquireFrame(context.Background())
	test.That(t, errors.Is(err, camera.ErrNoFrameAvailable), test.ShouldBeTrue)

	test.That(t, os.Remove(filepath.Join(dir, "1100.jpg")), test.ShouldBeNil)
	mock.Add(time.Second)
	_, err = src.AcquireFrame(context.Background())
	test.That(t, errors.Is(err, camera.ErrNoFrameAvailable), test.ShouldBeTrue)
}

func TestSourceTestMode(t *testing.T) {
	offset := mgl64.Translate3D(0, 0, 1)
	src := NewSource(Config{
		Test:  &TestMode{Latitude: 37.1, Longitude: 127.2, CameraOffset: offset},
		Clock: clock.NewMock(),
	}, testutils.NewLogger(t))
	test.That(t, src.Play(), test.ShouldBeNil)

	total, err := src.Player().TotalSeconds()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, total, test.ShouldAlmostEqual, 9.9)

	// the first record is due only after its interval.
	_, err = src.AcquireFrame(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
}

func TestSourceTestModeFrames(t *testing.T) {
	mock := clock.NewMock()
	src := NewSource(Config{
		Test:  &TestMode{Latitude: 37.1, Longitude: 127.2, CameraOffset: mgl64.Translate3D(0, 0, 1)},
		Clock: mock,
	}, testutils.NewLogger(t))
	test.That(t, src.Play(), test.ShouldBeNil)
	src.AcquireFrame(context.Background())
	mock.Add(100 * time.Millisecond)
	frame, err := src.AcquireFrame(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, frame.LocalPose.Position.Z, test.ShouldEqual, 1.)
	test.That(t, frame.Location.Lng(), test.ShouldEqual, 127.2)
	test.That(t, frame.Image.Bounds().Dx(), test.ShouldEqual, 360)
	test.That(t, spatialmath.ValidTRS(frame.LocalPose.Matrix()), test.ShouldBeTrue)
}
