package simcore

import (
	"image"
	"math"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"

	"github.com/arceye/vlsdk/camera"
	"github.com/arceye/vlsdk/config"
	"github.com/arceye/vlsdk/native"
	"github.com/arceye/vlsdk/spatialmath"
	"github.com/arceye/vlsdk/testutils"
	"github.com/arceye/vlsdk/tracker"
	"github.com/arceye/vlsdk/vl"
)

const (
	passBody = `{"status":200,"result":"SUCCESS","pose":"7,q.jpg,1,2,3,1,0,0,0","inlier":523,"total":900,"datasetInfo":"lobby_1F"}`
	failBody = `{"status":200,"result":"FAILURE"}`
	weakBody = `{"status":200,"result":"SUCCESS","pose":"7,q.jpg,1,2,3,1,0,0,0","inlier":20,"total":900,"datasetInfo":""}`
)

const squareArea = `{
	"type": "FeatureCollection",
	"features": [
		{"type": "Feature", "properties": {"location": "plaza"},
		 "geometry": {"type": "Polygon", "coordinates": [[[127.0, 37.0], [127.01, 37.0], [127.01, 37.01], [127.0, 37.01], [127.0, 37.0]]]}},
		{"type": "Feature", "properties": {"name": "tower"},
		 "geometry": {"type": "MultiPolygon", "coordinates": [[[[128.0, 38.0], [128.01, 38.0], [128.01, 38.01], [128.0, 38.0]]]]}}
	]
}`

type recorder struct {
	requests  []int
	infos     []vl.RequestInfo
	states    []tracker.State
	poses     []native.PoseUpdate
	responses []native.ResponseEventData
	layers    []string
}

func (r *recorder) callbacks() native.Callbacks {
	return native.Callbacks{
		VLRequested: func(key int, info vl.RequestInfo) {
			r.requests = append(r.requests, key)
			r.infos = append(r.infos, info)
		},
		StateChanged:     func(s int) { r.states = append(r.states, tracker.State(s)) },
		PoseUpdated:      func(p native.PoseUpdate) { r.poses = append(r.poses, p) },
		VLResponded:      func(ev native.ResponseEventData) { r.responses = append(r.responses, ev) },
		LayerInfoChanged: func(l string) { r.layers = append(r.layers, l) },
	}
}

func newTestCore(t *testing.T, cfg config.TrackerConfig) (*Core, *clock.Mock, *recorder) {
	t.Helper()
	clk := clock.NewMock()
	c := New(testutils.NewLogger(t), WithClock(clk))
	urls := []config.VLURL{
		{Location: "plaza", InvokeURL: "https://example.com/plaza", SecretKey: "k1"},
		{Location: config.EmptyLocation, InvokeURL: "https://example.com/any", SecretKey: "k2"},
	}
	test.That(t, c.Init(cfg, urls, squareArea), test.ShouldBeNil)
	rec := &recorder{}
	c.SetCallbacks(rec.callbacks())
	return c, clk, rec
}

func uprightFrame() native.Frame {
	return native.Frame{
		ViewMatrix:      spatialmath.PackMat4(mgl64.Ident4()),
		Texture:         image.NewRGBA(image.Rect(0, 0, 360, 640)),
		TimestampMillis: 1717988760000,
	}
}

func TestInit(t *testing.T) {
	c := New(testutils.NewLogger(t))
	test.That(t, c.Version(), test.ShouldEqual, Version)
	test.That(t, c.Init(config.DefaultTrackerConfig(), nil, ""), test.ShouldNotBeNil)
	test.That(t, c.Init(config.DefaultTrackerConfig(), []config.VLURL{{InvokeURL: "x"}}, "{"), test.ShouldNotBeNil)
	test.That(t, c.Init(config.DefaultTrackerConfig(), []config.VLURL{{InvokeURL: "x"}}, ""), test.ShouldBeNil)

	cfg := config.DefaultTrackerConfig()
	cfg.VLSearchRange = 3
	c.SetConfig(cfg)
	test.That(t, c.Config().VLSearchRange, test.ShouldEqual, 3)
}

func TestUpdateFramePacing(t *testing.T) {
	c, clk, rec := newTestCore(t, config.DefaultTrackerConfig())
	c.SetCameraIntrinsic(camera.Intrinsic{Fx: 480, Fy: 480, Cx: 180, Cy: 320})

	c.UpdateFrame(uprightFrame())
	test.That(t, rec.requests, test.ShouldResemble, []int{0})
	info := rec.infos[0]
	test.That(t, info.Method, test.ShouldEqual, vl.MethodPOST)
	test.That(t, info.CameraParam, test.ShouldEqual, "480.000000,480.000000,180.000000,320.000000")
	test.That(t, info.Filename, test.ShouldEqual, "1717988760000,false")
	test.That(t, info.RequestWithPosition, test.ShouldBeFalse)
	test.That(t, info.Image.Bounds().Dx(), test.ShouldEqual, 360)

	// inside the initial interval.
	clk.Add(100 * time.Millisecond)
	c.UpdateFrame(uprightFrame())
	test.That(t, rec.requests, test.ShouldHaveLength, 1)

	clk.Add(150 * time.Millisecond)
	c.UpdateFrame(uprightFrame())
	test.That(t, rec.requests, test.ShouldResemble, []int{0, 1})
	test.That(t, c.Pending(), test.ShouldEqual, 2)

	// frames without an image are skipped.
	clk.Add(time.Second)
	c.UpdateFrame(native.Frame{})
	test.That(t, rec.requests, test.ShouldHaveLength, 2)
}

func TestURLSelection(t *testing.T) {
	c, clk, rec := newTestCore(t, config.DefaultTrackerConfig())

	f := uprightFrame()
	f.GeoCoord = [2]float64{37.005, 127.005}
	c.UpdateFrame(f)
	test.That(t, rec.infos[0].Location, test.ShouldEqual, "plaza")

	// outside every area the urls are used in turn.
	f.GeoCoord = [2]float64{}
	for i := 0; i < 2; i++ {
		clk.Add(time.Second)
		c.UpdateFrame(f)
	}
	test.That(t, rec.infos[1].URL, test.ShouldEqual, "https://example.com/plaza")
	test.That(t, rec.infos[2].URL, test.ShouldEqual, "https://example.com/any")
}

func TestSuccessResponse(t *testing.T) {
	c, clk, rec := newTestCore(t, config.DefaultTrackerConfig())
	c.UpdateFrame(uprightFrame())
	c.SendSuccessResponse(0, passBody)

	test.That(t, c.State(), test.ShouldEqual, tracker.StateVLPass)
	test.That(t, rec.states, test.ShouldResemble, []tracker.State{tracker.StateVLPass})
	test.That(t, rec.layers, test.ShouldResemble, []string{"lobby_1F"})
	test.That(t, rec.responses, test.ShouldHaveLength, 1)
	test.That(t, rec.responses[0].Status, test.ShouldEqual, vl.StatusSuccess)
	test.That(t, rec.responses[0].Timestamp, test.ShouldEqual, int64(7))
	test.That(t, rec.responses[0].Confidence, test.ShouldAlmostEqual, 0.523)
	test.That(t, rec.poses, test.ShouldHaveLength, 1)

	// the view converts back to the parsed pose.
	view := spatialmath.ConvertHandednessView(spatialmath.UnpackMat4Float64(rec.poses[0].View))
	pose := spatialmath.PoseFromMatrix(view.Inv())
	test.That(t, pose.Position.X, test.ShouldAlmostEqual, -1.)
	test.That(t, pose.Position.Y, test.ShouldAlmostEqual, vl.DefaultEyeHeight)
	test.That(t, pose.Position.Z, test.ShouldAlmostEqual, -2.)
	want := quat.Number{Real: math.Sqrt2 / 2, Jmag: -math.Sqrt2 / 2}
	test.That(t, spatialmath.QuatAlmostEqual(pose.Rotation, want, 1e-6), test.ShouldBeTrue)

	// a duplicate response is ignored.
	c.SendSuccessResponse(0, passBody)
	test.That(t, rec.responses, test.ShouldHaveLength, 1)

	// once localized, requests carry the pose and use the slower interval.
	clk.Add(500 * time.Millisecond)
	c.UpdateFrame(uprightFrame())
	test.That(t, rec.requests, test.ShouldHaveLength, 1)
	clk.Add(500 * time.Millisecond)
	c.UpdateFrame(uprightFrame())
	test.That(t, rec.requests, test.ShouldHaveLength, 2)
	test.That(t, rec.infos[1].RequestWithPosition, test.ShouldBeTrue)
	test.That(t, rec.infos[1].LastPose, test.ShouldStartWith, "-1,1.5,-2,")
	test.That(t, rec.infos[1].Filename, test.ShouldEqual, "1717988760000,true")
}

func TestFailureThresholds(t *testing.T) {
	cfg := config.DefaultTrackerConfig()
	cfg.FailureCountToNotRecognized = 2
	cfg.FailureCountToFail = 2
	cfg.FailureCountToReset = 4
	c, clk, rec := newTestCore(t, cfg)

	send := func(body string) {
		clk.Add(time.Second)
		c.UpdateFrame(uprightFrame())
		c.SendSuccessResponse(rec.requests[len(rec.requests)-1], body)
	}

	send(failBody)
	test.That(t, c.State(), test.ShouldEqual, tracker.StateInitial)
	test.That(t, rec.responses[0].Status, test.ShouldEqual, vl.StatusFailed)
	send(weakBody)
	test.That(t, rec.responses[1].Status, test.ShouldEqual, vl.StatusInaccurate)
	test.That(t, c.State(), test.ShouldEqual, tracker.StateNotRecognized)

	send(passBody)
	test.That(t, c.State(), test.ShouldEqual, tracker.StateVLPass)

	send(failBody)
	send(failBody)
	test.That(t, c.State(), test.ShouldEqual, tracker.StateVLFail)

	send(failBody)
	send(failBody)
	test.That(t, c.State(), test.ShouldEqual, tracker.StateInitial)
	test.That(t, rec.states, test.ShouldResemble, []tracker.State{
		tracker.StateNotRecognized, tracker.StateVLPass, tracker.StateVLFail, tracker.StateInitial,
	})
}

func TestFailureResponse(t *testing.T) {
	c, _, rec := newTestCore(t, config.DefaultTrackerConfig())
	c.UpdateFrame(uprightFrame())
	c.SendFailureResponse(0, "<html>", vl.StatusInternalServerError)
	test.That(t, rec.responses, test.ShouldHaveLength, 1)
	test.That(t, rec.responses[0].Status, test.ShouldEqual, vl.StatusInternalServerError)
	test.That(t, rec.responses[0].ResponseBody, test.ShouldEqual, "<html>")
	test.That(t, c.Pending(), test.ShouldEqual, 0)

	c.SendFailureResponse(99, "", vl.StatusUnknownError)
	test.That(t, rec.responses, test.ShouldHaveLength, 1)
}

func TestOutOfService(t *testing.T) {
	c, _, rec := newTestCore(t, config.DefaultTrackerConfig())
	c.UpdateFrame(uprightFrame())
	c.SendFailureResponse(0, "", vl.StatusOutOfServiceArea)
	test.That(t, c.State(), test.ShouldEqual, tracker.StateVLOutOfService)
	test.That(t, rec.states, test.ShouldResemble, []tracker.State{tracker.StateVLOutOfService})
}

func TestChangeStateAndReset(t *testing.T) {
	c, _, rec := newTestCore(t, config.DefaultTrackerConfig())
	c.ChangeState(int(tracker.StateVLFail))
	c.ChangeState(int(tracker.StateVLFail))
	test.That(t, rec.states, test.ShouldResemble, []tracker.State{tracker.StateVLFail})
	c.Reset()
	test.That(t, c.State(), test.ShouldEqual, tracker.StateInitial)
	test.That(t, rec.states, test.ShouldHaveLength, 2)

	c.Release()
	c.UpdateFrame(uprightFrame())
	test.That(t, rec.requests, test.ShouldBeEmpty)
}

func TestResetByDevicePose(t *testing.T) {
	c, clk, rec := newTestCore(t, config.DefaultTrackerConfig())
	c.ChangeState(int(tracker.StateVLPass))

	// camera rolled by 180 degrees.
	model := spatialmath.TRS(r3.Vector{}, quat.Number{Kmag: 1})
	f := uprightFrame()
	f.ViewMatrix = spatialmath.PackMat4(model.Inv().Transpose())
	c.UpdateFrame(f)
	test.That(t, c.State(), test.ShouldEqual, tracker.StateInitial)
	test.That(t, rec.requests, test.ShouldBeEmpty)

	c.EnableResetByDevicePose(false)
	c.ChangeState(int(tracker.StateVLPass))
	clk.Add(time.Second)
	c.UpdateFrame(f)
	test.That(t, c.State(), test.ShouldEqual, tracker.StateVLPass)
	test.That(t, rec.requests, test.ShouldHaveLength, 1)
}

func TestAreas(t *testing.T) {
	idx, err := ParseAreas(squareArea)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, idx.Len(), test.ShouldEqual, 2)

	loc, ok := idx.Find(37.005, 127.005)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, loc, test.ShouldEqual, "plaza")
	_, ok = idx.Find(36.0, 127.005)
	test.That(t, ok, test.ShouldBeFalse)

	// about 110 meters south of the plaza's south edge.
	test.That(t, idx.Within(36.999, 127.0, 50), test.ShouldBeEmpty)
	test.That(t, idx.Within(36.999, 127.0, 200), test.ShouldResemble, []string{"plaza"})
	test.That(t, idx.Within(37.005, 127.005, 1), test.ShouldResemble, []string{"plaza"})

	empty, err := ParseAreas("")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, empty.Within(0, 0, 100), test.ShouldBeEmpty)

	_, err = ParseAreas(`{"type":"Feature"}`)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = ParseAreas(`{"type":"FeatureCollection","features":[{"properties":{},"geometry":{"type":"Polygon","coordinates":[]}}]}`)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = ParseAreas(`{"type":"FeatureCollection","features":[{"properties":{"name":"p"},"geometry":{"type":"Point","coordinates":[1,2]}}]}`)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDetectVLLocation(t *testing.T) {
	c, _, _ := newTestCore(t, config.DefaultTrackerConfig())
	var got []string
	c.DetectVLLocation(37.005, 127.005, 100, func(locations []string) { got = locations })
	test.That(t, got, test.ShouldResemble, []string{"plaza"})
	test.That(t, c.FindVLLocation(38.002, 128.008), test.ShouldEqual, "tower")
	test.That(t, c.FindVLLocation(0, 0), test.ShouldEqual, "")
}
