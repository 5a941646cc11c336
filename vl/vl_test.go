package vl

import (
	"errors"
	"math"
	"testing"

	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"

	"github.com/arceye/vlsdk/spatialmath"
	"github.com/arceye/vlsdk/testutils"
)

const (
	arceyeURL = "https://api-arc-eye.ncloud.com/v1/localize"
	labsURL   = "https://labs.example.com/vl"
)

func TestDialectForURL(t *testing.T) {
	test.That(t, DialectForURL("https://vl-arc-eye.ncloud.com/api/vl"), test.ShouldEqual, DialectARCeye)
	test.That(t, DialectForURL(arceyeURL), test.ShouldEqual, DialectARCeye)
	test.That(t, DialectForURL("http://x.arc-eye.ncloud.com"), test.ShouldEqual, DialectARCeye)
	test.That(t, DialectForURL(labsURL), test.ShouldEqual, DialectLabs)
}

func TestNewRequestBodyARCeye(t *testing.T) {
	info := RequestInfo{
		Method:              MethodPOST,
		Location:            "lobby",
		URL:                 arceyeURL,
		SecretKey:           "secret",
		Filename:            "1000.jpg",
		CameraParam:         "500,500,180,320",
		Odometry:            "odo",
		LastPose:            "last",
		RequestWithPosition: true,
		WithGlobal:          true,
	}
	body := NewRequestBody(info, true)
	test.That(t, body.Dialect, test.ShouldEqual, DialectARCeye)
	test.That(t, body.Authorization, test.ShouldEqual, "secret")
	test.That(t, body.ImageFieldName, test.ShouldEqual, "image")
	test.That(t, body.Parameters, test.ShouldResemble, map[string]string{
		"cameraParameters": "500,500,180,320",
		"odometry":         "odo",
		"lastPose":         "last",
		"withGlobal":       "true",
	})

	// position fields are dropped when the source cannot provide them.
	body = NewRequestBody(info, false)
	test.That(t, body.Parameters, test.ShouldResemble, map[string]string{"cameraParameters": "500,500,180,320"})

	info.RequestWithPosition = false
	info.CameraParam = "0,0,0,0"
	body = NewRequestBody(info, true)
	test.That(t, body.Parameters, test.ShouldBeEmpty)
}

func TestNewRequestBodyLabs(t *testing.T) {
	info := RequestInfo{
		Method:              MethodPOST,
		Location:            "lobby",
		URL:                 labsURL,
		SecretKey:           "secret",
		CameraParam:         "500,500,180,320",
		LastPose:            "last",
		RequestWithPosition: true,
	}
	body := NewRequestBody(info, true)
	test.That(t, body.Dialect, test.ShouldEqual, DialectLabs)
	test.That(t, body.Authorization, test.ShouldEqual, "")
	test.That(t, body.ImageFieldName, test.ShouldEqual, "images")
	test.That(t, body.Parameters["camparams"], test.ShouldEqual, "500,500,180,320")
	test.That(t, body.Parameters["location"], test.ShouldEqual, "lobby")
	test.That(t, body.Parameters["last-pose"], test.ShouldEqual, "last")
	_, ok := body.Parameters["withGlobal"]
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, body.String(), test.ShouldContainSubstring, "location=lobby")

	info.Location = ""
	body = NewRequestBody(info, false)
	_, ok = body.Parameters["location"]
	test.That(t, ok, test.ShouldBeFalse)
}

func TestIsValidCameraParam(t *testing.T) {
	test.That(t, IsValidCameraParam("1,2,3,4"), test.ShouldBeTrue)
	test.That(t, IsValidCameraParam("1,2,0,4"), test.ShouldBeFalse)
	test.That(t, IsValidCameraParam(""), test.ShouldBeFalse)
	test.That(t, IsValidCameraParam("1,2,3"), test.ShouldBeFalse)
	test.That(t, IsValidCameraParam("a,2,3,4"), test.ShouldBeFalse)
}

func TestValidate(t *testing.T) {
	body := &RequestBody{Parameters: map[string]string{}}
	test.That(t, body.Validate(640, 360), test.ShouldBeNil)

	body.Parameters["cameraParameters"] = "500,500,320,180"
	test.That(t, body.Validate(640, 360), test.ShouldBeNil)

	body.Parameters["cameraParameters"] = "500,500,400,180"
	test.That(t, errors.Is(body.Validate(640, 360), ErrIntrinsicMismatch), test.ShouldBeTrue)

	body.Parameters["cameraParameters"] = "500,500,320,200"
	test.That(t, errors.Is(body.Validate(640, 360), ErrIntrinsicMismatch), test.ShouldBeTrue)

	// within five percent.
	body.Parameters["cameraParameters"] = "500,500,330,185"
	test.That(t, body.Validate(640, 360), test.ShouldBeNil)

	// a portrait image needs a portrait principal point.
	body.Parameters = map[string]string{"camparams": "500,500,320,180"}
	test.That(t, errors.Is(body.Validate(360, 640), ErrIntrinsicMismatch), test.ShouldBeTrue)
	body.Parameters["camparams"] = "500,500,180,320"
	test.That(t, body.Validate(360, 640), test.ShouldBeNil)

	body.Parameters["camparams"] = "x"
	test.That(t, errors.Is(body.Validate(360, 640), ErrInvalidCameraParam), test.ShouldBeTrue)
	body.Parameters["camparams"] = "500,500,180,320"
	test.That(t, body.Validate(0, 0), test.ShouldNotBeNil)
}

func TestStatusFromHTTPCode(t *testing.T) {
	test.That(t, StatusFromHTTPCode(400), test.ShouldEqual, StatusBadRequestServer)
	test.That(t, StatusFromHTTPCode(500), test.ShouldEqual, StatusInternalServerError)
	test.That(t, StatusFromHTTPCode(404), test.ShouldEqual, StatusUnknownError)
	test.That(t, StatusFromHTTPCode(0), test.ShouldEqual, StatusUnknownError)
	test.That(t, IsSuccessCode(204), test.ShouldBeTrue)
	test.That(t, IsSuccessCode(301), test.ShouldBeFalse)
	test.That(t, StatusBadRequestClient.String(), test.ShouldEqual, "BadRequestClient")
	test.That(t, ResponseStatus(99).String(), test.ShouldEqual, "UnknownError")
	test.That(t, int(StatusUnknownError), test.ShouldEqual, 13)
}

func checkExpectedPose(t *testing.T, resp *Response) {
	t.Helper()
	// translation (1, 2) in the service frame with no rotation.
	test.That(t, resp.Position.X, test.ShouldAlmostEqual, -1.)
	test.That(t, resp.Position.Y, test.ShouldAlmostEqual, DefaultEyeHeight)
	test.That(t, resp.Position.Z, test.ShouldAlmostEqual, -2.)
	want := quat.Number{Real: math.Sqrt2 / 2, Jmag: -math.Sqrt2 / 2}
	test.That(t, spatialmath.QuatAlmostEqual(resp.Rotation, want, 1e-9), test.ShouldBeTrue)
}

func TestParseARCeyeResponse(t *testing.T) {
	logger, logs := testutils.NewObservedLogger(t)
	p := NewResponseParser(logger)

	body := `{"status":200,"result":"SUCCESS","pose":"1717988760000,q.jpg,1,2,9,1,0,0,0","inlier":523,"total":900,"datasetInfo":"lobby"}`
	resp, err := p.Parse(body)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp.Schema, test.ShouldEqual, SchemaARCeye)
	test.That(t, resp.Passed, test.ShouldBeTrue)
	test.That(t, resp.Timestamp, test.ShouldEqual, int64(1717988760000))
	test.That(t, resp.Confidence, test.ShouldAlmostEqual, 0.523)
	test.That(t, resp.Total, test.ShouldEqual, 900.)
	test.That(t, resp.DatasetInfo, test.ShouldEqual, "lobby")
	test.That(t, resp.Body, test.ShouldEqual, body)
	checkExpectedPose(t, resp)
	test.That(t, logs.Len(), test.ShouldEqual, 0)

	resp, err = p.Parse(`{"status":200,"result":"FAILURE"}`)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp.Passed, test.ShouldBeFalse)

	resp, err = p.Parse(`{"status":200}`)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp.Passed, test.ShouldBeFalse)
}

func TestParseDevResponse(t *testing.T) {
	logger, logs := testutils.NewObservedLogger(t)
	p := NewResponseParser(logger)

	resp, err := p.Parse(`{"Pose":"5,q.jpg,1,2,3,1,0,0,0","Inlier":"2000"}`)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp.Schema, test.ShouldEqual, SchemaDev)
	test.That(t, resp.Passed, test.ShouldBeTrue)
	test.That(t, resp.Timestamp, test.ShouldEqual, int64(5))
	test.That(t, resp.Confidence, test.ShouldEqual, 1.)
	checkExpectedPose(t, resp)
	// Total and DatasetInfo are missing.
	test.That(t, logs.FilterMessage("missing field in response body").Len(), test.ShouldEqual, 2)

	resp, err = p.Parse(`{"Pose":"failed"}`)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp.Passed, test.ShouldBeFalse)

	resp, err = p.Parse(`{"message":"nothing"}`)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp.Passed, test.ShouldBeFalse)

	_, err = p.Parse(`not json`)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestParseMalformedPose(t *testing.T) {
	logger, logs := testutils.NewObservedLogger(t)
	p := NewResponseParser(logger)

	resp, err := p.Parse(`{"Pose":"1,2,3","Inlier":10,"Total":20,"DatasetInfo":""}`)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp.Passed, test.ShouldBeTrue)
	test.That(t, resp.Timestamp, test.ShouldEqual, int64(0))
	test.That(t, resp.Confidence, test.ShouldAlmostEqual, 0.01)
	test.That(t, logs.FilterMessageSnippet("malformed pose").Len(), test.ShouldEqual, 1)

	resp, err = p.Parse(`{"Pose":"1,a,0,0,0,1,0,0,0","Inlier":"many","Total":1,"DatasetInfo":""}`)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp.Confidence, test.ShouldEqual, 0.)
	test.That(t, logs.FilterMessageSnippet("malformed number").Len(), test.ShouldEqual, 1)
}

func TestResponseEventFromBody(t *testing.T) {
	p := NewResponseParser(testutils.NewLogger(t))
	ev := p.ResponseEventFromBody(StatusSuccess, "ok", `{"status":200,"result":"SUCCESS","pose":"7,q.jpg,1,2,3,1,0,0,0","inlier":100,"total":1,"datasetInfo":"x"}`)
	test.That(t, ev.Passed, test.ShouldBeTrue)
	test.That(t, ev.Timestamp, test.ShouldEqual, int64(7))
	test.That(t, ev.Message, test.ShouldEqual, "ok")
	test.That(t, ev.Confidence, test.ShouldAlmostEqual, 0.1)

	ev = p.ResponseEventFromBody(StatusInternalServerError, "boom", "<html>")
	test.That(t, ev.Status, test.ShouldEqual, StatusInternalServerError)
	test.That(t, ev.Passed, test.ShouldBeFalse)
	test.That(t, ev.Body, test.ShouldEqual, "<html>")

	ev = NewResponseEvent(StatusNetworkConnectionError)
	test.That(t, ev.Rotation, test.ShouldResemble, quat.Number{Real: 1})
}
