package vl

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"github.com/arceye/vlsdk/spatialmath"
)

const (
	// DefaultEyeHeight replaces the height reported by the service. Poses are assumed to be at eye
	// level above the floor the service localized against.
	DefaultEyeHeight = 1.5

	// MaxInliers is the inlier count at which confidence saturates at 1.
	MaxInliers = 1000

	defaultPoseString = "0,false.jpg,0,0,0,1,0,0,0"
	poseFieldCount    = 9
)

// Schema is the response body layout.
type Schema int

const (
	// SchemaARCeye bodies carry a "status" key and report success through "result".
	SchemaARCeye Schema = iota
	// SchemaDev bodies report success through a "Pose" that is not "failed".
	SchemaDev
)

type schemaKeys struct {
	pose, inlier, total, datasetInfo, confidence string
}

var keysBySchema = map[Schema]schemaKeys{
	SchemaARCeye: {pose: "pose", inlier: "inlier", total: "total", datasetInfo: "datasetInfo", confidence: "confidence"},
	SchemaDev:    {pose: "Pose", inlier: "Inlier", total: "Total", datasetInfo: "DatasetInfo", confidence: "Confidence"},
}

// Response is a parsed localization response. Position and Rotation are in the engine frame and
// only meaningful when Passed is true.
type Response struct {
	Schema      Schema
	Passed      bool
	Timestamp   int64
	Position    r3.Vector
	Rotation    quat.Number
	Confidence  float64
	Inliers     float64
	Total       float64
	DatasetInfo string
	Body        string
}

// ResponseParser decodes response bodies of either schema.
type ResponseParser struct {
	logger golog.Logger
}

// NewResponseParser returns a parser that logs missing fields to logger.
func NewResponseParser(logger golog.Logger) *ResponseParser {
	return &ResponseParser{logger: logger}
}

// Parse decodes body. Only malformed JSON is an error; missing or malformed fields fall back to
// defaults with a warning.
func (p *ResponseParser) Parse(body string) (*Response, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &root); err != nil {
		return nil, errors.Wrap(err, "response body is not a JSON object")
	}
	resp := &Response{Body: body, Rotation: quat.Number{Real: 1}}
	if _, ok := root["status"]; ok {
		resp.Schema = SchemaARCeye
	} else {
		resp.Schema = SchemaDev
	}
	keys := keysBySchema[resp.Schema]

	switch resp.Schema {
	case SchemaARCeye:
		if _, ok := root["result"]; ok {
			resp.Passed = p.getString(root, body, "result", "FAILURE") == "SUCCESS"
		}
	case SchemaDev:
		if _, ok := root[keys.pose]; ok {
			resp.Passed = p.getString(root, body, keys.pose, "failed") != "failed"
		}
	}
	if !resp.Passed {
		return resp, nil
	}

	pose := p.getString(root, body, keys.pose, defaultPoseString)
	ts, pos, rot, err := parsePose(pose)
	if err != nil {
		p.logger.Warnw("malformed pose in response, using default", "pose", pose, "error", err)
		ts, pos, rot, _ = parsePose(defaultPoseString)
	}
	resp.Timestamp = ts

	gl := spatialmath.ConvertServiceToGL(spatialmath.TRS(pos, rot))
	engine := spatialmath.ConvertHandedness(gl)
	resp.Position = spatialmath.Position(engine)
	resp.Rotation = spatialmath.Rotation(engine)

	resp.Inliers = p.getFloat(root, body, keys.inlier, 0)
	resp.Total = p.getFloat(root, body, keys.total, 0)
	resp.Confidence = Confidence(resp.Inliers)
	resp.DatasetInfo = p.getString(root, body, keys.datasetInfo, "")
	return resp, nil
}

// Confidence maps an inlier count to [0, 1].
func Confidence(inliers float64) float64 {
	return math.Max(0, math.Min(1, inliers/MaxInliers))
}

// parsePose decodes "timestamp,image,tx,ty,tz,qw,qx,qy,qz". The reported height is replaced by
// DefaultEyeHeight.
func parsePose(s string) (int64, r3.Vector, quat.Number, error) {
	parts := strings.Split(s, ",")
	if len(parts) < poseFieldCount {
		return 0, r3.Vector{}, quat.Number{}, errors.Errorf("expected %d pose fields, got %d", poseFieldCount, len(parts))
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return 0, r3.Vector{}, quat.Number{}, errors.Wrap(err, "timestamp")
	}
	var v [7]float64
	for i := range v {
		v[i], err = strconv.ParseFloat(strings.TrimSpace(parts[i+2]), 64)
		if err != nil {
			return 0, r3.Vector{}, quat.Number{}, errors.Wrapf(err, "pose field %d", i+2)
		}
	}
	pos := r3.Vector{X: v[0], Y: v[1], Z: DefaultEyeHeight}
	rot := quat.Number{Real: v[3], Imag: v[4], Jmag: v[5], Kmag: v[6]}
	return ts, pos, rot, nil
}

func (p *ResponseParser) getString(root map[string]json.RawMessage, body, key, def string) string {
	raw, ok := root[key]
	if !ok {
		p.logger.Warnw("missing field in response body", "field", key, "body", body)
		return def
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

func (p *ResponseParser) getFloat(root map[string]json.RawMessage, body, key string, def float64) float64 {
	raw, ok := root[key]
	if !ok {
		p.logger.Warnw("missing field in response body", "field", key, "body", body)
		return def
	}
	s := p.getString(root, body, key, "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.logger.Warnw("malformed number in response body", "field", key, "value", string(raw))
		return def
	}
	return v
}
