// Package vl builds localization requests and interprets localization responses for the two
// supported service dialects.
package vl

import (
	"fmt"
	"image"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// HTTP methods used by the native core.
const (
	MethodPOST = "POST"
	MethodGET  = "GET"
)

// maxPrincipalPointDeviation is the largest allowed relative distance between the query image
// size and twice the principal point.
const maxPrincipalPointDeviation = 0.05

var (
	// ErrInvalidCameraParam is returned for camera parameters that cannot be parsed.
	ErrInvalidCameraParam = errors.New("invalid camera parameters")
	// ErrIntrinsicMismatch is returned when the camera parameters do not describe the query image.
	ErrIntrinsicMismatch = errors.New("camera parameters do not match query image")
)

// Dialect is the request and response format of a localization service.
type Dialect int

const (
	// DialectARCeye is the hosted service.
	DialectARCeye Dialect = iota
	// DialectLabs is the research service, which requires a location and sends no credentials.
	DialectLabs
)

func (d Dialect) String() string {
	if d == DialectARCeye {
		return "arceye"
	}
	return "labs"
}

var arceyeHosts = []string{
	"https://vl-arc-eye.ncloud.com/api",
	"https://api-arc-eye.ncloud.com",
	"arc-eye.ncloud.com",
}

// DialectForURL picks the dialect spoken by the service at url.
func DialectForURL(url string) Dialect {
	for _, h := range arceyeHosts {
		if strings.Contains(url, h) {
			return DialectARCeye
		}
	}
	return DialectLabs
}

// RequestInfo is a localization request as issued by the native core.
type RequestInfo struct {
	Method    string
	Location  string
	URL       string
	SecretKey string
	FieldName string
	Filename  string

	// Exactly one of ImageBuffer, an encoded image, and Image is set.
	ImageBuffer []byte
	Image       image.Image

	CameraParam         string
	Odometry            string
	LastPose            string
	RequestWithPosition bool
	WithGlobal          bool
}

// RequestBody is a dialect-specific request ready to be encoded.
type RequestBody struct {
	Dialect        Dialect
	Method         string
	URL            string
	Authorization  string
	Filename       string
	ImageFieldName string
	Parameters     map[string]string
}

type dialectKeys struct {
	imageField  string
	cameraParam string
	lastPose    string
}

var keysByDialect = map[Dialect]dialectKeys{
	DialectARCeye: {imageField: "image", cameraParam: "cameraParameters", lastPose: "lastPose"},
	DialectLabs:   {imageField: "images", cameraParam: "camparams", lastPose: "last-pose"},
}

// NewRequestBody maps info onto the dialect of its URL. Position fields are only included when the
// core asked for them and positionSupported is true.
func NewRequestBody(info RequestInfo, positionSupported bool) *RequestBody {
	dialect := DialectForURL(info.URL)
	keys := keysByDialect[dialect]
	body := &RequestBody{
		Dialect:        dialect,
		Method:         info.Method,
		URL:            info.URL,
		Filename:       info.Filename,
		ImageFieldName: keys.imageField,
		Parameters:     map[string]string{},
	}
	if dialect == DialectARCeye {
		body.Authorization = info.SecretKey
	}
	if IsValidCameraParam(info.CameraParam) {
		body.Parameters[keys.cameraParam] = info.CameraParam
	}
	if dialect == DialectLabs && info.Location != "" {
		body.Parameters["location"] = info.Location
	}
	if info.RequestWithPosition && positionSupported {
		body.Parameters["odometry"] = info.Odometry
		body.Parameters[keys.lastPose] = info.LastPose
		if info.WithGlobal {
			body.Parameters["withGlobal"] = "true"
		}
	}
	return body
}

// CameraParam returns the camera parameters carried by the body, if any.
func (b *RequestBody) CameraParam() (string, bool) {
	for _, keys := range keysByDialect {
		if v, ok := b.Parameters[keys.cameraParam]; ok {
			return v, true
		}
	}
	return "", false
}

// Validate checks the camera parameters against the query image size. A body without camera
// parameters is always valid.
func (b *RequestBody) Validate(width, height int) error {
	param, ok := b.CameraParam()
	if !ok {
		return nil
	}
	values, err := parseCameraParam(param)
	if err != nil {
		return err
	}
	cx, cy := values[2], values[3]
	w, h := float64(width), float64(height)
	if w <= 0 || h <= 0 {
		return errors.Wrapf(ErrIntrinsicMismatch, "empty query image %dx%d", width, height)
	}
	if w < h && cx > cy {
		return errors.Wrapf(ErrIntrinsicMismatch, "portrait image %dx%d with landscape principal point (%g, %g)", width, height, cx, cy)
	}
	if math.Abs(w-2*cx)/w > maxPrincipalPointDeviation {
		return errors.Wrapf(ErrIntrinsicMismatch, "image width %d too far from 2*cx (%g)", width, cx)
	}
	if math.Abs(h-2*cy)/h > maxPrincipalPointDeviation {
		return errors.Wrapf(ErrIntrinsicMismatch, "image height %d too far from 2*cy (%g)", height, cy)
	}
	return nil
}

// String lists the request for logging without the image or credentials.
func (b *RequestBody) String() string {
	keys := make([]string, 0, len(b.Parameters))
	for k := range b.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s filename=%s", b.Method, b.URL, b.Filename)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%s", k, b.Parameters[k])
	}
	return sb.String()
}

// IsValidCameraParam reports whether s holds four comma separated, non-zero numbers.
func IsValidCameraParam(s string) bool {
	values, err := parseCameraParam(s)
	if err != nil {
		return false
	}
	for _, v := range values {
		if v == 0 {
			return false
		}
	}
	return true
}

func parseCameraParam(s string) ([4]float64, error) {
	var out [4]float64
	if s == "" {
		return out, errors.Wrap(ErrInvalidCameraParam, "empty")
	}
	fields := strings.Split(s, ",")
	if len(fields) < len(out) {
		return out, errors.Wrapf(ErrInvalidCameraParam, "expected 4 values in %q", s)
	}
	for i := range out {
		v, err := strconv.ParseFloat(strings.TrimSpace(fields[i]), 64)
		if err != nil {
			return out, errors.Wrapf(ErrInvalidCameraParam, "value %q", fields[i])
		}
		out[i] = v
	}
	return out, nil
}
