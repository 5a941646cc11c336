// Package native defines the boundary to the localization core. The core decides when to query the
// localization service, owns the tracker state machine and reports poses back through Callbacks.
package native

import (
	"image"

	"github.com/arceye/vlsdk/camera"
	"github.com/arceye/vlsdk/config"
	"github.com/arceye/vlsdk/vl"
)

// Frame is a camera frame in the layout the core expects. Matrices are row-major.
type Frame struct {
	// ViewMatrix is the transposed right-handed view matrix of the device camera.
	ViewMatrix [16]float32
	ProjMatrix [16]float32
	TexTrans   [9]float32
	// GeoCoord is latitude then longitude.
	GeoCoord   [2]float64
	RealHeight float32

	// Exactly one of YUV and Texture is set.
	YUV     *camera.YUVImage
	Texture image.Image

	// TimestampMillis is the capture time in unix milliseconds.
	TimestampMillis int64
}

// PoseUpdate is a localized pose reported by the core.
type PoseUpdate struct {
	// View is the right-handed localized view matrix.
	View             [16]float64
	Proj             [16]float32
	Tex              [9]float32
	RelativeAltitude float64
}

// DetectedObject is an object recognized in the scene.
type DetectedObject struct {
	Name string
	// ModelMatrix is the right-handed model matrix of the object in world coordinates.
	ModelMatrix [16]float32
}

// ResponseEventData is a localization result as interpreted by the core.
type ResponseEventData struct {
	Timestamp    int64
	Status       vl.ResponseStatus
	Confidence   float64
	Message      string
	ResponseBody string
}

// Callbacks are invoked by the core. Any of them may be nil. The core may call them from any
// goroutine.
type Callbacks struct {
	PoseUpdated      func(PoseUpdate)
	StateChanged     func(state int)
	LayerInfoChanged func(layerInfo string)
	ObjectDetected   func(DetectedObject)

	// Deprecated location events. LayerInfoChanged carries the same information.
	LocationChanged func(location string)
	BuildingChanged func(building string)
	FloorChanged    func(floor string)

	// VLRequested asks the host to send a localization request. The result must be reported with
	// SendSuccessResponse or SendFailureResponse using the same key.
	VLRequested func(key int, info vl.RequestInfo)
	VLResponded func(ResponseEventData)
}

// Core is the localization core.
type Core interface {
	Version() string

	Init(cfg config.TrackerConfig, urls []config.VLURL, areaGeoJSON string) error
	SetCallbacks(cb Callbacks)
	SetConfig(cfg config.TrackerConfig)
	Config() config.TrackerConfig
	Reset()
	Release()

	SetCameraIntrinsic(intrinsic camera.Intrinsic)
	UpdateFrame(frame Frame)
	ChangeState(state int)
	EnableResetByDevicePose(enabled bool)

	// DetectVLLocation reports, through found, the locations within radius meters of the
	// coordinate.
	DetectVLLocation(lat, lon, radius float64, found func(locations []string))
	// FindVLLocation returns the location covering the coordinate, or "" if there is none.
	FindVLLocation(lat, lon float64) string

	SendSuccessResponse(key int, body string)
	SendFailureResponse(key int, body string, status vl.ResponseStatus)
}
