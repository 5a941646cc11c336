package tracker

import (
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// PoseUpdate is a localized pose in the engine frame.
type PoseUpdate struct {
	// View is the localized view matrix and Pose its inverse.
	View mgl64.Mat4
	Pose mgl64.Mat4
	// DeviceModel is the session pose of the device camera in the last frame handed to the core.
	DeviceModel mgl64.Mat4
	Projection  mgl64.Mat4
	// Texture is the 3x3 display transform embedded in a 4x4 matrix.
	Texture     mgl64.Mat4
	RelAltitude float64
}

// DetectedObject is an object the core recognized in the scene, in the engine frame.
type DetectedObject struct {
	Name     string
	Position r3.Vector
	Rotation quat.Number
	Scale    r3.Vector
}

// listeners holds every registered event listener. Listeners run on the tick goroutine.
type listeners struct {
	mu                 sync.Mutex
	stateChanged       []func(State)
	layerInfoChanged   []func(string)
	poseUpdated        []func(PoseUpdate)
	relAltitude        []func(float64)
	geoCoordUpdated    []func(lat, lon float64)
	objectDetected     []func(DetectedObject)
	vlLocationDetected []func([]string)
}

func snapshot[T any](mu *sync.Mutex, fs *[]T) []T {
	mu.Lock()
	defer mu.Unlock()
	return append([]T(nil), *fs...)
}

func register[T any](mu *sync.Mutex, fs *[]T, f T) {
	mu.Lock()
	*fs = append(*fs, f)
	mu.Unlock()
}

// OnStateChanged registers f for state transitions.
func (t *Tracker) OnStateChanged(f func(State)) {
	register(&t.ls.mu, &t.ls.stateChanged, f)
}

// OnLayerInfoChanged registers f for layer changes. The deprecated location, building and floor
// events are delivered here too.
func (t *Tracker) OnLayerInfoChanged(f func(string)) {
	register(&t.ls.mu, &t.ls.layerInfoChanged, f)
}

// OnPoseUpdated registers f for localized poses.
func (t *Tracker) OnPoseUpdated(f func(PoseUpdate)) {
	register(&t.ls.mu, &t.ls.poseUpdated, f)
}

// OnRelAltitudeUpdated registers f for relative altitude changes.
func (t *Tracker) OnRelAltitudeUpdated(f func(float64)) {
	register(&t.ls.mu, &t.ls.relAltitude, f)
}

// OnGeoCoordUpdated registers f for the coordinates sampled by the GPS-assisted search.
func (t *Tracker) OnGeoCoordUpdated(f func(lat, lon float64)) {
	register(&t.ls.mu, &t.ls.geoCoordUpdated, f)
}

// OnObjectDetected registers f for detected objects.
func (t *Tracker) OnObjectDetected(f func(DetectedObject)) {
	register(&t.ls.mu, &t.ls.objectDetected, f)
}

// OnVLLocationDetected registers f for location candidates found near a coordinate.
func (t *Tracker) OnVLLocationDetected(f func([]string)) {
	register(&t.ls.mu, &t.ls.vlLocationDetected, f)
}

func (t *Tracker) emitState(s State) {
	for _, f := range snapshot(&t.ls.mu, &t.ls.stateChanged) {
		f(s)
	}
}

func (t *Tracker) emitLayerInfo(info string) {
	for _, f := range snapshot(&t.ls.mu, &t.ls.layerInfoChanged) {
		f(info)
	}
}

func (t *Tracker) emitPose(u PoseUpdate) {
	for _, f := range snapshot(&t.ls.mu, &t.ls.poseUpdated) {
		f(u)
	}
}

func (t *Tracker) emitRelAltitude(v float64) {
	for _, f := range snapshot(&t.ls.mu, &t.ls.relAltitude) {
		f(v)
	}
}

func (t *Tracker) emitGeoCoord(lat, lon float64) {
	for _, f := range snapshot(&t.ls.mu, &t.ls.geoCoordUpdated) {
		f(lat, lon)
	}
}

func (t *Tracker) emitObject(o DetectedObject) {
	for _, f := range snapshot(&t.ls.mu, &t.ls.objectDetected) {
		f(o)
	}
}

func (t *Tracker) emitVLLocations(locations []string) {
	for _, f := range snapshot(&t.ls.mu, &t.ls.vlLocationDetected) {
		f(locations)
	}
}
