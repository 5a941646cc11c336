// Package origin moves the world origin so that the device camera, tracked relative to its own
// session, ends up at the pose the localization service reported.
package origin

import (
	"sync"

	"github.com/edaniels/golog"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/arceye/vlsdk/spatialmath"
)

// A Transform is the placement of the session origin in the world.
type Transform struct {
	mu     sync.RWMutex
	matrix mgl64.Mat4
}

// NewTransform returns an origin at the world origin.
func NewTransform() *Transform {
	return &Transform{matrix: mgl64.Ident4()}
}

// Matrix is the model matrix of the origin.
func (t *Transform) Matrix() mgl64.Mat4 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.matrix
}

// Pose is the position and rotation of the origin.
func (t *Transform) Pose() spatialmath.Pose {
	return spatialmath.PoseFromMatrix(t.Matrix())
}

// Apply maps a pose in session coordinates to world coordinates.
func (t *Transform) Apply(local mgl64.Mat4) mgl64.Mat4 {
	return t.Matrix().Mul4(local)
}

func (t *Transform) set(m mgl64.Mat4) {
	// Only position and rotation are kept, as for a scene transform.
	p := spatialmath.PoseFromMatrix(m)
	t.mu.Lock()
	t.matrix = p.Matrix()
	t.mu.Unlock()
}

// Updater folds localized poses into a Transform.
type Updater struct {
	logger    golog.Logger
	transform *Transform

	mu        sync.Mutex
	listeners []func(spatialmath.Pose)
}

// NewUpdater returns an updater moving transform. A nil transform starts at the world origin.
func NewUpdater(transform *Transform, logger golog.Logger) *Updater {
	if transform == nil {
		transform = NewTransform()
	}
	return &Updater{logger: logger, transform: transform}
}

// Transform is the origin being moved.
func (u *Updater) Transform() *Transform {
	return u.transform
}

// OnUpdated registers a listener called with the new origin pose after each applied update.
func (u *Updater) OnUpdated(f func(spatialmath.Pose)) {
	u.mu.Lock()
	u.listeners = append(u.listeners, f)
	u.mu.Unlock()
}

// Compute returns the origin that places a camera at deviceModel in session coordinates at the
// localized pose, given the localized view matrix, both in the engine frame.
func Compute(localizedView, deviceModel mgl64.Mat4) mgl64.Mat4 {
	localizedPose := localizedView.Inv()
	return localizedPose.Mul4(deviceModel.Inv())
}

// Update moves the origin. The origin is left unchanged when the result is not a valid
// translation, rotation and scale, and false is returned.
func (u *Updater) Update(localizedView, deviceModel mgl64.Mat4) (mgl64.Mat4, bool) {
	m := Compute(localizedView, deviceModel)
	if !spatialmath.ValidTRS(m) {
		u.logger.Debugw("skipping origin update with invalid transform", "matrix", spatialmath.FormatMat4(m))
		return u.transform.Matrix(), false
	}
	u.transform.set(m)

	pose := u.transform.Pose()
	u.mu.Lock()
	listeners := append([]func(spatialmath.Pose){}, u.listeners...)
	u.mu.Unlock()
	for _, f := range listeners {
		f(pose)
	}
	return u.transform.Matrix(), true
}
