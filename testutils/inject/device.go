package inject

import (
	"context"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/arceye/vlsdk/camera"
	"github.com/arceye/vlsdk/camera/livecamera"
	"github.com/arceye/vlsdk/spatialmath"
)

// Device is an injected AR camera device.
type Device struct {
	livecamera.Device
	AcquireLatestImageFunc func(ctx context.Context) (*camera.YUVImage, func(), error)
	IntrinsicsFunc         func(ctx context.Context) (camera.DeviceIntrinsic, bool)
	LocalPoseFunc          func(ctx context.Context) spatialmath.Pose
	ProjectionMatrixFunc   func() (mgl64.Mat4, bool)
	DisplayMatrixFunc      func() (mgl64.Mat4, bool)
	PlatformFunc           func() camera.Platform
}

// AcquireLatestImage calls the injected AcquireLatestImage or the real version.
func (d *Device) AcquireLatestImage(ctx context.Context) (*camera.YUVImage, func(), error) {
	if d.AcquireLatestImageFunc == nil {
		return d.Device.AcquireLatestImage(ctx)
	}
	return d.AcquireLatestImageFunc(ctx)
}

// Intrinsics calls the injected Intrinsics or the real version.
func (d *Device) Intrinsics(ctx context.Context) (camera.DeviceIntrinsic, bool) {
	if d.IntrinsicsFunc == nil {
		return d.Device.Intrinsics(ctx)
	}
	return d.IntrinsicsFunc(ctx)
}

// LocalPose calls the injected LocalPose or the real version.
func (d *Device) LocalPose(ctx context.Context) spatialmath.Pose {
	if d.LocalPoseFunc == nil {
		return d.Device.LocalPose(ctx)
	}
	return d.LocalPoseFunc(ctx)
}

// ProjectionMatrix calls the injected ProjectionMatrix or the real version.
func (d *Device) ProjectionMatrix() (mgl64.Mat4, bool) {
	if d.ProjectionMatrixFunc == nil {
		return d.Device.ProjectionMatrix()
	}
	return d.ProjectionMatrixFunc()
}

// DisplayMatrix calls the injected DisplayMatrix or the real version.
func (d *Device) DisplayMatrix() (mgl64.Mat4, bool) {
	if d.DisplayMatrixFunc == nil {
		return d.Device.DisplayMatrix()
	}
	return d.DisplayMatrixFunc()
}

// Platform calls the injected Platform or the real version.
func (d *Device) Platform() camera.Platform {
	if d.PlatformFunc == nil {
		return d.Device.Platform()
	}
	return d.PlatformFunc()
}
