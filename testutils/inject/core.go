package inject

import (
	"github.com/arceye/vlsdk/camera"
	"github.com/arceye/vlsdk/config"
	"github.com/arceye/vlsdk/native"
	"github.com/arceye/vlsdk/vl"
)

// Core is an injected localization core.
type Core struct {
	native.Core
	VersionFunc                 func() string
	InitFunc                    func(cfg config.TrackerConfig, urls []config.VLURL, areaGeoJSON string) error
	SetCallbacksFunc            func(cb native.Callbacks)
	SetConfigFunc               func(cfg config.TrackerConfig)
	ConfigFunc                  func() config.TrackerConfig
	ResetFunc                   func()
	ReleaseFunc                 func()
	SetCameraIntrinsicFunc      func(intrinsic camera.Intrinsic)
	UpdateFrameFunc             func(frame native.Frame)
	ChangeStateFunc             func(state int)
	EnableResetByDevicePoseFunc func(enabled bool)
	DetectVLLocationFunc        func(lat, lon, radius float64, found func(locations []string))
	FindVLLocationFunc          func(lat, lon float64) string
	SendSuccessResponseFunc     func(key int, body string)
	SendFailureResponseFunc     func(key int, body string, status vl.ResponseStatus)
}

// Version calls the injected Version or the real version.
func (c *Core) Version() string {
	if c.VersionFunc == nil {
		return c.Core.Version()
	}
	return c.VersionFunc()
}

// Init calls the injected Init or the real version.
func (c *Core) Init(cfg config.TrackerConfig, urls []config.VLURL, areaGeoJSON string) error {
	if c.InitFunc == nil {
		return c.Core.Init(cfg, urls, areaGeoJSON)
	}
	return c.InitFunc(cfg, urls, areaGeoJSON)
}

// SetCallbacks calls the injected SetCallbacks or the real version.
func (c *Core) SetCallbacks(cb native.Callbacks) {
	if c.SetCallbacksFunc == nil {
		c.Core.SetCallbacks(cb)
		return
	}
	c.SetCallbacksFunc(cb)
}

// SetConfig calls the injected SetConfig or the real version.
func (c *Core) SetConfig(cfg config.TrackerConfig) {
	if c.SetConfigFunc == nil {
		c.Core.SetConfig(cfg)
		return
	}
	c.SetConfigFunc(cfg)
}

// Config calls the injected Config or the real version.
func (c *Core) Config() config.TrackerConfig {
	if c.ConfigFunc == nil {
		return c.Core.Config()
	}
	return c.ConfigFunc()
}

// Reset calls the injected Reset or the real version.
func (c *Core) Reset() {
	if c.ResetFunc == nil {
		c.Core.Reset()
		return
	}
	c.ResetFunc()
}

// Release calls the injected Release or the real version.
func (c *Core) Release() {
	if c.ReleaseFunc == nil {
		c.Core.Release()
		return
	}
	c.ReleaseFunc()
}

// SetCameraIntrinsic calls the injected SetCameraIntrinsic or the real version.
func (c *Core) SetCameraIntrinsic(intrinsic camera.Intrinsic) {
	if c.SetCameraIntrinsicFunc == nil {
		c.Core.SetCameraIntrinsic(intrinsic)
		return
	}
	c.SetCameraIntrinsicFunc(intrinsic)
}

// UpdateFrame calls the injected UpdateFrame or the real version.
func (c *Core) UpdateFrame(frame native.Frame) {
	if c.UpdateFrameFunc == nil {
		c.Core.UpdateFrame(frame)
		return
	}
	c.UpdateFrameFunc(frame)
}

// ChangeState calls the injected ChangeState or the real version.
func (c *Core) ChangeState(state int) {
	if c.ChangeStateFunc == nil {
		c.Core.ChangeState(state)
		return
	}
	c.ChangeStateFunc(state)
}

// EnableResetByDevicePose calls the injected EnableResetByDevicePose or the real version.
func (c *Core) EnableResetByDevicePose(enabled bool) {
	if c.EnableResetByDevicePoseFunc == nil {
		c.Core.EnableResetByDevicePose(enabled)
		return
	}
	c.EnableResetByDevicePoseFunc(enabled)
}

// DetectVLLocation calls the injected DetectVLLocation or the real version.
func (c *Core) DetectVLLocation(lat, lon, radius float64, found func(locations []string)) {
	if c.DetectVLLocationFunc == nil {
		c.Core.DetectVLLocation(lat, lon, radius, found)
		return
	}
	c.DetectVLLocationFunc(lat, lon, radius, found)
}

// FindVLLocation calls the injected FindVLLocation or the real version.
func (c *Core) FindVLLocation(lat, lon float64) string {
	if c.FindVLLocationFunc == nil {
		return c.Core.FindVLLocation(lat, lon)
	}
	return c.FindVLLocationFunc(lat, lon)
}

// SendSuccessResponse calls the injected SendSuccessResponse or the real version.
func (c *Core) SendSuccessResponse(key int, body string) {
	if c.SendSuccessResponseFunc == nil {
		c.Core.SendSuccessResponse(key, body)
		return
	}
	c.SendSuccessResponseFunc(key, body)
}

// SendFailureResponse calls the injected SendFailureResponse or the real version.
func (c *Core) SendFailureResponse(key int, body string, status vl.ResponseStatus) {
	if c.SendFailureResponseFunc == nil {
		c.Core.SendFailureResponse(key, body, status)
		return
	}
	c.SendFailureResponseFunc(key, body, status)
}
