package manager

import (
	"net/http"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/arceye/vlsdk/origin"
)

// options configures a Manager.
type options struct {
	clk           clock.Clock
	httpClient    *http.Client
	gpsInterval   time.Duration
	monitor       bool
	probeInterval time.Duration
	transform     *origin.Transform
}

// Option configures how a Manager is set up.
type Option interface {
	apply(*options)
}

// funcOption wraps a function that modifies options into an
// implementation of the Option interface.
type funcOption struct {
	f func(*options)
}

func (fdo *funcOption) apply(do *options) {
	fdo.f(do)
}

func newFuncOption(f func(*options)) *funcOption {
	return &funcOption{
		f: f,
	}
}

// WithClock returns an Option which replaces the wall clock driving the frame loop and the
// request queue grace period.
func WithClock(clk clock.Clock) Option {
	return newFuncOption(func(o *options) {
		o.clk = clk
	})
}

// WithHTTPClient returns an Option which sets the client used for localization requests.
func WithHTTPClient(client *http.Client) Option {
	return newFuncOption(func(o *options) {
		o.httpClient = client
	})
}

// WithGPSSearchInterval returns an Option which changes how often the GPS-assisted search runs.
func WithGPSSearchInterval(d time.Duration) Option {
	return newFuncOption(func(o *options) {
		o.gpsInterval = d
	})
}

// WithNetworkMonitor returns an Option which probes the service hosts every interval and fails
// requests fast while none answers. A zero interval uses pipeline.DefaultProbeInterval.
func WithNetworkMonitor(interval time.Duration) Option {
	return newFuncOption(func(o *options) {
		o.monitor = true
		o.probeInterval = interval
	})
}

// WithOriginTransform returns an Option which moves t instead of a transform owned by the
// manager. Host applications pass the transform their camera rig hangs off.
func WithOriginTransform(t *origin.Transform) Option {
	return newFuncOption(func(o *options) {
		o.transform = t
	})
}
