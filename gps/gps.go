// Package gps defines where the tracker gets the device's latitude and longitude from.
package gps

import (
	"context"
	"sync"

	"github.com/edaniels/golog"
	geo "github.com/kellydunn/golang-geo"
	"github.com/pkg/errors"
)

// ErrNoLocation is returned when no coordinate is available yet.
var ErrNoLocation = errors.New("no gps location available")

// A Provider reports the current latitude and longitude.
type Provider interface {
	Location(ctx context.Context) (*geo.Point, error)
}

// CoordProvider serves a device Provider, or a fixed coordinate when faked. Without a device the
// fixed coordinate is always used.
type CoordProvider struct {
	device Provider
	logger golog.Logger

	mu       sync.RWMutex
	useFake  bool
	fakeLat  float64
	fakeLong float64
}

// NewCoordProvider returns a provider over device, which may be nil.
func NewCoordProvider(device Provider, logger golog.Logger) *CoordProvider {
	return &CoordProvider{device: device, logger: logger}
}

// UseFake switches between the device and the fixed coordinate.
func (p *CoordProvider) UseFake(fake bool) {
	p.mu.Lock()
	changed := p.useFake != fake
	p.useFake = fake
	p.mu.Unlock()
	if fake && changed && p.device != nil {
		p.logger.Warn("using a fake gps coordinate instead of the device location")
	}
}

// SetLocation sets the fixed coordinate.
func (p *CoordProvider) SetLocation(lat, lon float64) {
	p.mu.Lock()
	p.fakeLat, p.fakeLong = lat, lon
	p.mu.Unlock()
}

// Location returns the current coordinate.
func (p *CoordProvider) Location(ctx context.Context) (*geo.Point, error) {
	p.mu.RLock()
	useFake := p.useFake || p.device == nil
	lat, lon := p.fakeLat, p.fakeLong
	p.mu.RUnlock()
	if useFake {
		return geo.NewPoint(lat, lon), nil
	}
	loc, err := p.device.Location(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "reading device location")
	}
	if loc == nil {
		return nil, ErrNoLocation
	}
	return loc, nil
}

// LatLon returns the current coordinate, or zeros when it cannot be read.
func LatLon(ctx context.Context, p Provider, logger golog.Logger) (float64, float64) {
	if p == nil {
		return 0, 0
	}
	loc, err := p.Location(ctx)
	if err != nil {
		logger.Debugw("gps location unavailable", "error", err)
		return 0, 0
	}
	return loc.Lat(), loc.Lng()
}
