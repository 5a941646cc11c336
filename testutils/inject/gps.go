package inject

import (
	"context"

	geo "github.com/kellydunn/golang-geo"

	"github.com/arceye/vlsdk/gps"
)

// GPS is an injected GPS.
type GPS struct {
	gps.Provider
	LocationFunc func(ctx context.Context) (*geo.Point, error)
}

// Location calls the injected Location or the real version.
func (i *GPS) Location(ctx context.Context) (*geo.Point, error) {
	if i.LocationFunc == nil {
		return i.Provider.Location(ctx)
	}
	return i.LocationFunc(ctx)
}
