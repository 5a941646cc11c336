package camera

import (
	"context"

	"github.com/pkg/errors"
)

// ErrNoFrameAvailable is returned by a FrameSource when it has nothing to deliver this tick. The
// caller should skip the tick.
var ErrNoFrameAvailable = errors.New("no frame available")

// Kind names a frame source variant.
type Kind string

// The known source variants.
const (
	KindLiveCamera      Kind = "live_camera"
	KindDatasetReplay   Kind = "dataset_replay"
	KindExternalTexture Kind = "external_texture"
)

// A FrameSource produces camera frames for the pose tracker. Implementations are polled once per
// frame tick from a single goroutine.
type FrameSource interface {
	// AcquireFrame returns the next frame. The caller must Release it.
	AcquireFrame(ctx context.Context) (*Frame, error)

	// Kind identifies the variant.
	Kind() Kind

	// PixelFormat reports whether frames arrive as planar YUV or packed RGB(A).
	PixelFormat() PixelFormat

	// SupportsPositionRequests reports whether localization requests may carry the device pose.
	SupportsPositionRequests() bool

	Close(ctx context.Context) error
}

// NewNoFrameError wraps ErrNoFrameAvailable with the reason.
func NewNoFrameError(reason string) error {
	return errors.Wrap(ErrNoFrameAvailable, reason)
}
