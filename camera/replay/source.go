package replay

import (
	"context"
	"image"
	"image/color"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/disintegration/imaging"
	"github.com/edaniels/golog"
	geo "github.com/kellydunn/golang-geo"

	"github.com/arceye/vlsdk/camera"
)

// Source delivers recorded frames from a Player together with their stored images.
type Source struct {
	player *Player
	logger golog.Logger
	blank  image.Image
}

// Config describes a dataset to replay.
type Config struct {
	Dir   string
	Test  *TestMode
	Clock clock.Clock
}

// NewSource returns a replay Source. Playback starts on the first call to Play.
func NewSource(cfg Config, logger golog.Logger) *Source {
	s := &Source{
		player: NewPlayer(cfg.Dir, cfg.Test, cfg.Clock, logger),
		logger: logger,
	}
	if cfg.Test != nil {
		size := camera.QuerySize(360, 640)
		s.blank = imaging.New(size.X, size.Y, color.Gray{Y: 128})
	}
	return s
}

// Player exposes playback controls.
func (s *Source) Player() *Player {
	return s.player
}

// Play starts playback, loading the dataset on first use.
func (s *Source) Play() error {
	return s.player.Play()
}

// AcquireFrame implements camera.FrameSource.
func (s *Source) AcquireFrame(ctx context.Context) (*camera.Frame, error) {
	rec, ok := s.player.Next()
	if !ok {
		return nil, camera.NewNoFrameError("no record due")
	}
	img, err := s.loadImage(rec)
	if err != nil {
		return nil, err
	}

	frame := camera.NewFrame(nil)
	frame.Image = img
	frame.Timestamp = time.UnixMilli(rec.Timestamp)
	frame.LocalPose = rec.Pose()
	frame.Intrinsic = rec.Intrinsic
	frame.ProjectionMatrix = rec.Projection
	frame.DisplayMatrix = rec.Display
	frame.Location = geo.NewPoint(rec.Latitude, rec.Longitude)
	frame.RelAltitude = rec.RelAltitude
	return frame, nil
}

func (s *Source) loadImage(rec Record) (image.Image, error) {
	if s.blank != nil {
		return s.blank, nil
	}
	path := s.player.Dataset().ImagePath(rec)
	img, err := imaging.Open(path)
	if err != nil {
		s.logger.Errorw("failed to read frame image", "path", path, "error", err)
		return nil, camera.NewNoFrameError(err.Error())
	}
	return img, nil
}

// Kind implements camera.FrameSource.
func (s *Source) Kind() camera.Kind {
	return camera.KindDatasetReplay
}

// PixelFormat implements camera.FrameSource.
func (s *Source) PixelFormat() camera.PixelFormat {
	return camera.FormatRGB
}

// SupportsPositionRequests implements camera.FrameSource. Recorded poses come from the device
// tracker that captured them, so requests may carry them.
func (s *Source) SupportsPositionRequests() bool {
	return true
}

// Close implements camera.FrameSource.
func (s *Source) Close(ctx context.Context) error {
	s.player.Pause()
	return nil
}
