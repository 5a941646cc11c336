package pipeline

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

var positionFlagRemover = strings.NewReplacer(",true", "", ",false", "")

// QueryImageName turns a request filename into the name its query image is saved under.
func QueryImageName(filename string) string {
	name := filepath.Base(positionFlagRemover.Replace(filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = uuid.NewString()
	}
	if !strings.HasSuffix(strings.ToLower(name), ".jpg") {
		name += ".jpg"
	}
	return name
}

// saveQueryImage writes img in the background. Failures are only logged.
func (p *Pipeline) saveQueryImage(filename string, img image.Image) {
	path := filepath.Join(p.saveDir, QueryImageName(filename))
	p.workers.AddWorkers(func(ctx context.Context) {
		if err := os.MkdirAll(p.saveDir, 0o750); err != nil {
			p.logger.Warnw("failed to create query image directory", "dir", p.saveDir, "error", err)
			return
		}
		if err := imaging.Save(img, path, imaging.JPEGQuality(JPEGQuality)); err != nil {
			p.logger.Warnw("failed to save query image", "path", path, "error", err)
			return
		}
		p.logger.Debugw("saved query image", "path", path)
	})
}
