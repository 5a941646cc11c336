package cli

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/arceye/vlsdk/camera/replay"
	"github.com/arceye/vlsdk/config"
	"github.com/arceye/vlsdk/logging"
	"github.com/arceye/vlsdk/manager"
	"github.com/arceye/vlsdk/native/simcore"
	"github.com/arceye/vlsdk/spatialmath"
	"github.com/arceye/vlsdk/tracker"
	"github.com/arceye/vlsdk/vl"
)

const finishPollInterval = 100 * time.Millisecond

// replaySummary counts what happened during a replay.
type replaySummary struct {
	mu          sync.Mutex
	requests    int
	responses   map[vl.ResponseStatus]int
	passes      int
	confidences []float64
	origins     int
	state       tracker.State
}

// ReplayAction plays a dataset, or synthetic frames, through a full localization session.
func ReplayAction(c *cli.Context) (err error) {
	dir := c.String(replayFlagDataset)
	testMode := c.Bool(replayFlagTestMode)
	if dir == "" && !testMode {
		return errors.Errorf("one of --%s or --%s is required", replayFlagDataset, replayFlagTestMode)
	}

	logger := newLogger(c, logging.INFO)
	cfg, err := config.Read(c.String(generalFlagConfig), logger)
	if err != nil {
		return err
	}
	logger = newLogger(c, cfg.LogLevel)
	if saveDir := c.String(replayFlagSaveImages); saveDir != "" {
		cfg.SaveQueryImages = true
		cfg.QueryImageDir = saveDir
	}

	var tm *replay.TestMode
	if testMode {
		tm = &replay.TestMode{Latitude: c.Float64(replayFlagLatitude), Longitude: c.Float64(replayFlagLongitude)}
	}
	source := replay.NewSource(replay.Config{Dir: dir, Test: tm}, logger.Named("replay"))
	player := source.Player()
	speed := c.Float64(replayFlagSpeed)
	for i := 0; i < len(replay.PlaySpeeds) && player.PlaySpeed() < speed; i++ {
		player.TogglePlaySpeed()
	}
	if player.PlaySpeed() != speed {
		warningf(c.App.ErrWriter, "unsupported play speed %g, using %g", speed, player.PlaySpeed())
	}

	var opts []manager.Option
	if c.Bool(replayFlagMonitorNetwork) {
		opts = append(opts, manager.WithNetworkMonitor(0))
	}
	m, err := manager.New(*cfg, simcore.New(logger.Named("core")), source, nil, logger, opts...)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, m.Close(context.Background()))
	}()

	out := &lockedWriter{w: c.App.Writer}
	summary := &replaySummary{responses: map[vl.ResponseStatus]int{}}
	m.Tracker().OnStateChanged(func(s tracker.State) {
		summary.mu.Lock()
		summary.state = s
		summary.mu.Unlock()
		printf(out, "state %s", s)
	})
	m.Tracker().OnLayerInfoChanged(func(layer string) {
		printf(out, "layer %s", layer)
	})
	m.OnPoseRequested(func(vl.RequestEvent) {
		summary.mu.Lock()
		summary.requests++
		summary.mu.Unlock()
	})
	m.OnPoseResponded(func(ev vl.ResponseEvent) {
		summary.mu.Lock()
		summary.responses[ev.Status]++
		if ev.Passed {
			summary.passes++
			summary.confidences = append(summary.confidences, ev.Confidence)
		}
		summary.mu.Unlock()
	})
	m.OnOriginUpdated(func(p spatialmath.Pose) {
		summary.mu.Lock()
		summary.origins++
		summary.mu.Unlock()
		printf(out, "origin %.3f %.3f %.3f", p.Position.X, p.Position.Y, p.Position.Z)
	})

	if err := m.StartSession(); err != nil {
		return err
	}
	ctx := c.Context
	if d := c.Duration(replayFlagDuration); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	waitForPlayback(ctx, player)
	m.StopSession()

	summary.print(out)
	return nil
}

func waitForPlayback(ctx context.Context, player *replay.Player) {
	ticker := time.NewTicker(finishPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if player.Finished() {
				return
			}
		}
	}
}

func (s *replaySummary) print(out *lockedWriter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	printf(out, "requests %d, passed %d, origin updates %d, final state %s", s.requests, s.passes, s.origins, s.state)
	statuses := make([]vl.ResponseStatus, 0, len(s.responses))
	for status := range s.responses {
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })
	for _, status := range statuses {
		printf(out, "  %s: %d", status, s.responses[status])
	}
	if len(s.confidences) == 0 {
		return
	}
	mean, err := stats.Mean(s.confidences)
	if err != nil {
		return
	}
	median, err := stats.Median(s.confidences)
	if err != nil {
		return
	}
	printf(out, "confidence mean %.3f, median %.3f", mean, median)
}

// ValidateConfigAction reads and validates a config file.
func ValidateConfigAction(c *cli.Context) error {
	logger := newLogger(c, logging.WARNING)
	cfg, err := config.Read(c.String(generalFlagConfig), logger)
	if err != nil {
		return err
	}
	printf(c.App.Writer, "config is valid: %d active urls, gps guide %t, quality %s",
		len(cfg.ActiveURLs()), cfg.Tracker.UseGPSGuide, cfg.Tracker.VLQuality)
	printf(c.App.Writer, "%s", cfg.URLTable())
	return nil
}

// DatasetInfoAction prints the size of a recorded dataset.
func DatasetInfoAction(c *cli.Context) error {
	logger := newLogger(c, logging.WARNING)
	player := replay.NewPlayer(c.String(replayFlagDataset), nil, nil, logger)
	if err := player.Play(); err != nil {
		return err
	}
	seconds, err := player.TotalSeconds()
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%d frames, %.3f seconds", len(player.Dataset().Records), seconds)
	return nil
}
