// Package cli contains the vlsdk command line interface.
package cli

import (
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/arceye/vlsdk/manager"
)

const (
	generalFlagConfig = "config"
	generalFlagDebug  = "debug"

	replayFlagDataset        = "dataset"
	replayFlagTestMode       = "test-mode"
	replayFlagLatitude       = "lat"
	replayFlagLongitude      = "lon"
	replayFlagSpeed          = "speed"
	replayFlagDuration       = "duration"
	replayFlagSaveImages     = "save-images"
	replayFlagMonitorNetwork = "monitor-network"
)

// newApp returns a fresh command tree.
func newApp() *cli.App {
	return &cli.App{
		Name:            "vlsdk",
		Usage:           "replay recorded sessions through the visual localization pipeline",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    generalFlagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "replay",
				Usage:     "replay a dataset against the configured localization service",
				UsageText: fmt.Sprintf("vlsdk replay --%s <FILE> (--%s <DIR> | --%s) [other options]", generalFlagConfig, replayFlagDataset, replayFlagTestMode),
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     generalFlagConfig,
						Aliases:  []string{"c"},
						Required: true,
						Usage:    "load configuration from `FILE`",
					},
					&cli.StringFlag{
						Name:  replayFlagDataset,
						Usage: "dataset `DIR` holding data.bin and one image per frame",
					},
					&cli.BoolFlag{
						Name:  replayFlagTestMode,
						Usage: "replay synthetic frames at a fixed coordinate instead of a dataset",
					},
					&cli.Float64Flag{
						Name:  replayFlagLatitude,
						Usage: "latitude of the synthetic frames",
					},
					&cli.Float64Flag{
						Name:  replayFlagLongitude,
						Usage: "longitude of the synthetic frames",
					},
					&cli.Float64Flag{
						Name:  replayFlagSpeed,
						Value: 1,
						Usage: "playback rate, one of 1, 2, 5 or 10",
					},
					&cli.DurationFlag{
						Name:  replayFlagDuration,
						Usage: "stop after this long even if the dataset is not finished",
					},
					&cli.StringFlag{
						Name:  replayFlagSaveImages,
						Usage: "save every query image into `DIR`",
					},
					&cli.BoolFlag{
						Name:  replayFlagMonitorNetwork,
						Usage: "probe the service hosts and fail requests fast while they are unreachable",
					},
				},
				Action: ReplayAction,
			},
			{
				Name:  "config",
				Usage: "work with session configs",
				Subcommands: []*cli.Command{
					{
						Name:      "validate",
						Usage:     "check a config file",
						UsageText: fmt.Sprintf("vlsdk config validate --%s <FILE>", generalFlagConfig),
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     generalFlagConfig,
								Aliases:  []string{"c"},
								Required: true,
								Usage:    "load configuration from `FILE`",
							},
						},
						Action: ValidateConfigAction,
					},
				},
			},
			{
				Name:  "dataset",
				Usage: "work with recorded datasets",
				Subcommands: []*cli.Command{
					{
						Name:      "info",
						Usage:     "print the frame count and length of a dataset",
						UsageText: fmt.Sprintf("vlsdk dataset info --%s <DIR>", replayFlagDataset),
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     replayFlagDataset,
								Required: true,
								Usage:    "dataset `DIR`",
							},
						},
						Action: DatasetInfoAction,
					},
				},
			},
			{
				Name:  "version",
				Usage: "print version info for this program",
				Action: func(c *cli.Context) error {
					printf(c.App.Writer, "vlsdk %s", manager.Version)
					return nil
				},
			},
		},
	}
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app := newApp()
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
