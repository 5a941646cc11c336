package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/edaniels/golog"
	"github.com/urfave/cli/v2"

	"github.com/arceye/vlsdk/logging"
)

// printf prints a message with no prefix.
func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}

// warningf prints a message prefixed with "Warning: ".
func warningf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, "Warning: "+format+"\n", a...)
}

// lockedWriter serializes writes coming from the frame loop and the command itself.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}

// newLogger returns the command logger, at debug level when --debug is set.
func newLogger(c *cli.Context, level logging.Level) golog.Logger {
	if c.Bool(generalFlagDebug) {
		level = logging.DEBUG
	}
	return logging.NewLogger("vlsdk", level)
}
