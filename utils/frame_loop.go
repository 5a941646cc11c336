package utils

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

// ErrLoopRunning is returned by Start when the loop already has a tick function.
var ErrLoopRunning = errors.New("frame loop is already running")

// A FrameLoop calls a tick function at a fixed interval on a single goroutine, so ticks never
// overlap and run in order.
type FrameLoop struct {
	clk      clock.Clock
	interval time.Duration

	mu      sync.Mutex
	workers StoppableWorkers
	cancel  context.CancelFunc
}

// NewFrameLoop returns a stopped loop. A nil clock uses the wall clock.
func NewFrameLoop(clk clock.Clock, interval time.Duration) *FrameLoop {
	if clk == nil {
		clk = clock.New()
	}
	return &FrameLoop{clk: clk, interval: interval}
}

// Interval is the time between ticks.
func (l *FrameLoop) Interval() time.Duration {
	return l.interval
}

// Start begins calling tick every interval until Stop is called.
func (l *FrameLoop) Start(tick func(ctx context.Context)) error {
	if l.interval <= 0 {
		return errors.Errorf("frame interval must be positive, got %s", l.interval)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.workers != nil {
		return ErrLoopRunning
	}
	// The ticker exists before Start returns so a mock clock advanced right after Start still fires.
	ticker := l.clk.Ticker(l.interval)
	loopCtx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.workers = NewStoppableWorkers(loopCtx, func(ctx context.Context) {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if ctx.Err() != nil {
				return
			}
			tick(ctx)
		}
	})
	return nil
}

// Running reports whether a tick function is registered.
func (l *FrameLoop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.workers != nil
}

// Stop prevents any further tick from starting and returns without waiting for a tick in
// progress, so it is safe to call from inside tick.
func (l *FrameLoop) Stop() {
	l.mu.Lock()
	workers, cancel := l.workers, l.cancel
	l.workers, l.cancel = nil, nil
	l.mu.Unlock()
	if workers == nil {
		return
	}
	cancel()
	go workers.Stop()
}

// Close stops the loop and waits for a tick in progress to return. It must not be called from
// inside tick.
func (l *FrameLoop) Close() {
	l.mu.Lock()
	workers, cancel := l.workers, l.cancel
	l.workers, l.cancel = nil, nil
	l.mu.Unlock()
	if workers == nil {
		return
	}
	cancel()
	workers.Stop()
}
