package utils

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"
)

func TestStoppableWorkers(t *testing.T) {
	var count atomic.Int32
	started := make(chan struct{})
	sw := NewStoppableWorkers(context.Background(), func(ctx context.Context) {
		count.Add(1)
		close(started)
		<-ctx.Done()
	})
	<-started
	test.That(t, sw.AddWorkers(func(ctx context.Context) { count.Add(1) }), test.ShouldBeTrue)

	sw.Stop()
	test.That(t, count.Load(), test.ShouldEqual, 2)
	test.That(t, sw.Context().Err(), test.ShouldNotBeNil)
	test.That(t, sw.AddWorkers(func(ctx context.Context) { count.Add(1) }), test.ShouldBeFalse)
	sw.Stop()
	test.That(t, count.Load(), test.ShouldEqual, 2)
}

func TestStoppableWorkersRecoversPanics(t *testing.T) {
	sw := NewStoppableWorkers(context.Background(), func(ctx context.Context) {
		panic("worker failed")
	})
	sw.Stop()
}

func TestFrameLoop(t *testing.T) {
	clk := clock.NewMock()
	loop := NewFrameLoop(clk, 33*time.Millisecond)
	test.That(t, loop.Running(), test.ShouldBeFalse)
	test.That(t, loop.Interval(), test.ShouldEqual, 33*time.Millisecond)

	var ticks atomic.Int32
	tick := func(ctx context.Context) { ticks.Add(1) }
	test.That(t, loop.Start(tick), test.ShouldBeNil)
	test.That(t, loop.Running(), test.ShouldBeTrue)
	test.That(t, loop.Start(tick), test.ShouldBeError, ErrLoopRunning)

	clk.Add(33 * time.Millisecond)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, ticks.Load(), test.ShouldEqual, 1)
	})

	loop.Close()
	test.That(t, loop.Running(), test.ShouldBeFalse)
	clk.Add(time.Second)
	time.Sleep(10 * time.Millisecond)
	test.That(t, ticks.Load(), test.ShouldEqual, 1)

	// restartable after close
	test.That(t, loop.Start(tick), test.ShouldBeNil)
	loop.Close()
}

func TestFrameLoopStopFromTick(t *testing.T) {
	clk := clock.NewMock()
	loop := NewFrameLoop(clk, 10*time.Millisecond)
	var ticks atomic.Int32
	test.That(t, loop.Start(func(ctx context.Context) {
		ticks.Add(1)
		loop.Stop()
	}), test.ShouldBeNil)

	clk.Add(10 * time.Millisecond)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, loop.Running(), test.ShouldBeFalse)
	})
	clk.Add(100 * time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	test.That(t, ticks.Load(), test.ShouldEqual, 1)
}

func TestFrameLoopRejectsZeroInterval(t *testing.T) {
	loop := NewFrameLoop(nil, 0)
	err := loop.Start(func(ctx context.Context) {})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "must be positive")
}
