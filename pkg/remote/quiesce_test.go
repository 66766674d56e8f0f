package remote

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/orderpilot/orderpilot/pkg/telemetry"
)

// scriptedProber returns a fixed sequence of busy verdicts, then idle.
type scriptedProber struct {
	mu       sync.Mutex
	verdicts []bool
	errs     []error
	polls    int
}

func (p *scriptedProber) Name() string { return "scripted" }

func (p *scriptedProber) Busy(context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.polls
	p.polls++
	if i < len(p.errs) && p.errs[i] != nil {
		return false, p.errs[i]
	}
	if i < len(p.verdicts) {
		return p.verdicts[i], nil
	}
	return false, nil
}

func testLogger(t *testing.T) *telemetry.Logger {
	t.Helper()
	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{
		Level: "error", Format: "console", Output: "stderr",
	})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	return logger
}

func TestWaitIdleRequiresConsecutiveStablePolls(t *testing.T) {
	// busy, idle, busy, then idle forever: the counter must reset on the
	// second busy observation.
	prober := &scriptedProber{verdicts: []bool{true, false, true, false, false, false}}
	d := NewDetector(testLogger(t), []BusyProber{prober}, WithPollInterval(time.Millisecond))

	if !d.WaitIdle(context.Background(), time.Second, 3) {
		t.Fatal("expected quiescence to be confirmed")
	}
	// Polls 4, 5, 6 are the three consecutive idles (1-indexed).
	if prober.polls < 6 {
		t.Errorf("expected at least 6 polls, got %d", prober.polls)
	}
}

func TestWaitIdleSoftTimeout(t *testing.T) {
	alwaysBusy := &scriptedProber{verdicts: []bool{
		true, true, true, true, true, true, true, true, true, true,
		true, true, true, true, true, true, true, true, true, true,
	}}
	d := NewDetector(testLogger(t), []BusyProber{alwaysBusy},
		WithPollInterval(time.Millisecond),
		WithSettleDelay(5*time.Millisecond))

	start := time.Now()
	if d.WaitIdle(context.Background(), 10*time.Millisecond, 3) {
		t.Fatal("expected unconfirmed quiescence")
	}
	// The settle delay runs after the deadline; the call returns rather
	// than hanging.
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("soft timeout took too long: %s", elapsed)
	}
}

func TestWaitIdleProberErrorCountsAsBusy(t *testing.T) {
	prober := &scriptedProber{errs: []error{errors.New("unreachable")}}
	d := NewDetector(testLogger(t), []BusyProber{prober}, WithPollInterval(time.Millisecond))

	if !d.WaitIdle(context.Background(), time.Second, 2) {
		t.Fatal("expected eventual quiescence")
	}
	// The error poll must not have counted toward the stable run.
	if prober.polls < 3 {
		t.Errorf("expected at least 3 polls, got %d", prober.polls)
	}
}

func TestWaitIdleContextCancellation(t *testing.T) {
	alwaysBusy := &scriptedProber{}
	alwaysBusy.verdicts = make([]bool, 1000)
	for i := range alwaysBusy.verdicts {
		alwaysBusy.verdicts[i] = true
	}
	d := NewDetector(testLogger(t), []BusyProber{alwaysBusy}, WithPollInterval(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if d.WaitIdle(ctx, time.Minute, 3) {
		t.Fatal("cancelled context must not confirm quiescence")
	}
}
