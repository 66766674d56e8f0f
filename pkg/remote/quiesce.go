package remote

import (
	"context"
	"time"

	"github.com/orderpilot/orderpilot/pkg/telemetry"
)

// Default detector tuning. Poll fast enough to catch short busy windows,
// settle long enough that an unobservable control has a chance to finish.
const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultSettleDelay  = 750 * time.Millisecond
	DefaultStablePolls  = 3
)

// QuiescenceState tracks one WaitIdle call. Scoped to that call only.
type QuiescenceState struct {
	// Busy is the last observed busy/idle verdict.
	Busy bool

	// StablePolls counts consecutive polls with no busy observation.
	// Any busy observation resets it to zero.
	StablePolls int

	// Polls is the total number of polls performed.
	Polls int
}

// Detector decides when the remote surface has finished processing all
// pending asynchronous work from the last interaction. It depends only on
// the BusyProber capability, never on vendor specifics.
type Detector struct {
	probers      []BusyProber
	pollInterval time.Duration
	settleDelay  time.Duration
	logger       *telemetry.Logger
	metrics      *telemetry.Metrics
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithPollInterval overrides the poll interval.
func WithPollInterval(d time.Duration) DetectorOption {
	return func(det *Detector) { det.pollInterval = d }
}

// WithSettleDelay overrides the fixed settle delay used on timeout.
func WithSettleDelay(d time.Duration) DetectorOption {
	return func(det *Detector) { det.settleDelay = d }
}

// WithDetectorMetrics attaches a metrics collector.
func WithDetectorMetrics(m *telemetry.Metrics) DetectorOption {
	return func(det *Detector) { det.metrics = m }
}

// NewDetector creates a quiescence detector polling the given probers.
func NewDetector(logger *telemetry.Logger, probers []BusyProber, opts ...DetectorOption) *Detector {
	d := &Detector{
		probers:      probers,
		pollInterval: DefaultPollInterval,
		settleDelay:  DefaultSettleDelay,
		logger:       logger.NewComponentLogger("quiesce"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// WaitIdle blocks until every prober reports not-busy for
// requiredStablePolls consecutive polls, or until timeout expires.
//
// The timeout is soft: instead of failing, WaitIdle sleeps a short fixed
// settle delay and returns false, trading strict correctness for
// liveness. Some remote controls are not observable through the available
// signals, so a hard hang here would be worse than a small lie. Callers
// needing certainty must verify values explicitly afterward.
func (d *Detector) WaitIdle(ctx context.Context, timeout time.Duration, requiredStablePolls int) bool {
	if requiredStablePolls <= 0 {
		requiredStablePolls = DefaultStablePolls
	}

	start := time.Now()
	deadline := start.Add(timeout)
	state := QuiescenceState{Busy: true}

	for {
		if ctx.Err() != nil {
			return false
		}
		if time.Now().After(deadline) {
			d.logger.WithField("polls", state.Polls).
				Warnf("quiescence not confirmed within %s, settling for %s", timeout, d.settleDelay)
			d.observeWait(time.Since(start), false)
			d.sleep(ctx, d.settleDelay)
			return false
		}

		busy := d.pollOnce(ctx, &state)
		if busy {
			state.StablePolls = 0
		} else {
			state.StablePolls++
			if state.StablePolls >= requiredStablePolls {
				d.logger.WithField("polls", state.Polls).Debug("surface idle")
				d.observeWait(time.Since(start), true)
				return true
			}
		}

		d.sleep(ctx, d.pollInterval)
	}
}

// pollOnce asks every prober once and records the combined verdict.
func (d *Detector) pollOnce(ctx context.Context, state *QuiescenceState) bool {
	state.Polls++
	for _, p := range d.probers {
		busy, err := p.Busy(ctx)
		if err != nil {
			// An unobservable prober counts as busy; the soft timeout
			// keeps this from hanging forever.
			d.logger.WithError(err).Debugf("prober %s failed, treating as busy", p.Name())
			state.Busy = true
			return true
		}
		if busy {
			state.Busy = true
			return true
		}
	}
	state.Busy = false
	return false
}

func (d *Detector) observeWait(elapsed time.Duration, confirmed bool) {
	if d.metrics == nil {
		return
	}
	d.metrics.RecordQuiescenceWait(elapsed, confirmed)
}

func (d *Detector) sleep(ctx context.Context, dur time.Duration) {
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
