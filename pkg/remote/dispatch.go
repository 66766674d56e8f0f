package remote

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/orderpilot/orderpilot/pkg/telemetry"
)

// CommandNotFoundError reports that no strategy could issue a command.
// The engine maps it into its error taxonomy.
type CommandNotFoundError struct {
	Command    string
	TargetHint string
}

// Error implements the error interface.
func (e *CommandNotFoundError) Error() string {
	if e.TargetHint != "" {
		return fmt.Sprintf("no strategy could issue command %q (hint=%s)", e.Command, e.TargetHint)
	}
	return fmt.Sprintf("no strategy could issue command %q", e.Command)
}

// Command names understood by the remote surface's command elements.
const (
	CommandAddRow   = "AddNewRow"
	CommandSaveRow  = "UpdateEdit"
	CommandCancel   = "CancelEdit"
	CommandNextPage = "NextPage"
	CommandLastPage = "LastPage"
	CommandSave     = "Save"
)

// DispatchResult reports how a command was issued.
type DispatchResult struct {
	// Succeeded is true when some strategy issued the command.
	Succeeded bool `json:"succeeded"`

	// Strategy names the strategy that succeeded.
	Strategy string `json:"strategy"`

	// ElementID is the DOM id of the element interacted with, empty for
	// the direct control API path.
	ElementID string `json:"element_id,omitempty"`
}

// Strategy attempts one way of issuing a structural command. Returning
// ok=false falls through to the next strategy; an error aborts dispatch.
type Strategy interface {
	// Name identifies the strategy in results and logs.
	Name() string

	// Try attempts the command. ok=false means the strategy does not
	// apply here and the dispatcher should fall through.
	Try(ctx context.Context, s Surface, command, targetHint string) (elementID string, ok bool, err error)
}

// Dispatcher issues structural mutations against the remote surface using
// an ordered strategy list, then confirms completion through the
// quiescence detector. Issuing the command only starts an asynchronous
// remote operation; returning before quiescence would let the caller race
// the surface.
type Dispatcher struct {
	surface    Surface
	detector   *Detector
	strategies []Strategy
	logger     *telemetry.Logger
	metrics    *telemetry.Metrics

	// stablePolls is passed to the detector after each dispatch.
	stablePolls int
}

// NewDispatcher creates a dispatcher with the default strategy order:
// structural attribute match, id-hint match, direct control API. The
// simulated-interaction paths come first because they return immediately
// and let the caller keep orchestrating while the remote side processes;
// the direct API path can block for the whole round trip and is only a
// fallback.
func NewDispatcher(surface Surface, detector *Detector, logger *telemetry.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		surface:  surface,
		detector: detector,
		strategies: []Strategy{
			structuralStrategy{},
			idHintStrategy{},
			controlAPIStrategy{},
		},
		logger:      logger.NewComponentLogger("dispatch"),
		stablePolls: DefaultStablePolls,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithStrategies replaces the strategy list. Order is significant.
func WithStrategies(strategies ...Strategy) DispatcherOption {
	return func(d *Dispatcher) { d.strategies = strategies }
}

// WithDispatcherMetrics attaches a metrics collector.
func WithDispatcherMetrics(m *telemetry.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// IssueCommand issues the named command, preferring a uniquely
// identifiable visible command element and falling back to the control
// API. After a successful dispatch it waits for quiescence before
// returning control.
func (d *Dispatcher) IssueCommand(ctx context.Context, command, targetHint string, timeout time.Duration) (*DispatchResult, error) {
	for _, strat := range d.strategies {
		elementID, ok, err := strat.Try(ctx, d.surface, command, targetHint)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		d.logger.WithField("command", command).
			WithField("strategy", strat.Name()).
			Debug("command dispatched")
		if d.metrics != nil {
			d.metrics.RecordDispatch(command, strat.Name())
		}

		d.detector.WaitIdle(ctx, timeout, d.stablePolls)
		return &DispatchResult{
			Succeeded: true,
			Strategy:  strat.Name(),
			ElementID: elementID,
		}, nil
	}

	return nil, &CommandNotFoundError{Command: command, TargetHint: targetHint}
}

// structuralStrategy locates a visible command element by its stable
// structural attribute. This is preferred over positional or id
// heuristics because ids are regenerated across sessions while the
// command attribute is part of the vendor's rendering contract.
type structuralStrategy struct{}

func (structuralStrategy) Name() string { return "structural" }

func (structuralStrategy) Try(ctx context.Context, s Surface, command, _ string) (string, bool, error) {
	els, err := s.Query(ctx, fmt.Sprintf(`[data-args*=%q]`, command))
	if err != nil {
		return "", false, err
	}
	candidates := visibleOnly(els)
	if len(candidates) != 1 {
		// Zero means the command is not rendered here; more than one
		// means the match is not uniquely identifiable. Fall through
		// either way.
		return "", false, nil
	}
	if err := s.Click(ctx, "#"+candidates[0].ID); err != nil {
		return "", false, err
	}
	return candidates[0].ID, true, nil
}

// idHintStrategy falls back to matching the caller-provided id hint as a
// substring of visible element ids.
type idHintStrategy struct{}

func (idHintStrategy) Name() string { return "id_hint" }

func (idHintStrategy) Try(ctx context.Context, s Surface, command, targetHint string) (string, bool, error) {
	if targetHint == "" {
		return "", false, nil
	}
	els, err := s.Query(ctx, fmt.Sprintf(`[id*=%q]`, targetHint))
	if err != nil {
		return "", false, err
	}
	for _, el := range visibleOnly(els) {
		if strings.Contains(el.ID, targetHint) {
			if err := s.Click(ctx, "#"+el.ID); err != nil {
				return "", false, err
			}
			return el.ID, true, nil
		}
	}
	return "", false, nil
}

// controlAPIStrategy invokes the command through the vendor's client-side
// control API. More "correct" than simulating a click, but the call can
// block the driver for the whole remote round trip, so it runs last.
type controlAPIStrategy struct{}

func (controlAPIStrategy) Name() string { return "control_api" }

func (controlAPIStrategy) Try(ctx context.Context, s Surface, command, targetHint string) (string, bool, error) {
	if targetHint == "" {
		return "", false, nil
	}
	if err := s.InvokeControl(ctx, targetHint, "PerformCallback", []string{command}); err != nil {
		// The control may simply not exist on this view.
		return "", false, nil
	}
	return "", true, nil
}

func visibleOnly(els []ElementInfo) []ElementInfo {
	out := els[:0:0]
	for _, el := range els {
		if el.Visible && el.ID != "" {
			out = append(out, el)
		}
	}
	return out
}
