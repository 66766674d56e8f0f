// Package remote provides the synchronization machinery for driving a
// session-based remote surface whose internal state is only inferable
// from polling: the quiescence detector, the dual-strategy command
// dispatcher, table snapshot parsing, and the session pool.
package remote

import (
	"context"
)

// Surface is the capability the engine holds on one remote session. The
// concrete implementation lives behind a browser-driver process (see the
// driver subpackage); tests substitute a scripted fake.
type Surface interface {
	// Navigate loads the given path or URL on the surface.
	Navigate(ctx context.Context, url string) error

	// Reload forces a full reload of the current remote document,
	// discarding any half-finished client state.
	Reload(ctx context.Context) error

	// Click simulates a click on the first element matching the selector.
	Click(ctx context.Context, selector string) error

	// Fill selects the full current content of the matched input and
	// types the given text over it.
	Fill(ctx context.Context, selector, text string) error

	// ReadValue returns the current value of the matched input.
	ReadValue(ctx context.Context, selector string) (string, error)

	// Query returns descriptors for every element matching the selector.
	Query(ctx context.Context, selector string) ([]ElementInfo, error)

	// HTML returns the rendered HTML fragment of the matched element, or
	// of the whole document when selector is empty.
	HTML(ctx context.Context, selector string) (string, error)

	// InvokeControl calls a method on a named remote control through the
	// vendor's client-side API, bypassing simulated interaction.
	InvokeControl(ctx context.Context, controlID, method string, args []string) error

	// Screenshot captures a diagnostic image of the current surface.
	Screenshot(ctx context.Context) ([]byte, error)
}

// ElementInfo describes one element found by Surface.Query.
type ElementInfo struct {
	// ID is the element's DOM id, possibly empty.
	ID string `json:"id"`

	// Tag is the lowercase element tag name.
	Tag string `json:"tag"`

	// Visible reports whether the element is currently rendered and
	// interactable.
	Visible bool `json:"visible"`

	// Text is the trimmed visible text content.
	Text string `json:"text"`

	// Attrs holds the element's attributes.
	Attrs map[string]string `json:"attrs,omitempty"`
}

// Attr returns the named attribute, or "" when absent.
func (e ElementInfo) Attr(name string) string {
	if e.Attrs == nil {
		return ""
	}
	return e.Attrs[name]
}

// BusyProber is the capability the quiescence detector polls. Vendor
// adapters implement it over whatever busy signals the remote surface
// exposes: loading panels, controls reporting an in-flight callback,
// grids embedded inside lookup controls.
type BusyProber interface {
	// Name identifies the prober in logs and diagnostics.
	Name() string

	// Busy reports whether the probed signal currently indicates
	// in-flight remote work. Probe errors are treated as busy by the
	// detector: an unobservable surface is not a quiet one.
	Busy(ctx context.Context) (bool, error)
}
