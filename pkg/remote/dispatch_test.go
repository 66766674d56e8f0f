package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

// stubSurface is a minimal Surface for dispatch tests.
type stubSurface struct {
	elements map[string][]ElementInfo
	clicks   []string
	invokes  []string
	clickErr error
}

func newStubSurface() *stubSurface {
	return &stubSurface{elements: make(map[string][]ElementInfo)}
}

func (s *stubSurface) Navigate(context.Context, string) error { return nil }
func (s *stubSurface) Reload(context.Context) error           { return nil }

func (s *stubSurface) Click(_ context.Context, selector string) error {
	s.clicks = append(s.clicks, selector)
	return s.clickErr
}

func (s *stubSurface) Fill(context.Context, string, string) error { return nil }

func (s *stubSurface) ReadValue(context.Context, string) (string, error) { return "", nil }

func (s *stubSurface) Query(_ context.Context, selector string) ([]ElementInfo, error) {
	return s.elements[selector], nil
}

func (s *stubSurface) HTML(context.Context, string) (string, error) {
	return "<html></html>", nil
}

func (s *stubSurface) InvokeControl(_ context.Context, controlID, method string, args []string) error {
	s.invokes = append(s.invokes, fmt.Sprintf("%s.%s(%s)", controlID, method, strings.Join(args, ",")))
	if s.elements["invoke:"+controlID] == nil {
		return errors.New("no such control")
	}
	return nil
}

func (s *stubSurface) Screenshot(context.Context) ([]byte, error) { return nil, nil }

func newTestDispatcher(t *testing.T, s Surface) *Dispatcher {
	t.Helper()
	d := NewDetector(testLogger(t), nil, WithPollInterval(time.Millisecond))
	return NewDispatcher(s, d, testLogger(t))
}

func TestIssueCommandStructuralStrategy(t *testing.T) {
	s := newStubSurface()
	s.elements[`[data-args*="AddNewRow"]`] = []ElementInfo{
		{ID: "btnAdd", Tag: "a", Visible: true},
	}

	result, err := newTestDispatcher(t, s).IssueCommand(context.Background(), CommandAddRow, "grid", time.Second)
	if err != nil {
		t.Fatalf("IssueCommand failed: %v", err)
	}
	if result.Strategy != "structural" {
		t.Errorf("expected structural strategy, got %s", result.Strategy)
	}
	if result.ElementID != "btnAdd" {
		t.Errorf("expected btnAdd, got %s", result.ElementID)
	}
	if len(s.clicks) != 1 || s.clicks[0] != "#btnAdd" {
		t.Errorf("unexpected clicks: %v", s.clicks)
	}
}

func TestIssueCommandAmbiguousStructuralFallsThrough(t *testing.T) {
	s := newStubSurface()
	// Two visible matches: not uniquely identifiable, must fall through.
	s.elements[`[data-args*="AddNewRow"]`] = []ElementInfo{
		{ID: "btnAdd1", Visible: true},
		{ID: "btnAdd2", Visible: true},
	}
	s.elements[`[id*="grid"]`] = []ElementInfo{
		{ID: "grid_DXCBtn0", Visible: true},
	}

	result, err := newTestDispatcher(t, s).IssueCommand(context.Background(), CommandAddRow, "grid", time.Second)
	if err != nil {
		t.Fatalf("IssueCommand failed: %v", err)
	}
	if result.Strategy != "id_hint" {
		t.Errorf("expected id_hint strategy, got %s", result.Strategy)
	}
}

func TestIssueCommandInvisibleElementsIgnored(t *testing.T) {
	s := newStubSurface()
	s.elements[`[data-args*="AddNewRow"]`] = []ElementInfo{
		{ID: "btnHidden", Visible: false},
		{ID: "btnAdd", Visible: true},
	}

	result, err := newTestDispatcher(t, s).IssueCommand(context.Background(), CommandAddRow, "", time.Second)
	if err != nil {
		t.Fatalf("IssueCommand failed: %v", err)
	}
	if result.ElementID != "btnAdd" {
		t.Errorf("hidden element was clicked: %s", result.ElementID)
	}
}

func TestIssueCommandControlAPIFallback(t *testing.T) {
	s := newStubSurface()
	s.elements["invoke:grid"] = []ElementInfo{{}}

	result, err := newTestDispatcher(t, s).IssueCommand(context.Background(), CommandSaveRow, "grid", time.Second)
	if err != nil {
		t.Fatalf("IssueCommand failed: %v", err)
	}
	if result.Strategy != "control_api" {
		t.Errorf("expected control_api strategy, got %s", result.Strategy)
	}
	if len(s.invokes) != 1 || s.invokes[0] != "grid.PerformCallback(UpdateEdit)" {
		t.Errorf("unexpected invokes: %v", s.invokes)
	}
}

func TestIssueCommandExhaustedStrategies(t *testing.T) {
	s := newStubSurface()

	_, err := newTestDispatcher(t, s).IssueCommand(context.Background(), CommandAddRow, "grid", time.Second)
	if err == nil {
		t.Fatal("expected failure with no matching elements")
	}
	var nf *CommandNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected CommandNotFoundError, got %T", err)
	}
	if nf.Command != CommandAddRow || nf.TargetHint != "grid" {
		t.Errorf("error context lost: %+v", nf)
	}
}

func TestIssueCommandClickErrorAborts(t *testing.T) {
	s := newStubSurface()
	s.elements[`[data-args*="AddNewRow"]`] = []ElementInfo{
		{ID: "btnAdd", Visible: true},
	}
	s.clickErr = errors.New("element detached")

	_, err := newTestDispatcher(t, s).IssueCommand(context.Background(), CommandAddRow, "", time.Second)
	if err == nil {
		t.Fatal("expected click error to abort dispatch")
	}
	var nf *CommandNotFoundError
	if errors.As(err, &nf) {
		t.Error("a real interaction error must not be reported as command-not-found")
	}
}
