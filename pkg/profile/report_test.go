package profile

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestPercentileNearestRank(t *testing.T) {
	durations := []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		30 * time.Millisecond,
		40 * time.Millisecond,
		50 * time.Millisecond,
	}

	tests := []struct {
		pct  float64
		want time.Duration
	}{
		{50, 30 * time.Millisecond},
		{95, 50 * time.Millisecond},
		{99, 50 * time.Millisecond},
		{1, 10 * time.Millisecond},
		{100, 50 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := Percentile(durations, tt.pct); got != tt.want {
			t.Errorf("Percentile(%v) = %s, want %s", tt.pct, got, tt.want)
		}
	}
}

func TestPercentileResultIsMemberOfInput(t *testing.T) {
	durations := []time.Duration{13, 7, 42, 3, 99, 57}
	for _, pct := range []float64{1, 25, 50, 75, 90, 99} {
		got := Percentile(durations, pct)
		member := false
		for _, d := range durations {
			if d == got {
				member = true
			}
		}
		if !member {
			t.Errorf("Percentile(%v) = %d is not a member of the input", pct, got)
		}
	}
}

func TestPercentileEmptyInput(t *testing.T) {
	if got := Percentile(nil, 95); got != 0 {
		t.Errorf("empty input must yield 0, got %s", got)
	}
}

func TestPercentileDoesNotMutateInput(t *testing.T) {
	durations := []time.Duration{30, 10, 20}
	_ = Percentile(durations, 50)
	if durations[0] != 30 || durations[1] != 10 || durations[2] != 20 {
		t.Errorf("input mutated: %v", durations)
	}
}

func buildTestLog(t *testing.T) *Recorder {
	t.Helper()
	r := NewRecorder("run-report")
	ctx := context.Background()

	_ = r.Run(ctx, "session.acquire", CategorySession, nil, func(context.Context) error { return nil })
	_ = r.Run(ctx, "item.match_select", CategorySearch, Meta("item", "10839.314.016"), func(context.Context) error { return nil })
	_ = r.Run(ctx, "item.save_row", CategoryCommit, nil, func(context.Context) error {
		return errors.New("rejected")
	})
	_ = r.RunAttempt(ctx, "item.save_row", CategoryCommit, 1, nil, func(context.Context) error { return nil })
	return r
}

func TestSummarize(t *testing.T) {
	r := buildTestLog(t)
	s := r.Summarize()

	if s.RunID != "run-report" {
		t.Errorf("run id lost: %q", s.RunID)
	}
	if s.Total != 4 || s.OK != 3 || s.Errors != 1 {
		t.Errorf("counts wrong: total=%d ok=%d errors=%d", s.Total, s.OK, s.Errors)
	}
	if len(s.Retried) != 1 || s.Retried[0].Attempt != 1 {
		t.Errorf("retried list wrong: %v", s.Retried)
	}
	if len(s.Categories) != 3 {
		t.Errorf("expected 3 categories, got %d", len(s.Categories))
	}
	for _, cs := range s.Categories {
		if cs.Category == CategoryCommit && cs.Errors != 1 {
			t.Errorf("commit category errors: %d", cs.Errors)
		}
	}
	if s.BusyTime < 0 || s.P50 < 0 {
		t.Error("negative derived durations")
	}
}

func TestWriteMarkdownSections(t *testing.T) {
	r := buildTestLog(t)
	var buf bytes.Buffer
	if err := WriteMarkdown(&buf, r.Summarize(), r.Records()); err != nil {
		t.Fatalf("WriteMarkdown failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"# Run Performance Report",
		"## Summary",
		"## Categories",
		"## Retried Operations",
		"## Slowest Operations",
		"## Longest Gaps",
		"## Timeline",
		"run-report",
		"item.save_row",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestJSONExportRoundTrip(t *testing.T) {
	r := buildTestLog(t)
	summary := r.Summarize()
	records := r.Records()

	var buf bytes.Buffer
	if err := WriteJSON(&buf, summary, records); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	gotSummary, gotRecords, err := ReadJSON(&buf)
	if err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if gotSummary.RunID != summary.RunID || gotSummary.Total != summary.Total {
		t.Errorf("summary mismatch after round trip: %+v", gotSummary)
	}
	if len(gotRecords) != len(records) {
		t.Fatalf("expected %d records, got %d", len(records), len(gotRecords))
	}
	if gotRecords[2].ErrorMessage != "rejected" {
		t.Errorf("error message lost: %q", gotRecords[2].ErrorMessage)
	}
}

func TestReadJSONRejectsUnknownVersion(t *testing.T) {
	input := strings.NewReader(`{"version": 99, "run_id": "x"}`)
	if _, _, err := ReadJSON(input); err == nil {
		t.Fatal("expected version rejection")
	}
}

func TestWriteCSVHeaderAndRows(t *testing.T) {
	r := buildTestLog(t)
	var buf bytes.Buffer
	if err := WriteCSV(&buf, r.Records()); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected header plus 4 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "seq,name,category,status") {
		t.Errorf("unexpected header: %s", lines[0])
	}
}
