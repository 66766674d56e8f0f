// Package profile provides the append-only instrumentation log for
// order-construction runs and the derived performance reporting computed
// from it. Every remote-affecting operation is bracketed by Recorder.Run;
// nothing is ever written back into the log after a record is appended.
//
// Metadata keys form a small versioned vocabulary (v1): "item" (article
// code), "step" (state-machine step), "strategy" (dispatch strategy),
// "page" (search page index), "reason" (match reason), "confidence"
// (match confidence), "rows" (persisted row count), "field" (committed
// field name). New keys may be added; existing keys keep their meaning.
package profile

import (
	"context"
	"runtime"
	"sync"
	"time"
)

// Status is the terminal status of one recorded operation.
type Status string

const (
	// StatusOK marks an operation whose body returned nil.
	StatusOK Status = "ok"

	// StatusError marks an operation whose body returned an error.
	StatusError Status = "error"
)

// Operation categories. Category totals are a first-order view in the
// report, so categories stay coarse.
const (
	CategorySession    = "session"
	CategoryNavigation = "navigation"
	CategorySearch     = "search"
	CategoryCommit     = "commit"
	CategoryWait       = "wait"
	CategoryRecovery   = "recovery"
)

// MetaKV is one ordered metadata entry.
type MetaKV struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Metadata is an ordered string-keyed metadata list. Order is the order
// the caller attached the entries in; duplicate keys are allowed and
// preserved.
type Metadata []MetaKV

// Meta starts a metadata list.
func Meta(key, value string) Metadata {
	return Metadata{{Key: key, Value: value}}
}

// And appends one entry, returning the extended list.
func (m Metadata) And(key, value string) Metadata {
	return append(m, MetaKV{Key: key, Value: value})
}

// Get returns the first value for key, or "".
func (m Metadata) Get(key string) string {
	for _, kv := range m {
		if kv.Key == key {
			return kv.Value
		}
	}
	return ""
}

// Record is one appended operation record. Never mutated post-creation.
type Record struct {
	// Seq is the run-scoped, strictly increasing sequence id, starting at 1.
	Seq int64 `json:"seq"`

	// Name is the operation name, e.g. "item.commit_quantity".
	Name string `json:"name"`

	// Category is one of the Category constants.
	Category string `json:"category"`

	// Status is ok or error.
	Status Status `json:"status"`

	// StartedAt and EndedAt are wall-clock bounds.
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`

	// Duration is measured on the monotonic clock.
	Duration time.Duration `json:"duration"`

	// Gap is the idle time between the previous record's end and this
	// record's start. It isolates orchestration-induced idle time from
	// remote-induced latency, which lands in Duration. The first record's
	// gap is zero.
	Gap time.Duration `json:"gap"`

	// Attempt is the retry attempt this operation ran under, 0 for the
	// first try.
	Attempt int `json:"attempt"`

	// HeapBefore and HeapAfter are heap-allocated bytes around the body.
	HeapBefore uint64 `json:"heap_before"`
	HeapAfter  uint64 `json:"heap_after"`

	// Metadata is the ordered metadata attached by the caller.
	Metadata Metadata `json:"metadata,omitempty"`

	// ErrorMessage is set when Status is error.
	ErrorMessage string `json:"error_message,omitempty"`
}

// Recorder owns the append-only log of one run. It is owned exclusively
// by that run instance; concurrent runs each hold their own Recorder.
type Recorder struct {
	mu      sync.Mutex
	records []Record
	seq     int64
	lastEnd time.Time
	runID   string
	started time.Time
}

// NewRecorder creates a recorder scoped to one run.
func NewRecorder(runID string) *Recorder {
	return &Recorder{
		runID:   runID,
		started: time.Now(),
	}
}

// RunID returns the run this recorder is scoped to.
func (r *Recorder) RunID() string {
	return r.runID
}

// Run executes body and appends exactly one record regardless of outcome.
// The body's error is returned unchanged.
func (r *Recorder) Run(ctx context.Context, name, category string, meta Metadata, body func(context.Context) error) error {
	return r.RunAttempt(ctx, name, category, 0, meta, body)
}

// RunAttempt is Run with an explicit retry attempt count.
func (r *Recorder) RunAttempt(ctx context.Context, name, category string, attempt int, meta Metadata, body func(context.Context) error) error {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	heapBefore := ms.HeapAlloc

	start := time.Now()
	err := body(ctx)
	end := time.Now()

	runtime.ReadMemStats(&ms)

	rec := Record{
		Name:       name,
		Category:   category,
		Status:     StatusOK,
		StartedAt:  start,
		EndedAt:    end,
		Duration:   end.Sub(start),
		Attempt:    attempt,
		HeapBefore: heapBefore,
		HeapAfter:  ms.HeapAlloc,
		Metadata:   meta,
	}
	if err != nil {
		rec.Status = StatusError
		rec.ErrorMessage = err.Error()
	}

	r.append(rec)
	return err
}

func (r *Recorder) append(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	rec.Seq = r.seq
	if !r.lastEnd.IsZero() && rec.StartedAt.After(r.lastEnd) {
		rec.Gap = rec.StartedAt.Sub(r.lastEnd)
	}
	r.lastEnd = rec.EndedAt
	r.records = append(r.records, rec)
}

// Records returns a copy of the log in append order.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// Len returns the number of appended records.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}
