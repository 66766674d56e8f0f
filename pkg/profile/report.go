package profile

import (
	"fmt"
	"io"
	"math"
	"sort"
	"time"
)

// CategoryStat aggregates the records of one category.
type CategoryStat struct {
	Category string        `json:"category"`
	Count    int           `json:"count"`
	Errors   int           `json:"errors"`
	Total    time.Duration `json:"total"`
	Mean     time.Duration `json:"mean"`
}

// Summary is the derived view over one run's log. It is computed on
// demand and never stored back into the log.
type Summary struct {
	RunID       string         `json:"run_id"`
	Total       int            `json:"total"`
	OK          int            `json:"ok"`
	Errors      int            `json:"errors"`
	Retried     []Record       `json:"retried,omitempty"`
	BusyTime    time.Duration  `json:"busy_time"`
	IdleTime    time.Duration  `json:"idle_time"`
	P50         time.Duration  `json:"p50"`
	P95         time.Duration  `json:"p95"`
	P99         time.Duration  `json:"p99"`
	Categories  []CategoryStat `json:"categories"`
	Slowest     []Record       `json:"slowest"`
	LongestGaps []Record       `json:"longest_gaps"`
}

// topN caps the slowest-operations and longest-gaps lists.
const topN = 5

// Percentile returns the nearest-rank percentile of the given durations.
// The result is always a member of the input; an empty input yields 0.
func Percentile(durations []time.Duration, pct float64) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	rank := int(math.Ceil(pct / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

// Summarize computes the derived view over the recorder's current log.
func (r *Recorder) Summarize() *Summary {
	records := r.Records()

	s := &Summary{
		RunID: r.runID,
		Total: len(records),
	}

	durations := make([]time.Duration, 0, len(records))
	byCategory := make(map[string]*CategoryStat)
	var catOrder []string

	for _, rec := range records {
		durations = append(durations, rec.Duration)
		s.BusyTime += rec.Duration
		s.IdleTime += rec.Gap

		if rec.Status == StatusOK {
			s.OK++
		} else {
			s.Errors++
		}
		if rec.Attempt > 0 {
			s.Retried = append(s.Retried, rec)
		}

		cs, ok := byCategory[rec.Category]
		if !ok {
			cs = &CategoryStat{Category: rec.Category}
			byCategory[rec.Category] = cs
			catOrder = append(catOrder, rec.Category)
		}
		cs.Count++
		cs.Total += rec.Duration
		if rec.Status == StatusError {
			cs.Errors++
		}
	}

	s.P50 = Percentile(durations, 50)
	s.P95 = Percentile(durations, 95)
	s.P99 = Percentile(durations, 99)

	for _, cat := range catOrder {
		cs := byCategory[cat]
		cs.Mean = cs.Total / time.Duration(cs.Count)
		s.Categories = append(s.Categories, *cs)
	}
	sort.Slice(s.Categories, func(i, j int) bool {
		return s.Categories[i].Total > s.Categories[j].Total
	})

	s.Slowest = topBy(records, topN, func(a, b Record) bool { return a.Duration > b.Duration })
	s.LongestGaps = topBy(records, topN, func(a, b Record) bool { return a.Gap > b.Gap })

	return s
}

func topBy(records []Record, n int, less func(a, b Record) bool) []Record {
	sorted := make([]Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// WriteMarkdown renders the performance report: summary, category
// breakdown, retries, slow operations, longest gaps, and the full
// timeline.
func WriteMarkdown(w io.Writer, s *Summary, records []Record) error {
	p := func(format string, args ...interface{}) {
		fmt.Fprintf(w, format, args...)
	}

	p("# Run Performance Report\n\n")
	p("Run: `%s`\n\n", s.RunID)

	p("## Summary\n\n")
	p("| Metric | Value |\n|---|---|\n")
	p("| Operations | %d |\n", s.Total)
	p("| OK | %d |\n", s.OK)
	p("| Errors | %d |\n", s.Errors)
	p("| Busy time | %s |\n", s.BusyTime.Round(time.Millisecond))
	p("| Idle time | %s |\n", s.IdleTime.Round(time.Millisecond))
	p("| p50 | %s |\n", s.P50.Round(time.Millisecond))
	p("| p95 | %s |\n", s.P95.Round(time.Millisecond))
	p("| p99 | %s |\n\n", s.P99.Round(time.Millisecond))

	p("## Categories\n\n")
	p("| Category | Count | Errors | Total | Mean |\n|---|---|---|---|---|\n")
	for _, cs := range s.Categories {
		p("| %s | %d | %d | %s | %s |\n",
			cs.Category, cs.Count, cs.Errors,
			cs.Total.Round(time.Millisecond), cs.Mean.Round(time.Millisecond))
	}
	p("\n")

	if len(s.Retried) > 0 {
		p("## Retried Operations\n\n")
		p("| Seq | Name | Attempt | Status | Duration |\n|---|---|---|---|---|\n")
		for _, rec := range s.Retried {
			p("| %d | %s | %d | %s | %s |\n",
				rec.Seq, rec.Name, rec.Attempt, rec.Status, rec.Duration.Round(time.Millisecond))
		}
		p("\n")
	}

	p("## Slowest Operations\n\n")
	p("| Seq | Name | Duration | Status |\n|---|---|---|---|\n")
	for _, rec := range s.Slowest {
		p("| %d | %s | %s | %s |\n", rec.Seq, rec.Name, rec.Duration.Round(time.Millisecond), rec.Status)
	}
	p("\n## Longest Gaps\n\n")
	p("| Seq | Name | Gap |\n|---|---|---|\n")
	for _, rec := range s.LongestGaps {
		p("| %d | %s | %s |\n", rec.Seq, rec.Name, rec.Gap.Round(time.Millisecond))
	}

	p("\n## Timeline\n\n")
	p("| Seq | Name | Category | Status | Start | Duration | Gap | Error |\n")
	p("|---|---|---|---|---|---|---|---|\n")
	for _, rec := range records {
		p("| %d | %s | %s | %s | %s | %s | %s | %s |\n",
			rec.Seq, rec.Name, rec.Category, rec.Status,
			rec.StartedAt.Format("15:04:05.000"),
			rec.Duration.Round(time.Millisecond),
			rec.Gap.Round(time.Millisecond),
			rec.ErrorMessage)
	}

	return nil
}
