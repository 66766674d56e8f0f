package profile

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
)

// exportEnvelope is the JSON export format. Version gates readers the
// same way the metadata key vocabulary does.
type exportEnvelope struct {
	Version int      `json:"version"`
	RunID   string   `json:"run_id"`
	Summary *Summary `json:"summary"`
	Records []Record `json:"records"`
}

const exportVersion = 1

// WriteJSON writes the full log plus its derived summary as JSON.
func WriteJSON(w io.Writer, s *Summary, records []Record) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(exportEnvelope{
		Version: exportVersion,
		RunID:   s.RunID,
		Summary: s,
		Records: records,
	})
}

// ReadJSON reads a JSON export back, for offline report re-rendering.
func ReadJSON(r io.Reader) (*Summary, []Record, error) {
	var env exportEnvelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return nil, nil, fmt.Errorf("failed to decode export: %w", err)
	}
	if env.Version != exportVersion {
		return nil, nil, fmt.Errorf("unsupported export version %d", env.Version)
	}
	return env.Summary, env.Records, nil
}

var csvHeader = []string{
	"seq", "name", "category", "status", "started_at", "ended_at",
	"duration_ms", "gap_ms", "attempt", "heap_before", "heap_after", "error",
}

// WriteCSV writes the record log as CSV, one row per record.
func WriteCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, rec := range records {
		row := []string{
			strconv.FormatInt(rec.Seq, 10),
			rec.Name,
			rec.Category,
			string(rec.Status),
			rec.StartedAt.Format(time.RFC3339Nano),
			rec.EndedAt.Format(time.RFC3339Nano),
			strconv.FormatFloat(float64(rec.Duration)/float64(time.Millisecond), 'f', 3, 64),
			strconv.FormatFloat(float64(rec.Gap)/float64(time.Millisecond), 'f', 3, 64),
			strconv.Itoa(rec.Attempt),
			strconv.FormatUint(rec.HeapBefore, 10),
			strconv.FormatUint(rec.HeapAfter, 10),
			rec.ErrorMessage,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes the record log and summary as a two-sheet workbook.
func WriteXLSX(path string, s *Summary, records []Record) error {
	f := excelize.NewFile()
	defer f.Close()

	const recSheet = "Records"
	if err := f.SetSheetName("Sheet1", recSheet); err != nil {
		return err
	}

	for col, h := range csvHeader {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(recSheet, cell, h); err != nil {
			return err
		}
	}
	for i, rec := range records {
		values := []interface{}{
			rec.Seq, rec.Name, rec.Category, string(rec.Status),
			rec.StartedAt.Format(time.RFC3339Nano),
			rec.EndedAt.Format(time.RFC3339Nano),
			float64(rec.Duration) / float64(time.Millisecond),
			float64(rec.Gap) / float64(time.Millisecond),
			rec.Attempt, rec.HeapBefore, rec.HeapAfter, rec.ErrorMessage,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			if err := f.SetCellValue(recSheet, cell, v); err != nil {
				return err
			}
		}
	}

	const sumSheet = "Summary"
	if _, err := f.NewSheet(sumSheet); err != nil {
		return err
	}
	sumRows := [][]interface{}{
		{"run_id", s.RunID},
		{"operations", s.Total},
		{"ok", s.OK},
		{"errors", s.Errors},
		{"busy_ms", float64(s.BusyTime) / float64(time.Millisecond)},
		{"idle_ms", float64(s.IdleTime) / float64(time.Millisecond)},
		{"p50_ms", float64(s.P50) / float64(time.Millisecond)},
		{"p95_ms", float64(s.P95) / float64(time.Millisecond)},
		{"p99_ms", float64(s.P99) / float64(time.Millisecond)},
	}
	for i, row := range sumRows {
		for col, v := range row {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+1)
			if err := f.SetCellValue(sumSheet, cell, v); err != nil {
				return err
			}
		}
	}

	return f.SaveAs(path)
}

// WriteArtifacts writes the report and every export format into dir,
// named after the run. It is called on every run outcome, success or
// failure, so the failing step is always inspectable after the fact.
func WriteArtifacts(dir string, s *Summary, records []Record) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	base := filepath.Join(dir, "run-"+s.RunID)

	md, err := os.Create(base + ".md")
	if err != nil {
		return err
	}
	defer md.Close()
	if err := WriteMarkdown(md, s, records); err != nil {
		return err
	}

	jf, err := os.Create(base + ".json")
	if err != nil {
		return err
	}
	defer jf.Close()
	if err := WriteJSON(jf, s, records); err != nil {
		return err
	}

	cf, err := os.Create(base + ".csv")
	if err != nil {
		return err
	}
	defer cf.Close()
	if err := WriteCSV(cf, records); err != nil {
		return err
	}

	return WriteXLSX(base+".xlsx", s, records)
}
