// Package state persists the record of the last run as JSON.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"mac-bootstrap/internal/logger"
	"mac-bootstrap/internal/provision"
)

// StepRecord is the saved outcome of one step.
type StepRecord struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// Record is the saved form of a provision.Report.
type Record struct {
	RunID      string       `json:"run_id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Halted     bool         `json:"halted"`
	Error      string       `json:"error,omitempty"`
	Applied    int          `json:"applied"`
	Skipped    int          `json:"skipped"`
	Failed     int          `json:"failed"`
	Steps      []StepRecord `json:"steps"`
}

// FromReport converts a report into its saved form.
func FromReport(r *provision.Report) Record {
	rec := Record{
		RunID:      r.RunID(),
		StartedAt:  r.StartedAt(),
		FinishedAt: r.FinishedAt(),
		Halted:     r.Halted(),
		Applied:    r.Count(provision.StatusApplied),
		Skipped:    r.Count(provision.StatusSkipped),
		Failed:     r.Count(provision.StatusFailed),
		Steps:      []StepRecord{},
	}
	if err := r.Err(); err != nil {
		rec.Error = err.Error()
	}
	for _, res := range r.Results() {
		rec.Steps = append(rec.Steps, StepRecord{
			Name:       res.Step,
			Status:     string(res.Status),
			Message:    res.Message,
			DurationMS: res.Duration.Milliseconds(),
		})
	}
	return rec
}

// Save writes the report to path, replacing any previous record.
func Save(path string, r *provision.Report) error {
	data, err := json.MarshalIndent(FromReport(r), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}

	// Write then rename so an interrupted save never leaves half a file.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".last-run-*.json")
	if err != nil {
		return fmt.Errorf("write run record: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write run record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write run record: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write run record: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write run record: %w", err)
	}

	logger.Debug("Wrote run record to %s", path)
	return nil
}

// Load reads a saved record.
func Load(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &rec, nil
}
