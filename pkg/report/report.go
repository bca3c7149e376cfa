// Package report persists a JSON summary of an acquisition pass alongside
// the output files, so the printed missing-ID list is not the only record
// of what happened.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Failure records why one feeder did not produce an output file
type Failure struct {
	FeederID string `json:"feeder_id"`
	Class    string `json:"class"`
	Message  string `json:"message"`
}

// Report summarizes one acquisition pass
type Report struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	UniverseCount   int `json:"universe_count"`
	AlreadyPresent  int `json:"already_present"`
	Attempted       int `json:"attempted"`
	Succeeded       int `json:"succeeded"`
	FailedCount     int `json:"failed_count"`
	StillMissing    int `json:"still_missing"`

	Failures   []Failure `json:"failures,omitempty"`
	MissingIDs []string  `json:"missing_ids,omitempty"`
}

// New starts a report for a pass over the given universe
func New(universeCount, alreadyPresent int) *Report {
	return &Report{
		StartedAt:      time.Now().UTC(),
		UniverseCount:  universeCount,
		AlreadyPresent: alreadyPresent,
	}
}

// RecordSuccess counts a feeder whose output file was written
func (r *Report) RecordSuccess() {
	r.Attempted++
	r.Succeeded++
}

// RecordFailure counts a feeder abandoned this pass
func (r *Report) RecordFailure(id, class string, err error) {
	r.Attempted++
	r.FailedCount++
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	r.Failures = append(r.Failures, Failure{
		FeederID: id,
		Class:    class,
		Message:  msg,
	})
}

// Finish records the final missing set and the end time
func (r *Report) Finish(missingIDs []string) {
	r.FinishedAt = time.Now().UTC()
	r.MissingIDs = missingIDs
	r.StillMissing = len(missingIDs)
}

// Save writes the report as report.json in dir, atomically
func (r *Report) Save(dir string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	path := filepath.Join(dir, "report.json")
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename report: %w", err)
	}

	return nil
}
