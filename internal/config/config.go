// Package config holds the run configuration: the immutable per-run Job
// value built from CLI flags, and optional user settings loaded from a JSON
// file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// OpenEnd marks an unset end-transaction bound: the query range extends to
// the newest transaction in the plate.
const OpenEnd = -1

// Job is the immutable configuration of one reduction run. It is built once
// from flags, validated, and passed by reference into the runner; nothing
// mutates it afterwards.
type Job struct {
	URL string // plate location (path to the plate database)

	Level            int // pyramid level to process
	StartTransaction int // inclusive lower bound of the input range
	EndTransaction   int // inclusive upper bound, OpenEnd for "latest"

	Function          string // reduction strategy name
	OutputTransaction int    // transaction id results are written under

	// Sharding across independent worker processes.
	JobID   int
	NumJobs int

	StatusAddr string // optional progress endpoint address
}

// Validate reports the first configuration error, before any store access.
// Level is only checked for the -1 "unset" marker by the driver, since the
// upper bound depends on the plate.
func (j *Job) Validate() error {
	if j.URL == "" {
		return errors.New("no plate URL given")
	}
	if j.NumJobs < 1 {
		return fmt.Errorf("num_jobs must be at least 1, got %d", j.NumJobs)
	}
	if j.JobID < 0 || j.JobID >= j.NumJobs {
		return fmt.Errorf("job_id %d out of range [0, %d)", j.JobID, j.NumJobs)
	}
	if j.StartTransaction < 0 {
		return fmt.Errorf("start_t must not be negative, got %d", j.StartTransaction)
	}
	if j.EndTransaction != OpenEnd && j.EndTransaction < j.StartTransaction {
		return fmt.Errorf("end_t %d is below start_t %d", j.EndTransaction, j.StartTransaction)
	}
	if j.OutputTransaction < 0 {
		return fmt.Errorf("transaction-id must not be negative, got %d", j.OutputTransaction)
	}
	if j.Function == "" {
		return errors.New("no reduction function given")
	}
	return nil
}

// Settings are user-editable defaults loaded from an optional JSON file.
type Settings struct {
	Logging Logging `json:"logging"`
}

// Logging controls log verbosity and rendering.
type Logging struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // text, json
}

// DefaultSettings returns the settings used when no file is present.
func DefaultSettings() *Settings {
	return &Settings{
		Logging: Logging{Level: "info", Format: "text"},
	}
}

// LoadSettings reads settings from path, falling back to defaults when the
// file does not exist. An empty path means defaults.
func LoadSettings(path string) (*Settings, error) {
	s := DefaultSettings()
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	if s.Logging.Level == "" {
		s.Logging.Level = "info"
	}
	if s.Logging.Format == "" {
		s.Logging.Format = "text"
	}
	return s, nil
}
