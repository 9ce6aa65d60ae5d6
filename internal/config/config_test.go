package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func validJob() Job {
	return Job{
		URL:               "test.plate",
		Level:             2,
		StartTransaction:  0,
		EndTransaction:    OpenEnd,
		Function:          "WeightedAvg",
		OutputTransaction: 2000,
		JobID:             0,
		NumJobs:           1,
	}
}

func TestJobValidate(t *testing.T) {
	j := validJob()
	require.NoError(t, j.Validate())

	tests := []struct {
		name   string
		mutate func(*Job)
	}{
		{"empty url", func(j *Job) { j.URL = "" }},
		{"zero num_jobs", func(j *Job) { j.NumJobs = 0 }},
		{"negative job_id", func(j *Job) { j.JobID = -1 }},
		{"job_id at num_jobs", func(j *Job) { j.JobID = 1 }},
		{"negative start", func(j *Job) { j.StartTransaction = -1 }},
		{"end below start", func(j *Job) { j.StartTransaction = 10; j.EndTransaction = 5 }},
		{"negative output", func(j *Job) { j.OutputTransaction = -2 }},
		{"empty function", func(j *Job) { j.Function = "" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			j := validJob()
			tc.mutate(&j)
			require.Error(t, j.Validate())
		})
	}
}

func TestJobValidateAllowsShardedRuns(t *testing.T) {
	j := validJob()
	j.NumJobs = 8
	j.JobID = 7
	require.NoError(t, j.Validate())
}

func TestLoadSettingsDefaults(t *testing.T) {
	s, err := LoadSettings("")
	require.NoError(t, err)
	require.Equal(t, "info", s.Logging.Level)
	require.Equal(t, "text", s.Logging.Format)

	// Missing file falls back to defaults too.
	s, err = LoadSettings(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	require.Equal(t, "info", s.Logging.Level)
}

func TestLoadSettingsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"logging":{"level":"debug","format":"json"}}`), 0o644))

	s, err := LoadSettings(path)
	require.NoError(t, err)
	require.Equal(t, "debug", s.Logging.Level)
	require.Equal(t, "json", s.Logging.Format)

	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))
	_, err = LoadSettings(path)
	require.Error(t, err)
}
