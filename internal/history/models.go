// Package history records batch runs and their per-file outcomes in the
// local SQLite database so they can be listed and served after the fact.
package history

import (
	"time"

	"github.com/google/uuid"
)

const (
	RunStatusRunning     = "running"
	RunStatusCompleted   = "completed"
	RunStatusInterrupted = "interrupted"
	RunStatusFailed      = "failed"
)

type Run struct {
	ID              string     `json:"id"`
	Status          string     `json:"status"`
	InputDir        string     `json:"input_dir"`
	OutputDir       string     `json:"output_dir"`
	Reference       string     `json:"reference"`
	Total           int        `json:"total"`
	Successful      int        `json:"successful"`
	Failed          int        `json:"failed"`
	DurationMinutes float64    `json:"duration_minutes"`
	Error           string     `json:"error,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

type Item struct {
	RunID      string    `json:"run_id"`
	Index      int       `json:"index"`
	File       string    `json:"file"`
	Kind       string    `json:"kind"`
	SizeBytes  int64     `json:"size_bytes"`
	Output     string    `json:"output"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	ExitCode   int       `json:"exit_code"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

func NewID() string {
	return uuid.NewString()
}
