package api

import (
	"time"

	"github.com/swapbatch/swapbatch/internal/history"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type RunResponse struct {
	ID              string  `json:"id"`
	Status          string  `json:"status"`
	InputDir        string  `json:"input_dir"`
	OutputDir       string  `json:"output_dir"`
	Total           int     `json:"total"`
	Successful      int     `json:"successful"`
	Failed          int     `json:"failed"`
	SuccessRate     float64 `json:"success_rate"`
	DurationMinutes float64 `json:"duration_minutes"`
	Error           string  `json:"error,omitempty"`
	StartedAt       string  `json:"started_at"`
	FinishedAt      string  `json:"finished_at,omitempty"`
}

type RunsResponse struct {
	Runs []RunResponse `json:"runs"`
}

type ItemResponse struct {
	Index      int    `json:"index"`
	File       string `json:"file"`
	Kind       string `json:"kind"`
	SizeBytes  int64  `json:"size_bytes"`
	Output     string `json:"output"`
	Outcome    string `json:"outcome"`
	Error      string `json:"error,omitempty"`
	ExitCode   int    `json:"exit_code"`
	DurationMs int64  `json:"duration_ms"`
}

type ItemsResponse struct {
	RunID string         `json:"run_id"`
	Items []ItemResponse `json:"items"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func RunToResponse(r *history.Run) RunResponse {
	resp := RunResponse{
		ID:              r.ID,
		Status:          r.Status,
		InputDir:        r.InputDir,
		OutputDir:       r.OutputDir,
		Total:           r.Total,
		Successful:      r.Successful,
		Failed:          r.Failed,
		DurationMinutes: r.DurationMinutes,
		Error:           r.Error,
		StartedAt:       r.StartedAt.Format(time.RFC3339),
	}
	if r.Total > 0 {
		resp.SuccessRate = float64(r.Successful) / float64(r.Total) * 100
	}
	if r.FinishedAt != nil {
		resp.FinishedAt = r.FinishedAt.Format(time.RFC3339)
	}
	return resp
}

func ItemToResponse(it *history.Item) ItemResponse {
	return ItemResponse{
		Index:      it.Index,
		File:       it.File,
		Kind:       it.Kind,
		SizeBytes:  it.SizeBytes,
		Output:     it.Output,
		Outcome:    it.Outcome,
		Error:      it.Error,
		ExitCode:   it.ExitCode,
		DurationMs: it.DurationMs,
	}
}
