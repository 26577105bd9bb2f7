package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/swapbatch/swapbatch/internal/batch"
	"github.com/swapbatch/swapbatch/internal/logging"
	"github.com/swapbatch/swapbatch/internal/media"
)

// Recorder mirrors a batch run into the repository. It implements
// batch.Observer. Write failures are logged and never stop the run; the
// statistics file stays the record of truth.
type Recorder struct {
	repo   Repository
	logger *slog.Logger
	run    *Run
}

func NewRecorder(repo Repository, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Recorder{repo: repo, logger: logger}
}

// RunID returns the ID of the run being recorded, empty before Start.
func (r *Recorder) RunID() string {
	if r.run == nil {
		return ""
	}
	return r.run.ID
}

// Start creates the run row.
func (r *Recorder) Start(ctx context.Context, id, inputDir, outputDir, reference string, stats *batch.RunStatistics) error {
	run := &Run{
		ID:        id,
		Status:    RunStatusRunning,
		InputDir:  inputDir,
		OutputDir: outputDir,
		Reference: reference,
		Total:     stats.Total,
		StartedAt: stats.StartTime,
	}
	if err := r.repo.CreateRun(ctx, run); err != nil {
		return err
	}
	r.run = run
	return nil
}

func (r *Recorder) ItemDone(ctx context.Context, index int, f media.File, o batch.Outcome) {
	if r.run == nil {
		return
	}
	item := &Item{
		RunID:      r.run.ID,
		Index:      index,
		File:       f.Path,
		Kind:       string(f.Kind),
		SizeBytes:  f.Size,
		Output:     o.Output,
		Outcome:    string(o.Kind),
		Error:      o.Reason,
		ExitCode:   o.ExitCode,
		DurationMs: o.Duration.Milliseconds(),
		CreatedAt:  time.Now(),
	}
	if err := r.repo.RecordItem(context.WithoutCancel(ctx), item); err != nil {
		r.logger.Warn("failed to record item", "file", f.Name, "error", err)
	}
}

// Finish stores the final statistics. runErr is the error that ended the
// run early, if any.
func (r *Recorder) Finish(ctx context.Context, stats *batch.RunStatistics, runErr error) {
	if r.run == nil {
		return
	}

	run := r.run
	run.Total = stats.Total
	run.Successful = stats.Successful
	run.Failed = stats.Failed
	run.DurationMinutes = stats.DurationMinutes
	run.FinishedAt = stats.EndTime

	switch {
	case stats.Interrupted:
		run.Status = RunStatusInterrupted
		run.Error = "interrupted"
	case runErr != nil:
		run.Status = RunStatusFailed
		run.Error = runErr.Error()
	default:
		run.Status = RunStatusCompleted
	}

	if err := r.repo.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		r.logger.Warn("failed to record run result", "run_id", run.ID, "error", err)
	}
}
