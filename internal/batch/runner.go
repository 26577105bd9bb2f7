// Package batch runs the external tool over every discovered media file, one
// at a time, and tallies the results.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"github.com/swapbatch/swapbatch/internal/logging"
	"github.com/swapbatch/swapbatch/internal/media"
	"github.com/swapbatch/swapbatch/internal/tool"
)

type OutcomeKind string

const (
	OutcomeSuccess   OutcomeKind = "success"
	OutcomeTimeout   OutcomeKind = "timeout"
	OutcomeToolError OutcomeKind = "tool_error"
	// OutcomeInterrupted marks an item whose invocation was cut short by
	// cancellation. It is not counted in the statistics.
	OutcomeInterrupted OutcomeKind = "interrupted"
)

// maxReasonBytes bounds the diagnostic text kept per failed item.
const maxReasonBytes = 2048

// Outcome is the classified result of one tool invocation.
type Outcome struct {
	Kind     OutcomeKind
	Output   string // output path
	Reason   string // error text for the statistics; empty on success
	ExitCode int
	Duration time.Duration
}

// Observer is notified after each counted item. The history recorder
// implements it.
type Observer interface {
	ItemDone(ctx context.Context, index int, f media.File, o Outcome)
}

// Runner drives the tool over a list of files.
type Runner struct {
	Tool        tool.Runner
	Fs          afero.Fs // where outputs land; defaults to the OS filesystem
	Reference   string
	OutputDir   string
	KeepPartial bool
	Logger      *slog.Logger
	Observer    Observer
}

// Run processes files in order and records every outcome into stats. It
// returns the context error when interrupted, after marking stats as such;
// per-file failures never stop the loop.
func (r *Runner) Run(ctx context.Context, files []media.File, stats *RunStatistics) error {
	fsys := r.fs()
	logger := r.logger()

	if err := fsys.MkdirAll(r.OutputDir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	stats.BeginProcessing(time.Now())

	for i, f := range files {
		if err := ctx.Err(); err != nil {
			stats.Interrupted = true
			return err
		}

		logger.Info(fmt.Sprintf("%d/%d processing %s", i+1, len(files), f.Name),
			"size", humanize.Bytes(uint64(max(f.Size, 0))),
			"kind", f.Kind,
		)

		outcome := r.Process(ctx, f)

		switch outcome.Kind {
		case OutcomeSuccess:
			stats.RecordSuccess()
			logger.Info("output written",
				"output", filepath.Base(outcome.Output),
				"duration", outcome.Duration.Round(time.Millisecond),
			)
		case OutcomeTimeout:
			stats.RecordFailure(f.Path, TimeoutError)
			logger.Error("timeout", "file", f.Name, "limit", r.timeoutHint())
		case OutcomeToolError:
			stats.RecordFailure(f.Path, outcome.Reason)
			logger.Error("processing failed", "file", f.Name, "exit_code", outcome.ExitCode, "error", outcome.Reason)
		case OutcomeInterrupted:
			stats.Interrupted = true
			return ctx.Err()
		}

		if r.Observer != nil {
			r.Observer.ItemDone(ctx, i, f, outcome)
		}
	}
	return nil
}

// Process invokes the tool for a single file and classifies the result.
// Success requires a clean exit and an output file on disk.
func (r *Runner) Process(ctx context.Context, f media.File) Outcome {
	out := media.OutputPath(f, r.OutputDir)

	result := r.Tool.Swap(ctx, tool.SwapRequest{
		SourceImage: r.Reference,
		Target:      f.Path,
		Output:      out,
	})

	o := Outcome{Output: out, ExitCode: result.ExitCode, Duration: result.Duration}
	switch {
	case result.Interrupted:
		o.Kind = OutcomeInterrupted
	case result.TimedOut:
		o.Kind = OutcomeTimeout
		o.Reason = TimeoutError
	case result.ExitCode != 0:
		o.Kind = OutcomeToolError
		o.Reason = failureReason(result.Diagnostic(), fmt.Sprintf("exit code %d", result.ExitCode))
	default:
		if _, err := r.fs().Stat(out); err != nil {
			o.Kind = OutcomeToolError
			o.Reason = failureReason(result.Diagnostic(), "output file not created")
		} else {
			o.Kind = OutcomeSuccess
		}
	}

	if o.Kind != OutcomeSuccess {
		r.removePartial(out)
	}
	return o
}

func (r *Runner) removePartial(path string) {
	if r.KeepPartial {
		return
	}
	err := r.fs().Remove(path)
	if err != nil && !os.IsNotExist(err) {
		r.logger().Warn("could not remove partial output", "path", path, "error", err)
	}
}

func (r *Runner) timeoutHint() string {
	if sr, ok := r.Tool.(interface{ Timeout() time.Duration }); ok {
		return sr.Timeout().String()
	}
	return ""
}

func (r *Runner) fs() afero.Fs {
	if r.Fs == nil {
		return afero.NewOsFs()
	}
	return r.Fs
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return logging.Discard()
	}
	return r.Logger
}

func failureReason(diagnostic, fallback string) string {
	reason := "Processing failed: " + fallback
	if d := strings.TrimSpace(diagnostic); d != "" {
		if len(d) > maxReasonBytes {
			d = d[len(d)-maxReasonBytes:]
		}
		reason = "Processing failed: " + d
	}
	return reason
}
