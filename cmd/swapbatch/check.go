package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/swapbatch/swapbatch/internal/preflight"
	"github.com/swapbatch/swapbatch/internal/report"
)

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run environment validation only",
		Long: `check probes the host and validates the workspace exactly as the first
phase of a run does, then exits without installing or processing anything.
If the output directory holds statistics from an earlier run, they are
summarised as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withContext(a.check)
		},
	}
}

func (a *app) check(ctx context.Context) error {
	a.phase(1, "Environment validation")
	a.logEnvironment(ctx)

	validator := &preflight.Validator{
		Fs:            afero.NewOsFs(),
		InputDir:      a.cfg.InputDir(),
		ReferenceName: a.cfg.ReferenceName(),
		Logger:        a.logger,
	}
	checked, err := validator.Validate(ctx)
	if err != nil {
		return err
	}
	a.logPreviousRun()
	a.logger.Info("workspace is ready", "files", len(checked.Files))
	return nil
}

// logPreviousRun summarises the statistics file left by the last run, if any.
func (a *app) logPreviousRun() {
	path := filepath.Join(a.cfg.OutputDir(), report.StatisticsFile)
	prev, err := report.ReadStatistics(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return
	case err != nil:
		a.logger.Warn("unreadable statistics from previous run", "path", path, "error", err)
		return
	}

	args := []any{
		"successful", fmt.Sprintf("%d/%d", prev.Successful, prev.Total),
		"failed", prev.Failed,
	}
	if prev.EndTime != nil {
		args = append(args, "finished", humanize.Time(*prev.EndTime))
	}
	if prev.Interrupted {
		args = append(args, "interrupted", true)
	}
	a.logger.Info("previous run", args...)
}
