package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/swapbatch/swapbatch/internal/batch"
	"github.com/swapbatch/swapbatch/internal/config"
	"github.com/swapbatch/swapbatch/internal/db"
	"github.com/swapbatch/swapbatch/internal/history"
	"github.com/swapbatch/swapbatch/internal/install"
	"github.com/swapbatch/swapbatch/internal/logging"
	"github.com/swapbatch/swapbatch/internal/preflight"
	"github.com/swapbatch/swapbatch/internal/report"
	"github.com/swapbatch/swapbatch/internal/tool"
)

var phaseRule = strings.Repeat("=", 60)

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Validate, install if needed, process every media file and report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withContext(a.runBatch)
		},
	}
}

func (a *app) phase(n int, title string) {
	a.logger.Info(phaseRule)
	a.logger.Info(fmt.Sprintf("Phase %d: %s", n, title))
	a.logger.Info(phaseRule)
}

// runBatch executes the four phases in order. Validation and installation
// failures abort before any file is touched. Once processing has started the
// statistics file is always written, including after an interrupt.
func (a *app) runBatch(ctx context.Context) error {
	cfg := a.cfg
	logger := a.logger
	stats := batch.NewRunStatistics(time.Now())

	a.phase(1, "Environment validation")
	a.logEnvironment(ctx)

	validator := &preflight.Validator{
		Fs:            afero.NewOsFs(),
		InputDir:      cfg.InputDir(),
		ReferenceName: cfg.ReferenceName(),
		Logger:        logger,
	}
	checked, err := validator.Validate(ctx)
	if err != nil {
		return err
	}
	stats.SetTotal(len(checked.Files))

	a.phase(2, "Tool installation")

	toolCfg := tool.DefaultConfig(cfg.ToolDir(), logging.WithComponent(logger, "tool"))
	toolCfg.PythonPath = cfg.Python()
	toolCfg.ExecutionProvider = cfg.ExecutionProvider()
	toolCfg.Timeout = cfg.Timeout()
	toolCfg.InstallTimeout = cfg.InstallTimeout()

	runner, err := a.deps.newTool(toolCfg)
	if err != nil {
		return err
	}

	installer := &install.Installer{
		Dir:     cfg.ToolDir(),
		RepoURL: cfg.ToolRepo(),
		Cloner:  a.deps.cloner,
		Setup:   runner,
		Logger:  logger,
	}
	if _, err := installer.Ensure(ctx); err != nil {
		if ctx.Err() != nil {
			return errInterrupted
		}
		return err
	}

	a.phase(3, "Batch processing")

	recorder, closeHistory := a.openRecorder(ctx, stats)
	defer closeHistory()

	br := &batch.Runner{
		Tool:        runner,
		Fs:          afero.NewOsFs(),
		Reference:   checked.Reference.Path,
		OutputDir:   cfg.OutputDir(),
		KeepPartial: cfg.KeepPartial(),
		Logger:      logger,
	}
	if recorder != nil {
		br.Observer = recorder
	}

	runErr := br.Run(ctx, checked.Files, stats)
	stats.Finish(time.Now())
	if recorder != nil {
		recorder.Finish(ctx, stats, runErr)
	}
	if runErr != nil && !stats.Interrupted {
		return runErr
	}

	a.phase(4, "Report")

	reporter := &report.Reporter{
		OutputDir: cfg.OutputDir(),
		Logger:    logger,
	}
	if cfg.LogFormat() != "json" {
		reporter.Out = a.stdout
	}
	if _, err := reporter.Report(stats); err != nil {
		return fmt.Errorf("write statistics: %w", err)
	}

	if stats.Interrupted {
		return errInterrupted
	}
	return nil
}

// logEnvironment prints the banner and host probe. A missing interpreter is
// only reported here; it becomes fatal when the tool is set up.
func (a *app) logEnvironment(ctx context.Context) {
	python, err := tool.ResolvePython(a.cfg.Python())
	if err != nil {
		a.logger.Warn("python not found", "error", err)
	}
	caps := tool.NewDoctor(python, a.logger).Probe(ctx)

	preflight.LogEnvironment(a.logger, preflight.Banner{
		Version:   config.Version,
		Workspace: a.cfg.Workspace(),
		ToolDir:   a.cfg.ToolDir(),
	}, caps)
}

// openRecorder opens the run history and starts a run record. History is
// best effort: when the database cannot be opened the batch still runs and
// the returned recorder is nil.
func (a *app) openRecorder(ctx context.Context, stats *batch.RunStatistics) (*history.Recorder, func()) {
	logger := a.logger
	noop := func() {}

	database, err := db.New(a.cfg.DBPath(), logging.WithComponent(logger, "db"))
	if err != nil {
		logger.Warn("run history unavailable", "path", a.cfg.DBPath(), "error", err)
		return nil, noop
	}
	closeDB := func() {
		if err := database.Close(); err != nil {
			logger.Warn("failed to close run history", "error", err)
		}
	}

	if n, err := database.MarkInterruptedRuns(ctx); err != nil {
		logger.Warn("failed to close out stale runs", "error", err)
	} else if n > 0 {
		logger.Info("marked stale runs as interrupted", "count", n)
	}

	id := history.NewID()
	recorder := history.NewRecorder(history.NewRepository(database.Conn()), logging.WithRunID(logger, id))
	if err := recorder.Start(ctx, id, a.cfg.InputDir(), a.cfg.OutputDir(), a.cfg.ReferencePath(), stats); err != nil {
		logger.Warn("failed to record run start", "error", err)
		closeDB()
		return nil, noop
	}
	logger.Debug("recording run", "run_id", id)

	return recorder, closeDB
}
