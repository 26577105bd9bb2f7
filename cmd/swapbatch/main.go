// Command swapbatch runs a face-swapping tool over every media file in a
// workspace and records the results.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/swapbatch/swapbatch/internal/config"
	"github.com/swapbatch/swapbatch/internal/install"
	"github.com/swapbatch/swapbatch/internal/logging"
	"github.com/swapbatch/swapbatch/internal/tool"
)

// errInterrupted ends a run cancelled by SIGINT or SIGTERM.
var errInterrupted = errors.New("process interrupted by user")

// deps are the collaborators replaced in tests.
type deps struct {
	newTool     func(tool.Config) (tool.Runner, error)
	cloner      install.Cloner
	// baseContext returns the context commands run under. The default
	// is cancelled on SIGINT/SIGTERM.
	baseContext func() (context.Context, context.CancelFunc)
}

func defaultDeps() deps {
	return deps{
		newTool: func(c tool.Config) (tool.Runner, error) {
			r, err := tool.NewRunner(c)
			if err != nil {
				return nil, err
			}
			return r, nil
		},
		cloner:      install.GitCloner{},
		baseContext: signalContext,
	}
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr, defaultDeps()))
}

func execute(args []string, stdout, stderr io.Writer, d deps) int {
	root := newRootCmd(stdout, stderr, d)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		return 1
	}
	return 0
}

// app is the per-invocation state shared by subcommands.
type app struct {
	cfg    *config.EnvConfig
	logger *slog.Logger
	stdout io.Writer
	deps   deps
}

func newRootCmd(stdout, stderr io.Writer, d deps) *cobra.Command {
	a := &app{stdout: stdout, deps: d}

	root := &cobra.Command{
		Use:   "swapbatch",
		Short: "Batch face swapping over a workspace of photos and videos",
		Long: `swapbatch validates the workspace, installs the face-swapping tool if
needed, runs it once per media file and writes statistics.json to the
output directory. Running without a subcommand is the same as "run".`,
		Version:       config.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New(cmd.Flags())
			if err != nil {
				fmt.Fprintf(stderr, "configuration error: %v\n", err)
				return err
			}
			a.cfg = cfg
			a.logger = logging.NewLogger(cfg.LogLevel(), cfg.LogFormat(), stdout)
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "config file (yaml, toml or json)")
	pf.String("workspace", "", "workspace root (default /workspace)")
	pf.String("input-dir", "", "input directory (default <workspace>/inputmedia)")
	pf.String("output-dir", "", "output directory (default <workspace>/output)")
	pf.String("reference-name", "", "reference image file name inside the input directory (default refmodel.jpg)")
	pf.String("tool-dir", "", "tool installation directory (default <workspace>/facefusion)")
	pf.String("tool-repo", "", "repository cloned when the tool is missing")
	pf.String("python", "", "python interpreter (default: python, then python3 on PATH)")
	pf.String("execution-provider", "", "execution provider passed to the tool (default cuda)")
	pf.Duration("timeout", 0, "time limit per file (default 5m0s)")
	pf.Duration("install-timeout", 0, "time limit for the tool's install script (default 30m0s)")
	pf.Bool("keep-partial", false, "keep output left behind by failed attempts")
	pf.String("log-level", "", "debug, info, warn or error (default info)")
	pf.String("log-format", "", "text or json (default text)")
	pf.String("db-path", "", "run history database (default <workspace>/.swapbatch/history.db)")
	pf.Int("port", 0, "history API port for serve (default 8788)")
	pf.String("api-token", "", "bearer token required by the history API")

	runCmd := newRunCmd(a)
	root.RunE = runCmd.RunE

	root.AddCommand(
		runCmd,
		newCheckCmd(a),
		newHistoryCmd(a),
		newServeCmd(a),
	)
	return root
}

// withContext runs fn under the base context and logs a fatal error the way
// every other console line is logged.
func (a *app) withContext(fn func(ctx context.Context) error) error {
	ctx, cancel := a.deps.baseContext()
	defer cancel()

	err := fn(ctx)
	if err != nil && ctx.Err() != nil {
		err = errInterrupted
	}
	switch {
	case err == nil:
	case errors.Is(err, errInterrupted):
		a.logger.Warn(err.Error())
	default:
		a.logger.Error("fatal error", "error", err)
	}
	return err
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}
