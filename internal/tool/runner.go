package tool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"
)

const (
	maxCaptureBytes = 8 * 1024 // 8 KB tail of each stream kept for diagnostics

	// waitDelay bounds how long Wait blocks on the child's output pipes after
	// the process group was killed.
	waitDelay = 5 * time.Second
)

// Runner executes the external tool as subprocesses.
type Runner interface {
	// Swap runs `python run.py -s <src> -t <target> -o <out> --execution-providers <p>`
	// inside the tool directory, bounded by the configured timeout.
	Swap(ctx context.Context, req SwapRequest) RunResult

	// Install runs `python install.py` inside the tool directory.
	Install(ctx context.Context) RunResult

	// ToolDir returns the directory the tool is installed in.
	ToolDir() string
}

// Config holds the runner's configuration.
type Config struct {
	PythonPath        string        // path to python binary; empty = auto-detect
	ToolDir           string        // checkout of the tool
	Entrypoint        string        // script run per file, default run.py
	InstallScript     string        // default install.py
	InstallArgs       []string      // extra arguments for the install script
	ExecutionProvider string        // e.g. cuda
	Timeout           time.Duration // bound on a single swap
	InstallTimeout    time.Duration // bound on the install script
	WaitDelay         time.Duration // wait for output pipes after exit or kill; default 5s
	Logger            *slog.Logger
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig(toolDir string, logger *slog.Logger) Config {
	return Config{
		PythonPath:        "", // auto-detect
		ToolDir:           toolDir,
		Entrypoint:        "run.py",
		InstallScript:     "install.py",
		ExecutionProvider: "cuda",
		Timeout:           300 * time.Second,
		InstallTimeout:    30 * time.Minute,
		Logger:            logger,
	}
}

// SubprocessRunner is the production implementation of Runner.
type SubprocessRunner struct {
	cfg    Config
	python string // resolved python path
}

// NewRunner creates a SubprocessRunner, resolving the Python binary path.
func NewRunner(cfg Config) (*SubprocessRunner, error) {
	python, err := ResolvePython(cfg.PythonPath)
	if err != nil {
		return nil, fmt.Errorf("cannot locate python: %w", err)
	}
	if cfg.Entrypoint == "" {
		cfg.Entrypoint = "run.py"
	}
	if cfg.InstallScript == "" {
		cfg.InstallScript = "install.py"
	}
	if cfg.WaitDelay <= 0 {
		cfg.WaitDelay = waitDelay
	}

	if cfg.Logger != nil {
		cfg.Logger.Debug("tool runner initialised",
			"python", python,
			"tool_dir", cfg.ToolDir,
			"timeout", cfg.Timeout,
		)
	}

	return &SubprocessRunner{cfg: cfg, python: python}, nil
}

func (r *SubprocessRunner) ToolDir() string {
	return r.cfg.ToolDir
}

// Timeout is the bound applied to each Swap.
func (r *SubprocessRunner) Timeout() time.Duration {
	return r.cfg.Timeout
}

// Python returns the resolved interpreter path.
func (r *SubprocessRunner) Python() string {
	return r.python
}

// Swap runs the tool once for a single target.
func (r *SubprocessRunner) Swap(ctx context.Context, req SwapRequest) RunResult {
	return r.exec(ctx, r.cfg.Timeout, SwapArgs(r.cfg.Entrypoint, req, r.cfg.ExecutionProvider)...)
}

// Install runs the tool's own installation procedure.
func (r *SubprocessRunner) Install(ctx context.Context) RunResult {
	args := append([]string{r.cfg.InstallScript}, r.cfg.InstallArgs...)
	return r.exec(ctx, r.cfg.InstallTimeout, args...)
}

// SwapArgs builds the argument list passed to the interpreter for one swap.
func SwapArgs(entrypoint string, req SwapRequest, provider string) []string {
	args := []string{
		entrypoint,
		"-s", req.SourceImage,
		"-t", req.Target,
		"-o", req.Output,
	}
	if provider != "" {
		args = append(args, "--execution-providers", provider)
	}
	return args
}

// exec is the core subprocess execution helper. The child runs in its own
// process group so that a timeout or cancellation kills everything it spawned.
func (r *SubprocessRunner) exec(parent context.Context, timeout time.Duration, args ...string) RunResult {
	start := time.Now()

	ctx := parent
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.python, args...)
	cmd.Dir = r.cfg.ToolDir
	configureProcessGroup(cmd)
	cmd.WaitDelay = r.cfg.WaitDelay

	// Capture both streams with bounded buffers
	var stderrBuf, stdoutBuf bytes.Buffer
	cmd.Stderr = io.Writer(&limitedWriter{w: &stderrBuf, limit: maxCaptureBytes})
	cmd.Stdout = io.Writer(&limitedWriter{w: &stdoutBuf, limit: maxCaptureBytes})

	r.debug("executing tool command", "args", args, "timeout", timeout)

	err := cmd.Run()
	elapsed := time.Since(start)

	result := RunResult{
		StderrTail: stderrBuf.String(),
		StdoutTail: stdoutBuf.String(),
		Duration:   elapsed,
	}

	if err != nil {
		switch {
		case parent.Err() != nil:
			result.Interrupted = true
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			result.TimedOut = true
		}

		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr):
			result.ExitCode = exitErr.ExitCode()
		case errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil:
			// The tool itself exited; a process it left behind kept the
			// output pipes open. Its exit status still decides the result.
			result.ExitCode = cmd.ProcessState.ExitCode()
			r.debug("tool exited with output pipes still held open", "exit_code", result.ExitCode)
		default:
			result.ExitCode = -1
			if result.StderrTail == "" {
				result.StderrTail = err.Error()
			}
		}
	}

	if result.IsSuccess() {
		r.debug("tool command succeeded", "duration_ms", elapsed.Milliseconds())
	} else {
		r.debug("tool command failed",
			"exit_code", result.ExitCode,
			"timed_out", result.TimedOut,
			"interrupted", result.Interrupted,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(result.StderrTail, 512),
		)
	}

	return result
}

func (r *SubprocessRunner) debug(msg string, args ...any) {
	if r.cfg.Logger != nil {
		r.cfg.Logger.Debug(msg, args...)
	}
}

// ResolvePython finds a usable python binary: preferred if set, else python
// then python3 on PATH.
func ResolvePython(preferred string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured python %q not found", preferred)
	}
	for _, name := range []string{"python", "python3"} {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no python binary found on PATH (tried python, python3)")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		// Keep only the tail
		b := lw.w.Bytes()
		tail := make([]byte, lw.limit)
		copy(tail, b[len(b)-lw.limit:])
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}
