//go:build unix

package tool

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakeTool writes an executable shell script standing in for the python
// interpreter. Positional arguments follow SwapArgs: $7 is the output path.
func fakeTool(t *testing.T, body string) Config {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("no sh on PATH")
	}

	dir := t.TempDir()
	script := filepath.Join(dir, "fake-python")
	if err := os.WriteFile(script, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatalf("write fake tool: %v", err)
	}

	cfg := DefaultConfig(dir, nil)
	cfg.PythonPath = script
	return cfg
}

func TestSubprocessRunner_SwapSuccess(t *testing.T) {
	cfg := fakeTool(t, `echo swapped > "$7"`)
	r, err := NewRunner(cfg)
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}

	out := filepath.Join(t.TempDir(), "a_swapped.mp4")
	result := r.Swap(context.Background(), SwapRequest{SourceImage: "ref.jpg", Target: "a.mp4", Output: out})

	if !result.IsSuccess() {
		t.Fatalf("expected success, got %+v", result)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("output not written: %v", err)
	}
}

func TestSubprocessRunner_SwapFailureCapturesStderr(t *testing.T) {
	cfg := fakeTool(t, `echo "no face detected" >&2; exit 3`)
	r, err := NewRunner(cfg)
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}

	result := r.Swap(context.Background(), SwapRequest{SourceImage: "ref.jpg", Target: "a.mp4", Output: "out.mp4"})

	if result.IsSuccess() {
		t.Fatal("expected failure")
	}
	if result.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", result.ExitCode)
	}
	if result.TimedOut {
		t.Error("TimedOut should be false")
	}
	if !strings.Contains(result.Diagnostic(), "no face detected") {
		t.Errorf("Diagnostic() = %q", result.Diagnostic())
	}
}

func TestSubprocessRunner_TimeoutKillsProcessGroup(t *testing.T) {
	// The background sleep inherits stdout; if only the direct child were
	// killed, Run would block on the pipe until WaitDelay.
	cfg := fakeTool(t, "sleep 30 &\nsleep 30")
	cfg.Timeout = 300 * time.Millisecond
	r, err := NewRunner(cfg)
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}

	start := time.Now()
	result := r.Swap(context.Background(), SwapRequest{SourceImage: "ref.jpg", Target: "a.mp4", Output: "out.mp4"})
	elapsed := time.Since(start)

	if !result.TimedOut {
		t.Fatalf("expected TimedOut, got %+v", result)
	}
	if result.IsSuccess() {
		t.Error("timed out run must not be a success")
	}
	if elapsed >= waitDelay {
		t.Errorf("Swap returned after %s; the process group was not killed", elapsed)
	}
}

func TestSubprocessRunner_ParentCancel(t *testing.T) {
	cfg := fakeTool(t, "sleep 30")
	r, err := NewRunner(cfg)
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	result := r.Swap(ctx, SwapRequest{SourceImage: "ref.jpg", Target: "a.mp4", Output: "out.mp4"})
	if !result.Interrupted {
		t.Fatalf("expected Interrupted, got %+v", result)
	}
	if result.TimedOut {
		t.Error("cancellation must not be reported as a timeout")
	}
}

func TestSubprocessRunner_InstallRunsInToolDir(t *testing.T) {
	cfg := fakeTool(t, `pwd > installed.txt; echo "$1" >> installed.txt`)
	r, err := NewRunner(cfg)
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}

	result := r.Install(context.Background())
	if !result.IsSuccess() {
		t.Fatalf("Install() = %+v", result)
	}

	data, err := os.ReadFile(filepath.Join(cfg.ToolDir, "installed.txt"))
	if err != nil {
		t.Fatalf("install script did not run in tool dir: %v", err)
	}
	if !strings.Contains(string(data), "install.py") {
		t.Errorf("install script args = %q, want install.py", string(data))
	}
}

func TestSubprocessRunner_ExitStatusWinsOverHeldPipes(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"clean exit", `echo swapped > "$7"; sleep 2 & exit 0`, 0},
		{"failed exit", `sleep 2 & exit 4`, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// The background sleep inherits stdout and outlives the tool.
			cfg := fakeTool(t, tt.body)
			cfg.WaitDelay = 200 * time.Millisecond
			r, err := NewRunner(cfg)
			if err != nil {
				t.Fatalf("NewRunner() error = %v", err)
			}

			out := filepath.Join(t.TempDir(), "a_swapped.mp4")
			start := time.Now()
			result := r.Swap(context.Background(), SwapRequest{SourceImage: "ref.jpg", Target: "a.mp4", Output: out})

			if result.ExitCode != tt.wantCode {
				t.Fatalf("ExitCode = %d, want %d (%+v)", result.ExitCode, tt.wantCode, result)
			}
			if got := result.IsSuccess(); got != (tt.wantCode == 0) {
				t.Errorf("IsSuccess() = %v", got)
			}
			if elapsed := time.Since(start); elapsed >= 2*time.Second {
				t.Errorf("Swap waited %s for the background process", elapsed)
			}
		})
	}
}
