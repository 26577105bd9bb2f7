package main

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/swapbatch/swapbatch/internal/report"
	"github.com/swapbatch/swapbatch/internal/tool"
)

// fakeSwapper stands in for the installed tool.
type fakeSwapper struct {
	dir   string
	swap  func(ctx context.Context, req tool.SwapRequest) tool.RunResult
	calls []tool.SwapRequest
}

func (f *fakeSwapper) Swap(ctx context.Context, req tool.SwapRequest) tool.RunResult {
	f.calls = append(f.calls, req)
	return f.swap(ctx, req)
}

func (f *fakeSwapper) Install(ctx context.Context) tool.RunResult { return tool.RunResult{} }
func (f *fakeSwapper) ToolDir() string                            { return f.dir }

type failingCloner struct{ called bool }

func (c *failingCloner) Clone(ctx context.Context, url, dir string) error {
	c.called = true
	return errors.New("network disabled in tests")
}

func writeOutput(ctx context.Context, req tool.SwapRequest) tool.RunResult {
	if err := os.WriteFile(req.Output, []byte("swapped"), 0644); err != nil {
		return tool.RunResult{ExitCode: 1, StderrTail: err.Error()}
	}
	return tool.RunResult{ExitCode: 0}
}

// newWorkspace lays out an input dir with a reference and the given media
// files, plus an existing tool dir so installation is skipped.
func newWorkspace(t *testing.T, files ...string) string {
	t.Helper()
	ws := t.TempDir()
	in := filepath.Join(ws, "inputmedia")
	if err := os.MkdirAll(in, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(ws, "facefusion"), 0755); err != nil {
		t.Fatal(err)
	}

	img := image.NewRGBA(image.Rect(0, 0, 200, 160))
	for x := 0; x < 200; x++ {
		img.Set(x, x%160, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(in, "refmodel.jpg"), buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	for _, name := range files {
		if err := os.WriteFile(filepath.Join(in, name), []byte("media "+name), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return ws
}

// testDeps gives every command invocation its own child of parent, the way
// signalContext does for real runs.
func testDeps(parent context.Context, fake *fakeSwapper, cloner *failingCloner) deps {
	return deps{
		newTool: func(c tool.Config) (tool.Runner, error) {
			fake.dir = c.ToolDir
			return fake, nil
		},
		cloner: cloner,
		baseContext: func() (context.Context, context.CancelFunc) {
			return context.WithCancel(parent)
		},
	}
}

func TestRun_ProcessesEveryFile(t *testing.T) {
	ws := newWorkspace(t, "a.mp4", "b.jpg")
	fake := &fakeSwapper{swap: writeOutput}
	cloner := &failingCloner{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stdout, stderr bytes.Buffer
	code := execute([]string{"--workspace", ws}, &stdout, &stderr, testDeps(ctx, fake, cloner))
	if code != 0 {
		t.Fatalf("exit code = %d\nstdout:\n%s\nstderr:\n%s", code, stdout.String(), stderr.String())
	}
	if cloner.called {
		t.Error("existing tool dir must not be cloned again")
	}
	if len(fake.calls) != 2 {
		t.Fatalf("tool invoked %d times, want 2", len(fake.calls))
	}
	if got := fake.calls[0].SourceImage; got != filepath.Join(ws, "inputmedia", "refmodel.jpg") {
		t.Errorf("source image = %q", got)
	}

	out := filepath.Join(ws, "output")
	for _, name := range []string{"a_swapped.mp4", "b_swapped.jpg"} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Errorf("missing output %s: %v", name, err)
		}
	}

	stats, err := report.ReadStatistics(filepath.Join(out, report.StatisticsFile))
	if err != nil {
		t.Fatalf("ReadStatistics() error = %v", err)
	}
	if stats.Total != 2 || stats.Successful != 2 || stats.Failed != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.EndTime == nil {
		t.Error("end_time not set")
	}

	log := stdout.String()
	for _, want := range []string{"Phase 1", "Phase 4", "found media files", "100.0%"} {
		if !strings.Contains(log, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestRun_ToolFailureIsCounted(t *testing.T) {
	ws := newWorkspace(t, "a.mp4", "b.jpg")
	fake := &fakeSwapper{swap: func(ctx context.Context, req tool.SwapRequest) tool.RunResult {
		if strings.HasSuffix(req.Target, "a.mp4") {
			return tool.RunResult{ExitCode: 1, StderrTail: "no face detected"}
		}
		return writeOutput(ctx, req)
	}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stdout, stderr bytes.Buffer
	code := execute([]string{"--workspace", ws}, &stdout, &stderr, testDeps(ctx, fake, &failingCloner{}))
	if code != 0 {
		t.Fatalf("per-file failures must not fail the run, exit code = %d\n%s", code, stdout.String())
	}

	stats, err := report.ReadStatistics(filepath.Join(ws, "output", report.StatisticsFile))
	if err != nil {
		t.Fatal(err)
	}
	if stats.Successful != 1 || stats.Failed != 1 || len(stats.Errors) != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if !strings.Contains(stats.Errors[0].Error, "no face detected") {
		t.Errorf("error reason = %q", stats.Errors[0].Error)
	}
	if !strings.Contains(stdout.String(), "50.0%") {
		t.Error("summary rate not logged")
	}
}

func TestRun_InterruptWritesPartialStatistics(t *testing.T) {
	ws := newWorkspace(t, "a.mp4", "b.jpg")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fake := &fakeSwapper{swap: func(_ context.Context, req tool.SwapRequest) tool.RunResult {
		cancel()
		return tool.RunResult{ExitCode: -1, Interrupted: true}
	}}

	var stdout, stderr bytes.Buffer
	code := execute([]string{"--workspace", ws}, &stdout, &stderr, testDeps(ctx, fake, &failingCloner{}))
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if len(fake.calls) != 1 {
		t.Errorf("tool invoked %d times after interrupt, want 1", len(fake.calls))
	}

	stats, err := report.ReadStatistics(filepath.Join(ws, "output", report.StatisticsFile))
	if err != nil {
		t.Fatalf("statistics not written after interrupt: %v", err)
	}
	if !stats.Interrupted || stats.Total != 2 || stats.Successful != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if !strings.Contains(stdout.String(), "process interrupted by user") {
		t.Errorf("interrupt not logged:\n%s", stdout.String())
	}
}

func TestRun_FatalValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, ws string)
		want    string
	}{
		{
			name:    "missing reference",
			prepare: func(t *testing.T, ws string) { os.Remove(filepath.Join(ws, "inputmedia", "refmodel.jpg")) },
			want:    "reference image not found",
		},
		{
			name: "corrupt reference",
			prepare: func(t *testing.T, ws string) {
				os.WriteFile(filepath.Join(ws, "inputmedia", "refmodel.jpg"), []byte("not an image"), 0644)
			},
			want: "could not be decoded",
		},
		{
			name:    "no media",
			prepare: func(t *testing.T, ws string) { os.Remove(filepath.Join(ws, "inputmedia", "a.mp4")) },
			want:    "no media files found",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := newWorkspace(t, "a.mp4")
			tt.prepare(t, ws)
			fake := &fakeSwapper{swap: writeOutput}
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			var stdout, stderr bytes.Buffer
			code := execute([]string{"run", "--workspace", ws}, &stdout, &stderr, testDeps(ctx, fake, &failingCloner{}))
			if code != 1 {
				t.Fatalf("exit code = %d, want 1", code)
			}
			if len(fake.calls) != 0 {
				t.Error("tool must not run after a failed validation")
			}
			if !strings.Contains(stdout.String(), "fatal error") || !strings.Contains(stdout.String(), tt.want) {
				t.Errorf("output missing %q:\n%s", tt.want, stdout.String())
			}
			if _, err := os.Stat(filepath.Join(ws, "output", report.StatisticsFile)); err == nil {
				t.Error("statistics must not be written when validation fails")
			}
		})
	}
}

func TestRun_ValidationPrecedesPythonLookup(t *testing.T) {
	ws := newWorkspace(t, "a.mp4")
	if err := os.Remove(filepath.Join(ws, "inputmedia", "refmodel.jpg")); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := testDeps(ctx, &fakeSwapper{swap: writeOutput}, &failingCloner{})
	d.newTool = func(tool.Config) (tool.Runner, error) {
		return nil, errors.New("cannot locate python: no python binary found on PATH")
	}

	var stdout, stderr bytes.Buffer
	if code := execute([]string{"--workspace", ws}, &stdout, &stderr, d); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	log := stdout.String()
	if !strings.Contains(log, "reference image not found") {
		t.Errorf("validation error not reported:\n%s", log)
	}
	if strings.Contains(log, "cannot locate python") {
		t.Errorf("python lookup ran before validation:\n%s", log)
	}
}

func TestRun_InstallFailureIsFatal(t *testing.T) {
	ws := newWorkspace(t, "a.mp4")
	if err := os.Remove(filepath.Join(ws, "facefusion")); err != nil {
		t.Fatal(err)
	}
	fake := &fakeSwapper{swap: writeOutput}
	cloner := &failingCloner{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stdout, stderr bytes.Buffer
	code := execute([]string{"--workspace", ws}, &stdout, &stderr, testDeps(ctx, fake, cloner))
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !cloner.called {
		t.Error("missing tool dir should trigger a clone")
	}
	if len(fake.calls) != 0 {
		t.Error("tool must not run after a failed install")
	}
}

func TestCheck(t *testing.T) {
	ws := newWorkspace(t, "a.mp4")
	fake := &fakeSwapper{swap: writeOutput}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stdout, stderr bytes.Buffer
	if code := execute([]string{"check", "--workspace", ws}, &stdout, &stderr, testDeps(ctx, fake, &failingCloner{})); code != 0 {
		t.Fatalf("exit code = %d\n%s", code, stdout.String())
	}
	if len(fake.calls) != 0 {
		t.Error("check must not process files")
	}
	if _, err := os.Stat(filepath.Join(ws, "output")); err == nil {
		t.Error("check must not create the output dir")
	}
}

func TestCheck_SummarisesPreviousRun(t *testing.T) {
	ws := newWorkspace(t, "a.mp4", "b.jpg")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d := testDeps(ctx, &fakeSwapper{swap: writeOutput}, &failingCloner{})

	var stdout, stderr bytes.Buffer
	if code := execute([]string{"--workspace", ws}, &stdout, &stderr, d); code != 0 {
		t.Fatalf("run exit code = %d\n%s", code, stdout.String())
	}

	stdout.Reset()
	if code := execute([]string{"check", "--workspace", ws}, &stdout, &stderr, d); code != 0 {
		t.Fatalf("check exit code = %d\n%s", code, stdout.String())
	}
	log := stdout.String()
	if !strings.Contains(log, "previous run") || !strings.Contains(log, "successful=2/2") {
		t.Errorf("previous run not summarised:\n%s", log)
	}
}

func TestHistory_ListsRecordedRuns(t *testing.T) {
	ws := newWorkspace(t, "a.mp4")
	fake := &fakeSwapper{swap: writeOutput}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d := testDeps(ctx, fake, &failingCloner{})

	var stdout, stderr bytes.Buffer
	if code := execute([]string{"--workspace", ws}, &stdout, &stderr, d); code != 0 {
		t.Fatalf("run exit code = %d\n%s", code, stdout.String())
	}

	stdout.Reset()
	if code := execute([]string{"history", "--workspace", ws}, &stdout, &stderr, d); code != 0 {
		t.Fatalf("history exit code = %d\n%s", code, stdout.String())
	}
	if !strings.Contains(stdout.String(), "completed") {
		t.Errorf("history output:\n%s", stdout.String())
	}
}

func TestConfigError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stdout, stderr bytes.Buffer
	code := execute([]string{"--workspace", t.TempDir(), "--log-format", "xml"}, &stdout, &stderr,
		testDeps(ctx, &fakeSwapper{swap: writeOutput}, &failingCloner{}))
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "configuration error") {
		t.Errorf("stderr = %q", stderr.String())
	}
}
