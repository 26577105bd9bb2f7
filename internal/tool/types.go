// Package tool provides subprocess-based execution of the external
// face-swapping tool (run.py / install.py) and a diagnostic probe of the
// host it runs on.
package tool

import (
	"strings"
	"time"
)

// SwapRequest names the three paths a single swap invocation works on.
type SwapRequest struct {
	SourceImage string // reference face
	Target      string // media file to transform
	Output      string // where the tool must write its result
}

// RunResult is the structured outcome of executing a tool subprocess.
type RunResult struct {
	ExitCode    int           `json:"exit_code"`
	StderrTail  string        `json:"stderr_tail,omitempty"` // last N bytes of stderr
	StdoutTail  string        `json:"stdout_tail,omitempty"` // last N bytes of stdout
	Duration    time.Duration `json:"duration"`
	TimedOut    bool          `json:"timed_out,omitempty"`
	Interrupted bool          `json:"interrupted,omitempty"`
}

// IsSuccess returns true when the subprocess exited cleanly on its own.
func (r RunResult) IsSuccess() bool {
	return r.ExitCode == 0 && !r.TimedOut && !r.Interrupted
}

// Diagnostic returns the most useful captured text for an error report:
// stderr when the tool wrote any, stdout otherwise.
func (r RunResult) Diagnostic() string {
	if s := strings.TrimSpace(r.StderrTail); s != "" {
		return s
	}
	return strings.TrimSpace(r.StdoutTail)
}

// Capabilities describes the host as seen by the doctor probe. Nothing in a
// run depends on it beyond log output.
type Capabilities struct {
	PythonVersion string    `json:"python_version,omitempty"`
	PythonPath    string    `json:"python_path,omitempty"`
	GPU           GPUInfo   `json:"gpu"`
	ProbedAt      time.Time `json:"probed_at"`
}

// GPUInfo holds GPU availability information.
type GPUInfo struct {
	Available bool        `json:"available"`
	Devices   []GPUDevice `json:"devices,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// GPUDevice is one line of nvidia-smi's device query.
type GPUDevice struct {
	Name   string `json:"name"`
	Memory string `json:"memory,omitempty"`
}
