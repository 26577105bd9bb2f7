package tool

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

const defaultProbeTimeout = 15 * time.Second

// Doctor probes the host the tool will run on: the interpreter and the GPU.
// The result is diagnostic only.
type Doctor struct {
	Python    string // interpreter to report; empty skips the python probe
	NvidiaSMI string // default "nvidia-smi"
	Timeout   time.Duration
	Logger    *slog.Logger
}

// NewDoctor creates a Doctor with production defaults.
func NewDoctor(python string, logger *slog.Logger) *Doctor {
	return &Doctor{
		Python:    python,
		NvidiaSMI: "nvidia-smi",
		Timeout:   defaultProbeTimeout,
		Logger:    logger,
	}
}

// Probe runs every check and returns what it found. It never fails; problems
// are reported inside the returned Capabilities.
func (d *Doctor) Probe(ctx context.Context) *Capabilities {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	caps := &Capabilities{
		PythonPath: d.Python,
		GPU:        d.probeGPU(ctx),
		ProbedAt:   time.Now(),
	}

	if d.Python != "" {
		version, err := pythonVersion(ctx, d.Python)
		if err != nil && d.Logger != nil {
			d.Logger.Debug("python version probe failed", "python", d.Python, "error", err)
		}
		caps.PythonVersion = version
	}

	return caps
}

func (d *Doctor) probeGPU(ctx context.Context) GPUInfo {
	bin := d.NvidiaSMI
	if bin == "" {
		bin = "nvidia-smi"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return GPUInfo{Error: bin + " not found"}
	}

	out, err := exec.CommandContext(ctx, bin,
		"--query-gpu=name,memory.total",
		"--format=csv,noheader",
	).Output()
	if err != nil {
		return GPUInfo{Error: fmt.Sprintf("%s failed: %v", bin, err)}
	}

	devices := parseGPUList(string(out))
	if len(devices) == 0 {
		return GPUInfo{Error: "no GPU reported"}
	}
	return GPUInfo{Available: true, Devices: devices}
}

// parseGPUList parses `nvidia-smi --query-gpu=name,memory.total --format=csv,noheader`.
func parseGPUList(out string) []GPUDevice {
	var devices []GPUDevice
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, memory, _ := strings.Cut(line, ",")
		devices = append(devices, GPUDevice{
			Name:   strings.TrimSpace(name),
			Memory: strings.TrimSpace(memory),
		})
	}
	return devices
}

func pythonVersion(ctx context.Context, python string) (string, error) {
	// Python 2 prints its version on stderr.
	out, err := exec.CommandContext(ctx, python, "--version").CombinedOutput()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(string(out)), "Python")), nil
}
