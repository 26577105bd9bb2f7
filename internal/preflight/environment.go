package preflight

import (
	"log/slog"
	"runtime"

	"github.com/swapbatch/swapbatch/internal/logging"
	"github.com/swapbatch/swapbatch/internal/tool"
)

// Banner holds the paths printed at the top of a run.
type Banner struct {
	Version   string
	Workspace string
	ToolDir   string
}

// LogEnvironment prints the runtime banner and the host probe. Nothing here
// is fatal: a missing GPU only means the tool will run slowly.
func LogEnvironment(logger *slog.Logger, b Banner, caps *tool.Capabilities) {
	logger.Info("swapbatch starting",
		"version", b.Version,
		"go", runtime.Version(),
		"platform", runtime.GOOS+"/"+runtime.GOARCH,
	)

	if caps != nil {
		if caps.PythonVersion != "" {
			logger.Info("python detected", "version", caps.PythonVersion, "path", logging.SanitizePath(caps.PythonPath))
		}
		switch {
		case caps.GPU.Available:
			for _, d := range caps.GPU.Devices {
				logger.Info("NVIDIA GPU detected", "name", d.Name, "memory", d.Memory)
			}
		default:
			logger.Warn("no GPU detected, CPU mode (very slow)", "reason", caps.GPU.Error)
		}
	}

	logger.Info("workspace",
		"path", logging.SanitizePath(b.Workspace),
		"tool_dir", logging.SanitizePath(b.ToolDir),
	)
}
