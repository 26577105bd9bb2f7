// Package config provides configuration management for swapbatch.
// Values are resolved from defaults, an optional config file, SWAPBATCH_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// Default values
	DefaultWorkspace         = "/workspace"
	DefaultReferenceName     = "refmodel.jpg"
	DefaultToolRepo          = "https://github.com/facefusion/facefusion"
	DefaultExecutionProvider = "cuda"
	DefaultTimeout           = 300 * time.Second
	DefaultInstallTimeout    = 30 * time.Minute
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
	DefaultPort              = 8788

	// Workspace layout
	InputDirName  = "inputmedia"
	OutputDirName = "output"
	ToolDirName   = "facefusion"
	StateDirName  = ".swapbatch"
	DBFilename    = "history.db"

	// EnvPrefix is prepended to every key when read from the environment,
	// e.g. SWAPBATCH_INPUT_DIR.
	EnvPrefix = "SWAPBATCH"
)

// Configuration keys. Flag names use dashes; they are bound to the
// underscore form of the same key.
const (
	KeyConfigFile        = "config"
	KeyWorkspace         = "workspace"
	KeyInputDir          = "input_dir"
	KeyOutputDir         = "output_dir"
	KeyReferenceName     = "reference_name"
	KeyToolDir           = "tool_dir"
	KeyToolRepo          = "tool_repo"
	KeyPython            = "python"
	KeyExecutionProvider = "execution_provider"
	KeyTimeout           = "timeout"
	KeyInstallTimeout    = "install_timeout"
	KeyKeepPartial       = "keep_partial"
	KeyLogLevel          = "log_level"
	KeyLogFormat         = "log_format"
	KeyDBPath            = "db_path"
	KeyPort              = "port"
	KeyAPIToken          = "api_token"
)

// Config defines the application configuration interface
type Config interface {
	Workspace() string
	InputDir() string
	OutputDir() string
	ReferenceName() string
	ReferencePath() string
	ToolDir() string
	ToolRepo() string
	Python() string
	ExecutionProvider() string
	Timeout() time.Duration
	InstallTimeout() time.Duration
	KeepPartial() bool
	LogLevel() string
	LogFormat() string
	DBPath() string
	Port() int
	APIToken() string
}

// EnvConfig is the viper-backed Config implementation.
type EnvConfig struct {
	v *viper.Viper
}

// New resolves configuration. flags may be nil; when given, every flag is
// bound to the key of the same name with dashes replaced by underscores.
func New(flags *pflag.FlagSet) (*EnvConfig, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			if bindErr != nil {
				return
			}
			bindErr = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
		})
		if bindErr != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", bindErr)
		}
	}

	if file := v.GetString(KeyConfigFile); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	cfg := &EnvConfig{v: v}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyWorkspace, DefaultWorkspace)
	v.SetDefault(KeyReferenceName, DefaultReferenceName)
	v.SetDefault(KeyToolRepo, DefaultToolRepo)
	v.SetDefault(KeyExecutionProvider, DefaultExecutionProvider)
	v.SetDefault(KeyTimeout, DefaultTimeout)
	v.SetDefault(KeyInstallTimeout, DefaultInstallTimeout)
	v.SetDefault(KeyKeepPartial, false)
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
	v.SetDefault(KeyLogFormat, DefaultLogFormat)
	v.SetDefault(KeyPort, DefaultPort)
}

// MinTimeout is the smallest accepted timeout. A bare number such as 300 is
// parsed as nanoseconds, so anything below a second is rejected.
const MinTimeout = time.Second

func (c *EnvConfig) validate() error {
	for _, key := range []string{KeyTimeout, KeyInstallTimeout} {
		if d := c.v.GetDuration(key); d < MinTimeout {
			return fmt.Errorf("invalid %s: %s is below %s (durations need a unit, e.g. 300s)", key, d, MinTimeout)
		}
	}
	if port := c.Port(); port < 1 || port > 65535 {
		return fmt.Errorf("invalid %s: port must be between 1 and 65535", KeyPort)
	}
	switch c.LogFormat() {
	case "text", "json":
	default:
		return fmt.Errorf("invalid %s: %q (want text or json)", KeyLogFormat, c.LogFormat())
	}
	if strings.ContainsAny(c.ReferenceName(), `/\`) {
		return fmt.Errorf("invalid %s: must be a bare file name", KeyReferenceName)
	}
	return nil
}

// Workspace returns the workspace root all default paths hang off.
func (c *EnvConfig) Workspace() string {
	return c.v.GetString(KeyWorkspace)
}

// InputDir returns the directory scanned for media files.
func (c *EnvConfig) InputDir() string {
	return c.pathOr(KeyInputDir, InputDirName)
}

// OutputDir returns the directory receiving swapped files and statistics.json.
func (c *EnvConfig) OutputDir() string {
	return c.pathOr(KeyOutputDir, OutputDirName)
}

func (c *EnvConfig) ReferenceName() string {
	return c.v.GetString(KeyReferenceName)
}

// ReferencePath returns the reference image location inside the input directory.
func (c *EnvConfig) ReferencePath() string {
	return filepath.Join(c.InputDir(), c.ReferenceName())
}

func (c *EnvConfig) ToolDir() string {
	return c.pathOr(KeyToolDir, ToolDirName)
}

func (c *EnvConfig) ToolRepo() string {
	return c.v.GetString(KeyToolRepo)
}

// Python returns the configured interpreter; empty means auto-detect.
func (c *EnvConfig) Python() string {
	return c.v.GetString(KeyPython)
}

func (c *EnvConfig) ExecutionProvider() string {
	return c.v.GetString(KeyExecutionProvider)
}

// Timeout bounds a single tool invocation.
func (c *EnvConfig) Timeout() time.Duration {
	return c.v.GetDuration(KeyTimeout)
}

func (c *EnvConfig) InstallTimeout() time.Duration {
	return c.v.GetDuration(KeyInstallTimeout)
}

// KeepPartial reports whether output left behind by a failed invocation is kept.
func (c *EnvConfig) KeepPartial() bool {
	return c.v.GetBool(KeyKeepPartial)
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.v.GetString(KeyLogLevel)
}

func (c *EnvConfig) LogFormat() string {
	return strings.ToLower(c.v.GetString(KeyLogFormat))
}

// DBPath returns the full path to the SQLite run history database.
func (c *EnvConfig) DBPath() string {
	if p := c.v.GetString(KeyDBPath); p != "" {
		return p
	}
	return filepath.Join(c.Workspace(), StateDirName, DBFilename)
}

// Port returns the history API port
func (c *EnvConfig) Port() int {
	return c.v.GetInt(KeyPort)
}

func (c *EnvConfig) APIToken() string {
	return c.v.GetString(KeyAPIToken)
}

func (c *EnvConfig) pathOr(key, name string) string {
	if p := c.v.GetString(key); p != "" {
		return p
	}
	return filepath.Join(c.Workspace(), name)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
