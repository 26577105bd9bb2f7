// Package install makes sure the external tool is checked out and set up
// before a batch run starts.
package install

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/swapbatch/swapbatch/internal/logging"
	"github.com/swapbatch/swapbatch/internal/tool"
)

var (
	ErrCloneFailed   = errors.New("clone failed")
	ErrInstallFailed = errors.New("install failed")
)

// Cloner fetches a repository into dir.
type Cloner interface {
	Clone(ctx context.Context, url, dir string) error
}

// Setup runs the tool's own installation procedure inside its directory.
type Setup interface {
	Install(ctx context.Context) tool.RunResult
}

// GitCloner clones with go-git: shallow, default branch only.
type GitCloner struct {
	Progress io.Writer // optional
}

func (g GitCloner) Clone(ctx context.Context, url, dir string) error {
	_, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:           url,
		Progress:      g.Progress,
		ReferenceName: plumbing.HEAD,
		SingleBranch:  true,
		Depth:         1,
	})
	return err
}

// Installer is idempotent: an existing Dir is taken as a complete install.
type Installer struct {
	Dir     string
	RepoURL string
	Cloner  Cloner
	Setup   Setup
	Logger  *slog.Logger
}

// Ensure installs the tool unless Dir already exists. It reports whether any
// work was done. On failure the partially created Dir is removed so the next
// run starts from scratch instead of skipping a broken install.
func (i *Installer) Ensure(ctx context.Context) (bool, error) {
	logger := i.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	if _, err := os.Stat(i.Dir); err == nil {
		logger.Info("tool already installed, skipping", "dir", i.Dir)
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("stat %s: %w", i.Dir, err)
	}

	logger.Info("cloning tool repository", "url", i.RepoURL, "dir", i.Dir)
	if err := i.Cloner.Clone(ctx, i.RepoURL, i.Dir); err != nil {
		i.cleanup(logger)
		return false, fmt.Errorf("%w: %s: %v", ErrCloneFailed, i.RepoURL, err)
	}

	logger.Info("installing tool package")
	result := i.Setup.Install(ctx)
	if !result.IsSuccess() {
		i.cleanup(logger)
		return false, fmt.Errorf("%w: %s", ErrInstallFailed, describe(result))
	}

	logger.Info("installation complete", "duration", result.Duration.Round(time.Second))
	return true, nil
}

func (i *Installer) cleanup(logger *slog.Logger) {
	if err := os.RemoveAll(i.Dir); err != nil {
		logger.Warn("could not remove partial install", "dir", i.Dir, "error", err)
	}
}

func describe(r tool.RunResult) string {
	var b strings.Builder
	switch {
	case r.Interrupted:
		b.WriteString("interrupted")
	case r.TimedOut:
		fmt.Fprintf(&b, "timed out after %s", r.Duration.Round(time.Second))
	default:
		fmt.Fprintf(&b, "exit code %d", r.ExitCode)
	}
	if d := r.Diagnostic(); d != "" {
		b.WriteString(": ")
		b.WriteString(lastLine(d))
	}
	return b.String()
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
