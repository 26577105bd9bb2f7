// Package report prints the end-of-run summary and persists the run
// statistics next to the outputs.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/swapbatch/swapbatch/internal/batch"
	"github.com/swapbatch/swapbatch/internal/logging"
)

// StatisticsFile is the name of the statistics record in the output dir.
const StatisticsFile = "statistics.json"

// Reporter summarises a finished (or interrupted) run.
type Reporter struct {
	OutputDir string
	Logger    *slog.Logger
	Out       io.Writer // receives the summary box; nil disables it
}

// Report logs the summary lines, renders the summary box and writes the
// statistics file. It returns the path written.
func (r *Reporter) Report(stats *batch.RunStatistics) (string, error) {
	logger := r.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	if stats.Interrupted {
		logger.Warn("processing interrupted")
	} else {
		logger.Info("processing complete")
	}
	logger.Info(fmt.Sprintf("successful: %d/%d (%.1f%%)", stats.Successful, stats.Total, stats.SuccessRate()))
	logger.Info(fmt.Sprintf("failed: %d/%d", stats.Failed, stats.Total))
	logger.Info(fmt.Sprintf("duration: %.1f minutes", stats.DurationMinutes))
	logger.Info("output: " + r.OutputDir)

	if r.Out != nil {
		fmt.Fprintln(r.Out, Summary(stats, r.OutputDir))
	}

	path := filepath.Join(r.OutputDir, StatisticsFile)
	if err := WriteStatistics(path, stats); err != nil {
		return "", err
	}
	logger.Info("statistics saved", "path", path)
	return path, nil
}

// WriteStatistics writes stats as 2-space indented JSON. The file is written
// to a temporary name and renamed into place so a reader never sees a torn
// record.
func WriteStatistics(path string, stats *batch.RunStatistics) error {
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("encode statistics: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".statistics-*.json")
	if err != nil {
		return fmt.Errorf("write statistics: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write statistics: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("write statistics: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write statistics: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("write statistics: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("write statistics: %w", err)
	}
	return nil
}

// ReadStatistics loads a statistics file written by WriteStatistics.
func ReadStatistics(path string) (*batch.RunStatistics, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var stats batch.RunStatistics
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &stats, nil
}
