// Package preview serves finished output files over HTTP with byte-range
// support, confined to the output directory.
package preview

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/swapbatch/swapbatch/internal/media"
)

// ErrBadName is returned for names that are not a plain file name in the
// output directory.
var ErrBadName = errors.New("invalid file name")

type Service interface {
	ServeFile(w http.ResponseWriter, r *http.Request, name string) error
}

type Server struct {
	fs     afero.Fs
	logger *slog.Logger
}

// NewServer serves files from outputDir only.
func NewServer(outputDir string, logger *slog.Logger) *Server {
	return NewServerFs(afero.NewBasePathFs(afero.NewOsFs(), outputDir), logger)
}

// NewServerFs serves files from the root of fsys.
func NewServerFs(fsys afero.Fs, logger *slog.Logger) *Server {
	return &Server{fs: fsys, logger: logger}
}

// ValidateName accepts a bare file name of an output media file or a JSON
// record. Anything with a path component is rejected.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return ErrBadName
	}
	if strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return ErrBadName
	}
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := media.Classify(ext); !ok && ext != ".json" {
		return ErrBadName
	}
	return nil
}

func (s *Server) ServeFile(w http.ResponseWriter, r *http.Request, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	file, err := s.fs.Open(string(filepath.Separator) + name)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "file not found", http.StatusNotFound)
			return nil
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if stat.IsDir() {
		http.Error(w, "file not found", http.StatusNotFound)
		return nil
	}

	size := stat.Size()
	contentType := contentTypeFor(name)

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", contentType)

	parsedRange, err := ParseRange(r.Header.Get("Range"), size)
	if errors.Is(err, ErrUnsatisfiable) {
		w.Header().Set("Content-Range", unsatisfiedRange(size))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	}
	// A malformed Range header is ignored and the full body served.

	if parsedRange == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			s.copy(w, file, size)
		}
		return nil
	}

	w.Header().Set("Content-Length", strconv.FormatInt(parsedRange.ContentLength(), 10))
	w.Header().Set("Content-Range", parsedRange.ContentRange(size))
	w.WriteHeader(http.StatusPartialContent)

	if r.Method == http.MethodHead {
		return nil
	}
	if _, err := file.Seek(parsedRange.Start, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}
	s.copy(w, file, parsedRange.ContentLength())
	return nil
}

// videoTypes covers containers missing from Go's built-in MIME table.
var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".avi":  "video/x-msvideo",
	".flv":  "video/x-flv",
}

func contentTypeFor(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := videoTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

func (s *Server) copy(w io.Writer, r io.Reader, n int64) {
	if _, err := io.CopyN(w, r, n); err != nil && s.logger != nil {
		s.logger.Debug("preview copy ended early", "error", err)
	}
}
