// Package preflight checks that a workspace is ready for a batch run: the
// input directory, the reference face image and at least one media file.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/spf13/afero"
	_ "golang.org/x/image/webp" // registers the webp decoder with image.Decode

	"github.com/swapbatch/swapbatch/internal/logging"
	"github.com/swapbatch/swapbatch/internal/media"
)

// MinReferenceDimension is the smallest width or height, in pixels, below
// which the reference image is flagged as likely unusable.
const MinReferenceDimension = 100

var (
	ErrInputDirMissing  = errors.New("input directory not found")
	ErrReferenceMissing = errors.New("reference image not found")
	ErrReferenceCorrupt = errors.New("reference image could not be decoded")
	ErrNoMediaFiles     = errors.New("no media files found")
)

// Reference describes the decoded reference image.
type Reference struct {
	Path   string
	Width  int
	Height int
	Small  bool // either dimension below MinReferenceDimension
	EXIF   *ExifInfo
}

// Result is what a successful validation hands to the later phases.
type Result struct {
	Reference Reference
	Files     []media.File
}

// Validator runs the pre-flight checks against a filesystem.
type Validator struct {
	Fs            afero.Fs
	InputDir      string
	ReferenceName string
	Logger        *slog.Logger
}

// Validate performs every check in order and stops at the first fatal one.
// The returned error wraps one of the Err* sentinels.
func (v *Validator) Validate(ctx context.Context) (*Result, error) {
	logger := v.logger()

	info, err := v.Fs.Stat(v.InputDir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrInputDirMissing, v.InputDir)
	}
	logger.Info("input dir found", "path", v.InputDir)

	ref, err := v.checkReference(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info("reference image valid",
		"size", fmt.Sprintf("%dx%d", ref.Width, ref.Height),
	)
	if ref.Small {
		logger.Warn("reference image is very small",
			"width", ref.Width,
			"height", ref.Height,
			"min", MinReferenceDimension,
		)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	files, err := media.Discover(v.Fs, v.InputDir, v.ReferenceName)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoMediaFiles, v.InputDir)
	}
	logger.Info("found media files", "count", len(files))

	return &Result{Reference: *ref, Files: files}, nil
}

func (v *Validator) checkReference(ctx context.Context) (*Reference, error) {
	path := filepath.Join(v.InputDir, v.ReferenceName)

	info, err := v.Fs.Stat(path)
	if err != nil || info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrReferenceMissing, path)
	}

	f, err := v.Fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrReferenceMissing, path)
	}
	defer f.Close()

	img, err := imaging.Decode(f, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrReferenceCorrupt, path, err)
	}

	bounds := img.Bounds()
	ref := &Reference{
		Path:   path,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}
	ref.Small = ref.Width < MinReferenceDimension || ref.Height < MinReferenceDimension

	exif, err := ReadExif(ctx, v.Fs, path)
	switch {
	case err == nil:
		ref.EXIF = exif
		v.logger().Debug("reference exif",
			"model", exif.Model,
			"orientation", exif.Orientation,
		)
		if exif.Rotated() {
			v.logger().Info("reference image is rotated, dimensions are after auto-orientation",
				"orientation", exif.Orientation,
			)
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, err
	default:
		v.logger().Debug("no exif on reference image", "error", err)
	}

	return ref, nil
}

func (v *Validator) logger() *slog.Logger {
	if v.Logger == nil {
		return logging.Discard()
	}
	return v.Logger
}
