package preflight

import (
	"context"
	"strings"
	"time"

	goexif "github.com/rwcarlsen/goexif/exif"
	"github.com/spf13/afero"
)

// ExifInfo is the subset of EXIF metadata worth logging for a reference image.
type ExifInfo struct {
	Make        string
	Model       string
	Orientation int // 1 = upright; 0 when absent
	Taken       time.Time
}

// Rotated reports whether the stored pixels need rotating or flipping to
// display upright.
func (e *ExifInfo) Rotated() bool {
	return e.Orientation > 1
}

// ReadExif decodes EXIF metadata from path. Files without EXIF (PNG, WebP,
// stripped JPEGs) return an error the caller is expected to treat as
// informational.
func ReadExif(ctx context.Context, fsys afero.Fs, path string) (*ExifInfo, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	file, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	x, err := goexif.Decode(file)
	if err != nil {
		return nil, err
	}

	info := &ExifInfo{}
	if tag, err := x.Get(goexif.Make); err == nil {
		if s, err := tag.StringVal(); err == nil {
			info.Make = strings.TrimSpace(s)
		}
	}
	if tag, err := x.Get(goexif.Model); err == nil {
		if s, err := tag.StringVal(); err == nil {
			info.Model = strings.TrimSpace(s)
		}
	}
	if tag, err := x.Get(goexif.Orientation); err == nil {
		if n, err := tag.Int(0); err == nil {
			info.Orientation = n
		}
	}
	if t, err := x.DateTime(); err == nil {
		info.Taken = t
	}
	return info, nil
}
