// Package media discovers the input files a batch run processes and derives
// their output names.
package media

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// SwapSuffix is inserted between an input's stem and its extension to name
// the output file.
const SwapSuffix = "_swapped"

type Kind string

const (
	KindVideo Kind = "video"
	KindPhoto Kind = "photo"
)

var VideoExtensions = map[string]bool{
	".mp4":  true,
	".avi":  true,
	".mov":  true,
	".mkv":  true,
	".flv":  true,
	".webm": true,
}

var PhotoExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".bmp":  true,
	".tiff": true,
}

// File is a discovered input. Identity is the path; it is never mutated
// after discovery.
type File struct {
	Path string
	Name string
	Ext  string
	Kind Kind
	Size int64
}

// Classify reports the kind for an extension (with leading dot, any case).
func Classify(ext string) (Kind, bool) {
	ext = strings.ToLower(ext)
	switch {
	case VideoExtensions[ext]:
		return KindVideo, true
	case PhotoExtensions[ext]:
		return KindPhoto, true
	default:
		return "", false
	}
}

// Discover walks root recursively and returns every file whose extension is
// on the allow-list, skipping any file named excludeName. The result is
// sorted by path so runs are reproducible.
func Discover(fsys afero.Fs, root, excludeName string) ([]File, error) {
	var files []File
	err := afero.Walk(fsys, root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		name := info.Name()
		if name == excludeName {
			return nil
		}
		ext := filepath.Ext(name)
		kind, ok := Classify(ext)
		if !ok {
			return nil
		}
		files = append(files, File{
			Path: path,
			Name: name,
			Ext:  ext,
			Kind: kind,
			Size: info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})
	return files, nil
}

// OutputName returns <stem>_swapped<ext>, keeping the original extension case.
func OutputName(name string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + SwapSuffix + ext
}

// OutputPath places the output for f inside outputDir.
func OutputPath(f File, outputDir string) string {
	return filepath.Join(outputDir, OutputName(f.Name))
}
