package preview

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidRange  = errors.New("invalid range format")
	ErrUnsatisfiable = errors.New("range not satisfiable")
)

// Range is an inclusive byte range within a file.
type Range struct {
	Start int64
	End   int64
}

func (r Range) ContentLength() int64 { return r.End - r.Start + 1 }

// ContentRange formats the Content-Range header of a 206 response.
func (r Range) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, size)
}

// unsatisfiedRange formats the Content-Range header of a 416 response.
func unsatisfiedRange(size int64) string {
	return fmt.Sprintf("bytes */%d", size)
}

// ParseRange reads a Range header for a file of the given size. Only the
// first range of a list is used. An empty header yields (nil, nil); the
// returned End is clamped to the last byte.
func ParseRange(header string, size int64) (*Range, error) {
	if header == "" {
		return nil, nil
	}
	set, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return nil, ErrInvalidRange
	}
	first, _, _ := strings.Cut(set, ",")
	from, to, ok := strings.Cut(strings.TrimSpace(first), "-")
	if !ok {
		return nil, ErrInvalidRange
	}

	if from == "" {
		return suffixRange(to, size)
	}

	start, err := parseOffset(from)
	if err != nil {
		return nil, err
	}
	end := size - 1
	if to != "" {
		if end, err = parseOffset(to); err != nil {
			return nil, err
		}
		if end < start {
			return nil, ErrInvalidRange
		}
	}
	if start >= size {
		return nil, ErrUnsatisfiable
	}
	return &Range{Start: start, End: min(end, size-1)}, nil
}

// suffixRange handles "bytes=-N": the last N bytes.
func suffixRange(n string, size int64) (*Range, error) {
	length, err := parseOffset(n)
	if err != nil || length == 0 {
		return nil, ErrInvalidRange
	}
	if size == 0 {
		return nil, ErrUnsatisfiable
	}
	return &Range{Start: max(size-length, 0), End: size - 1}, nil
}

func parseOffset(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, ErrInvalidRange
	}
	return n, nil
}
