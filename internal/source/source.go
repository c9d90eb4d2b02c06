package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

var (
	ErrNotFound        = errors.New("frame not found")
	ErrIndexOutOfRange = errors.New("frame index out of range")
)

// Priority is the fetch priority hint of a frame request.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
)

func (p Priority) String() string {
	if p == PriorityHigh {
		return "high"
	}
	return "normal"
}

// Source fetches raw frame bytes from storage.
type Source interface {
	Open(ctx context.Context, path string, pri Priority) (io.ReadCloser, error)
}

// Options configures the sources For can build.
type Options struct {
	HTTP HTTPOptions
	// DPI rasterizes PDF pages. 0 means DefaultDPI.
	DPI int
}

// For picks the source matching basePath: HTTP for http(s) URLs, the pages
// of a PDF document for *.pdf, the local filesystem otherwise.
func For(basePath string, opts Options) Source {
	lower := strings.ToLower(basePath)
	switch {
	case strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://"):
		return NewHTTPSource(opts.HTTP)
	case strings.HasSuffix(lower, ".pdf"):
		return NewPDFSource(basePath, opts.DPI)
	}
	return FileSource{}
}

// FileSource reads frames from the local filesystem. Priority hints are ignored.
type FileSource struct{}

func (FileSource) Open(ctx context.Context, path string, _ Priority) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	return f, nil
}
