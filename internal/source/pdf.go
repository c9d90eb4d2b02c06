package source

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"io"
	"path"
	"regexp"
	"strconv"

	"github.com/gen2brain/go-fitz"
)

const DefaultDPI = 150

var frameNumberRe = regexp.MustCompile(`(\d+)\.[A-Za-z0-9]+$`)

// PDFSource plays the pages of a PDF document as frames. The number in the
// requested file name selects the page, so Sequence paths built with the
// document as BasePath map frame i to page i.
type PDFSource struct {
	path string
	dpi  float64
}

func NewPDFSource(path string, dpi int) *PDFSource {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &PDFSource{path: path, dpi: float64(dpi)}
}

// PageCount opens the document and counts its pages.
func (s *PDFSource) PageCount() (int, error) {
	doc, err := fitz.New(s.path)
	if err != nil {
		return 0, fmt.Errorf("open pdf %s: %w", s.path, err)
	}
	defer doc.Close()
	return doc.NumPage(), nil
}

// Open renders the page behind name and returns it PNG encoded. Each call
// opens its own document handle; fitz documents are not safe for concurrent
// use.
func (s *PDFSource) Open(ctx context.Context, name string, _ Priority) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page, err := PageIndex(name)
	if err != nil {
		return nil, err
	}

	doc, err := fitz.New(s.path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", s.path, err)
	}
	defer doc.Close()

	if page >= doc.NumPage() {
		return nil, fmt.Errorf("%w: page %d of %s (%d pages)", ErrNotFound, page+1, s.path, doc.NumPage())
	}
	img, err := doc.ImageDPI(page, s.dpi)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", page+1, err)
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return io.NopCloser(&buf), nil
}

// PageIndex extracts the zero-based page from a frame file name: the 1-based
// number right before the extension.
func PageIndex(name string) (int, error) {
	m := frameNumberRe.FindStringSubmatch(path.Base(name))
	if m == nil {
		return 0, fmt.Errorf("%w: no frame number in %q", ErrIndexOutOfRange, name)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: frame number %q in %q", ErrIndexOutOfRange, m[1], name)
	}
	return n - 1, nil
}
