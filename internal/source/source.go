// Package source resolves media references to decoded frames. The
// compositor never decodes media; the renderer asks a Resolver for the
// source frame of each draw instruction.
package source

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// ErrUnsupported is returned for media references no source can decode.
var ErrUnsupported = errors.New("unsupported media reference")

// Resolver returns the frame of ref at the media-local offset in ms.
type Resolver interface {
	Frame(ctx context.Context, ref string, offset int64) (image.Image, error)
}

// Deck is a paged still source: the pages of a PDF or a directory of images.
type Deck interface {
	PageCount() int
	GetPageDimensions(index int) (width, height float64, err error)
	RenderPage(index int, dpi int) (image.Image, error)
	// PageRef is the media reference a Router resolves to the same page.
	PageRef(index int) string
	Close() error
}

// OpenDeck opens a PDF file or an image file/directory as a Deck.
func OpenDeck(path string) (Deck, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return NewFitzPDFSource(path)
	}
	return NewImageSource(path)
}

type FitzPDFSource struct {
	doc  *fitz.Document
	path string
}

func NewFitzPDFSource(path string) (*FitzPDFSource, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	return &FitzPDFSource{doc: doc, path: path}, nil
}

func (f *FitzPDFSource) PageCount() int {
	return f.doc.NumPage()
}

func (f *FitzPDFSource) GetPageDimensions(index int) (float64, float64, error) {
	rect, err := f.doc.Bound(index)
	if err != nil {
		return 0, 0, err
	}
	return float64(rect.Dx()), float64(rect.Dy()), nil
}

// RenderPage opens a private document handle so pages can be rendered from
// several goroutines at once.
func (f *FitzPDFSource) RenderPage(index int, dpi int) (image.Image, error) {
	return renderPDFPage(f.path, index, dpi)
}

func (f *FitzPDFSource) PageRef(index int) string {
	return fmt.Sprintf("%s#page=%d", f.path, index+1)
}

func (f *FitzPDFSource) Close() error {
	return f.doc.Close()
}

func renderPDFPage(path string, index, dpi int) (image.Image, error) {
	workerDoc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	defer workerDoc.Close()
	if index < 0 || index >= workerDoc.NumPage() {
		return nil, fmt.Errorf("%s has %d pages, page %d requested", path, workerDoc.NumPage(), index+1)
	}
	return workerDoc.ImageDPI(index, float64(dpi))
}
