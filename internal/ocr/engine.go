package ocr

import (
	"context"
	"errors"

	"github.com/grape4ever/thesis-archiver/internal/geometry"
)

// Page holds the recognized lines of a single PDF page.
type Page []geometry.LineItem

// ErrNoPages is returned when recognition produced no usable pages.
var ErrNoPages = errors.New("ocr produced no pages")

// Engine recognizes text with positions from a document file. The first
// page drives classification; later pages are consulted for things like
// the thesis signature page.
type Engine interface {
	Recognize(ctx context.Context, path string) ([]Page, error)
}
