package source

import (
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
)

// renderPDFPage opens its own document per call, so concurrent loads do not
// share a fitz handle.
func renderPDFPage(path string, index, dpi int) (image.Image, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer doc.Close()

	if index >= doc.NumPage() {
		return nil, fmt.Errorf("pdf %s has %d pages, page %d requested", path, doc.NumPage(), index)
	}
	if dpi <= 0 {
		dpi = 150
	}
	return doc.ImageDPI(index, float64(dpi))
}

func pdfPageSize(path string, index int) (float64, float64, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return 0, 0, fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer doc.Close()

	rect, err := doc.Bound(index)
	if err != nil {
		return 0, 0, err
	}
	return float64(rect.Dx()), float64(rect.Dy()), nil
}
