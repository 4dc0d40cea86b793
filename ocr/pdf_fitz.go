//go:build cgo

package ocr

import (
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
)

// renderPDF rasterizes up to maxPages pages (all if maxPages <= 0).
func renderPDF(path string, dpi float64, maxPages int) ([]image.Image, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	n := doc.NumPage()
	if maxPages > 0 && n > maxPages {
		n = maxPages
	}
	pages := make([]image.Image, 0, n)
	for i := 0; i < n; i++ {
		img, err := doc.ImageDPI(i, dpi)
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", i+1, err)
		}
		pages = append(pages, img)
	}
	return pages, nil
}
