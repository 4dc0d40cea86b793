//go:build !cgo

package ocr

import (
	"errors"
	"image"
)

// ErrPDFUnsupported is returned for PDF uploads when built without cgo.
var ErrPDFUnsupported = errors.New("PDF rendering not supported (built without cgo/fitz)")

func renderPDF(_ string, _ float64, _ int) ([]image.Image, error) {
	return nil, ErrPDFUnsupported
}
