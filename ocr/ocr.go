// Package ocr turns uploaded invoice documents into plain text.
package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"path/filepath"
	"strings"

	"github.com/Azure/azure-sdk-for-go/services/cognitiveservices/v3.0/computervision"
	"github.com/Azure/go-autorest/autorest"
	"github.com/disintegration/imaging"

	// additional decoders for scanned documents
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrNotConfigured is returned by the Azure recognizer when no endpoint or
// key is set.
var ErrNotConfigured = errors.New("ocr: no endpoint or api key configured")

// Recognizer turns an image into text, one line per recognized line.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) (string, error)
}

// AzureRecognizer uses the Azure Computer Vision printed text API.
type AzureRecognizer struct {
	client   *computervision.BaseClient
	language computervision.OcrLanguages
}

// NewAzureRecognizer creates a recognizer for the given endpoint and key.
// An empty language defaults to English.
func NewAzureRecognizer(endpoint, apiKey, language string) *AzureRecognizer {
	if endpoint == "" || apiKey == "" {
		return &AzureRecognizer{}
	}
	client := computervision.New(endpoint)
	client.Authorizer = autorest.NewCognitiveServicesAuthorizer(apiKey)
	lang := computervision.OcrLanguages(language)
	if language == "" {
		lang = computervision.OcrLanguagesEn
	}
	return &AzureRecognizer{client: &client, language: lang}
}

// Recognize sends img as PNG to the OCR service.
func (a *AzureRecognizer) Recognize(ctx context.Context, img image.Image) (string, error) {
	if a.client == nil {
		return "", ErrNotConfigured
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("cannot encode image: %w", err)
	}
	result, err := a.client.RecognizePrintedTextInStream(ctx, true, io.NopCloser(&buf), a.language)
	if err != nil {
		return "", fmt.Errorf("failed to extract text: %w", err)
	}
	return strings.Join(linesFromResult(result), "\n"), nil
}

// linesFromResult flattens regions into text lines in reading order.
func linesFromResult(result computervision.OcrResult) []string {
	var lines []string
	if result.Regions == nil {
		return lines
	}
	for _, region := range *result.Regions {
		if region.Lines == nil {
			continue
		}
		for _, line := range *region.Lines {
			if line.Words == nil {
				continue
			}
			words := make([]string, 0, len(*line.Words))
			for _, w := range *line.Words {
				if w.Text != nil {
					words = append(words, *w.Text)
				}
			}
			if len(words) > 0 {
				lines = append(lines, strings.Join(words, " "))
			}
		}
	}
	return lines
}

// Preprocess prepares a scanned page for recognition: grayscale, stronger
// contrast and a little sharpening. Large scans are scaled down to fit the
// service limits.
func Preprocess(src image.Image) image.Image {
	img := imaging.Grayscale(src)
	img = imaging.AdjustContrast(img, 30)
	img = imaging.Sharpen(img, 1.5)
	b := img.Bounds()
	if b.Dx() > maxSide || b.Dy() > maxSide {
		img = imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)
	}
	return img
}

const (
	maxSide = 4200
	pdfDPI  = 200
)

// Extractor reads a document from disk and returns its text.
type Extractor struct {
	Recognizer Recognizer
	// MaxPages limits how many PDF pages are recognized. Zero means all.
	MaxPages int
}

// ExtractFile returns the recognized text of the file at path. PDF files are
// rasterized page by page, everything else is decoded as an image.
func (e *Extractor) ExtractFile(ctx context.Context, path string) (string, error) {
	var pages []image.Image
	var err error
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		pages, err = renderPDF(path, pdfDPI, e.MaxPages)
	} else {
		var img image.Image
		img, err = imaging.Open(path, imaging.AutoOrientation(true))
		pages = []image.Image{img}
	}
	if err != nil {
		return "", fmt.Errorf("cannot read %s: %w", filepath.Base(path), err)
	}

	texts := make([]string, 0, len(pages))
	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		txt, err := e.Recognizer.Recognize(ctx, Preprocess(page))
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i+1, err)
		}
		texts = append(texts, txt)
	}
	return strings.TrimSpace(strings.Join(texts, "\n")), nil
}
