package ocr

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/Azure/azure-sdk-for-go/services/cognitiveservices/v3.0/computervision"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecognizer struct {
	texts []string
	err   error
	calls int
}

func (f *fakeRecognizer) Recognize(_ context.Context, img image.Image) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if img == nil {
		return "", errors.New("nil image")
	}
	return f.texts[(f.calls-1)%len(f.texts)], nil
}

func writePNG(t *testing.T, name string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.Black)
	}
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func TestExtractFileImage(t *testing.T) {
	path := writePNG(t, "scan.png", 40, 20)
	rec := &fakeRecognizer{texts: []string{"ACME INC\nTotal: $10.00\n"}}
	ex := &Extractor{Recognizer: rec}

	txt, err := ex.ExtractFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "ACME INC\nTotal: $10.00", txt)
	assert.Equal(t, 1, rec.calls)
}

func TestExtractFileRecognizerError(t *testing.T) {
	path := writePNG(t, "scan.png", 10, 10)
	ex := &Extractor{Recognizer: &fakeRecognizer{err: errors.New("quota exceeded")}}

	_, err := ex.ExtractFile(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestExtractFileNotAnImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))
	rec := &fakeRecognizer{texts: []string{"x"}}
	ex := &Extractor{Recognizer: rec}

	_, err := ex.ExtractFile(context.Background(), path)
	require.Error(t, err)
	assert.Zero(t, rec.calls)
}

func TestExtractFileCanceled(t *testing.T) {
	path := writePNG(t, "scan.png", 10, 10)
	rec := &fakeRecognizer{texts: []string{"x"}}
	ex := &Extractor{Recognizer: rec}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ex.ExtractFile(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, rec.calls)
}

func TestPreprocessFitsLargeScans(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, maxSide+100, 50))
	out := Preprocess(img)
	b := out.Bounds()
	assert.LessOrEqual(t, b.Dx(), maxSide)
	assert.LessOrEqual(t, b.Dy(), maxSide)

	small := Preprocess(image.NewRGBA(image.Rect(0, 0, 30, 20)))
	assert.Equal(t, 30, small.Bounds().Dx())
	assert.Equal(t, 20, small.Bounds().Dy())
}

func TestAzureRecognizerNotConfigured(t *testing.T) {
	r := NewAzureRecognizer("", "", "")
	_, err := r.Recognize(context.Background(), image.NewRGBA(image.Rect(0, 0, 1, 1)))
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestLinesFromResult(t *testing.T) {
	str := func(s string) *string { return &s }
	words := func(ws ...string) *[]computervision.OcrWord {
		out := make([]computervision.OcrWord, len(ws))
		for i, w := range ws {
			out[i] = computervision.OcrWord{Text: str(w)}
		}
		return &out
	}
	result := computervision.OcrResult{
		Regions: &[]computervision.OcrRegion{
			{Lines: &[]computervision.OcrLine{
				{Words: words("ACME", "LLC")},
				{Words: words()},
			}},
			{Lines: nil},
			{Lines: &[]computervision.OcrLine{
				{Words: words("Total:", "$5.00")},
			}},
		},
	}
	assert.Equal(t, []string{"ACME LLC", "Total: $5.00"}, linesFromResult(result))
	assert.Empty(t, linesFromResult(computervision.OcrResult{}))
}
