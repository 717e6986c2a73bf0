package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strconv"

	"github.com/otiai10/gosseract/v2"

	"github.com/Lllllllleong/scanrouter/internal/pdf"
)

// emptyHOCR is written for pages when recognition is skipped.
const emptyHOCR = `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml"><head><title></title></head><body></body></html>
`

// Tesseract recognizes page rasters in-process through gosseract and writes
// one hOCR unit per page.
type Tesseract struct {
	Imager    pdf.PageImager
	Languages []string
	// clientFactory opens one client per recognized page.
	clientFactory func() *gosseract.Client
}

// NewTesseract returns a recognizer reading page rasters with tabula.
func NewTesseract(languages ...string) *Tesseract {
	return &Tesseract{Imager: pdf.TabulaImager{}, Languages: languages, clientFactory: gosseract.NewClient}
}

// PDFToHOCR recognizes every page of in and writes the hOCR units to dir.
func (t *Tesseract) PDFToHOCR(ctx context.Context, in, dir string, opts Options) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create hocr folder: %w", err)
	}
	images, err := t.Imager.PageImages(ctx, in)
	if err != nil {
		return &RunError{Op: "pdf_to_hocr", Input: in, Err: err}
	}
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return err
		}
		hocr := emptyHOCR
		if opts.RecognitionTimeout != 0 {
			var buf bytes.Buffer
			if err := png.Encode(&buf, img); err != nil {
				return fmt.Errorf("encode page %d: %w", i+1, err)
			}
			hocr, err = t.recognize(buf.Bytes(), opts)
			if err != nil {
				return &RunError{Op: "pdf_to_hocr", Input: fmt.Sprintf("%s page %d", in, i+1), Err: err}
			}
		}
		if err := os.WriteFile(filepath.Join(dir, HOCRFileName(i)), []byte(hocr), 0o640); err != nil {
			return fmt.Errorf("write hocr for page %d: %w", i+1, err)
		}
	}
	return nil
}

func (t *Tesseract) recognize(data []byte, opts Options) (string, error) {
	c := t.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	if len(t.Languages) > 0 {
		if err := c.SetLanguage(t.Languages...); err != nil {
			return "", fmt.Errorf("set languages: %w", err)
		}
	}
	if opts.DPI > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), strconv.Itoa(opts.DPI)); err != nil {
			return "", fmt.Errorf("set dpi: %w", err)
		}
	}
	return c.HOCRText()
}
