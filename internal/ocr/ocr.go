// Package ocr defines the OCR collaborator used by the router and the
// differential merge, and the engines that implement it.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

// DefaultDPI is the rasterization resolution requested from engines.
const DefaultDPI = 400

// EngineDefault leaves the engine's own recognition timeout in place.
const EngineDefault time.Duration = -1

// ErrEngine is matched by every failure reported by an OCR engine.
var ErrEngine = errors.New("ocr engine failed")

// Options controls a single OCR invocation.
type Options struct {
	// Force recognizes pages even when they already carry text.
	Force bool
	// RecognitionTimeout bounds recognition per page. Zero skips recognition
	// and applies only normalization, keeping page images unmodified.
	RecognitionTimeout time.Duration
	// DPI is the image resolution handed to the engine.
	DPI int
}

// DefaultOptions forces recognition with the engine's timeout at DefaultDPI.
func DefaultOptions() Options {
	return Options{Force: true, RecognitionTimeout: EngineDefault, DPI: DefaultDPI}
}

// Recognizer produces an hOCR work folder for a PDF: one recognized-text unit
// per page, named by HOCRFileName.
type Recognizer interface {
	PDFToHOCR(ctx context.Context, in, dir string, opts Options) error
}

// Engine is the full OCR collaborator.
type Engine interface {
	Recognizer
	// OCR writes a searchable copy of in to out.
	OCR(ctx context.Context, in, out string, opts Options) error
	// HOCRToPDF assembles a work folder produced by PDFToHOCR into out.
	HOCRToPDF(ctx context.Context, dir, out string) error
}

// HOCRPattern matches the recognized-text units of a work folder.
const HOCRPattern = "*_hocr.hocr"

// HOCRFileName is the name of the recognized-text unit of a 0-based page.
func HOCRFileName(page int) string {
	return fmt.Sprintf("%06d_ocr_hocr.hocr", page+1)
}

// HOCRFiles lists the recognized-text units in dir, sorted by page.
func HOCRFiles(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, HOCRPattern))
	if err != nil {
		return nil, fmt.Errorf("list hocr files in %s: %w", dir, err)
	}
	return files, nil
}

// RunError describes a failed engine invocation.
type RunError struct {
	Op     string
	Input  string
	Stderr string
	Err    error
}

func (e *RunError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("ocr %s %s: %v: %s", e.Op, e.Input, e.Err, e.Stderr)
	}
	return fmt.Sprintf("ocr %s %s: %v", e.Op, e.Input, e.Err)
}

func (e *RunError) Unwrap() []error {
	return []error{ErrEngine, e.Err}
}
