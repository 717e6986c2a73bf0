// Package diffocr produces a searchable PDF whose text layer comes from a
// recognition pass over a conditioned copy of the document while the page
// imagery stays that of the original.
package diffocr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Lllllllleong/scanrouter/internal/ocr"
)

// ErrPageMismatch is returned when the two recognition passes disagree on the
// number of pages.
var ErrPageMismatch = errors.New("recognition passes produced different page sets")

// PreprocessFunc writes a conditioned copy of src to dst.
type PreprocessFunc func(ctx context.Context, src, dst string) error

// Merger runs the two passes and splices their results. Recognizer handles
// the pass over the conditioned copy; Engine handles the pass over the
// original and the final assembly.
type Merger struct {
	Engine     ocr.Engine
	Recognizer ocr.Recognizer
	DPI        int
	// TempDir holds the per-merge scratch directory. Empty means os.TempDir.
	TempDir    string
	logger     *slog.Logger
}

// NewMerger returns a Merger using engine for both passes.
func NewMerger(engine ocr.Engine, dpi int, logger *slog.Logger) *Merger {
	if dpi <= 0 {
		dpi = ocr.DefaultDPI
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Merger{Engine: engine, Recognizer: engine, DPI: dpi, logger: logger}
}

// Merge writes the spliced document for original to output and returns
// output. Any failure leaves output untouched; scratch files are always removed.
func (m *Merger) Merge(ctx context.Context, original string, preprocess PreprocessFunc, output string) (string, error) {
	logCtx := m.logger.With("original", original, "output", output)

	work, err := os.MkdirTemp(m.TempDir, "diffocr-")
	if err != nil {
		return "", fmt.Errorf("failed to create work directory: %w", err)
	}
	defer os.RemoveAll(work)

	conditioned := filepath.Join(work, "preprocessed.pdf")
	if err := preprocess(ctx, original, conditioned); err != nil {
		return "", fmt.Errorf("preprocess %s: %w", original, err)
	}
	logCtx.Debug("Preprocessed copy written.")

	recognizedDir := filepath.Join(work, "recognized")
	recognize := ocr.Options{Force: true, RecognitionTimeout: ocr.EngineDefault, DPI: m.DPI}
	if err := m.Recognizer.PDFToHOCR(ctx, conditioned, recognizedDir, recognize); err != nil {
		return "", fmt.Errorf("recognition pass: %w", err)
	}

	originalDir := filepath.Join(work, "original")
	normalize := ocr.Options{Force: true, RecognitionTimeout: 0, DPI: m.DPI}
	if err := m.Engine.PDFToHOCR(ctx, original, originalDir, normalize); err != nil {
		return "", fmt.Errorf("normalization pass: %w", err)
	}

	spliced, err := Splice(recognizedDir, originalDir)
	if err != nil {
		return "", err
	}
	logCtx.Info("Spliced recognized text layer.", "pages", spliced)

	assembled := filepath.Join(work, "merged.pdf")
	if err := m.Engine.HOCRToPDF(ctx, originalDir, assembled); err != nil {
		return "", fmt.Errorf("assemble: %w", err)
	}
	if err := publish(assembled, output); err != nil {
		return "", err
	}
	logCtx.Info("Differential OCR complete.")
	return output, nil
}

// Splice overwrites each recognized-text unit in dst with the unit of the
// same page from src and returns the number of pages spliced.
func Splice(src, dst string) (int, error) {
	from, err := ocr.HOCRFiles(src)
	if err != nil {
		return 0, err
	}
	to, err := ocr.HOCRFiles(dst)
	if err != nil {
		return 0, err
	}
	if len(from) == 0 || len(from) != len(to) {
		return 0, fmt.Errorf("%w: %d recognized, %d original", ErrPageMismatch, len(from), len(to))
	}
	for i := range from {
		if filepath.Base(from[i]) != filepath.Base(to[i]) {
			return 0, fmt.Errorf("%w: %s has no counterpart", ErrPageMismatch, filepath.Base(from[i]))
		}
		if err := copyFile(from[i], to[i]); err != nil {
			return 0, err
		}
	}
	return len(from), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}

// publish moves the finished artifact into place through a sibling temp file
// so a reader never observes a partial output.
func publish(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	partial := dst + ".partial"
	if err := copyFile(src, partial); err != nil {
		os.Remove(partial)
		return err
	}
	if err := os.Rename(partial, dst); err != nil {
		os.Remove(partial)
		return fmt.Errorf("failed to move output into place: %w", err)
	}
	return nil
}
