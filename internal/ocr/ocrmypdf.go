package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// hocrBridge exposes the hOCR entry points of the ocrmypdf Python API, which
// the command line does not offer.
const hocrBridge = `import json, sys
import ocrmypdf
op, args = sys.argv[1], json.loads(sys.argv[2])
if op == "pdf_to_hocr":
    ocrmypdf.pdf_to_hocr(args["input"], args["folder"], **args["options"])
elif op == "hocr_to_ocr_pdf":
    ocrmypdf.hocr_to_ocr_pdf(args["folder"], args["output"])
else:
    sys.exit("unknown op " + op)
`

// OCRmyPDF drives an installed ocrmypdf as a child process.
type OCRmyPDF struct {
	Binary   string
	Python   string
	Language string
	logger   *slog.Logger
}

// NewOCRmyPDF returns an engine using the given executables. Empty values
// fall back to "ocrmypdf" and "python3" on PATH.
func NewOCRmyPDF(binary, python, language string, logger *slog.Logger) *OCRmyPDF {
	if binary == "" {
		binary = "ocrmypdf"
	}
	if python == "" {
		python = "python3"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OCRmyPDF{Binary: binary, Python: python, Language: language, logger: logger}
}

// Args builds the ocrmypdf command line for a full OCR run.
func (e *OCRmyPDF) Args(in, out string, opts Options) []string {
	var args []string
	if opts.Force {
		args = append(args, "--force-ocr")
	}
	if opts.RecognitionTimeout >= 0 {
		args = append(args, "--tesseract-timeout", strconv.Itoa(int(opts.RecognitionTimeout.Seconds())))
	}
	if opts.DPI > 0 {
		args = append(args, "--image-dpi", strconv.Itoa(opts.DPI))
	}
	if e.Language != "" {
		args = append(args, "--language", e.Language)
	}
	return append(args, in, out)
}

// OCR runs ocrmypdf on in and writes the result to out.
func (e *OCRmyPDF) OCR(ctx context.Context, in, out string, opts Options) error {
	return e.run(ctx, "ocr", in, exec.CommandContext(ctx, e.Binary, e.Args(in, out, opts)...))
}

// PDFToHOCR writes the hOCR work folder of in to dir.
func (e *OCRmyPDF) PDFToHOCR(ctx context.Context, in, dir string, opts Options) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create hocr folder: %w", err)
	}
	kwargs := map[string]any{"force_ocr": opts.Force}
	if opts.RecognitionTimeout >= 0 {
		kwargs["tesseract_timeout"] = opts.RecognitionTimeout.Seconds()
	}
	if opts.DPI > 0 {
		kwargs["image_dpi"] = opts.DPI
	}
	if e.Language != "" {
		kwargs["language"] = strings.Split(e.Language, "+")
	}
	return e.bridge(ctx, "pdf_to_hocr", in, map[string]any{"input": in, "folder": dir, "options": kwargs})
}

// HOCRToPDF assembles the work folder dir into out.
func (e *OCRmyPDF) HOCRToPDF(ctx context.Context, dir, out string) error {
	return e.bridge(ctx, "hocr_to_ocr_pdf", dir, map[string]any{"folder": dir, "output": out})
}

func (e *OCRmyPDF) bridge(ctx context.Context, op, input string, args map[string]any) error {
	payload, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to marshal %s arguments: %w", op, err)
	}
	return e.run(ctx, op, input, exec.CommandContext(ctx, e.Python, "-c", hocrBridge, op, string(payload)))
}

func (e *OCRmyPDF) run(ctx context.Context, op, input string, cmd *exec.Cmd) error {
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	e.logger.Debug("Running OCR engine.", "op", op, "input", input, "command", cmd.Path)
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return &RunError{Op: op, Input: input, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}
	return nil
}
