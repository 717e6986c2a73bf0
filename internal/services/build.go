package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Lllllllleong/scanrouter/internal/config"
	"github.com/Lllllllleong/scanrouter/internal/diffocr"
	"github.com/Lllllllleong/scanrouter/internal/extract"
	"github.com/Lllllllleong/scanrouter/internal/ledger"
	"github.com/Lllllllleong/scanrouter/internal/ocr"
	"github.com/Lllllllleong/scanrouter/internal/pdf"
	"github.com/Lllllllleong/scanrouter/internal/placement"
)

// NewEngine returns the ocrmypdf engine described by cfg.
func NewEngine(cfg *config.Config, logger *slog.Logger) *ocr.OCRmyPDF {
	return ocr.NewOCRmyPDF(cfg.OCRBinary, cfg.PythonBinary, cfg.Language, logger)
}

// NewMerger returns a differential OCR merger. The tesseract recognizer
// replaces ocrmypdf for the pass over the conditioned copy only.
func NewMerger(cfg *config.Config, logger *slog.Logger) *diffocr.Merger {
	m := diffocr.NewMerger(NewEngine(cfg, logger), cfg.DPI, logger)
	m.TempDir = cfg.ScratchDir
	if cfg.Recognizer == config.RecognizerTesseract {
		var langs []string
		if cfg.Language != "" {
			langs = strings.Split(cfg.Language, "+")
		}
		m.Recognizer = ocr.NewTesseract(langs...)
	}
	return m
}

// NewRouterFromConfig wires a Router with the real collaborators.
func NewRouterFromConfig(cfg *config.Config, l ledger.Ledger, archive Archiver, logger *slog.Logger) *Router {
	return NewRouter(
		RouterConfig{
			Mode:             cfg.Mode,
			EntityAnchors:    cfg.EntityAnchors,
			CoresStartAnchor: cfg.CoresStartAnchor,
			CoresEndAnchor:   cfg.CoresEndAnchor,
			OCR:              cfg.OCROptions(),
			ScratchDir:       cfg.ScratchDir,
		},
		NewEngine(cfg, logger),
		pdf.NewTextReader(),
		extract.NewSearcher(cfg.NamePolicy()),
		placement.NewPlacer(pdf.NewWriter(), cfg.KeepSource, logger),
		l,
		archive,
	)
}

// OpenLedger opens the ledger selected by cfg.
func OpenLedger(ctx context.Context, cfg *config.Config) (ledger.Ledger, error) {
	switch cfg.Ledger {
	case config.LedgerSQLite:
		return ledger.OpenSQLite(cfg.LedgerDir)
	case config.LedgerFirestore:
		return ledger.OpenFirestore(ctx, cfg.ProjectID, cfg.Database, ledger.DefaultCollection)
	case config.LedgerNone:
		return ledger.Nop{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", config.ErrUnknownLedger, cfg.Ledger)
	}
}
