package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Lllllllleong/scanrouter/internal/extract"
	"github.com/Lllllllleong/scanrouter/internal/ledger"
	"github.com/Lllllllleong/scanrouter/internal/models"
	"github.com/Lllllllleong/scanrouter/internal/ocr"
	"github.com/Lllllllleong/scanrouter/internal/pdf"
	"github.com/Lllllllleong/scanrouter/internal/placement"
)

// OCRRunner produces a searchable copy of a PDF.
type OCRRunner interface {
	OCR(ctx context.Context, in, out string, opts ocr.Options) error
}

// Archiver mirrors placed outputs somewhere else.
type Archiver interface {
	Upload(ctx context.Context, localPath, object string) error
}

// RouterConfig holds the routing policy.
type RouterConfig struct {
	Mode             string
	EntityAnchors    []string
	CoresStartAnchor string
	CoresEndAnchor   string
	OCR              ocr.Options
	// ScratchDir holds per-file scratch directories. Empty means os.TempDir.
	ScratchDir       string
}

// Router runs one scanned file through OCR, field extraction, placement and
// the optional cores split.
type Router struct {
	config   RouterConfig
	engine   OCRRunner
	texts    pdf.TextReader
	searcher *extract.Searcher
	placer   *placement.Placer
	ledger   ledger.Ledger
	archive  Archiver
}

// NewRouter wires a Router. A nil ledger records nothing and a nil archive
// disables mirroring.
func NewRouter(cfg RouterConfig, engine OCRRunner, texts pdf.TextReader, searcher *extract.Searcher, placer *placement.Placer, l ledger.Ledger, archive Archiver) *Router {
	if l == nil {
		l = ledger.Nop{}
	}
	return &Router{
		config:   cfg,
		engine:   engine,
		texts:    texts,
		searcher: searcher,
		placer:   placer,
		ledger:   l,
		archive:  archive,
	}
}

// Process handles one work item. Every failure is returned in the result.
func (r *Router) Process(ctx context.Context, logger *slog.Logger, item models.WorkItem) models.FileResult {
	logCtx := logger.With("file", item.Path, "mode", r.config.Mode)
	logCtx.Debug("Started file.")

	res := models.FileResult{Item: item}
	hash, err := calculateFileHash(item.Path)
	if err != nil {
		res.Err = fmt.Errorf("failed to calculate file hash: %w", err)
		return res
	}
	logCtx = logCtx.With("fileHash", hash)

	recordID, err := r.ledger.Begin(ctx, models.ScanRecord{
		RunID:            item.RunID,
		FileHash:         hash,
		OriginalFilename: filepath.Base(item.Path),
		Mode:             r.config.Mode,
	})
	if err != nil {
		logCtx.Warn("Failed to record scan start.", "error", err)
	}

	var pageCount int
	switch r.config.Mode {
	case models.ModeAsset:
		res.Status, res.Outputs, pageCount, err = r.routeByAsset(ctx, logCtx, item)
	case models.ModeEntity:
		res.Status, res.Outputs, pageCount, err = r.routeByEntity(ctx, logCtx, item)
	default:
		err = fmt.Errorf("unknown routing mode %q", r.config.Mode)
	}
	if err != nil {
		res.Status = models.StatusFailed
		res.Err = err
	} else {
		r.mirror(ctx, logCtx, item.DestDir, res.Outputs)
	}

	r.finish(ctx, logCtx, recordID, res, pageCount)
	return res
}

func (r *Router) routeByAsset(ctx context.Context, logCtx *slog.Logger, item models.WorkItem) (string, []string, int, error) {
	if err := os.MkdirAll(item.DestDir, 0o750); err != nil {
		return "", nil, 0, fmt.Errorf("failed to create destination: %w", err)
	}
	out := filepath.Join(item.DestDir, filepath.Base(item.Path))
	if err := r.engine.OCR(ctx, item.Path, out, r.config.OCR); err != nil {
		os.Remove(out)
		return "", nil, 0, err
	}
	doc, err := pdf.Load(ctx, r.texts, out)
	if err != nil {
		os.Remove(out)
		return "", nil, 0, err
	}

	assetID, ok := extract.AssetID(doc.Text())
	if !ok {
		logCtx.Info("No asset ID found, keeping original name.", "path", out)
		return models.StatusUnnamed, []string{out}, doc.PageCount(), nil
	}
	logCtx.Debug("Asset ID found.", "assetId", assetID)
	final, err := placement.DirectRename(out, assetID)
	if errors.Is(err, placement.ErrTargetExists) {
		logCtx.Warn("Asset ID already placed, keeping original name.", "assetId", assetID, "path", out)
		return models.StatusDuplicate, []string{out}, doc.PageCount(), nil
	}
	if err != nil {
		return "", nil, doc.PageCount(), err
	}
	return models.StatusPlaced, []string{final}, doc.PageCount(), nil
}

func (r *Router) routeByEntity(ctx context.Context, logCtx *slog.Logger, item models.WorkItem) (string, []string, int, error) {
	tempDir, err := os.MkdirTemp(r.config.ScratchDir, "scanrouter-*")
	if err != nil {
		return "", nil, 0, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	processed := filepath.Join(tempDir, filepath.Base(item.Path))
	if err := r.engine.OCR(ctx, item.Path, processed, r.config.OCR); err != nil {
		return "", nil, 0, err
	}
	doc, err := pdf.Load(ctx, r.texts, processed)
	if err != nil {
		return "", nil, 0, err
	}

	fields := r.searcher.Extract(doc, r.config.EntityAnchors, r.config.CoresStartAnchor, r.config.CoresEndAnchor)
	entity := fields[models.FieldEntityName]
	decision := placement.Decide(item.DestDir, entity, fields, doc.PageCount())
	logCtx.Debug("Placement decided.", "entity", entity, "cores", decision.Cores)

	outputs, err := r.placer.Route(ctx, processed, item.Path, decision, doc.PageCount())
	if err != nil {
		return "", outputs, doc.PageCount(), err
	}
	status := models.StatusPlaced
	if r.searcher.Names.IsSentinel(entity) {
		status = models.StatusUnnamed
	}
	return status, outputs, doc.PageCount(), nil
}

func (r *Router) mirror(ctx context.Context, logCtx *slog.Logger, root string, outputs []string) {
	if r.archive == nil {
		return
	}
	for _, out := range outputs {
		object, err := filepath.Rel(root, out)
		if err != nil {
			object = filepath.Base(out)
		}
		if err := r.archive.Upload(ctx, out, filepath.ToSlash(object)); err != nil {
			logCtx.Warn("Failed to archive output.", "path", out, "error", err)
		}
	}
}

func (r *Router) finish(ctx context.Context, logCtx *slog.Logger, recordID string, res models.FileResult, pageCount int) {
	if recordID == "" {
		return
	}
	o := ledger.Outcome{Status: res.Status, PageCount: pageCount}
	if len(res.Outputs) > 0 {
		o.Destination = res.Outputs[0]
	}
	if res.Err != nil {
		o.ErrorDetails = res.Err.Error()
	}
	if err := r.ledger.Finish(ctx, recordID, o); err != nil {
		logCtx.Error("CRITICAL: Failed to record scan outcome.", "updateError", err)
	}
}

func calculateFileHash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// IsUnreadable reports whether err came from a corrupt or unreadable PDF.
func IsUnreadable(err error) bool {
	return errors.Is(err, pdf.ErrUnreadable)
}
