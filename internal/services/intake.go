package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/scanrouter/internal/batch"
	"github.com/Lllllllleong/scanrouter/internal/config"
	"github.com/Lllllllleong/scanrouter/internal/gcp"
	"github.com/Lllllllleong/scanrouter/internal/ledger"
	"github.com/Lllllllleong/scanrouter/internal/models"
)

// maxSlotAttempts bounds the search for a free numbered folder in the bucket.
const maxSlotAttempts = 100

// GCSEvent is the payload of a storage object finalize event.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// ObjectStore is the slice of a GCS bucket the intake needs.
type ObjectStore interface {
	Upload(ctx context.Context, localPath, object string) error
	UploadNumbered(ctx context.Context, localPath, prefix, name string, maxAttempts int) (string, error)
}

// Downloader fetches the uploaded scan.
type Downloader interface {
	Download(ctx context.Context, bucket, object, destPath string) error
}

// Trigger hands placed objects to a downstream workflow.
type Trigger interface {
	Trigger(ctx context.Context, payload any) (string, error)
}

// IntakeFunction routes one PDF uploaded to a bucket into the output bucket.
type IntakeFunction struct {
	router   *Router
	ledger   ledger.Ledger
	source   Downloader
	output   ObjectStore
	workflow Trigger
	mode     string
	logger   *slog.Logger
}

// NewIntake wires the cloud intake from cfg. Firestore is used as the ledger.
func NewIntake(ctx context.Context, cfg *config.Config) (*IntakeFunction, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	if cfg.OutputBucket == "" {
		return nil, fmt.Errorf("OUTPUT_BUCKET environment variable must be set")
	}
	logger := slog.Default()

	firestoreClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	l := ledger.NewFirestore(firestoreClient, ledger.DefaultCollection)

	var trigger Trigger
	if cfg.WorkflowName != "" {
		wf, err := gcp.NewWorkflowTrigger(ctx, cfg.ProjectID, cfg.Location, cfg.WorkflowName)
		if err != nil {
			return nil, err
		}
		trigger = wf
	}

	f := NewIntakeFunction(
		NewRouterFromConfig(cfg, l, nil, logger),
		l,
		storageDownloader{client: storageClient, logger: logger},
		gcp.NewBucket(storageClient, cfg.OutputBucket, logger),
		trigger,
		cfg.Mode,
		logger,
	)
	logger.Info("Scan intake initialized.", "mode", cfg.Mode, "outputBucket", cfg.OutputBucket, "workflow", cfg.WorkflowName)
	return f, nil
}

// NewIntakeFunction assembles an intake from its collaborators. A nil
// trigger disables the workflow hand-off.
func NewIntakeFunction(router *Router, l ledger.Ledger, source Downloader, output ObjectStore, trigger Trigger, mode string, logger *slog.Logger) *IntakeFunction {
	if logger == nil {
		logger = slog.Default()
	}
	return &IntakeFunction{router: router, ledger: l, source: source, output: output, workflow: trigger, mode: mode, logger: logger}
}

// Process handles one finalize event. Duplicates and unreadable PDFs are
// logged and acknowledged so the event is not redelivered.
func (f *IntakeFunction) Process(ctx context.Context, e GCSEvent) error {
	logCtx := f.logger.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	logCtx.Info("Processing new GCS object.")

	if !strings.EqualFold(path.Ext(e.Name), ".pdf") {
		logCtx.Info("Ignoring non-PDF object.")
		return nil
	}

	tempDir, err := os.MkdirTemp("", "scan-intake-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	inDir, outDir := filepath.Join(tempDir, "in"), filepath.Join(tempDir, "out")
	if err := os.MkdirAll(inDir, 0o750); err != nil {
		return fmt.Errorf("failed to create input dir: %w", err)
	}
	sourcePath := filepath.Join(inDir, path.Base(e.Name))
	if err := f.source.Download(ctx, e.Bucket, e.Name, sourcePath); err != nil {
		logCtx.Error("Failed to download source PDF", "error", err)
		return err
	}

	fileHash, err := calculateFileHash(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to calculate file hash: %w", err)
	}
	logCtx = logCtx.With("fileHash", fileHash)

	docID, duplicate, err := f.ledger.FindByHash(ctx, fileHash)
	if err != nil {
		logCtx.Error("Failed to check for duplicate", "error", err)
		return err
	}
	if duplicate {
		logCtx.Info("Duplicate file detected. Skipping.", "existingDocId", docID)
		return nil
	}

	item := models.WorkItem{Path: sourcePath, DestDir: outDir, RunID: batch.NewRunID()}
	res := f.router.Process(ctx, logCtx, item)
	if res.Err != nil {
		if IsUnreadable(res.Err) {
			logCtx.Warn("Unreadable PDF, not retrying.", "error", res.Err)
			return nil
		}
		logCtx.Error("Routing failed", "error", res.Err)
		return res.Err
	}

	objects, err := f.publish(ctx, outDir, res.Outputs)
	if err != nil {
		logCtx.Error("Failed to publish outputs", "error", err)
		return err
	}
	logCtx.Info("Outputs published.", "objects", objects, "status", res.Status)

	if f.workflow != nil {
		execution, err := f.workflow.Trigger(ctx, map[string]any{
			"source":  fmt.Sprintf("gs://%s/%s", e.Bucket, e.Name),
			"objects": objects,
			"status":  res.Status,
		})
		if err != nil {
			logCtx.Error("Failed to trigger workflow", "error", err)
			return err
		}
		logCtx.Info("Hand-off to workflow complete.", "execution", execution)
	}
	return nil
}

// publish uploads routed outputs under the same layout they have locally.
// Entity documents get their folder number from the bucket, not from the
// scratch directory, so concurrent invocations never collide.
func (f *IntakeFunction) publish(ctx context.Context, root string, outputs []string) ([]string, error) {
	if len(outputs) == 0 {
		return nil, nil
	}
	if f.mode != models.ModeEntity {
		var objects []string
		for _, out := range outputs {
			object := relObject(root, out)
			if err := f.output.Upload(ctx, out, object); err != nil {
				return objects, err
			}
			objects = append(objects, object)
		}
		return objects, nil
	}

	placed := outputs[0]
	entity := strings.SplitN(relObject(root, placed), "/", 2)[0]
	object, err := f.output.UploadNumbered(ctx, placed, entity+"/", filepath.Base(placed), maxSlotAttempts)
	if err != nil {
		return nil, err
	}
	objects := []string{object}
	folder := path.Dir(object)
	for _, sibling := range outputs[1:] {
		siblingObject := path.Join(folder, filepath.Base(sibling))
		if err := f.output.Upload(ctx, sibling, siblingObject); err != nil {
			return objects, err
		}
		objects = append(objects, siblingObject)
	}
	return objects, nil
}

func relObject(root, p string) string {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return filepath.Base(p)
	}
	return filepath.ToSlash(rel)
}

type storageDownloader struct {
	client *storage.Client
	logger *slog.Logger
}

func (d storageDownloader) Download(ctx context.Context, bucket, object, destPath string) error {
	return gcp.NewBucket(d.client, bucket, d.logger).Download(ctx, object, destPath)
}
