package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/Lllllllleong/scanrouter/internal/batch"
	"github.com/Lllllllleong/scanrouter/internal/extract"
	"github.com/Lllllllleong/scanrouter/internal/ledger"
	"github.com/Lllllllleong/scanrouter/internal/models"
	"github.com/Lllllllleong/scanrouter/internal/ocr"
	"github.com/Lllllllleong/scanrouter/internal/pdf"
	"github.com/Lllllllleong/scanrouter/internal/placement"
)

// copyEngine stands in for OCR by copying the input.
type copyEngine struct{ fail bool }

func (e copyEngine) OCR(ctx context.Context, in, out string, opts ocr.Options) error {
	if e.fail {
		return &ocr.RunError{Op: "ocr", Input: in, Err: errors.New("exit status 2")}
	}
	b, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0o600)
}

// bodyTexts reads pages from the file body, separated by form feeds. Empty
// files are unreadable.
type bodyTexts struct{}

func (bodyTexts) PageTexts(ctx context.Context, path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &pdf.ReadError{Path: path, Err: err}
	}
	if len(b) == 0 {
		return nil, &pdf.ReadError{Path: path, Err: errors.New("no pages")}
	}
	return strings.Split(string(b), "\f"), nil
}

type touchWriter struct {
	mu    sync.Mutex
	pages map[string][]int
}

func (w *touchWriter) WritePages(ctx context.Context, src, dst string, pages []int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pages == nil {
		w.pages = map[string][]int{}
	}
	w.pages[filepath.Base(dst)] = slices.Clone(pages)
	return os.WriteFile(dst, []byte("split"), 0o600)
}

type memArchive struct {
	mu      sync.Mutex
	objects []string
}

func (a *memArchive) Upload(ctx context.Context, localPath, object string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.objects = append(a.objects, object)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRouter(mode string, engine OCRRunner, l ledger.Ledger, archive Archiver) (*Router, *touchWriter) {
	w := &touchWriter{}
	r := NewRouter(
		RouterConfig{
			Mode:             mode,
			EntityAnchors:    []string{"Legal Entity Name", "Registered Name"},
			CoresStartAnchor: "Corporate Registration System",
			CoresEndAnchor:   "This is to certify that,",
			OCR:              ocr.DefaultOptions(),
		},
		engine,
		bodyTexts{},
		extract.NewSearcher(extract.DefaultNamePolicy()),
		placement.NewPlacer(w, false, quietLogger()),
		l,
		archive,
	)
	return r, w
}

func writeScan(t *testing.T, dir, name string, pages ...string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(strings.Join(pages, "\f")), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestRouterAssetMode(t *testing.T) {
	t.Parallel()

	src, dst := t.TempDir(), t.TempDir()
	archive := &memArchive{}
	r, _ := newTestRouter(models.ModeAsset, copyEngine{}, nil, archive)

	named := writeScan(t, src, "scan1.pdf", "Invoice ABC12 and 015XYZ999")
	res := r.Process(context.Background(), quietLogger(), models.WorkItem{Path: named, DestDir: dst})
	if res.Err != nil {
		t.Fatalf("Process() error = %v", res.Err)
	}
	want := filepath.Join(dst, "015XYZ999.pdf")
	if res.Status != models.StatusPlaced || len(res.Outputs) != 1 || res.Outputs[0] != want {
		t.Errorf("Process() = %+v, want %s placed", res, want)
	}
	if !slices.Equal(archive.objects, []string{"015XYZ999.pdf"}) {
		t.Errorf("archived = %v", archive.objects)
	}

	unnamed := writeScan(t, src, "scan2.pdf", "nothing to see")
	res = r.Process(context.Background(), quietLogger(), models.WorkItem{Path: unnamed, DestDir: dst})
	if res.Err != nil {
		t.Fatalf("Process() error = %v", res.Err)
	}
	if res.Status != models.StatusUnnamed || res.Outputs[0] != filepath.Join(dst, "scan2.pdf") {
		t.Errorf("Process(no id) = %+v", res)
	}

	again := writeScan(t, src, "scan3.pdf", "Reissue of 015XYZ999")
	res = r.Process(context.Background(), quietLogger(), models.WorkItem{Path: again, DestDir: dst})
	if res.Err != nil {
		t.Fatalf("Process(same id) error = %v", res.Err)
	}
	if res.Status != models.StatusDuplicate || res.Outputs[0] != filepath.Join(dst, "scan3.pdf") {
		t.Errorf("Process(same id) = %+v", res)
	}
	b, err := os.ReadFile(want)
	if err != nil || string(b) != "Invoice ABC12 and 015XYZ999" {
		t.Errorf("first placement overwritten: %q, %v", b, err)
	}
}

func TestRouterEntityMode(t *testing.T) {
	t.Parallel()

	src, dst := t.TempDir(), t.TempDir()
	r, w := newTestRouter(models.ModeEntity, copyEngine{}, nil, nil)

	scan := writeScan(t, src, "in.pdf",
		"Intro\nLegal Entity Name\nAcme, Corp. 2024\n",
		"Corporate Registration System here",
		"filler",
		"This is to certify that, X",
	)
	res := r.Process(context.Background(), quietLogger(), models.WorkItem{Path: scan, DestDir: dst})
	if res.Err != nil {
		t.Fatalf("Process() error = %v", res.Err)
	}
	folder := filepath.Join(dst, "Acme Corp 2024", "0")
	want := []string{
		filepath.Join(folder, "Acme Corp 2024.pdf"),
		filepath.Join(folder, placement.CoresName),
		filepath.Join(folder, placement.SubmissionName),
	}
	if !slices.Equal(res.Outputs, want) {
		t.Errorf("outputs = %v, want %v", res.Outputs, want)
	}
	if !slices.Equal(w.pages[placement.CoresName], []int{1, 2, 3}) || !slices.Equal(w.pages[placement.SubmissionName], []int{0}) {
		t.Errorf("split = %v", w.pages)
	}
	if _, err := os.Stat(scan); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("source still present after placement: %v", err)
	}
}

func TestRouterEntitySentinel(t *testing.T) {
	t.Parallel()

	src, dst := t.TempDir(), t.TempDir()
	r, _ := newTestRouter(models.ModeEntity, copyEngine{}, nil, nil)

	for i, name := range []string{"a.pdf", "b.pdf"} {
		scan := writeScan(t, src, name, "\nLegal Entity Name\nMailing Address\n")
		res := r.Process(context.Background(), quietLogger(), models.WorkItem{Path: scan, DestDir: dst})
		if res.Err != nil {
			t.Fatalf("Process() error = %v", res.Err)
		}
		want := filepath.Join(dst, "Err", []string{"0", "1"}[i], "Err.pdf")
		if res.Status != models.StatusUnnamed || res.Outputs[0] != want {
			t.Errorf("Process(%s) = %+v, want %s", name, res, want)
		}
	}
}

func TestRouterFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		engine  OCRRunner
		pages   []string
		wantErr error
	}{
		{"ocr failure", copyEngine{fail: true}, []string{"text"}, ocr.ErrEngine},
		{"unreadable", copyEngine{}, nil, pdf.ErrUnreadable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			src, dst := t.TempDir(), t.TempDir()
			l, err := ledger.OpenSQLite(t.TempDir())
			if err != nil {
				t.Fatal(err)
			}
			defer l.Close()

			r, _ := newTestRouter(models.ModeAsset, tt.engine, l, nil)
			scan := writeScan(t, src, "broken.pdf", tt.pages...)
			res := r.Process(context.Background(), quietLogger(), models.WorkItem{Path: scan, DestDir: dst, RunID: "run"})
			if !errors.Is(res.Err, tt.wantErr) {
				t.Fatalf("Process() error = %v, want %v", res.Err, tt.wantErr)
			}
			if res.Status != models.StatusFailed {
				t.Errorf("status = %q", res.Status)
			}

			records, err := l.ListRun(context.Background(), "run")
			if err != nil {
				t.Fatal(err)
			}
			if len(records) != 1 || records[0].Status != models.StatusFailed || records[0].ErrorDetails == "" {
				t.Errorf("ledger = %+v", records)
			}
		})
	}
}

func TestRouterEntityRemovesScratch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		engine  OCRRunner
		pages   []string
		blocked bool
		wantErr bool
	}{
		{name: "placed", engine: copyEngine{}, pages: []string{"\nLegal Entity Name\nInitech\n"}},
		{name: "ocr failure", engine: copyEngine{fail: true}, pages: []string{"text"}, wantErr: true},
		{name: "unreadable", engine: copyEngine{}, wantErr: true},
		{name: "placement failure", engine: copyEngine{}, pages: []string{"\nLegal Entity Name\nInitech\n"}, blocked: true, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			src, scratch := t.TempDir(), t.TempDir()
			dst := filepath.Join(t.TempDir(), "out")
			if tt.blocked {
				if err := os.WriteFile(dst, nil, 0o600); err != nil {
					t.Fatal(err)
				}
			}

			r, _ := newTestRouter(models.ModeEntity, tt.engine, nil, nil)
			r.config.ScratchDir = scratch
			scan := writeScan(t, src, "in.pdf", tt.pages...)
			res := r.Process(context.Background(), quietLogger(), models.WorkItem{Path: scan, DestDir: dst})
			if (res.Err != nil) != tt.wantErr {
				t.Fatalf("Process() error = %v, wantErr %t", res.Err, tt.wantErr)
			}

			entries, err := os.ReadDir(scratch)
			if err != nil {
				t.Fatal(err)
			}
			for _, e := range entries {
				t.Errorf("scratch left behind: %s", e.Name())
			}
		})
	}
}

func TestBatchWithCorruptFile(t *testing.T) {
	t.Parallel()

	src, dst := t.TempDir(), t.TempDir()
	for i, id := range []string{"ABC1", "ABC2", "", "ABC4", "ABC5"} {
		name := filepath.Join(src, []string{"1.pdf", "2.pdf", "3.pdf", "4.pdf", "5.pdf"}[i])
		if err := os.WriteFile(name, []byte(id), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	r, _ := newTestRouter(models.ModeAsset, copyEngine{}, nil, nil)

	summary, err := batch.New(r, batch.WithWorkers(3), batch.WithLogger(logger), batch.WithWorkerInit(nil)).Run(context.Background(), src, dst)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Succeeded() != 4 || len(summary.Failed()) != 1 {
		t.Fatalf("succeeded = %d, failed = %d", summary.Succeeded(), len(summary.Failed()))
	}
	for _, id := range []string{"ABC1", "ABC2", "ABC4", "ABC5"} {
		if _, err := os.Stat(filepath.Join(dst, id+".pdf")); err != nil {
			t.Errorf("missing output %s: %v", id, err)
		}
	}
	if !strings.Contains(logs.String(), filepath.Join(src, "3.pdf")) {
		t.Error("failure log does not reference 3.pdf")
	}
	if !IsUnreadable(summary.Failed()[0].Err) {
		t.Errorf("failure = %v, want unreadable", summary.Failed()[0].Err)
	}
}
