// Package placement decides where processed documents land in the
// destination tree and writes them there.
package placement

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/Lllllllleong/scanrouter/internal/models"
	"github.com/Lllllllleong/scanrouter/internal/pdf"
)

// Output names for a split document.
const (
	CoresName      = "Cores.pdf"
	SubmissionName = "Submission.pdf"
)

// ErrTargetExists is returned by DirectRename when {assetID}.pdf is already
// taken by another file.
var ErrTargetExists = errors.New("asset file already exists")

// DirectRename renames the processed file at path to {assetID}.pdf in the
// same directory. An empty assetID leaves the file where it is. An existing
// target is never replaced: path is left untouched and ErrTargetExists is
// returned.
func DirectRename(path, assetID string) (string, error) {
	if assetID == "" {
		return path, nil
	}
	target := filepath.Join(filepath.Dir(path), assetID+".pdf")
	if target == path {
		return path, nil
	}

	err := os.Link(path, target)
	switch {
	case err == nil:
		if err := os.Remove(path); err != nil {
			return "", fmt.Errorf("remove %s after linking %s: %w", path, target, err)
		}
		return target, nil
	case errors.Is(err, fs.ErrExist):
		return path, fmt.Errorf("rename %s to %s: %w", path, target, ErrTargetExists)
	}

	// Filesystems without hard links.
	if _, err := os.Lstat(target); err == nil {
		return path, fmt.Errorf("rename %s to %s: %w", path, target, ErrTargetExists)
	}
	if err := os.Rename(path, target); err != nil {
		return "", fmt.Errorf("rename %s to %s: %w", path, target, err)
	}
	return target, nil
}

// Placer files processed documents into entity directories. Subfolder
// allocation is serialized per entity directory within a process and uses an
// exclusive create so concurrent processes never share a number.
type Placer struct {
	Writer     pdf.PageWriter
	KeepSource bool
	logger     *slog.Logger

	locks sync.Map
}

// NewPlacer returns a Placer that splits with w.
func NewPlacer(w pdf.PageWriter, keepSource bool, logger *slog.Logger) *Placer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Placer{Writer: w, KeepSource: keepSource, logger: logger}
}

func (p *Placer) lock(dir string) func() {
	m, _ := p.locks.LoadOrStore(filepath.Clean(dir), &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Allocate creates the next numbered subfolder of entityDir, creating
// entityDir first if needed. Numbering starts at 0 and continues from the
// highest existing numeric subfolder; other entries are ignored.
func (p *Placer) Allocate(entityDir string) (string, error) {
	unlock := p.lock(entityDir)
	defer unlock()

	if err := os.MkdirAll(entityDir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create entity directory %s: %w", entityDir, err)
	}
	next, err := NextIndex(entityDir)
	if err != nil {
		return "", err
	}
	for {
		dir := filepath.Join(entityDir, strconv.Itoa(next))
		err := os.Mkdir(dir, 0o750)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("failed to create subfolder %s: %w", dir, err)
		}
		next++
	}
}

// NextIndex returns one past the highest numeric subdirectory of dir, or 0.
func NextIndex(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", dir, err)
	}
	next := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		n, err := strconv.Atoi(e.Name())
		if err != nil || n < 0 {
			continue
		}
		if n+1 > next {
			next = n + 1
		}
	}
	return next, nil
}

// Decide builds the placement for an entity-routed document.
func Decide(dst, entity string, res models.ExtractionResult, pageCount int) models.PlacementDecision {
	d := models.PlacementDecision{Dir: filepath.Join(dst, entity), Filename: entity + ".pdf"}
	if r, ok := res.Cores(); ok && r.Valid(pageCount) {
		d.Cores = &r
	}
	return d
}

// Route copies processed into a freshly allocated subfolder of d.Dir as
// d.Filename, removes source once the copy succeeded, and splits the placed
// document when d.Cores is set. It returns every file written.
func (p *Placer) Route(ctx context.Context, processed, source string, d models.PlacementDecision, pageCount int) ([]string, error) {
	logCtx := p.logger.With("source", source, "entityDir", d.Dir)

	sub, err := p.Allocate(d.Dir)
	if err != nil {
		return nil, err
	}
	placed, err := CopyFile(processed, filepath.Join(sub, d.Filename))
	if err != nil {
		return nil, err
	}
	outputs := []string{placed}
	logCtx.Info("Document placed.", "path", placed)

	if !p.KeepSource && source != "" && source != processed {
		if err := os.Remove(source); err != nil {
			return outputs, fmt.Errorf("remove source %s: %w", source, err)
		}
	}

	if d.Cores == nil {
		return outputs, nil
	}
	split, err := p.Split(ctx, placed, *d.Cores, pageCount)
	outputs = append(outputs, split...)
	return outputs, err
}

// Split writes Cores.pdf with the pages in r and Submission.pdf with the rest
// next to placed. A side with no pages is not written.
func (p *Placer) Split(ctx context.Context, placed string, r models.PageRange, pageCount int) ([]string, error) {
	if !r.Valid(pageCount) {
		return nil, fmt.Errorf("page range %d-%d outside %d pages", r.Start, r.End, pageCount)
	}
	dir := filepath.Dir(placed)
	in, out := pdf.Partition(pageCount, r)

	var written []string
	for _, part := range []struct {
		name  string
		pages []int
	}{{CoresName, in}, {SubmissionName, out}} {
		target := filepath.Join(dir, part.name)
		if len(part.pages) == 0 {
			p.logger.Info("Skipping empty split output.", "path", target)
			continue
		}
		if err := p.Writer.WritePages(ctx, placed, target, part.pages); err != nil {
			return written, fmt.Errorf("write %s: %w", part.name, err)
		}
		written = append(written, target)
	}
	return written, nil
}
