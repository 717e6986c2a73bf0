package pdf

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/Lllllllleong/scanrouter/internal/models"
)

// Partition returns the page indices of an n-page document that fall inside
// and outside r. Both slices keep ascending order and together cover every
// index exactly once.
func Partition(n int, r models.PageRange) (in, out []int) {
	for i := range n {
		if r.Contains(i) {
			in = append(in, i)
		} else {
			out = append(out, i)
		}
	}
	return in, out
}

// Split builds two new documents from doc: pages inside r, and the rest.
// Page indices are renumbered from zero in each output; text is kept.
func Split(doc models.Document, r models.PageRange) (in, out models.Document) {
	for _, p := range doc.Pages {
		if r.Contains(p.Index) {
			in.Pages = append(in.Pages, models.Page{Index: len(in.Pages), Text: p.Text})
		} else {
			out.Pages = append(out.Pages, models.Page{Index: len(out.Pages), Text: p.Text})
		}
	}
	return in, out
}

// PageWriter writes a new PDF holding the given 0-based pages of src in
// their original order.
type PageWriter interface {
	WritePages(ctx context.Context, src, dst string, pages []int) error
}

// Writer writes page subsets with pdfcpu.
type Writer struct {
	conf *model.Configuration
}

// NewWriter returns a Writer with relaxed validation, which scanner output
// frequently needs.
func NewWriter() *Writer {
	return &Writer{conf: relaxedConfig()}
}

func relaxedConfig() *model.Configuration {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return cfg
}

// WritePages writes pages of src to dst.
func (w *Writer) WritePages(ctx context.Context, src, dst string, pages []int) error {
	if len(pages) == 0 {
		return fmt.Errorf("write %s: no pages selected", dst)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := api.TrimFile(src, dst, Selection(pages), w.conf); err != nil {
		return fmt.Errorf("write pages to %s: %w", dst, err)
	}
	return nil
}

// PageCount returns the number of pages in path.
func (w *Writer) PageCount(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, &ReadError{Path: path, Err: err}
	}
	return n, nil
}

// Selection converts ascending 0-based page indices into a pdfcpu page
// selection, collapsing consecutive runs into ranges.
func Selection(pages []int) []string {
	var sel []string
	for i := 0; i < len(pages); {
		j := i
		for j+1 < len(pages) && pages[j+1] == pages[j]+1 {
			j++
		}
		start, end := pages[i]+1, pages[j]+1
		if start == end {
			sel = append(sel, strconv.Itoa(start))
		} else {
			sel = append(sel, strconv.Itoa(start)+"-"+strconv.Itoa(end))
		}
		i = j + 1
	}
	return sel
}
