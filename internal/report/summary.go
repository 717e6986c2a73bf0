// Package report renders the Markdown summary of a batch run.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/nao1215/markdown"

	"github.com/Lllllllleong/scanrouter/internal/models"
)

// SummaryFile is the summary's name inside the destination directory.
const SummaryFile = "summary.md"

// Write renders s as Markdown to w.
func Write(w io.Writer, s models.RunSummary) error {
	md := markdown.NewMarkdown(w)

	results := slices.Clone(s.Results)
	slices.SortFunc(results, func(a, b models.FileResult) int {
		return strings.Compare(a.Item.Path, b.Item.Path)
	})
	failed := s.Failed()

	md.H1("Scan Routing Summary")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run ID", "`" + s.RunID + "`"},
			{"Mode", s.Mode},
			{"Source", s.Source},
			{"Destination", s.Dest},
			{"Started", s.Started.Format("2006-01-02 15:04:05 MST")},
			{"Elapsed", s.Elapsed.Round(1e6).String()},
			{"Files", strconv.Itoa(len(s.Results))},
			{"Succeeded", strconv.Itoa(s.Succeeded())},
			{"Failed", strconv.Itoa(len(failed))},
			{"Output size", humanize.Bytes(outputBytes(results))},
		},
	})
	md.PlainText("")

	if len(failed) > 0 {
		md.Warningf("%d of %d files failed and were left in the source directory.", len(failed), len(s.Results))
	} else {
		md.Note("Every file was processed.")
	}
	md.PlainText("")

	md.H2("Files")
	md.PlainText("")
	if len(results) == 0 {
		md.PlainText("The source directory was empty.")
		return md.Build()
	}
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		detail := strings.Join(relativeAll(s.Dest, r.Outputs), "<br>")
		if r.Err != nil {
			detail = escape(r.Err.Error())
		}
		rows = append(rows, []string{filepath.Base(r.Item.Path), r.Status, detail, r.Duration.Round(1e6).String()})
	}
	md.Table(markdown.TableSet{
		Header: []string{"File", "Status", "Outputs / Error", "Duration"},
		Rows:   rows,
	})
	return md.Build()
}

// WriteFile writes the summary to {s.Dest}/summary.md and returns its path.
func WriteFile(s models.RunSummary) (string, error) {
	path := filepath.Join(s.Dest, SummaryFile)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create summary: %w", err)
	}
	if err := Write(f, s); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write summary: %w", err)
	}
	return path, f.Close()
}

func outputBytes(results []models.FileResult) uint64 {
	var total uint64
	for _, r := range results {
		for _, out := range r.Outputs {
			if info, err := os.Stat(out); err == nil {
				total += uint64(info.Size())
			}
		}
	}
	return total
}

func relativeAll(root string, paths []string) []string {
	rel := make([]string, 0, len(paths))
	for _, p := range paths {
		if r, err := filepath.Rel(root, p); err == nil && !strings.HasPrefix(r, "..") {
			p = r
		}
		rel = append(rel, "`"+p+"`")
	}
	return rel
}

func escape(s string) string {
	return strings.NewReplacer("|", `\|`, "\n", " ").Replace(s)
}
