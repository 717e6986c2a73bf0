package pdf

import (
	"context"
	"errors"
	"fmt"

	"github.com/tsawler/tabula"
	"github.com/tsawler/tabula/reader"

	"github.com/Lllllllleong/scanrouter/internal/models"
)

// TextReader returns the plain text of each page of a PDF in page order.
type TextReader interface {
	PageTexts(ctx context.Context, path string) ([]string, error)
}

// TabulaReader extracts page text with tabula.
type TabulaReader struct{}

// NewTextReader returns the default TextReader.
func NewTextReader() *TabulaReader {
	return &TabulaReader{}
}

// PageTexts opens path and extracts the text of every page. A file that
// cannot be parsed yields a *ReadError, never an empty result.
func (TabulaReader) PageTexts(ctx context.Context, path string) ([]string, error) {
	r, err := reader.Open(path)
	if err != nil {
		return nil, &ReadError{Path: path, Err: err}
	}
	defer r.Close()

	count, err := r.PageCount()
	if err != nil {
		return nil, &ReadError{Path: path, Err: err}
	}
	if count == 0 {
		return nil, &ReadError{Path: path, Err: errors.New("no pages")}
	}

	texts := make([]string, count)
	for i := range count {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, _, err := tabula.FromReader(r).Pages(i + 1).Text()
		if err != nil {
			return nil, &ReadError{Path: path, Err: fmt.Errorf("page %d: %w", i+1, err)}
		}
		texts[i] = text
	}
	return texts, nil
}

// Load reads path into a Document.
func Load(ctx context.Context, r TextReader, path string) (models.Document, error) {
	texts, err := r.PageTexts(ctx, path)
	if err != nil {
		return models.Document{}, err
	}
	return models.NewDocument(path, texts), nil
}
