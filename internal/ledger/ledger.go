// Package ledger records what happened to every scanned file.
package ledger

import (
	"context"

	"github.com/Lllllllleong/scanrouter/internal/models"
)

// Outcome is the final state written by Finish.
type Outcome struct {
	Status       string
	Destination  string
	ErrorDetails string
	PageCount    int
}

// Ledger stores one ScanRecord per processed file.
type Ledger interface {
	// Begin stores rec with status PROCESSING and returns its id.
	Begin(ctx context.Context, rec models.ScanRecord) (string, error)
	// Finish records the outcome of the file with the given id.
	Finish(ctx context.Context, id string, o Outcome) error
	// FindByHash returns the id of a record for hash that did not fail.
	FindByHash(ctx context.Context, hash string) (string, bool, error)
	Close() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) Begin(context.Context, models.ScanRecord) (string, error) { return "", nil }
func (Nop) Finish(context.Context, string, Outcome) error { return nil }
func (Nop) FindByHash(context.Context, string) (string, bool, error) { return "", false, nil }
func (Nop) Close() error { return nil }
