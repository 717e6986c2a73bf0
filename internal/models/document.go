package models

import (
	"strings"
	"time"
)

// Page is one position within a Document. Index is 0-based.
type Page struct {
	Index int
	Text  string
}

// Document is an ordered sequence of pages identified by its filesystem path.
// Pages are never mutated in place; splitting and merging build new documents.
type Document struct {
	Path  string
	Pages []Page
}

// NewDocument builds a Document from per-page text in page order.
func NewDocument(path string, texts []string) Document {
	pages := make([]Page, len(texts))
	for i, t := range texts {
		pages[i] = Page{Index: i, Text: t}
	}
	return Document{Path: path, Pages: pages}
}

// PageCount returns the number of pages.
func (d Document) PageCount() int {
	return len(d.Pages)
}

// Text joins all page texts in order.
func (d Document) Text() string {
	var b strings.Builder
	for _, p := range d.Pages {
		b.WriteString(p.Text)
	}
	return b.String()
}

// Status values recorded in the run ledger.
const (
	StatusProcessing = "PROCESSING"
	StatusPlaced     = "PLACED"
	StatusUnnamed    = "UNNAMED"
	StatusDuplicate  = "DUPLICATE"
	StatusFailed     = "FAILED"
)

// ScanRecord is the ledger row for one processed source file.
// It is stored in sqlite locally and in Firestore by the intake function.
type ScanRecord struct {
	RunID            string    `firestore:"runId,omitempty"`
	FileHash         string    `firestore:"fileHash,omitempty"`
	OriginalFilename string    `firestore:"originalFilename,omitempty"`
	Mode             string    `firestore:"mode,omitempty"`
	Status           string    `firestore:"status,omitempty"`
	Destination      string    `firestore:"destination,omitempty"`
	ErrorDetails     string    `firestore:"errorDetails,omitempty"`
	PageCount        int       `firestore:"pageCount,omitempty"`
	CreatedAt        time.Time `firestore:"createdAt,omitempty"`
}
