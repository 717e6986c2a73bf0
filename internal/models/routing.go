package models

import (
	"strconv"
	"time"
)

// Field names used in an ExtractionResult.
const (
	FieldAssetID        = "asset_id"
	FieldEntityName     = "entity_name"
	FieldCoresStartPage = "cores_start_page"
	FieldCoresEndPage   = "cores_end_page"
)

// ExtractionResult maps a field name to its extracted value. A missing key
// means the field had no match, which is a normal outcome.
type ExtractionResult map[string]string

// Get returns the value for field and whether it was extracted.
func (r ExtractionResult) Get(field string) (string, bool) {
	v, ok := r[field]
	return v, ok
}

// PageRange is an inclusive 0-based page index range.
type PageRange struct {
	Start int
	End   int
}

// Valid reports whether the range is ordered and lies within [0, pageCount).
func (r PageRange) Valid(pageCount int) bool {
	return r.Start >= 0 && r.Start <= r.End && r.End < pageCount
}

// Contains reports whether page index i lies inside the range.
func (r PageRange) Contains(i int) bool {
	return i >= r.Start && i <= r.End
}

// PlacementDecision is where a processed document ends up. When Cores is set
// the document is additionally split into a "Cores" document holding the
// range and a "Submission" document holding the rest.
type PlacementDecision struct {
	Dir      string
	Filename string
	Cores    *PageRange
}

// WorkItem is one queued source file. It is consumed by exactly one worker.
type WorkItem struct {
	Path    string
	DestDir string
	RunID   string
}

// FileResult is what a worker reports for a single WorkItem.
type FileResult struct {
	Item     WorkItem
	Status   string
	Outputs  []string
	Err      error
	Duration time.Duration
}

// Cores returns the cores page range when both bounds were extracted.
func (r ExtractionResult) Cores() (PageRange, bool) {
	s, ok := r[FieldCoresStartPage]
	if !ok {
		return PageRange{}, false
	}
	e, ok := r[FieldCoresEndPage]
	if !ok {
		return PageRange{}, false
	}
	start, err := strconv.Atoi(s)
	if err != nil {
		return PageRange{}, false
	}
	end, err := strconv.Atoi(e)
	if err != nil {
		return PageRange{}, false
	}
	return PageRange{Start: start, End: end}, true
}

// RunSummary collects the results of one batch run in completion order.
type RunSummary struct {
	RunID   string
	Source  string
	Dest    string
	Mode    string
	Started time.Time
	Elapsed time.Duration
	Results []FileResult
}

// Failed returns the results that ended in an error.
func (s RunSummary) Failed() []FileResult {
	var failed []FileResult
	for _, r := range s.Results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}

// Succeeded returns the number of results without an error.
func (s RunSummary) Succeeded() int {
	return len(s.Results) - len(s.Failed())
}

// Routing modes.
const (
	ModeAsset  = "asset"
	ModeEntity = "entity"
)
