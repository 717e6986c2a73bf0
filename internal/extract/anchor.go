package extract

import (
	"regexp"
	"strconv"

	"github.com/Lllllllleong/scanrouter/internal/models"
)

// Mode selects what Find returns on a match.
type Mode string

const (
	// ModePage reports the 0-based index of the first matching page.
	ModePage Mode = "page"
	// ModeString reports the cleaned line following the anchor on that page.
	ModeString Mode = "string"
)

// Match is the outcome of a successful anchor search.
type Match struct {
	Page int
	Text string
}

// Searcher scans documents for anchor strings.
type Searcher struct {
	Names NamePolicy
}

// NewSearcher returns a Searcher using the given name policy for ModeString.
func NewSearcher(names NamePolicy) *Searcher {
	return &Searcher{Names: names}
}

func anchorPattern(target string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + regexp.QuoteMeta(target))
}

// Find scans pages in ascending order and stops at the first page whose text
// contains target, ignoring case. Later matches are never considered. The
// second return value is false when no page matches.
func (s *Searcher) Find(doc models.Document, target string, mode Mode) (Match, bool) {
	re := anchorPattern(target)
	for _, p := range doc.Pages {
		if !re.MatchString(p.Text) {
			continue
		}
		m := Match{Page: p.Index}
		if mode == ModeString {
			m.Text = s.Names.EntityName(p.Text, target)
		}
		return m, true
	}
	return Match{Page: -1}, false
}

// FindPage is Find in ModePage.
func (s *Searcher) FindPage(doc models.Document, target string) (int, bool) {
	m, ok := s.Find(doc, target, ModePage)
	return m.Page, ok
}

// EntityName tries each anchor in order and returns the first extraction that
// is neither missing nor the sentinel. When every anchor fails the sentinel
// is returned.
func (s *Searcher) EntityName(doc models.Document, anchors []string) string {
	for _, a := range anchors {
		m, ok := s.Find(doc, a, ModeString)
		if ok && !s.Names.IsSentinel(m.Text) {
			return m.Text
		}
	}
	return s.Names.Sentinel
}

// CoresRange locates the start and end anchors and returns the inclusive page
// range between them. It reports false when either anchor is missing or the
// range would not be a valid range of doc.
func (s *Searcher) CoresRange(doc models.Document, startAnchor, endAnchor string) (models.PageRange, bool) {
	start, ok := s.FindPage(doc, startAnchor)
	if !ok {
		return models.PageRange{}, false
	}
	end, ok := s.FindPage(doc, endAnchor)
	if !ok {
		return models.PageRange{}, false
	}
	r := models.PageRange{Start: start, End: end}
	return r, r.Valid(doc.PageCount())
}

// Extract runs every field extractor over doc.
func (s *Searcher) Extract(doc models.Document, entityAnchors []string, startAnchor, endAnchor string) models.ExtractionResult {
	res := models.ExtractionResult{}
	if id, ok := AssetID(doc.Text()); ok {
		res[models.FieldAssetID] = id
	}
	if len(entityAnchors) > 0 {
		res[models.FieldEntityName] = s.EntityName(doc, entityAnchors)
	}
	if r, ok := s.CoresRange(doc, startAnchor, endAnchor); ok {
		res[models.FieldCoresStartPage] = strconv.Itoa(r.Start)
		res[models.FieldCoresEndPage] = strconv.Itoa(r.End)
	}
	return res
}
