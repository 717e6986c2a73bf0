// Package extract pulls identifying fields out of recognized page text.
package extract

import (
	"regexp"
	"strings"
)

// assetIDPrefix marks the preferred family of asset identifiers.
const assetIDPrefix = "015"

// DefaultSentinel replaces entity names that are empty or known to be noise.
const DefaultSentinel = "Err"

// DefaultBadNames are phrases that regularly follow the entity anchor in noisy
// OCR output and must never be used as a directory name.
var DefaultBadNames = []string{"Mailing Address", "Name History", "expected"}

var (
	// \b and \d are ASCII-only, so any non-ASCII rune is a word boundary.
	assetIDPattern = regexp.MustCompile(`\b(?:015)?[A-Za-z]{3}\d+\b`)
	unsafeNameChar = regexp.MustCompile(`[^A-Za-z0-9 ]+`)
)

// AssetID returns the asset identifier found in text. Matches carrying the
// 015 prefix win over any other match, wherever they appear; otherwise the
// first match in text order is returned.
func AssetID(text string) (string, bool) {
	matches := assetIDPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return "", false
	}
	for _, m := range matches {
		if strings.HasPrefix(m, assetIDPrefix) {
			return m, true
		}
	}
	return matches[0], true
}

// NamePolicy turns a raw extracted fragment into a usable entity name.
type NamePolicy struct {
	// Sentinel is returned for empty or banned names.
	Sentinel string
	// BadNames holds exact extractions that are replaced by Sentinel.
	BadNames map[string]struct{}
}

// NewNamePolicy builds a policy from a sentinel and a list of banned names.
// An empty sentinel falls back to DefaultSentinel.
func NewNamePolicy(sentinel string, badNames []string) NamePolicy {
	if sentinel == "" {
		sentinel = DefaultSentinel
	}
	bad := make(map[string]struct{}, len(badNames))
	for _, n := range badNames {
		bad[n] = struct{}{}
	}
	return NamePolicy{Sentinel: sentinel, BadNames: bad}
}

// DefaultNamePolicy uses DefaultSentinel and DefaultBadNames.
func DefaultNamePolicy() NamePolicy {
	return NewNamePolicy(DefaultSentinel, DefaultBadNames)
}

// Clean strips everything outside [A-Za-z0-9 ], trims the result and maps
// empty or banned names to the sentinel.
func (p NamePolicy) Clean(raw string) string {
	name := strings.TrimSpace(unsafeNameChar.ReplaceAllString(raw, ""))
	if name == "" {
		return p.Sentinel
	}
	if _, banned := p.BadNames[name]; banned {
		return p.Sentinel
	}
	return name
}

// IsSentinel reports whether name is the policy's sentinel.
func (p NamePolicy) IsSentinel(name string) bool {
	return name == p.Sentinel
}

// trailingLine builds the expression capturing the line that follows anchor.
// The anchor must sit on a line preceded by a line break; whitespace
// (including line breaks) after it is skipped before capturing.
func trailingLine(anchor string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)[\n\r].*` + regexp.QuoteMeta(anchor) + `\s*([^\n\r]*)`)
}

// EntityName extracts the text following anchor in text and cleans it with
// the policy. The sentinel is returned when nothing usable follows the anchor.
func (p NamePolicy) EntityName(text, anchor string) string {
	m := trailingLine(anchor).FindStringSubmatch(text)
	if m == nil {
		return p.Sentinel
	}
	return p.Clean(m[1])
}
