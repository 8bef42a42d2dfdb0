package domain

import "strings"

// SearchQuery is a validated, canonical search request. Built per call,
// discarded after use.
type SearchQuery struct {
	Text       string
	MaxResults int
	UserID     string
}

// QueryLimits bounds query normalization.
type QueryLimits struct {
	MaxQueryLength    int
	DefaultMaxResults int
	MaxResults        int
}

// NormalizeQuery validates and canonicalizes raw query input.
// The text is trimmed, internal whitespace runs are collapsed to single
// spaces, and anything beyond MaxQueryLength is silently truncated.
// A non-positive maxResults falls back to the default; an oversized one is
// clamped. Blank input yields ErrEmptyQuery as a value, so callers can build
// an error result without aborting.
func NormalizeQuery(rawText string, rawMaxResults int, userID string, lim QueryLimits) (SearchQuery, error) {
	text := CollapseWhitespace(rawText)
	if text == "" {
		return SearchQuery{}, ErrEmptyQuery
	}

	if lim.MaxQueryLength > 0 {
		if runes := []rune(text); len(runes) > lim.MaxQueryLength {
			text = string(runes[:lim.MaxQueryLength])
		}
	}

	maxResults := rawMaxResults
	switch {
	case maxResults <= 0:
		maxResults = lim.DefaultMaxResults
	case lim.MaxResults > 0 && maxResults > lim.MaxResults:
		maxResults = lim.MaxResults
	}

	return SearchQuery{
		Text:       text,
		MaxResults: maxResults,
		UserID:     strings.TrimSpace(userID),
	}, nil
}

// CollapseWhitespace trims the string and collapses internal whitespace runs
// to single spaces.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
