package models

import (
	"fmt"
	"strings"
)

// Topic represents the trending item a run is written about.
// Immutable once chosen.
type Topic struct {
	Title string `json:"title" yaml:"title"`
	URL   string `json:"url" yaml:"url"`
	Score int    `json:"score" yaml:"score"`
}

// ContentMode selects the stylistic template for the day's post
type ContentMode string

const (
	ModeArticle   ContentMode = "article"
	ModeMeme      ContentMode = "meme"
	ModeShort     ContentMode = "short"
	ModeFreestyle ContentMode = "freestyle"
	// ModeNone marks the rest day: nothing is generated or posted
	ModeNone ContentMode = "none"
)

// Produces reports whether the mode generates content
func (m ContentMode) Produces() bool {
	switch m {
	case ModeArticle, ModeMeme, ModeShort, ModeFreestyle:
		return true
	}
	return false
}

// ParseContentMode parses a mode name (case-insensitive)
func ParseContentMode(s string) (ContentMode, error) {
	m := ContentMode(strings.ToLower(strings.TrimSpace(s)))
	if m == ModeNone || m.Produces() {
		return m, nil
	}
	return "", fmt.Errorf("unknown content mode %q", s)
}
