package tracking

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Side identifies one of the two teams in a tracking feed.
type Side string

const (
	Home Side = "Home"
	Away Side = "Away"
)

var ErrUnknownSide = errors.New("unknown side")

func (s Side) Opponent() Side {
	switch s {
	case Home:
		return Away
	case Away:
		return Home
	}
	return ""
}

func (s Side) Valid() bool { return s == Home || s == Away }

// ParseSide accepts the team labels used by tracking and event feeds
// ("Home", " away ", "HOME") and returns the canonical Side.
func ParseSide(s string) (Side, error) {
	switch normalize(s) {
	case "home":
		return Home, nil
	case "away":
		return Away, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSide, s)
}

// NormalizeID canonicalises a player identifier so that the same player
// keys the same roster slot and per-player surface across feeds
// ("Player 11", "player11" and "Player_11" all map to "player11").
func NormalizeID(s string) string {
	s = normalize(s)
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(s)
}

// normalize lowercases, strips diacritics and collapses whitespace.
func normalize(s string) string {
	if s == "" {
		return ""
	}
	s = stripDiacritics(s)
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.Fields(s), " ")
}

func stripDiacritics(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range norm.NFD.String(s) {
		if !unicode.Is(unicode.Mn, r) { // Mn = Mark, Nonspacing (combining accents)
			b.WriteRune(r)
		}
	}
	return b.String()
}
