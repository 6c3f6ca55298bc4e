package game

import (
	"fmt"

	"github.com/mbergh0930/create3x/internal/catalog"
	"github.com/mbergh0930/create3x/internal/models"
)

// ParseMode validates a mode name.
func ParseMode(s string) (models.Mode, error) {
	m := models.Mode(s)
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
	return m, nil
}

// ParseFocus validates an artist focus. The empty string means FocusAll.
func ParseFocus(s string) (models.ArtistFocus, error) {
	if s == "" {
		return models.FocusAll, nil
	}
	f := models.ArtistFocus(s)
	if !f.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownFocus, s)
	}
	return f, nil
}

// BaseSet returns the catalog subset a mode draws from.
func BaseSet(m models.Mode) (catalog.Set, error) {
	switch m {
	case models.ModeInspire, models.ModePlay, models.ModePlayAndJournal:
		return catalog.Casual, nil
	case models.ModeMasters, models.ModeMasterArtist:
		return catalog.Professional, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, m)
}

// ArtistGuided reports whether a mode honours artist constraints.
func ArtistGuided(m models.Mode) bool {
	switch m {
	case models.ModeMasters, models.ModeMasterArtist:
		return true
	case models.ModeInspire, models.ModePlay, models.ModePlayAndJournal:
		return false
	}
	return false
}

// narrows reports whether focus restricts cat to the artist's palette.
func narrows(focus models.ArtistFocus, cat catalog.Category) bool {
	switch focus {
	case models.FocusAll, "":
		return true
	case models.FocusColorsOnly:
		return cat == catalog.Colors
	case models.FocusTechniquesOnly:
		return cat == catalog.Techniques
	case models.FocusMediumsOnly:
		return cat == catalog.Mediums
	}
	return false
}
