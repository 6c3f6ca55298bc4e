package game

import (
	"fmt"
	"time"

	"github.com/mbergh0930/create3x/internal/catalog"
	"github.com/mbergh0930/create3x/internal/models"
)

// Generator draws turns from a catalog. It holds no per-session state and is
// safe for concurrent use when its Rand is.
type Generator struct {
	catalog *catalog.Catalog
	rand    Rand
	now     func() time.Time
}

func NewGenerator(c *catalog.Catalog, r Rand) *Generator {
	return &Generator{catalog: c, rand: r, now: time.Now}
}

// Candidates returns the keys a session may draw for one category.
func (g *Generator) Candidates(s *models.Session, cat catalog.Category) ([]string, error) {
	set, err := BaseSet(s.Mode)
	if err != nil {
		return nil, err
	}
	keys := g.catalog.ListKeys(set, cat)

	if s.ArtistID != nil && ArtistGuided(s.Mode) && narrows(s.ArtistFocus, cat) {
		artist, ok := g.catalog.Artist(*s.ArtistID)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownArtist, *s.ArtistID)
		}
		keys = artist.Allowed(cat)
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyCandidateSet, cat)
	}
	return keys, nil
}

// Generate draws one turn. turnNumber is not checked against the session's
// progress.
func (g *Generator) Generate(s *models.Session, turnNumber int) (models.Turn, error) {
	var drawn [3]string
	for i, cat := range catalog.Categories {
		keys, err := g.Candidates(s, cat)
		if err != nil {
			return models.Turn{}, err
		}
		drawn[i] = keys[g.rand.IntN(len(keys))]
	}

	turn := models.Turn{
		TurnNumber: turnNumber,
		Color:      drawn[0],
		Technique:  drawn[1],
		Medium:     drawn[2],
		CreatedAt:  g.now().UTC(),
	}
	if s.ArtistID != nil {
		if artist, ok := g.catalog.Artist(*s.ArtistID); ok {
			name := artist.Name
			turn.ArtistName = &name
		}
	}
	return turn, nil
}

// View resolves display names for a turn against the session's catalog set.
func (g *Generator) View(s *models.Session, t models.Turn) models.TurnView {
	set, err := BaseSet(s.Mode)
	if err != nil {
		set = catalog.Professional
	}
	return models.TurnView{
		Turn:          t,
		ColorName:     g.catalog.ResolveIn(set, catalog.Colors, t.Color).Name,
		TechniqueName: g.catalog.ResolveIn(set, catalog.Techniques, t.Technique).Name,
		MediumName:    g.catalog.ResolveIn(set, catalog.Mediums, t.Medium).Name,
	}
}
