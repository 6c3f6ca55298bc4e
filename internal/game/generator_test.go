package game

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbergh0930/create3x/internal/catalog"
	"github.com/mbergh0930/create3x/internal/models"
)

func strPtr(s string) *string { return &s }

func TestGeneratorArtistFocus(t *testing.T) {
	cat := catalog.MustLoad()
	gen := NewGenerator(cat, NewSeededRand(9, 9))
	picasso, _ := cat.Artist("picasso")

	tests := []struct {
		focus     models.ArtistFocus
		wantFull  []catalog.Category
		wantMatch []catalog.Category
	}{
		{models.FocusColorsOnly, []catalog.Category{catalog.Techniques, catalog.Mediums}, []catalog.Category{catalog.Colors}},
		{models.FocusTechniquesOnly, []catalog.Category{catalog.Colors, catalog.Mediums}, []catalog.Category{catalog.Techniques}},
		{models.FocusMediumsOnly, []catalog.Category{catalog.Colors, catalog.Techniques}, []catalog.Category{catalog.Mediums}},
		{models.FocusAll, nil, catalog.Categories},
	}

	for _, tt := range tests {
		t.Run(string(tt.focus), func(t *testing.T) {
			s := &models.Session{ID: "s1", Mode: models.ModeMasterArtist, ArtistID: strPtr("picasso"), ArtistFocus: tt.focus}

			for _, c := range tt.wantMatch {
				keys, err := gen.Candidates(s, c)
				require.NoError(t, err)
				assert.ElementsMatch(t, picasso.Allowed(c), keys)
			}
			for _, c := range tt.wantFull {
				keys, err := gen.Candidates(s, c)
				require.NoError(t, err)
				assert.Equal(t, cat.ListKeys(catalog.Professional, c), keys)
			}

			for i := 0; i < 100; i++ {
				turn, err := gen.Generate(s, 1)
				require.NoError(t, err)
				drawn := map[catalog.Category]string{
					catalog.Colors:     turn.Color,
					catalog.Techniques: turn.Technique,
					catalog.Mediums:    turn.Medium,
				}
				for _, c := range tt.wantMatch {
					assert.Contains(t, picasso.Allowed(c), drawn[c])
				}
				for _, c := range tt.wantFull {
					assert.Contains(t, cat.ListKeys(catalog.Professional, c), drawn[c])
				}
			}
		})
	}
}

func TestGeneratorIgnoresArtistOutsideGuidedModes(t *testing.T) {
	cat := catalog.MustLoad()
	gen := NewGenerator(cat, NewSeededRand(1, 1))
	s := &models.Session{ID: "s1", Mode: models.ModePlay, ArtistID: strPtr("monet"), ArtistFocus: models.FocusAll}

	for _, c := range catalog.Categories {
		keys, err := gen.Candidates(s, c)
		require.NoError(t, err)
		assert.Equal(t, cat.ListKeys(catalog.Casual, c), keys)
	}

	turn, err := gen.Generate(s, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, turn.TurnNumber)
	require.NotNil(t, turn.ArtistName)
	assert.Equal(t, "Claude Monet", *turn.ArtistName)
}

func TestGeneratorMastersWithoutArtistUsesProfessionalSet(t *testing.T) {
	cat := catalog.MustLoad()
	gen := NewGenerator(cat, NewSeededRand(5, 6))
	s := &models.Session{ID: "s1", Mode: models.ModeMasters, ArtistFocus: models.FocusAll}

	for i := 0; i < 50; i++ {
		turn, err := gen.Generate(s, 1)
		require.NoError(t, err)
		assert.Contains(t, cat.ListKeys(catalog.Professional, catalog.Techniques), turn.Technique)
		assert.Nil(t, turn.ArtistName)
		assert.Empty(t, turn.Reflection)
		assert.False(t, turn.ReflectionProvided)
		assert.False(t, turn.CreatedAt.IsZero())
	}
}

func TestGeneratorEmptyCandidateSet(t *testing.T) {
	cat, err := catalog.Parse([]byte(`
sets:
  professional:
    colors:
      - {key: viridian, name: Viridian}
    techniques:
      - {key: glazing, name: Glazing}
artists:
  - id: minimalist
    name: A Minimalist
    colors: [viridian]
    techniques: [glazing]
`))
	require.NoError(t, err)
	gen := NewGenerator(cat, NewSeededRand(1, 1))

	s := &models.Session{ID: "s1", Mode: models.ModeMasterArtist, ArtistID: strPtr("minimalist"), ArtistFocus: models.FocusAll}
	_, err = gen.Generate(s, 1)
	assert.True(t, errors.Is(err, ErrEmptyCandidateSet))

	// Narrowing only colors still leaves the empty professional medium set.
	s.ArtistFocus = models.FocusColorsOnly
	_, err = gen.Generate(s, 1)
	assert.ErrorIs(t, err, ErrEmptyCandidateSet)
}

func TestGeneratorUsesInjectedRand(t *testing.T) {
	cat := catalog.MustLoad()
	gen := NewGenerator(cat, &scriptedRand{values: []int{0, 1, 2}})
	s := &models.Session{ID: "s1", Mode: models.ModeInspire}

	turn, err := gen.Generate(s, 1)
	require.NoError(t, err)
	assert.Equal(t, "red", turn.Color)
	assert.Equal(t, "drip", turn.Technique)
	assert.Equal(t, "acrylic", turn.Medium)
}

func TestGeneratorView(t *testing.T) {
	gen := NewGenerator(catalog.MustLoad(), NewSeededRand(1, 1))
	s := &models.Session{Mode: models.ModePlay}
	v := gen.View(s, models.Turn{TurnNumber: 1, Color: "peach", Technique: "mark-making", Medium: "pencil"})

	assert.Equal(t, "Peach", v.ColorName)
	assert.Equal(t, "Mark Making", v.TechniqueName)
	assert.Equal(t, "Colored Pencil", v.MediumName)
	assert.Equal(t, 1, v.TurnNumber)
}

func TestModeParsing(t *testing.T) {
	for _, m := range models.Modes {
		got, err := ParseMode(string(m))
		require.NoError(t, err)
		assert.Equal(t, m, got)
		_, err = BaseSet(m)
		assert.NoError(t, err)
	}
	_, err := ParseMode("zen")
	assert.ErrorIs(t, err, ErrUnknownMode)
	_, err = BaseSet(models.Mode("zen"))
	assert.ErrorIs(t, err, ErrUnknownMode)

	assert.True(t, ArtistGuided(models.ModeMasterArtist))
	assert.True(t, ArtistGuided(models.ModeMasters))
	assert.False(t, ArtistGuided(models.ModePlayAndJournal))

	f, err := ParseFocus("")
	require.NoError(t, err)
	assert.Equal(t, models.FocusAll, f)
	_, err = ParseFocus("everything")
	assert.ErrorIs(t, err, ErrUnknownFocus)
}
