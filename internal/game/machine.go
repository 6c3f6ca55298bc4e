package game

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mbergh0930/create3x/internal/catalog"
	"github.com/mbergh0930/create3x/internal/models"
)

// MaxReflectionLength bounds turn and final reflections, in runes.
const MaxReflectionLength = 300

// Limits bounds the planned turn count of new sessions.
type Limits struct {
	DefaultTurnsMin   int
	DefaultTurnsMax   int
	MaxRequestedTurns int
}

func DefaultLimits() Limits {
	return Limits{DefaultTurnsMin: 3, DefaultTurnsMax: 7, MaxRequestedTurns: 5}
}

func (l Limits) Validate() error {
	if l.DefaultTurnsMin < 1 {
		return fmt.Errorf("default turns min must be at least 1, got %d", l.DefaultTurnsMin)
	}
	if l.DefaultTurnsMax < l.DefaultTurnsMin {
		return fmt.Errorf("default turns max %d is below min %d", l.DefaultTurnsMax, l.DefaultTurnsMin)
	}
	if l.MaxRequestedTurns < 1 {
		return fmt.Errorf("max requested turns must be at least 1, got %d", l.MaxRequestedTurns)
	}
	return nil
}

// Machine drives sessions through their lifecycle. Operations take the
// session explicitly and return a new value; the argument is never modified.
// A returned session reflects state that the store has accepted.
type Machine struct {
	store   SessionStore
	gen     *Generator
	catalog *catalog.Catalog
	rand    Rand
	limits  Limits
	now     func() time.Time
}

func NewMachine(store SessionStore, c *catalog.Catalog, r Rand, limits Limits) *Machine {
	return &Machine{
		store:   store,
		gen:     NewGenerator(c, r),
		catalog: c,
		rand:    r,
		limits:  limits,
		now:     time.Now,
	}
}

func (m *Machine) Generator() *Generator { return m.gen }

// Create starts a session. A nil requestedTurns picks a random count in the
// default range.
func (m *Machine) Create(ctx context.Context, userID string, mode models.Mode, cfg models.SessionConfig, requestedTurns *int) (*models.Session, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	focus, err := ParseFocus(string(cfg.ArtistFocus))
	if err != nil {
		return nil, err
	}

	planned, err := m.plannedTurns(requestedTurns)
	if err != nil {
		return nil, err
	}

	s := &models.Session{
		UserID:           userID,
		Mode:             mode,
		ArtistFocus:      focus,
		PlannedTurns:     planned,
		CurrentTurnIndex: 1,
		Turns:            []models.Turn{},
		CreatedAt:        m.now().UTC(),
		ShareSettings:    models.DefaultShareSettings(),
	}
	if cfg.ArtistID != "" {
		if _, ok := m.catalog.Artist(cfg.ArtistID); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownArtist, cfg.ArtistID)
		}
		id := cfg.ArtistID
		s.ArtistID = &id
	}

	id, err := m.store.CreateSession(ctx, s)
	if err != nil {
		return nil, &AdapterError{Op: "create", Err: err}
	}
	s.ID = id
	return s, nil
}

func (m *Machine) plannedTurns(requested *int) (int, error) {
	if requested != nil {
		n := *requested
		if n < 1 || n > m.limits.MaxRequestedTurns {
			return 0, fmt.Errorf("%w: %d not in 1..%d", ErrInvalidTurnCount, n, m.limits.MaxRequestedTurns)
		}
		return n, nil
	}
	span := m.limits.DefaultTurnsMax - m.limits.DefaultTurnsMin + 1
	return m.limits.DefaultTurnsMin + m.rand.IntN(span), nil
}

// Load fetches a session from the store.
func (m *Machine) Load(ctx context.Context, id string) (*models.Session, error) {
	s, err := m.store.GetSession(ctx, id)
	if err != nil {
		return nil, &AdapterError{Op: "get", Err: err}
	}
	return s, nil
}

// RequestTurn draws the next turn. The turn stays in flight until passed to
// CompleteTurn.
func (m *Machine) RequestTurn(s *models.Session) (models.Turn, error) {
	if !active(s) {
		return models.Turn{}, ErrNoActiveSession
	}
	if s.CurrentTurnIndex > s.PlannedTurns {
		return models.Turn{}, ErrNoTurnsRemaining
	}
	return m.gen.Generate(s, s.CurrentTurnIndex)
}

// CompleteTurn records turn with its reflection and persists the result.
// The boolean reports that every planned turn is now complete.
func (m *Machine) CompleteTurn(ctx context.Context, s *models.Session, turn models.Turn, reflection string) (*models.Session, bool, error) {
	if !active(s) {
		return nil, false, ErrNoActiveSession
	}
	if turn.TurnNumber != s.CurrentTurnIndex {
		return nil, false, fmt.Errorf("%w: got %d, want %d", ErrTurnSequenceViolation, turn.TurnNumber, s.CurrentTurnIndex)
	}
	if s.CompletedTurns >= s.PlannedTurns {
		return nil, false, ErrNoTurnsRemaining
	}

	turn.Reflection = TruncateReflection(reflection)
	turn.ReflectionProvided = turn.Reflection != ""

	next := s.Clone()
	next.Turns = append(next.Turns, turn)
	next.CompletedTurns++
	next.CurrentTurnIndex++

	patch := models.SessionPatch{
		Turns:            next.Turns,
		CompletedTurns:   &next.CompletedTurns,
		CurrentTurnIndex: &next.CurrentTurnIndex,
	}
	if err := m.store.UpdateSession(ctx, s.ID, patch); err != nil {
		return nil, false, &AdapterError{Op: "update", Err: err}
	}
	return next, next.CompletedTurns == next.PlannedTurns, nil
}

// EndEarly closes an in-progress session regardless of how many turns were
// completed. An in-flight turn is discarded.
func (m *Machine) EndEarly(ctx context.Context, s *models.Session, finalReflection string) (*models.Session, error) {
	if !active(s) {
		return nil, ErrNoActiveSession
	}
	return m.close(ctx, s, finalReflection, true)
}

// Finalize closes a session whose planned turns are all complete.
func (m *Machine) Finalize(ctx context.Context, s *models.Session, finalReflection string) (*models.Session, error) {
	if !active(s) {
		return nil, ErrNoActiveSession
	}
	if s.CompletedTurns != s.PlannedTurns {
		return nil, fmt.Errorf("%w: %d of %d completed", ErrSessionIncomplete, s.CompletedTurns, s.PlannedTurns)
	}
	return m.close(ctx, s, finalReflection, false)
}

func (m *Machine) close(ctx context.Context, s *models.Session, finalReflection string, endedEarly bool) (*models.Session, error) {
	next := s.Clone()
	now := m.now().UTC()
	next.FinalReflection = TruncateReflection(finalReflection)
	next.FinalReflectionProvided = next.FinalReflection != ""
	next.CompletedAt = &now
	next.EndedEarly = endedEarly

	patch := models.SessionPatch{
		FinalReflection:         &next.FinalReflection,
		FinalReflectionProvided: &next.FinalReflectionProvided,
		CompletedAt:             next.CompletedAt,
		EndedEarly:              &next.EndedEarly,
	}
	if err := m.store.UpdateSession(ctx, s.ID, patch); err != nil {
		return nil, &AdapterError{Op: "update", Err: err}
	}
	return next, nil
}

func active(s *models.Session) bool {
	return s != nil && s.ID != "" && !s.Terminal()
}

// TruncateReflection caps text at MaxReflectionLength runes. The text is
// otherwise stored as written.
func TruncateReflection(text string) string {
	if utf8.RuneCountInString(text) <= MaxReflectionLength {
		return text
	}
	return string([]rune(text)[:MaxReflectionLength])
}
