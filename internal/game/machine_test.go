package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbergh0930/create3x/internal/catalog"
	"github.com/mbergh0930/create3x/internal/models"
)

// fakeStore records sessions in memory and can be told to fail.
type fakeStore struct {
	sessions  map[string]*models.Session
	next      int
	createErr error
	updateErr error
	updates   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[string]*models.Session)}
}

func (f *fakeStore) CreateSession(_ context.Context, s *models.Session) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.next++
	id := fmt.Sprintf("s%d", f.next)
	c := s.Clone()
	c.ID = id
	f.sessions[id] = c
	return id, nil
}

func (f *fakeStore) UpdateSession(_ context.Context, id string, patch models.SessionPatch) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	s, ok := f.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	patch.Apply(s)
	f.updates++
	return nil
}

func (f *fakeStore) GetSession(_ context.Context, id string) (*models.Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.Clone(), nil
}

// scriptedRand replays fixed values modulo n.
type scriptedRand struct {
	values []int
	i      int
}

func (r *scriptedRand) IntN(n int) int {
	v := r.values[r.i%len(r.values)]
	r.i++
	return v % n
}

func newTestMachine(t *testing.T, store SessionStore, r Rand) *Machine {
	t.Helper()
	if r == nil {
		r = NewSeededRand(1, 2)
	}
	return NewMachine(store, catalog.MustLoad(), r, DefaultLimits())
}

func intPtr(n int) *int { return &n }

func TestCreateHonoursRequestedTurns(t *testing.T) {
	m := newTestMachine(t, newFakeStore(), nil)
	for n := 1; n <= 5; n++ {
		s, err := m.Create(context.Background(), "u1", models.ModePlay, models.SessionConfig{}, intPtr(n))
		require.NoError(t, err)
		assert.Equal(t, n, s.PlannedTurns)
		assert.Equal(t, 0, s.CompletedTurns)
		assert.Equal(t, 1, s.CurrentTurnIndex)
		assert.Empty(t, s.Turns)
		assert.NotEmpty(t, s.ID)
		assert.Nil(t, s.CompletedAt)
		assert.Equal(t, models.StateInProgress, s.State())
	}
}

func TestCreateRejectsInvalidTurnCount(t *testing.T) {
	store := newFakeStore()
	m := newTestMachine(t, store, nil)
	for _, n := range []int{-1, 0, 6, 100} {
		_, err := m.Create(context.Background(), "u1", models.ModePlay, models.SessionConfig{}, intPtr(n))
		assert.ErrorIs(t, err, ErrInvalidTurnCount, "requested %d", n)
	}
	assert.Empty(t, store.sessions)
}

func TestCreateDefaultTurnsWithinRange(t *testing.T) {
	m := newTestMachine(t, newFakeStore(), NewSeededRand(7, 11))
	seen := make(map[int]bool)
	for i := 0; i < 200; i++ {
		s, err := m.Create(context.Background(), "u1", models.ModeInspire, models.SessionConfig{}, nil)
		require.NoError(t, err)
		require.GreaterOrEqual(t, s.PlannedTurns, 3)
		require.LessOrEqual(t, s.PlannedTurns, 7)
		seen[s.PlannedTurns] = true
	}
	assert.Len(t, seen, 5)
}

func TestCreateDefaultRangeIsConfigurable(t *testing.T) {
	limits := Limits{DefaultTurnsMin: 3, DefaultTurnsMax: 8, MaxRequestedTurns: 5}
	m := NewMachine(newFakeStore(), catalog.MustLoad(), &scriptedRand{values: []int{5}}, limits)
	s, err := m.Create(context.Background(), "u1", models.ModePlay, models.SessionConfig{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 8, s.PlannedTurns)
}

func TestCreateValidation(t *testing.T) {
	m := newTestMachine(t, newFakeStore(), nil)
	ctx := context.Background()

	_, err := m.Create(ctx, "", models.ModePlay, models.SessionConfig{}, intPtr(3))
	assert.ErrorIs(t, err, ErrMissingUser)

	_, err = m.Create(ctx, "u1", models.Mode("freestyle"), models.SessionConfig{}, intPtr(3))
	assert.ErrorIs(t, err, ErrUnknownMode)

	_, err = m.Create(ctx, "u1", models.ModeMasterArtist, models.SessionConfig{ArtistID: "rembrandt"}, intPtr(3))
	assert.ErrorIs(t, err, ErrUnknownArtist)

	_, err = m.Create(ctx, "u1", models.ModeMasterArtist, models.SessionConfig{ArtistID: "monet", ArtistFocus: "brushes-only"}, intPtr(3))
	assert.ErrorIs(t, err, ErrUnknownFocus)

	s, err := m.Create(ctx, "u1", models.ModeMasterArtist, models.SessionConfig{ArtistID: "monet"}, intPtr(3))
	require.NoError(t, err)
	assert.Equal(t, models.FocusAll, s.ArtistFocus)
	require.NotNil(t, s.ArtistID)
	assert.Equal(t, "monet", *s.ArtistID)
	assert.Equal(t, models.DefaultShareSettings(), s.ShareSettings)
}

func TestCreateWrapsStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.createErr = errors.New("connection refused")
	m := newTestMachine(t, store, nil)

	_, err := m.Create(context.Background(), "u1", models.ModePlay, models.SessionConfig{}, intPtr(2))
	require.Error(t, err)
	assert.True(t, IsAdapterFailure(err))

	var ae *AdapterError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "create", ae.Op)
	assert.EqualError(t, ae.Err, "connection refused")
}

func TestPlayScenario(t *testing.T) {
	store := newFakeStore()
	m := newTestMachine(t, store, nil)
	ctx := context.Background()

	s, err := m.Create(ctx, "u1", models.ModePlay, models.SessionConfig{}, intPtr(3))
	require.NoError(t, err)
	assert.Equal(t, 3, s.PlannedTurns)

	casual := catalog.MustLoad()
	for i := 1; i <= 3; i++ {
		turn, err := m.RequestTurn(s)
		require.NoError(t, err)
		assert.Equal(t, i, turn.TurnNumber)
		assert.Contains(t, casual.ListKeys(catalog.Casual, catalog.Colors), turn.Color)
		assert.Nil(t, turn.ArtistName)
		assert.Len(t, s.Turns, i-1)

		var ready bool
		s, ready, err = m.CompleteTurn(ctx, s, turn, "")
		require.NoError(t, err)
		assert.Equal(t, i, s.CompletedTurns)
		assert.Equal(t, i+1, s.CurrentTurnIndex)
		assert.Equal(t, i == 3, ready)
		assert.False(t, s.Turns[i-1].ReflectionProvided)
	}
	assert.Equal(t, models.StateFinalizing, s.State())

	_, err = m.RequestTurn(s)
	assert.ErrorIs(t, err, ErrNoTurnsRemaining)

	done, err := m.Finalize(ctx, s, "done")
	require.NoError(t, err)
	require.NotNil(t, done.CompletedAt)
	assert.False(t, done.EndedEarly)
	assert.Equal(t, "done", done.FinalReflection)
	assert.True(t, done.FinalReflectionProvided)
	assert.Equal(t, models.StateCompleted, done.State())

	stored, err := m.Load(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.CompletedTurns)
	assert.Len(t, stored.Turns, 3)
	assert.NotNil(t, stored.CompletedAt)
}

func TestMasterArtistScenario(t *testing.T) {
	m := newTestMachine(t, newFakeStore(), NewSeededRand(3, 5))
	ctx := context.Background()

	s, err := m.Create(ctx, "u1", models.ModeMasterArtist,
		models.SessionConfig{ArtistID: "van-gogh", ArtistFocus: models.FocusAll}, intPtr(1))
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		turn, err := m.RequestTurn(s)
		require.NoError(t, err)
		assert.Contains(t, []string{"ultramarine-blue", "cadmium-yellow", "vermillion", "viridian"}, turn.Color)
		assert.Contains(t, []string{"impasto", "alla-prima"}, turn.Technique)
		assert.Equal(t, "oil-paint", turn.Medium)
		require.NotNil(t, turn.ArtistName)
		assert.Equal(t, "Vincent van Gogh", *turn.ArtistName)
	}
}

func TestEndEarlyKeepsCompletedCount(t *testing.T) {
	m := newTestMachine(t, newFakeStore(), nil)
	ctx := context.Background()

	s, err := m.Create(ctx, "u1", models.ModeInspire, models.SessionConfig{}, intPtr(5))
	require.NoError(t, err)
	turn, err := m.RequestTurn(s)
	require.NoError(t, err)
	s, ready, err := m.CompleteTurn(ctx, s, turn, "loose and quick")
	require.NoError(t, err)
	assert.False(t, ready)

	_, err = m.Finalize(ctx, s, "")
	assert.ErrorIs(t, err, ErrSessionIncomplete)

	ended, err := m.EndEarly(ctx, s, "")
	require.NoError(t, err)
	assert.True(t, ended.EndedEarly)
	assert.NotNil(t, ended.CompletedAt)
	assert.Equal(t, 1, ended.CompletedTurns)
	assert.False(t, ended.FinalReflectionProvided)
	assert.Equal(t, models.StateEndedEarly, ended.State())

	// Terminal sessions accept no further transitions.
	_, err = m.RequestTurn(ended)
	assert.ErrorIs(t, err, ErrNoActiveSession)
	_, err = m.EndEarly(ctx, ended, "again")
	assert.ErrorIs(t, err, ErrNoActiveSession)
	_, err = m.Finalize(ctx, ended, "again")
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestEndEarlyFromFinalizing(t *testing.T) {
	m := newTestMachine(t, newFakeStore(), nil)
	ctx := context.Background()

	s, err := m.Create(ctx, "u1", models.ModePlayAndJournal, models.SessionConfig{}, intPtr(1))
	require.NoError(t, err)
	turn, err := m.RequestTurn(s)
	require.NoError(t, err)
	s, ready, err := m.CompleteTurn(ctx, s, turn, "")
	require.NoError(t, err)
	require.True(t, ready)

	ended, err := m.EndEarly(ctx, s, "ran out of time")
	require.NoError(t, err)
	assert.True(t, ended.EndedEarly)
	assert.Equal(t, 1, ended.CompletedTurns)
}

func TestNoActiveSession(t *testing.T) {
	m := newTestMachine(t, newFakeStore(), nil)
	ctx := context.Background()

	_, err := m.RequestTurn(nil)
	assert.ErrorIs(t, err, ErrNoActiveSession)
	_, _, err = m.CompleteTurn(ctx, nil, models.Turn{TurnNumber: 1}, "")
	assert.ErrorIs(t, err, ErrNoActiveSession)
	_, err = m.EndEarly(ctx, nil, "")
	assert.ErrorIs(t, err, ErrNoActiveSession)
	_, err = m.Finalize(ctx, nil, "")
	assert.ErrorIs(t, err, ErrNoActiveSession)

	// A session that was never persisted is not active either.
	_, err = m.RequestTurn(&models.Session{PlannedTurns: 3, CurrentTurnIndex: 1})
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestCompleteTurnRejectsMismatchedNumber(t *testing.T) {
	store := newFakeStore()
	m := newTestMachine(t, store, nil)
	ctx := context.Background()

	s, err := m.Create(ctx, "u1", models.ModePlay, models.SessionConfig{}, intPtr(3))
	require.NoError(t, err)
	before := s.Clone()

	for _, n := range []int{0, 2, 3, -1} {
		turn := models.Turn{TurnNumber: n, Color: "red", Technique: "drip", Medium: "ink"}
		next, ready, err := m.CompleteTurn(ctx, s, turn, "x")
		assert.ErrorIs(t, err, ErrTurnSequenceViolation)
		assert.Nil(t, next)
		assert.False(t, ready)
	}
	assert.Equal(t, before, s)
	assert.Zero(t, store.updates)
}

func TestCompleteTurnStoreFailureLeavesStateUnchanged(t *testing.T) {
	store := newFakeStore()
	m := newTestMachine(t, store, nil)
	ctx := context.Background()

	s, err := m.Create(ctx, "u1", models.ModePlay, models.SessionConfig{}, intPtr(2))
	require.NoError(t, err)
	turn, err := m.RequestTurn(s)
	require.NoError(t, err)

	store.updateErr = errors.New("timeout")
	_, _, err = m.CompleteTurn(ctx, s, turn, "first")
	require.Error(t, err)
	assert.True(t, IsAdapterFailure(err))
	assert.Equal(t, 0, s.CompletedTurns)
	assert.Empty(t, s.Turns)

	store.updateErr = nil
	next, _, err := m.CompleteTurn(ctx, s, turn, "first")
	require.NoError(t, err)
	assert.Equal(t, 1, next.CompletedTurns)
}

func TestCompletedTurnsMonotoneAndBounded(t *testing.T) {
	m := newTestMachine(t, newFakeStore(), NewSeededRand(42, 42))
	ctx := context.Background()

	for planned := 1; planned <= 5; planned++ {
		s, err := m.Create(ctx, "u1", models.ModeMasters, models.SessionConfig{}, intPtr(planned))
		require.NoError(t, err)

		prev := s.CompletedTurns
		for step := 0; step < planned+3; step++ {
			// Alternate valid and stale turn numbers.
			turn, err := m.RequestTurn(s)
			if err != nil {
				assert.ErrorIs(t, err, ErrNoTurnsRemaining)
				turn = models.Turn{TurnNumber: s.CurrentTurnIndex}
			}
			if step%2 == 1 {
				turn.TurnNumber--
			}
			next, _, err := m.CompleteTurn(ctx, s, turn, "")
			if err == nil {
				s = next
			}
			assert.GreaterOrEqual(t, s.CompletedTurns, prev)
			assert.LessOrEqual(t, s.CompletedTurns, s.PlannedTurns)
			assert.LessOrEqual(t, len(s.Turns), s.PlannedTurns)
			prev = s.CompletedTurns
		}
		for i, turn := range s.Turns {
			assert.Equal(t, i+1, turn.TurnNumber)
		}
	}
}

func TestReflectionTruncated(t *testing.T) {
	m := newTestMachine(t, newFakeStore(), nil)
	ctx := context.Background()

	s, err := m.Create(ctx, "u1", models.ModePlayAndJournal, models.SessionConfig{}, intPtr(1))
	require.NoError(t, err)
	turn, err := m.RequestTurn(s)
	require.NoError(t, err)

	long := strings.Repeat("é", 400)
	s, _, err = m.CompleteTurn(ctx, s, turn, long)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("é", 300), s.Turns[0].Reflection)
	assert.True(t, s.Turns[0].ReflectionProvided)

	assert.Equal(t, "  ok \n", TruncateReflection("  ok \n"))
}

func TestWhitespaceReflectionKeptAsWritten(t *testing.T) {
	m := newTestMachine(t, newFakeStore(), nil)
	ctx := context.Background()

	s, err := m.Create(ctx, "u1", models.ModePlay, models.SessionConfig{}, intPtr(1))
	require.NoError(t, err)
	turn, err := m.RequestTurn(s)
	require.NoError(t, err)

	s, ready, err := m.CompleteTurn(ctx, s, turn, "   ")
	require.NoError(t, err)
	assert.True(t, ready)
	assert.Equal(t, "   ", s.Turns[0].Reflection)
	assert.True(t, s.Turns[0].ReflectionProvided)

	s, err = m.Finalize(ctx, s, " ")
	require.NoError(t, err)
	assert.Equal(t, " ", s.FinalReflection)
	assert.True(t, s.FinalReflectionProvided)
}

func TestLoadMissingSession(t *testing.T) {
	m := newTestMachine(t, newFakeStore(), nil)
	_, err := m.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.True(t, IsAdapterFailure(err))
}

func TestLimitsValidate(t *testing.T) {
	assert.NoError(t, DefaultLimits().Validate())
	assert.Error(t, Limits{DefaultTurnsMin: 0, DefaultTurnsMax: 3, MaxRequestedTurns: 5}.Validate())
	assert.Error(t, Limits{DefaultTurnsMin: 5, DefaultTurnsMax: 3, MaxRequestedTurns: 5}.Validate())
	assert.Error(t, Limits{DefaultTurnsMin: 3, DefaultTurnsMax: 7, MaxRequestedTurns: 0}.Validate())
}
