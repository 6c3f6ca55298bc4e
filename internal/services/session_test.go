package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mbergh0930/create3x/internal/catalog"
	"github.com/mbergh0930/create3x/internal/game"
	"github.com/mbergh0930/create3x/internal/models"
	"github.com/mbergh0930/create3x/internal/repository"
)

type memoryState struct {
	mu       sync.Mutex
	current  map[uuid.UUID]string
	inflight map[string]models.Turn
}

func newMemoryState() *memoryState {
	return &memoryState{current: map[uuid.UUID]string{}, inflight: map[string]models.Turn{}}
}

func (m *memoryState) Current(_ context.Context, userID uuid.UUID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current[userID], nil
}

func (m *memoryState) SetCurrent(_ context.Context, userID uuid.UUID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current[userID] = id
	return nil
}

func (m *memoryState) ClearCurrent(_ context.Context, userID uuid.UUID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current[userID] == id {
		delete(m.current, userID)
	}
	return nil
}

func (m *memoryState) Inflight(_ context.Context, id string) (*models.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.inflight[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *memoryState) SetInflight(_ context.Context, id string, t models.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inflight[id] = t
	return nil
}

func (m *memoryState) ClearInflight(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inflight, id)
	return nil
}

type recordingQueue struct {
	jobs []*models.Job
	err  error
}

func (q *recordingQueue) Enqueue(_ context.Context, job *models.Job) error {
	if q.err != nil {
		return q.err
	}
	job.ID = uuid.New()
	job.Status = models.JobStatusPending
	q.jobs = append(q.jobs, job)
	return nil
}

type recordingPublisher struct {
	messages []models.WSMessage
}

func (p *recordingPublisher) Publish(_ context.Context, _ uuid.UUID, msg models.WSMessage) error {
	p.messages = append(p.messages, msg)
	return nil
}

type staticSettings struct {
	settings *models.UserSettings
}

func (s staticSettings) GetSettings(context.Context, uuid.UUID) (*models.UserSettings, error) {
	if s.settings == nil {
		return nil, errors.New("no settings")
	}
	return s.settings, nil
}

type sessionFixture struct {
	svc    *SessionService
	store  *repository.MemorySessionStore
	state  *memoryState
	queue  *recordingQueue
	events *recordingPublisher
}

func newSessionFixture(t *testing.T, settings SettingsSource) *sessionFixture {
	t.Helper()
	store := repository.NewMemorySessionStore()
	machine := game.NewMachine(store, catalog.MustLoad(), game.NewSeededRand(7, 11), game.DefaultLimits())
	f := &sessionFixture{
		store:  store,
		state:  newMemoryState(),
		queue:  &recordingQueue{},
		events: &recordingPublisher{},
	}
	f.svc = NewSessionService(machine, store, f.state, f.queue, f.events, settings, zap.NewNop())
	return f
}

func intPtr(n int) *int { return &n }

func TestSessionServicePlaysFullSession(t *testing.T) {
	f := newSessionFixture(t, nil)
	ctx := context.Background()
	user := uuid.New()

	sess, err := f.svc.Create(ctx, user, models.CreateSessionRequest{Mode: "play", RequestedTurns: intPtr(2)})
	require.NoError(t, err)
	assert.Equal(t, sess.ID, f.state.current[user])

	for n := 1; n <= 2; n++ {
		view, err := f.svc.RequestTurn(ctx, user, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, n, view.TurnNumber)
		assert.NotEmpty(t, view.ColorName)

		again, err := f.svc.RequestTurn(ctx, user, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, view.Turn, again.Turn, "re-requesting returns the in-flight turn")

		done, err := f.svc.CompleteTurn(ctx, user, sess.ID, n, "thoughts")
		require.NoError(t, err)
		assert.Equal(t, n, done.Session.CompletedTurns)
		assert.Equal(t, n == 2, done.ReadyToFinalize)
	}

	out, err := f.svc.Finalize(ctx, user, sess.ID, "great")
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, out.Session.State())
	require.NotNil(t, out.Job)
	assert.Equal(t, models.JobTypeSessionCompleted, out.Job.Type)
	assert.Equal(t, sess.ID, out.Job.ReferenceID.String())

	_, ok := f.state.current[user]
	assert.False(t, ok, "finalize clears the current pointer")

	require.Len(t, f.events.messages, 3)
	assert.Equal(t, models.WSTurnCompleted, f.events.messages[0].Type)
	assert.Equal(t, models.WSSessionCompleted, f.events.messages[2].Type)

	_, _, err = f.svc.Current(ctx, user)
	assert.ErrorIs(t, err, game.ErrNoActiveSession)
}

func TestSessionServiceCompleteWithoutInflightTurn(t *testing.T) {
	f := newSessionFixture(t, nil)
	ctx := context.Background()
	user := uuid.New()

	sess, err := f.svc.Create(ctx, user, models.CreateSessionRequest{Mode: "inspire", RequestedTurns: intPtr(3)})
	require.NoError(t, err)

	_, err = f.svc.CompleteTurn(ctx, user, sess.ID, 1, "")
	assert.ErrorIs(t, err, game.ErrTurnSequenceViolation)

	_, err = f.svc.RequestTurn(ctx, user, sess.ID)
	require.NoError(t, err)
	_, err = f.svc.CompleteTurn(ctx, user, sess.ID, 2, "")
	assert.ErrorIs(t, err, game.ErrTurnSequenceViolation)

	stored, err := f.store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.CompletedTurns)
}

func TestSessionServiceOwnership(t *testing.T) {
	f := newSessionFixture(t, nil)
	ctx := context.Background()
	owner, other := uuid.New(), uuid.New()

	sess, err := f.svc.Create(ctx, owner, models.CreateSessionRequest{Mode: "masters"})
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, other, sess.ID)
	var forbidden *ForbiddenError
	assert.ErrorAs(t, err, &forbidden)

	_, err = f.svc.RequestTurn(ctx, other, sess.ID)
	assert.ErrorAs(t, err, &forbidden)

	_, err = f.svc.Get(ctx, owner, "missing")
	assert.ErrorIs(t, err, game.ErrSessionNotFound)
	assert.True(t, game.IsAdapterFailure(err))
}

func TestSessionServiceEndEarlyQueuesJobEvenWhenPublishingFails(t *testing.T) {
	f := newSessionFixture(t, nil)
	ctx := context.Background()
	user := uuid.New()

	sess, err := f.svc.Create(ctx, user, models.CreateSessionRequest{Mode: "play", RequestedTurns: intPtr(5)})
	require.NoError(t, err)
	_, err = f.svc.RequestTurn(ctx, user, sess.ID)
	require.NoError(t, err)
	_, err = f.svc.CompleteTurn(ctx, user, sess.ID, 1, "")
	require.NoError(t, err)

	_, err = f.svc.Finalize(ctx, user, sess.ID, "")
	assert.ErrorIs(t, err, game.ErrSessionIncomplete)

	out, err := f.svc.EndEarly(ctx, user, sess.ID, "out of time")
	require.NoError(t, err)
	assert.True(t, out.Session.EndedEarly)
	assert.Equal(t, 1, out.Session.CompletedTurns)
	assert.Len(t, f.queue.jobs, 1)

	_, err = f.svc.EndEarly(ctx, user, sess.ID, "")
	assert.ErrorIs(t, err, game.ErrNoActiveSession)
}

func TestSessionServiceCloseSurvivesQueueFailure(t *testing.T) {
	f := newSessionFixture(t, nil)
	f.queue.err = errors.New("redis down")
	ctx := context.Background()
	user := uuid.New()

	sess, err := f.svc.Create(ctx, user, models.CreateSessionRequest{Mode: "play", RequestedTurns: intPtr(1)})
	require.NoError(t, err)

	out, err := f.svc.EndEarly(ctx, user, sess.ID, "")
	require.NoError(t, err)
	assert.Nil(t, out.Job)
	assert.True(t, out.Session.Terminal())
}

func TestSessionServiceUsesSavedDefaults(t *testing.T) {
	rounds := 4
	f := newSessionFixture(t, staticSettings{settings: &models.UserSettings{DefaultMode: models.ModeMasters, DefaultRounds: &rounds}})
	ctx := context.Background()

	sess, err := f.svc.Create(ctx, uuid.New(), models.CreateSessionRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.ModeMasters, sess.Mode)
	assert.Equal(t, 4, sess.PlannedTurns)

	sess, err = f.svc.Create(ctx, uuid.New(), models.CreateSessionRequest{Mode: "inspire", RequestedTurns: intPtr(2)})
	require.NoError(t, err)
	assert.Equal(t, models.ModeInspire, sess.Mode)
	assert.Equal(t, 2, sess.PlannedTurns)
}

func TestSessionServiceRejectsBadInput(t *testing.T) {
	f := newSessionFixture(t, nil)
	ctx := context.Background()
	user := uuid.New()

	_, err := f.svc.Create(ctx, user, models.CreateSessionRequest{Mode: "sculpt"})
	assert.ErrorIs(t, err, game.ErrUnknownMode)

	_, err = f.svc.Create(ctx, user, models.CreateSessionRequest{Mode: "play", RequestedTurns: intPtr(9)})
	assert.ErrorIs(t, err, game.ErrInvalidTurnCount)

	_, err = f.svc.Create(ctx, user, models.CreateSessionRequest{Mode: "master-artist", ArtistID: "banksy"})
	assert.ErrorIs(t, err, game.ErrUnknownArtist)

	assert.Empty(t, f.state.current)
}

func TestSessionServiceCurrentReturnsInflightTurn(t *testing.T) {
	f := newSessionFixture(t, nil)
	ctx := context.Background()
	user := uuid.New()

	first, err := f.svc.Create(ctx, user, models.CreateSessionRequest{Mode: "play", RequestedTurns: intPtr(3)})
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, user, models.CreateSessionRequest{Mode: "master-artist", ArtistID: "monet", RequestedTurns: intPtr(3)})
	require.NoError(t, err)

	cur, turn, err := f.svc.Current(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, second.ID, cur.ID, "create replaces the current session")
	assert.NotEqual(t, first.ID, cur.ID)
	assert.Nil(t, turn)

	view, err := f.svc.RequestTurn(ctx, user, second.ID)
	require.NoError(t, err)
	require.NotNil(t, view.ArtistName)
	assert.Equal(t, "Claude Monet", *view.ArtistName)

	_, turn, err = f.svc.Current(ctx, user)
	require.NoError(t, err)
	require.NotNil(t, turn)
	assert.Equal(t, view.Turn, turn.Turn)
}

func TestSessionServiceShareAndArtworkRequireFinishedSession(t *testing.T) {
	f := newSessionFixture(t, nil)
	ctx := context.Background()
	user := uuid.New()

	sess, err := f.svc.Create(ctx, user, models.CreateSessionRequest{Mode: "play", RequestedTurns: intPtr(1)})
	require.NoError(t, err)

	_, err = f.svc.UpdateShare(ctx, user, sess.ID, models.ShareSettings{IsPublic: true})
	var conflict *ConflictError
	assert.ErrorAs(t, err, &conflict)

	_, err = f.svc.EndEarly(ctx, user, sess.ID, "")
	require.NoError(t, err)

	updated, err := f.svc.UpdateShare(ctx, user, sess.ID, models.ShareSettings{IsPublic: true})
	require.NoError(t, err)
	assert.True(t, updated.ShareSettings.IsPublic)
	assert.False(t, updated.ShareSettings.ShareSessionDetails)

	updated, err = f.svc.AttachArtwork(ctx, user, sess.ID, "/uploads/artwork/a.png")
	require.NoError(t, err)
	require.NotNil(t, updated.ImageURL)

	stored, err := f.store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "/uploads/artwork/a.png", *stored.ImageURL)
	assert.True(t, stored.ShareSettings.IsPublic)
}

func TestSessionServiceHistory(t *testing.T) {
	f := newSessionFixture(t, nil)
	ctx := context.Background()
	user := uuid.New()

	for i := 0; i < 3; i++ {
		_, err := f.svc.Create(ctx, user, models.CreateSessionRequest{Mode: "play", RequestedTurns: intPtr(1)})
		require.NoError(t, err)
	}
	_, err := f.svc.Create(ctx, uuid.New(), models.CreateSessionRequest{Mode: "play", RequestedTurns: intPtr(1)})
	require.NoError(t, err)

	sessions, total, err := f.svc.History(ctx, user, models.SessionFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
	assert.Equal(t, 3, total)
}
