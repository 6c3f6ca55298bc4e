package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mbergh0930/create3x/internal/game"
	"github.com/mbergh0930/create3x/internal/models"
	"github.com/mbergh0930/create3x/internal/telemetry"
)

// SessionRecords is the session store plus the history queries the API
// exposes.
type SessionRecords interface {
	game.SessionStore
	List(ctx context.Context, f models.SessionFilter) ([]*models.Session, error)
	Count(ctx context.Context, f models.SessionFilter) (int, error)
}

// SettingsSource supplies per-user defaults for new sessions.
type SettingsSource interface {
	GetSettings(ctx context.Context, userID uuid.UUID) (*models.UserSettings, error)
}

// SessionService runs the game machine on behalf of authenticated users: it
// enforces ownership, tracks each user's current session and in-flight turn,
// and fans out events once a session changes.
type SessionService struct {
	machine  *game.Machine
	records  SessionRecords
	state    SessionState
	jobs     JobEnqueuer
	events   Publisher
	settings SettingsSource
	logger   *zap.Logger
	tracer   trace.Tracer
}

func NewSessionService(
	machine *game.Machine,
	records SessionRecords,
	state SessionState,
	jobs JobEnqueuer,
	events Publisher,
	settings SettingsSource,
	logger *zap.Logger,
) *SessionService {
	return &SessionService{
		machine:  machine,
		records:  records,
		state:    state,
		jobs:     jobs,
		events:   events,
		settings: settings,
		logger:   logger,
		tracer:   telemetry.Tracer(),
	}
}

// CompletedSession is the outcome of finalizing or ending a session. Job is
// nil when the profile update could not be queued.
type CompletedSession struct {
	Session *models.Session `json:"session"`
	Job     *models.Job     `json:"job"`
}

// TurnCompletion is the outcome of completing a turn.
type TurnCompletion struct {
	Session         *models.Session `json:"session"`
	ReadyToFinalize bool            `json:"ready_to_finalize"`
}

func (s *SessionService) start(ctx context.Context, name string, userID uuid.UUID, sessionID string) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "sessions."+name)
	span.SetAttributes(attribute.String("user.id", userID.String()))
	if sessionID != "" {
		span.SetAttributes(attribute.String("session.id", sessionID))
	}
	return ctx, span
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Create starts a session and makes it the user's current one, replacing
// any previous pointer. Empty mode and absent turn count fall back to the
// user's saved defaults.
func (s *SessionService) Create(ctx context.Context, userID uuid.UUID, req models.CreateSessionRequest) (sess *models.Session, err error) {
	ctx, span := s.start(ctx, "create", userID, "")
	defer func() { finish(span, err) }()

	modeStr := req.Mode
	requested := req.RequestedTurns
	if (modeStr == "" || requested == nil) && s.settings != nil {
		if settings, sErr := s.settings.GetSettings(ctx, userID); sErr == nil {
			if modeStr == "" {
				modeStr = string(settings.DefaultMode)
			}
			if requested == nil {
				requested = settings.DefaultRounds
			}
		} else {
			s.logger.Debug("no saved session defaults", zap.Stringer("user_id", userID), zap.Error(sErr))
		}
	}

	mode, err := game.ParseMode(modeStr)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("session.mode", string(mode)))

	cfg := models.SessionConfig{ArtistID: req.ArtistID, ArtistFocus: models.ArtistFocus(req.ArtistFocus)}
	sess, err = s.machine.Create(ctx, userID.String(), mode, cfg, requested)
	if err != nil {
		return nil, err
	}

	if err := s.state.SetCurrent(ctx, userID, sess.ID); err != nil {
		return nil, fmt.Errorf("set current session: %w", err)
	}

	s.logger.Info("session created",
		zap.Stringer("user_id", userID),
		zap.String("session_id", sess.ID),
		zap.String("mode", string(sess.Mode)),
		zap.Int("planned_turns", sess.PlannedTurns),
	)
	return sess, nil
}

// Get loads a session owned by userID.
func (s *SessionService) Get(ctx context.Context, userID uuid.UUID, sessionID string) (*models.Session, error) {
	sess, err := s.machine.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID.String() {
		return nil, &ForbiddenError{Message: "Access denied"}
	}
	return sess, nil
}

// Current returns the user's current session and its in-flight turn, if
// any. A pointer to a session that has since closed is cleared.
func (s *SessionService) Current(ctx context.Context, userID uuid.UUID) (*models.Session, *models.TurnView, error) {
	id, err := s.state.Current(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("get current session: %w", err)
	}
	if id == "" {
		return nil, nil, game.ErrNoActiveSession
	}

	sess, err := s.Get(ctx, userID, id)
	if errors.Is(err, game.ErrSessionNotFound) || (err == nil && sess.Terminal()) {
		if clearErr := s.state.ClearCurrent(ctx, userID, id); clearErr != nil {
			s.logger.Warn("failed to clear stale current session", zap.String("session_id", id), zap.Error(clearErr))
		}
		return nil, nil, game.ErrNoActiveSession
	}
	if err != nil {
		return nil, nil, err
	}

	turn, err := s.state.Inflight(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("get inflight turn: %w", err)
	}
	if turn == nil || turn.TurnNumber != sess.CurrentTurnIndex {
		return sess, nil, nil
	}
	view := s.machine.Generator().View(sess, *turn)
	return sess, &view, nil
}

// RequestTurn draws the next turn and holds it until completed. Asking
// again before completing returns the same turn.
func (s *SessionService) RequestTurn(ctx context.Context, userID uuid.UUID, sessionID string) (view *models.TurnView, err error) {
	ctx, span := s.start(ctx, "request_turn", userID, sessionID)
	defer func() { finish(span, err) }()

	sess, err := s.Get(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	pending, err := s.state.Inflight(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get inflight turn: %w", err)
	}
	if pending != nil && pending.TurnNumber == sess.CurrentTurnIndex && !sess.Terminal() {
		v := s.machine.Generator().View(sess, *pending)
		return &v, nil
	}

	turn, err := s.machine.RequestTurn(sess)
	if err != nil {
		return nil, err
	}
	if err := s.state.SetInflight(ctx, sessionID, turn); err != nil {
		return nil, fmt.Errorf("store inflight turn: %w", err)
	}

	span.SetAttributes(attribute.Int("turn.number", turn.TurnNumber))
	v := s.machine.Generator().View(sess, turn)
	return &v, nil
}

// CompleteTurn completes the in-flight turn numbered turnNumber.
func (s *SessionService) CompleteTurn(ctx context.Context, userID uuid.UUID, sessionID string, turnNumber int, reflection string) (out *TurnCompletion, err error) {
	ctx, span := s.start(ctx, "complete_turn", userID, sessionID)
	defer func() { finish(span, err) }()
	span.SetAttributes(attribute.Int("turn.number", turnNumber))

	sess, err := s.Get(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Terminal() {
		return nil, game.ErrNoActiveSession
	}

	turn, err := s.state.Inflight(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get inflight turn: %w", err)
	}
	if turn == nil || turn.TurnNumber != turnNumber {
		return nil, fmt.Errorf("%w: turn %d is not in flight", game.ErrTurnSequenceViolation, turnNumber)
	}

	next, ready, err := s.machine.CompleteTurn(ctx, sess, *turn, reflection)
	if err != nil {
		return nil, err
	}

	if err := s.state.ClearInflight(ctx, sessionID); err != nil {
		s.logger.Warn("failed to clear inflight turn", zap.String("session_id", sessionID), zap.Error(err))
	}

	s.publish(ctx, userID, models.WSMessage{
		Type: models.WSTurnCompleted,
		Payload: models.TurnCompletedEvent{
			SessionID:       next.ID,
			TurnNumber:      turnNumber,
			CompletedTurns:  next.CompletedTurns,
			PlannedTurns:    next.PlannedTurns,
			ReadyToFinalize: ready,
		},
	})

	return &TurnCompletion{Session: next, ReadyToFinalize: ready}, nil
}

// Finalize closes a session whose planned turns are all complete.
func (s *SessionService) Finalize(ctx context.Context, userID uuid.UUID, sessionID, finalReflection string) (out *CompletedSession, err error) {
	ctx, span := s.start(ctx, "finalize", userID, sessionID)
	defer func() { finish(span, err) }()

	sess, err := s.Get(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	closed, err := s.machine.Finalize(ctx, sess, finalReflection)
	if err != nil {
		return nil, err
	}
	return s.afterClose(ctx, userID, closed), nil
}

// EndEarly closes an in-progress session before all turns are complete.
func (s *SessionService) EndEarly(ctx context.Context, userID uuid.UUID, sessionID, finalReflection string) (out *CompletedSession, err error) {
	ctx, span := s.start(ctx, "end_early", userID, sessionID)
	defer func() { finish(span, err) }()

	sess, err := s.Get(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	closed, err := s.machine.EndEarly(ctx, sess, finalReflection)
	if err != nil {
		return nil, err
	}
	return s.afterClose(ctx, userID, closed), nil
}

// afterClose runs the side effects of a persisted close. None of them can
// undo the close, so failures are logged.
func (s *SessionService) afterClose(ctx context.Context, userID uuid.UUID, sess *models.Session) *CompletedSession {
	if err := s.state.ClearCurrent(ctx, userID, sess.ID); err != nil {
		s.logger.Warn("failed to clear current session", zap.String("session_id", sess.ID), zap.Error(err))
	}
	if err := s.state.ClearInflight(ctx, sess.ID); err != nil {
		s.logger.Warn("failed to clear inflight turn", zap.String("session_id", sess.ID), zap.Error(err))
	}

	out := &CompletedSession{Session: sess}

	refID, err := uuid.Parse(sess.ID)
	if err != nil {
		refID = uuid.Nil
	}
	job := &models.Job{UserID: userID, Type: models.JobTypeSessionCompleted, ReferenceID: refID}
	if err := s.jobs.Enqueue(ctx, job); err != nil {
		s.logger.Error("failed to queue profile update", zap.String("session_id", sess.ID), zap.Error(err))
	} else {
		out.Job = job
	}

	event := models.SessionCompletedEvent{SessionID: sess.ID, EndedEarly: sess.EndedEarly}
	if out.Job != nil {
		event.JobID = out.Job.ID.String()
	}
	s.publish(ctx, userID, models.WSMessage{Type: models.WSSessionCompleted, Payload: event})

	s.logger.Info("session closed",
		zap.Stringer("user_id", userID),
		zap.String("session_id", sess.ID),
		zap.Bool("ended_early", sess.EndedEarly),
		zap.Int("completed_turns", sess.CompletedTurns),
	)
	return out
}

func (s *SessionService) publish(ctx context.Context, userID uuid.UUID, msg models.WSMessage) {
	if err := s.events.Publish(ctx, userID, msg); err != nil {
		s.logger.Warn("failed to publish event", zap.String("type", msg.Type), zap.Error(err))
	}
}

// UpdateShare replaces the share settings of a finished session.
func (s *SessionService) UpdateShare(ctx context.Context, userID uuid.UUID, sessionID string, settings models.ShareSettings) (*models.Session, error) {
	return s.patchFinished(ctx, userID, sessionID, "update_share", models.SessionPatch{ShareSettings: &settings})
}

// AttachArtwork records the URL of artwork made during a finished session.
func (s *SessionService) AttachArtwork(ctx context.Context, userID uuid.UUID, sessionID, imageURL string) (*models.Session, error) {
	return s.patchFinished(ctx, userID, sessionID, "attach_artwork", models.SessionPatch{ImageURL: &imageURL})
}

func (s *SessionService) patchFinished(ctx context.Context, userID uuid.UUID, sessionID, op string, patch models.SessionPatch) (sess *models.Session, err error) {
	ctx, span := s.start(ctx, op, userID, sessionID)
	defer func() { finish(span, err) }()

	sess, err = s.Get(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Terminal() {
		return nil, &ConflictError{Message: "Session must be finished first"}
	}

	if err := s.records.UpdateSession(ctx, sessionID, patch); err != nil {
		return nil, &game.AdapterError{Op: "update", Err: err}
	}
	patch.Apply(sess)
	return sess, nil
}

// History lists a user's sessions with the total matching count.
func (s *SessionService) History(ctx context.Context, userID uuid.UUID, f models.SessionFilter) ([]*models.Session, int, error) {
	f.UserID = userID.String()

	sessions, err := s.records.List(ctx, f)
	if err != nil {
		return nil, 0, &game.AdapterError{Op: "list", Err: err}
	}
	total, err := s.records.Count(ctx, f)
	if err != nil {
		return nil, 0, &game.AdapterError{Op: "count", Err: err}
	}
	return sessions, total, nil
}
