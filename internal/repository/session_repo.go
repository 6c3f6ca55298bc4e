package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/mbergh0930/create3x/internal/game"
	"github.com/mbergh0930/create3x/internal/models"
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var sessionColumns = []string{
	"id", "user_id", "mode", "artist_id", "artist_focus",
	"planned_turns", "completed_turns", "current_turn_index", "turns",
	"final_reflection", "final_reflection_provided",
	"created_at", "completed_at", "ended_early", "image_url", "share_settings",
}

// SessionRepo stores session documents in PostgreSQL. It implements
// game.SessionStore.
type SessionRepo struct {
	db *sql.DB
}

func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

var _ game.SessionStore = (*SessionRepo)(nil)

func (r *SessionRepo) CreateSession(ctx context.Context, s *models.Session) (string, error) {
	turns, err := json.Marshal(nonNilTurns(s.Turns))
	if err != nil {
		return "", fmt.Errorf("marshaling turns: %w", err)
	}
	share, err := json.Marshal(s.ShareSettings)
	if err != nil {
		return "", fmt.Errorf("marshaling share settings: %w", err)
	}

	id := uuid.New().String()
	query, args, err := psq.Insert("sessions").
		Columns(sessionColumns...).
		Values(
			id, s.UserID, string(s.Mode), s.ArtistID, string(s.ArtistFocus),
			s.PlannedTurns, s.CompletedTurns, s.CurrentTurnIndex, turns,
			s.FinalReflection, s.FinalReflectionProvided,
			s.CreatedAt, s.CompletedAt, s.EndedEarly, s.ImageURL, share,
		).ToSql()
	if err != nil {
		return "", fmt.Errorf("building insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return "", fmt.Errorf("inserting session: %w", err)
	}
	return id, nil
}

func (r *SessionRepo) UpdateSession(ctx context.Context, id string, patch models.SessionPatch) error {
	set, err := patchColumns(patch)
	if err != nil {
		return err
	}
	if len(set) == 0 {
		return nil
	}

	query, args, err := psq.Update("sessions").SetMap(set).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("building update: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("updating session %s: %w", id, game.ErrSessionNotFound)
	}
	return nil
}

func patchColumns(p models.SessionPatch) (map[string]any, error) {
	set := make(map[string]any)
	if p.Turns != nil {
		turns, err := json.Marshal(p.Turns)
		if err != nil {
			return nil, fmt.Errorf("marshaling turns: %w", err)
		}
		set["turns"] = turns
	}
	if p.CompletedTurns != nil {
		set["completed_turns"] = *p.CompletedTurns
	}
	if p.CurrentTurnIndex != nil {
		set["current_turn_index"] = *p.CurrentTurnIndex
	}
	if p.FinalReflection != nil {
		set["final_reflection"] = *p.FinalReflection
	}
	if p.FinalReflectionProvided != nil {
		set["final_reflection_provided"] = *p.FinalReflectionProvided
	}
	if p.CompletedAt != nil {
		set["completed_at"] = *p.CompletedAt
	}
	if p.EndedEarly != nil {
		set["ended_early"] = *p.EndedEarly
	}
	if p.ImageURL != nil {
		set["image_url"] = *p.ImageURL
	}
	if p.ShareSettings != nil {
		share, err := json.Marshal(p.ShareSettings)
		if err != nil {
			return nil, fmt.Errorf("marshaling share settings: %w", err)
		}
		set["share_settings"] = share
	}
	return set, nil
}

func (r *SessionRepo) GetSession(ctx context.Context, id string) (*models.Session, error) {
	query, args, err := psq.Select(sessionColumns...).From("sessions").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}

	s, err := scanSession(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, game.ErrSessionNotFound)
	}
	return s, err
}

func applySessionFilter(qb sq.SelectBuilder, f models.SessionFilter) sq.SelectBuilder {
	if f.UserID != "" {
		qb = qb.Where(sq.Eq{"user_id": f.UserID})
	}
	if f.Mode != "" {
		qb = qb.Where(sq.Eq{"mode": string(f.Mode)})
	}
	switch f.Status {
	case "active":
		qb = qb.Where(sq.Eq{"completed_at": nil})
	case "completed":
		qb = qb.Where(sq.NotEq{"completed_at": nil}).Where(sq.Eq{"ended_early": false})
	case "ended-early":
		qb = qb.Where(sq.Eq{"ended_early": true})
	}
	return qb
}

// List returns sessions matching f, newest first.
func (r *SessionRepo) List(ctx context.Context, f models.SessionFilter) ([]*models.Session, error) {
	qb := applySessionFilter(psq.Select(sessionColumns...).From("sessions"), f).OrderBy("created_at DESC")
	if f.Limit > 0 {
		qb = qb.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		qb = qb.Offset(uint64(f.Offset))
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building session query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sessions := make([]*models.Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}
	return sessions, nil
}

func (r *SessionRepo) Count(ctx context.Context, f models.SessionFilter) (int, error) {
	query, args, err := applySessionFilter(psq.Select("COUNT(*)").From("sessions"), f).ToSql()
	if err != nil {
		return 0, fmt.Errorf("building count query: %w", err)
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting sessions: %w", err)
	}
	return count, nil
}

// CompletedSession is the slice of a terminal session that profile
// statistics are computed from.
type CompletedSession struct {
	Mode           models.Mode
	CompletedTurns int
	CompletedAt    time.Time
}

// CompletedHistory returns every terminal session of a user, oldest first.
func (r *SessionRepo) CompletedHistory(ctx context.Context, userID string) ([]CompletedSession, error) {
	query, args, err := psq.Select("mode", "completed_turns", "completed_at").
		From("sessions").
		Where(sq.Eq{"user_id": userID}).
		Where(sq.NotEq{"completed_at": nil}).
		OrderBy("completed_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building history query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying session history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	history := make([]CompletedSession, 0)
	for rows.Next() {
		var c CompletedSession
		var mode string
		if err := rows.Scan(&mode, &c.CompletedTurns, &c.CompletedAt); err != nil {
			return nil, fmt.Errorf("scanning session history: %w", err)
		}
		c.Mode = models.Mode(mode)
		history = append(history, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session history: %w", err)
	}
	return history, nil
}

// DayActivity aggregates one calendar day (UTC) of a user's sessions.
type DayActivity struct {
	Date     string `json:"date"`
	Sessions int    `json:"sessions"`
	Turns    int    `json:"turns"`
}

// Activity returns per-day session and completed-turn counts since the given
// time, oldest day first. Days without sessions are omitted.
func (r *SessionRepo) Activity(ctx context.Context, userID string, since time.Time) ([]DayActivity, error) {
	query, args, err := psq.Select(
		"TO_CHAR(DATE(created_at AT TIME ZONE 'UTC'), 'YYYY-MM-DD') AS day",
		"COUNT(*)",
		"COALESCE(SUM(completed_turns), 0)",
	).
		From("sessions").
		Where(sq.Eq{"user_id": userID}).
		Where(sq.GtOrEq{"created_at": since}).
		GroupBy("day").
		OrderBy("day ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building activity query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying activity: %w", err)
	}
	defer func() { _ = rows.Close() }()

	days := make([]DayActivity, 0)
	for rows.Next() {
		var d DayActivity
		if err := rows.Scan(&d.Date, &d.Sessions, &d.Turns); err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}
		days = append(days, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating activity: %w", err)
	}
	return days, nil
}

// Totals returns the number of sessions started and turns completed by a
// user since the given time.
func (r *SessionRepo) Totals(ctx context.Context, userID string, since time.Time) (sessions int, turns int, err error) {
	query, args, err := psq.Select("COUNT(*)", "COALESCE(SUM(completed_turns), 0)").
		From("sessions").
		Where(sq.Eq{"user_id": userID}).
		Where(sq.GtOrEq{"created_at": since}).
		ToSql()
	if err != nil {
		return 0, 0, fmt.Errorf("building totals query: %w", err)
	}
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&sessions, &turns); err != nil {
		return 0, 0, fmt.Errorf("querying totals: %w", err)
	}
	return sessions, turns, nil
}

// LatestActivityAt returns when the user last started a session, or nil.
func (r *SessionRepo) LatestActivityAt(ctx context.Context, userID string) (*time.Time, error) {
	query, args, err := psq.Select("MAX(created_at)").
		From("sessions").
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building latest activity query: %w", err)
	}

	var ts sql.NullTime
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&ts); err != nil {
		return nil, fmt.Errorf("querying latest activity: %w", err)
	}
	if !ts.Valid {
		return nil, nil
	}
	t := ts.Time
	return &t, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		s           models.Session
		mode, focus string
		artistID    sql.NullString
		imageURL    sql.NullString
		completedAt sql.NullTime
		turns       []byte
		share       []byte
	)

	err := row.Scan(
		&s.ID, &s.UserID, &mode, &artistID, &focus,
		&s.PlannedTurns, &s.CompletedTurns, &s.CurrentTurnIndex, &turns,
		&s.FinalReflection, &s.FinalReflectionProvided,
		&s.CreatedAt, &completedAt, &s.EndedEarly, &imageURL, &share,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning session: %w", err)
	}

	s.Mode = models.Mode(mode)
	s.ArtistFocus = models.ArtistFocus(focus)
	if artistID.Valid {
		s.ArtistID = &artistID.String
	}
	if imageURL.Valid {
		s.ImageURL = &imageURL.String
	}
	if completedAt.Valid {
		t := completedAt.Time
		s.CompletedAt = &t
	}

	s.Turns = []models.Turn{}
	if len(turns) > 0 {
		if err := json.Unmarshal(turns, &s.Turns); err != nil {
			return nil, fmt.Errorf("decoding turns: %w", err)
		}
	}
	s.ShareSettings = models.DefaultShareSettings()
	if len(share) > 0 {
		if err := json.Unmarshal(share, &s.ShareSettings); err != nil {
			return nil, fmt.Errorf("decoding share settings: %w", err)
		}
	}
	return &s, nil
}

func nonNilTurns(t []models.Turn) []models.Turn {
	if t == nil {
		return []models.Turn{}
	}
	return t
}
