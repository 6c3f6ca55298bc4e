package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mbergh0930/create3x/internal/middleware"
	"github.com/mbergh0930/create3x/internal/models"
	"github.com/mbergh0930/create3x/internal/repository"
	"github.com/mbergh0930/create3x/internal/services"
)

const (
	recentLimit  = 5
	activityDays = 7
)

// DashboardSessions is the read side of the session repository the
// dashboard aggregates over.
type DashboardSessions interface {
	List(ctx context.Context, f models.SessionFilter) ([]*models.Session, error)
	Totals(ctx context.Context, userID string, since time.Time) (sessions int, turns int, err error)
	Activity(ctx context.Context, userID string, since time.Time) ([]repository.DayActivity, error)
	CompletedHistory(ctx context.Context, userID string) ([]repository.CompletedSession, error)
}

type ProfileReader interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.UserProfile, error)
}

type DashboardHandler struct {
	sessions DashboardSessions
	profiles ProfileReader
	logger   *zap.Logger
	now      func() time.Time
}

func NewDashboardHandler(sessions DashboardSessions, profiles ProfileReader, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{sessions: sessions, profiles: profiles, logger: logger, now: time.Now}
}

func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	ctx := r.Context()

	profile, err := h.profiles.GetProfile(ctx, userID)
	if err != nil {
		profile = &models.UserProfile{UserID: userID, DisplayName: models.DefaultDisplayName}
	}

	weeklySessions, weeklyTurns, err := h.sessions.Totals(ctx, userID.String(), h.now().Add(-7*24*time.Hour))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"completed_sessions": profile.CompletedSessions,
		"total_turns":        profile.TotalTurns,
		"current_streak":     profile.CurrentStreak,
		"longest_streak":     profile.LongestStreak,
		"favorite_mode":      profile.FavoriteMode,
		"weekly_sessions":    weeklySessions,
		"weekly_turns":       weeklyTurns,
	})
}

func (h *DashboardHandler) Recent(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	sessions, err := h.sessions.List(r.Context(), models.SessionFilter{UserID: userID.String(), Limit: recentLimit})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"recent": sessions})
}

// Streak is computed from history rather than the stored profile, so it is
// current even while a profile update job is still queued.
func (h *DashboardHandler) Streak(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	history, err := h.sessions.CompletedHistory(r.Context(), userID.String())
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	stats := services.ComputeProfileStats(history, h.now())

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"streak":            stats.CurrentStreak,
		"longest_streak":    stats.LongestStreak,
		"last_session_date": stats.LastSessionDate,
	})
}

// Activity returns one entry per UTC day for the last week, oldest first,
// including days without sessions.
func (h *DashboardHandler) Activity(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	now := h.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	since := today.AddDate(0, 0, -(activityDays - 1))

	days, err := h.sessions.Activity(r.Context(), userID.String(), since)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	byDate := make(map[string]repository.DayActivity, len(days))
	for _, d := range days {
		byDate[d.Date] = d
	}
	activity := make([]repository.DayActivity, activityDays)
	for i := range activity {
		date := since.AddDate(0, 0, i).Format(time.DateOnly)
		activity[i] = repository.DayActivity{Date: date}
		if d, ok := byDate[date]; ok {
			activity[i] = d
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"activity": activity})
}
