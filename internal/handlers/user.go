package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mbergh0930/create3x/internal/game"
	"github.com/mbergh0930/create3x/internal/middleware"
	"github.com/mbergh0930/create3x/internal/models"
	"github.com/mbergh0930/create3x/internal/services"
)

const (
	maxBioLength         = 300
	maxFullNameLength    = 100
	maxDisplayNameLength = 50
)

// UserStore is the slice of the user repository the account routes use.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error
	Delete(ctx context.Context, id uuid.UUID) error
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.UserProfile, error)
	UpdateDisplayName(ctx context.Context, userID uuid.UUID, name string) error
	GetSettings(ctx context.Context, userID uuid.UUID) (*models.UserSettings, error)
	UpdateSettings(ctx context.Context, settings *models.UserSettings) error
	SetNotificationSetting(ctx context.Context, userID uuid.UUID, key string, enabled bool) error
}

type UserHandler struct {
	userRepo UserStore
	limits   game.Limits
	logger   *zap.Logger
}

func NewUserHandler(userRepo UserStore, limits game.Limits, logger *zap.Logger) *UserHandler {
	return &UserHandler{userRepo: userRepo, limits: limits, logger: logger}
}

type meResponse struct {
	*models.User
	Profile *models.UserProfile `json:"profile"`
}

func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	user, err := h.userRepo.GetByID(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "User not found", r))
		return
	}

	// A missing profile row is not fatal; the first completed session creates it.
	profile, err := h.userRepo.GetProfile(r.Context(), userID)
	if err != nil {
		profile = &models.UserProfile{UserID: userID, DisplayName: models.DefaultDisplayName}
	}

	writeJSON(w, http.StatusOK, meResponse{User: user, Profile: profile})
}

func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req models.UpdateMeRequest
	if err := decodeJSON(r, &req, false); err != nil {
		invalidBody(w, r)
		return
	}

	fields := map[string]string{}
	if req.FullName != nil {
		name := strings.TrimSpace(*req.FullName)
		if name == "" || utf8.RuneCountInString(name) > maxFullNameLength {
			fields["full_name"] = fmt.Sprintf("Full name must be between 1 and %d characters", maxFullNameLength)
		}
		req.FullName = &name
	}
	if req.Bio != nil && utf8.RuneCountInString(*req.Bio) > maxBioLength {
		fields["bio"] = fmt.Sprintf("Bio must be at most %d characters", maxBioLength)
	}
	if req.DisplayName != nil {
		name := strings.TrimSpace(*req.DisplayName)
		if name == "" || utf8.RuneCountInString(name) > maxDisplayNameLength {
			fields["display_name"] = fmt.Sprintf("Display name must be between 1 and %d characters", maxDisplayNameLength)
		}
		req.DisplayName = &name
	}
	if len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", fields, r))
		return
	}

	user, err := h.userRepo.GetByID(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "User not found", r))
		return
	}

	if req.FullName != nil {
		user.FullName = *req.FullName
	}
	if req.AvatarURL != nil {
		user.AvatarURL = req.AvatarURL
	}
	if req.Bio != nil {
		user.Bio = req.Bio
	}

	if err := h.userRepo.Update(r.Context(), user); err != nil {
		h.logger.Error("failed to update user", zap.String("user_id", userID.String()), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to update profile", r))
		return
	}
	if req.DisplayName != nil {
		if err := h.userRepo.UpdateDisplayName(r.Context(), userID, *req.DisplayName); err != nil {
			h.logger.Error("failed to update display name", zap.String("user_id", userID.String()), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to update profile", r))
			return
		}
	}

	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req models.ChangePasswordRequest
	if err := decodeJSON(r, &req, false); err != nil {
		invalidBody(w, r)
		return
	}

	if err := services.ValidatePassword(req.NewPassword); err != nil {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"new_password": err.Error()}, r))
		return
	}

	user, err := h.userRepo.GetByID(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "User not found", r))
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResp("UNAUTHORIZED", "Current password is incorrect", r))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), services.BcryptCost)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to hash password", r))
		return
	}

	if err := h.userRepo.UpdatePassword(r.Context(), userID, string(hash)); err != nil {
		h.logger.Error("failed to update password", zap.String("user_id", userID.String()), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to change password", r))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password changed successfully"})
}

func (h *UserHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if err := h.userRepo.Delete(r.Context(), userID); err != nil {
		h.logger.Error("failed to delete user", zap.String("user_id", userID.String()), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to delete account", r))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Account deleted"})
}

type settingsResponse struct {
	DefaultMode   models.Mode     `json:"default_mode"`
	DefaultRounds *int            `json:"default_rounds"`
	Notifications map[string]bool `json:"notifications"`
}

func toSettingsResponse(s *models.UserSettings) settingsResponse {
	return settingsResponse{
		DefaultMode:   s.DefaultMode,
		DefaultRounds: s.DefaultRounds,
		Notifications: mergeNotificationPreferences(s.NotificationsJSON),
	}
}

func (h *UserHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	settings, err := h.userRepo.GetSettings(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Settings not found", r))
		return
	}
	writeJSON(w, http.StatusOK, toSettingsResponse(settings))
}

func (h *UserHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req models.UpdateSettingsRequest
	if err := decodeJSON(r, &req, false); err != nil {
		invalidBody(w, r)
		return
	}

	fields := map[string]string{}
	var mode models.Mode
	if req.DefaultMode != nil {
		m, err := game.ParseMode(*req.DefaultMode)
		if err != nil {
			fields["default_mode"] = err.Error()
		}
		mode = m
	}
	var rounds *int
	roundsSet := len(req.DefaultRounds) > 0
	if roundsSet && string(req.DefaultRounds) != "null" {
		var n int
		if err := json.Unmarshal(req.DefaultRounds, &n); err != nil || n < 1 || n > h.limits.MaxRequestedTurns {
			fields["default_rounds"] = fmt.Sprintf("Rounds must be between 1 and %d", h.limits.MaxRequestedTurns)
		}
		rounds = &n
	}
	if len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", fields, r))
		return
	}

	settings, err := h.userRepo.GetSettings(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Settings not found", r))
		return
	}
	if req.DefaultMode != nil {
		settings.DefaultMode = mode
	}
	if roundsSet {
		// null restores the random default range.
		settings.DefaultRounds = rounds
	}
	settings.UserID = userID

	if err := h.userRepo.UpdateSettings(r.Context(), settings); err != nil {
		h.logger.Error("failed to update settings", zap.String("user_id", userID.String()), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to update settings", r))
		return
	}

	writeJSON(w, http.StatusOK, toSettingsResponse(settings))
}

func (h *UserHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	settings, err := h.userRepo.GetSettings(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"notifications": defaultNotificationPreferences()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": mergeNotificationPreferences(settings.NotificationsJSON),
	})
}

func (h *UserHandler) UpdateNotifications(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req map[string]bool
	if err := decodeJSON(r, &req, false); err != nil {
		invalidBody(w, r)
		return
	}

	prefs := defaultNotificationPreferences()
	fields := map[string]string{}
	for key := range req {
		if _, ok := prefs[key]; !ok {
			fields[key] = "Unknown notification setting"
		}
	}
	if len(req) == 0 {
		fields["notifications"] = "At least one setting is required"
	}
	if len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", fields, r))
		return
	}

	for key, enabled := range req {
		if err := h.userRepo.SetNotificationSetting(r.Context(), userID, key, enabled); err != nil {
			h.logger.Error("failed to save notification setting",
				zap.String("user_id", userID.String()), zap.String("key", key), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to update notifications", r))
			return
		}
	}

	settings, err := h.userRepo.GetSettings(r.Context(), userID)
	if err != nil {
		for key, enabled := range req {
			prefs[key] = enabled
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"notifications": prefs})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": mergeNotificationPreferences(settings.NotificationsJSON),
	})
}

func defaultNotificationPreferences() map[string]bool {
	return map[string]bool{
		"weekly_digest":      false,
		"creative_reminders": false,
	}
}

// mergeNotificationPreferences overlays stored boolean values on the
// defaults. Timestamps and values of the wrong type are ignored.
func mergeNotificationPreferences(raw json.RawMessage) map[string]bool {
	prefs := defaultNotificationPreferences()
	if len(raw) == 0 {
		return prefs
	}

	var stored map[string]interface{}
	if err := json.Unmarshal(raw, &stored); err != nil {
		return prefs
	}
	for key := range prefs {
		if v, ok := stored[key].(bool); ok {
			prefs[key] = v
		}
	}
	return prefs
}
