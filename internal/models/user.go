package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID  `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	FullName     string     `json:"full_name"`
	AvatarURL    *string    `json:"avatar_url"`
	Bio          *string    `json:"bio"`
	IsVerified   bool       `json:"is_verified"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at"`
}

const DefaultDisplayName = "Creative Explorer"

// UserProfile holds the statistics maintained by the session-completed job.
type UserProfile struct {
	UserID            uuid.UUID  `json:"user_id"`
	DisplayName       string     `json:"display_name"`
	CompletedSessions int        `json:"completed_sessions"`
	CurrentStreak     int        `json:"current_streak"`
	LongestStreak     int        `json:"longest_streak"`
	TotalTurns        int        `json:"total_turns"`
	FavoriteMode      *Mode      `json:"favorite_mode"`
	LastSessionDate   *time.Time `json:"last_session_date"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

type UserSettings struct {
	UserID            uuid.UUID       `json:"user_id"`
	DefaultMode       Mode            `json:"default_mode"`
	DefaultRounds     *int            `json:"default_rounds"`
	NotificationsJSON json.RawMessage `json:"notifications"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type RegisterRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type UpdateMeRequest struct {
	FullName    *string `json:"full_name"`
	AvatarURL   *string `json:"avatar_url"`
	Bio         *string `json:"bio"`
	DisplayName *string `json:"display_name"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// UpdateSettingsRequest is a partial update. DefaultRounds stays raw so an
// explicit null (clear the saved count) differs from an absent field.
type UpdateSettingsRequest struct {
	DefaultMode   *string         `json:"default_mode"`
	DefaultRounds json.RawMessage `json:"default_rounds"`
}
