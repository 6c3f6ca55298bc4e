package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	JobTypeSessionCompleted = "session-completed"

	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

type Job struct {
	ID           uuid.UUID       `json:"id"`
	UserID       uuid.UUID       `json:"user_id"`
	Type         string          `json:"type"`
	ReferenceID  uuid.UUID       `json:"reference_id"`
	ConfigJSON   json.RawMessage `json:"config"`
	Status       string          `json:"status"`
	RetryCount   int             `json:"retry_count"`
	MaxRetries   int             `json:"max_retries"`
	ErrorMessage *string         `json:"error_message"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  *time.Time      `json:"completed_at"`
}

// WebSocket message types
const (
	WSTurnCompleted    = "turn_completed"
	WSSessionCompleted = "session_completed"
	WSProfileUpdated   = "profile_updated"
	WSJobFailed        = "job_failed"
)

type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type TurnCompletedEvent struct {
	SessionID       string `json:"session_id"`
	TurnNumber      int    `json:"turn_number"`
	CompletedTurns  int    `json:"completed_turns"`
	PlannedTurns    int    `json:"planned_turns"`
	ReadyToFinalize bool   `json:"ready_to_finalize"`
}

type SessionCompletedEvent struct {
	SessionID  string `json:"session_id"`
	EndedEarly bool   `json:"ended_early"`
	JobID      string `json:"job_id,omitempty"`
}

type ProfileUpdatedEvent struct {
	JobID   uuid.UUID   `json:"job_id"`
	Profile UserProfile `json:"profile"`
}

type ErrorEvent struct {
	JobID        uuid.UUID `json:"job_id"`
	ErrorCode    string    `json:"error_code"`
	ErrorMessage string    `json:"error_message"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
