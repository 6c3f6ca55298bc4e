package game

import (
	"context"

	"github.com/mbergh0930/create3x/internal/models"
)

// SessionStore persists session documents. Implementations report a missing
// session from GetSession with an error wrapping ErrSessionNotFound.
type SessionStore interface {
	CreateSession(ctx context.Context, s *models.Session) (string, error)
	UpdateSession(ctx context.Context, id string, patch models.SessionPatch) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
}
