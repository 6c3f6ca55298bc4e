package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/mbergh0930/create3x/internal/game"
	"github.com/mbergh0930/create3x/internal/models"
)

// MemorySessionStore is an in-process game.SessionStore used by the
// simulate command and tests.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*models.Session)}
}

var _ game.SessionStore = (*MemorySessionStore)(nil)

func (m *MemorySessionStore) CreateSession(_ context.Context, s *models.Session) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	c := s.Clone()
	c.ID = id
	m.sessions[id] = c
	return id, nil
}

func (m *MemorySessionStore) UpdateSession(_ context.Context, id string, patch models.SessionPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("updating session %s: %w", id, game.ErrSessionNotFound)
	}
	patch.Apply(s)
	return nil
}

func (m *MemorySessionStore) GetSession(_ context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, game.ErrSessionNotFound)
	}
	return s.Clone(), nil
}

// List returns a user's sessions, newest first.
func (m *MemorySessionStore) List(_ context.Context, f models.SessionFilter) ([]*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Session, 0)
	for _, s := range m.sessions {
		if f.UserID != "" && s.UserID != f.UserID {
			continue
		}
		if f.Mode != "" && s.Mode != f.Mode {
			continue
		}
		switch f.Status {
		case "active":
			if s.Terminal() {
				continue
			}
		case "completed":
			if !s.Terminal() || s.EndedEarly {
				continue
			}
		case "ended-early":
			if !s.EndedEarly {
				continue
			}
		}
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []*models.Session{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemorySessionStore) Count(ctx context.Context, f models.SessionFilter) (int, error) {
	f.Limit, f.Offset = 0, 0
	sessions, err := m.List(ctx, f)
	if err != nil {
		return 0, err
	}
	return len(sessions), nil
}
