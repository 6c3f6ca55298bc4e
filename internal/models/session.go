package models

import (
	"encoding/json"
	"time"
)

// Mode is the ruleset governing which catalog subset and constraints apply
// to a session.
type Mode string

const (
	ModeInspire        Mode = "inspire"
	ModeMasters        Mode = "masters"
	ModePlay           Mode = "play"
	ModePlayAndJournal Mode = "play-and-journal"
	ModeMasterArtist   Mode = "master-artist"
)

// Modes lists every supported mode.
var Modes = []Mode{ModeInspire, ModeMasters, ModePlay, ModePlayAndJournal, ModeMasterArtist}

func (m Mode) Valid() bool {
	switch m {
	case ModeInspire, ModeMasters, ModePlay, ModePlayAndJournal, ModeMasterArtist:
		return true
	}
	return false
}

// ArtistFocus selects which categories are narrowed to an artist's palette.
type ArtistFocus string

const (
	FocusAll            ArtistFocus = "all"
	FocusColorsOnly     ArtistFocus = "colors-only"
	FocusTechniquesOnly ArtistFocus = "techniques-only"
	FocusMediumsOnly    ArtistFocus = "mediums-only"
)

func (f ArtistFocus) Valid() bool {
	switch f {
	case FocusAll, FocusColorsOnly, FocusTechniquesOnly, FocusMediumsOnly:
		return true
	}
	return false
}

type SessionState string

const (
	StateInitializing SessionState = "initializing"
	StateInProgress   SessionState = "in_progress"
	StateFinalizing   SessionState = "finalizing"
	StateCompleted    SessionState = "completed"
	StateEndedEarly   SessionState = "ended_early"
)

type Turn struct {
	TurnNumber         int       `json:"turn_number"`
	Color              string    `json:"color"`
	Technique          string    `json:"technique"`
	Medium             string    `json:"medium"`
	ArtistName         *string   `json:"artist_name"`
	Reflection         string    `json:"reflection"`
	ReflectionProvided bool      `json:"reflection_provided"`
	CreatedAt          time.Time `json:"created_at"`
}

type ShareSettings struct {
	IsPublic            bool `json:"is_public"`
	SharePersonalInfo   bool `json:"share_personal_info"`
	ShareSessionDetails bool `json:"share_session_details"`
}

func DefaultShareSettings() ShareSettings {
	return ShareSettings{ShareSessionDetails: true}
}

type Session struct {
	ID                      string        `json:"id"`
	UserID                  string        `json:"user_id"`
	Mode                    Mode          `json:"mode"`
	ArtistID                *string       `json:"artist_id"`
	ArtistFocus             ArtistFocus   `json:"artist_focus"`
	PlannedTurns            int           `json:"planned_turns"`
	CompletedTurns          int           `json:"completed_turns"`
	CurrentTurnIndex        int           `json:"current_turn_index"`
	Turns                   []Turn        `json:"turns"`
	FinalReflection         string        `json:"final_reflection"`
	FinalReflectionProvided bool          `json:"final_reflection_provided"`
	CreatedAt               time.Time     `json:"created_at"`
	CompletedAt             *time.Time    `json:"completed_at"`
	EndedEarly              bool          `json:"ended_early"`
	ImageURL                *string       `json:"image_url"`
	ShareSettings           ShareSettings `json:"share_settings"`
}

// Terminal reports whether the session has been finalized or ended early.
func (s *Session) Terminal() bool {
	return s.CompletedAt != nil
}

func (s *Session) State() SessionState {
	switch {
	case s.CompletedAt != nil && s.EndedEarly:
		return StateEndedEarly
	case s.CompletedAt != nil:
		return StateCompleted
	case s.ID == "":
		return StateInitializing
	case s.CompletedTurns >= s.PlannedTurns:
		return StateFinalizing
	default:
		return StateInProgress
	}
}

// MarshalJSON adds the derived lifecycle state to the stored fields.
func (s Session) MarshalJSON() ([]byte, error) {
	type plain Session
	return json.Marshal(struct {
		plain
		State SessionState `json:"state"`
	}{plain(s), s.State()})
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	c := *s
	if s.Turns != nil {
		c.Turns = make([]Turn, len(s.Turns))
		copy(c.Turns, s.Turns)
	}
	if s.ArtistID != nil {
		id := *s.ArtistID
		c.ArtistID = &id
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	if s.ImageURL != nil {
		u := *s.ImageURL
		c.ImageURL = &u
	}
	return &c
}

// SessionConfig carries the optional mode parameters chosen at creation.
type SessionConfig struct {
	ArtistID    string      `json:"artist_id"`
	ArtistFocus ArtistFocus `json:"artist_focus"`
}

// SessionPatch is a partial update. Nil fields are left unchanged.
type SessionPatch struct {
	Turns                   []Turn
	CompletedTurns          *int
	CurrentTurnIndex        *int
	FinalReflection         *string
	FinalReflectionProvided *bool
	CompletedAt             *time.Time
	EndedEarly              *bool
	ImageURL                *string
	ShareSettings           *ShareSettings
}

// Apply writes the patch's set fields onto s.
func (p SessionPatch) Apply(s *Session) {
	if p.Turns != nil {
		s.Turns = make([]Turn, len(p.Turns))
		copy(s.Turns, p.Turns)
	}
	if p.CompletedTurns != nil {
		s.CompletedTurns = *p.CompletedTurns
	}
	if p.CurrentTurnIndex != nil {
		s.CurrentTurnIndex = *p.CurrentTurnIndex
	}
	if p.FinalReflection != nil {
		s.FinalReflection = *p.FinalReflection
	}
	if p.FinalReflectionProvided != nil {
		s.FinalReflectionProvided = *p.FinalReflectionProvided
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		s.CompletedAt = &t
	}
	if p.EndedEarly != nil {
		s.EndedEarly = *p.EndedEarly
	}
	if p.ImageURL != nil {
		u := *p.ImageURL
		s.ImageURL = &u
	}
	if p.ShareSettings != nil {
		s.ShareSettings = *p.ShareSettings
	}
}

// SessionFilter narrows session history listings.
type SessionFilter struct {
	UserID string
	Mode   Mode
	Status string // "active" | "completed" | "ended-early"
	Limit  int
	Offset int
}

type CreateSessionRequest struct {
	Mode           string `json:"mode"`
	ArtistID       string `json:"artist_id"`
	ArtistFocus    string `json:"artist_focus"`
	RequestedTurns *int   `json:"requested_turns"`
}

type CompleteTurnRequest struct {
	Reflection string `json:"reflection"`
}

type FinalReflectionRequest struct {
	FinalReflection string `json:"final_reflection"`
}

// TurnView is a turn with its catalog display metadata resolved.
type TurnView struct {
	Turn
	ColorName     string `json:"color_name"`
	TechniqueName string `json:"technique_name"`
	MediumName    string `json:"medium_name"`
}
