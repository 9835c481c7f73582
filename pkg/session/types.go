// Package session holds per-user conversational state for the assistant.
// A Session carries a bounded history of turns and a sticky language that is
// fixed by the first interaction which establishes one.
package session

import (
	"encoding/json"
	"time"

	"github.com/aixgo-dev/visionguide/pkg/language"
)

const (
	// MaxHistory is the number of turns retained per session.
	MaxHistory = 10
	// ContextTurns is the number of most recent turns forwarded as context to
	// the description backend.
	ContextTurns = 3
	// SnapshotQuery is recorded as the user query of a queryless interaction.
	SnapshotQuery = "[Snapshot Mode]"
	// DefaultTTL is how long an idle session is kept.
	DefaultTTL = 1800 * time.Second
)

// Turn is one image, query and response interaction.
type Turn struct {
	Timestamp        time.Time         `json:"timestamp"`
	UserQuery        string            `json:"user_query"`
	DetectedLanguage language.Language `json:"detected_language"`
	// ImagePath is an opaque reference to the image, never the bytes.
	ImagePath  string `json:"image_path"`
	AIResponse string `json:"ai_response"`
}

// Session is the conversational state of one client.
type Session struct {
	ID           string    `json:"session_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	// DetectedLanguage is empty until the first turn with a language.
	DetectedLanguage language.Language `json:"detected_language,omitempty"`
	History          []Turn            `json:"chat_history"`
}

// New returns an empty session created at now.
func New(id string, now time.Time) *Session {
	now = now.UTC()
	return &Session{
		ID:           id,
		CreatedAt:    now,
		LastActivity: now,
		History:      []Turn{},
	}
}

// ImageRef returns the opaque image reference recorded for turns of the
// session with the given id.
func ImageRef(id string) string {
	return "temp_" + id + ".jpg"
}

// RecordTurn appends a turn stamped with the current time.
func (s *Session) RecordTurn(query string, lang language.Language, imageRef, response string) {
	s.RecordTurnAt(time.Now(), query, lang, imageRef, response)
}

// RecordTurnAt appends a turn stamped with at, evicts the oldest turns beyond
// MaxHistory, sets the session language if it is still unset and refreshes
// LastActivity. It does not persist the session.
func (s *Session) RecordTurnAt(at time.Time, query string, lang language.Language, imageRef, response string) {
	at = at.UTC()
	s.History = append(s.History, Turn{
		Timestamp:        at,
		UserQuery:        query,
		DetectedLanguage: lang,
		ImagePath:        imageRef,
		AIResponse:       response,
	})
	if n := len(s.History); n > MaxHistory {
		kept := make([]Turn, MaxHistory)
		copy(kept, s.History[n-MaxHistory:])
		s.History = kept
	}
	if s.DetectedLanguage == "" && lang != "" {
		s.DetectedLanguage = lang
	}
	s.LastActivity = at
}

// Recent returns up to n of the most recent turns, oldest first.
func (s *Session) Recent(n int) []Turn {
	if n <= 0 || len(s.History) == 0 {
		return nil
	}
	start := len(s.History) - n
	if start < 0 {
		start = 0
	}
	out := make([]Turn, len(s.History)-start)
	copy(out, s.History[start:])
	return out
}

// Language returns the session language, or the baseline when none is set.
func (s *Session) Language() language.Language {
	if s.DetectedLanguage == "" {
		return language.Baseline
	}
	return s.DetectedLanguage
}

// Expired reports whether the session has been idle longer than ttl at now.
// A non-positive ttl never expires.
func (s *Session) Expired(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(s.LastActivity) > ttl
}

// Clone returns a deep copy of s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.History = make([]Turn, len(s.History))
	copy(c.History, s.History)
	return &c
}

// UnmarshalJSON decodes a session, defaulting missing timestamps to the
// current time and a missing history to an empty one.
func (s *Session) UnmarshalJSON(data []byte) error {
	type alias Session
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.LastActivity.IsZero() {
		a.LastActivity = now
	}
	if a.History == nil {
		a.History = []Turn{}
	}
	*s = Session(a)
	return nil
}
