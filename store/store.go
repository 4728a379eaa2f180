package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"aura.town/voice"
)

// HistoryLimit bounds stored conversation history.
const HistoryLimit = 20

// ErrNoProfile means setup has not been completed yet.
var ErrNoProfile = errors.New("no profile configured")

// Profile is the single local user of the assistant.
type Profile struct {
	UserName      string
	DisplayName   string
	AssistantName string
	Email         string
}

// HistoryEntry is one completed conversation turn.
type HistoryEntry struct {
	ID        string
	User      string
	Assistant string
	Timestamp time.Time
}

// Store persists the profile, the voice preference, and a bounded
// newest-first conversation history.
type Store interface {
	Profile(ctx context.Context) (*Profile, error)
	SaveProfile(ctx context.Context, p *Profile) error
	// ClearProfile also wipes the history.
	ClearProfile(ctx context.Context) error

	VoicePreference(ctx context.Context) (voice.Preference, error)
	SaveVoicePreference(ctx context.Context, pref voice.Preference) error

	AddConversation(ctx context.Context, user, assistant string) error
	History(ctx context.Context) ([]HistoryEntry, error)

	Close(ctx context.Context) error
}

// blankTurn reports whether a turn carries no text at all and should
// not be persisted.
func blankTurn(user, assistant string) bool {
	return strings.TrimSpace(user) == "" && strings.TrimSpace(assistant) == ""
}
