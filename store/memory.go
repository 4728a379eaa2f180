package store

import (
	"context"
	"sync"
	"time"

	"aura.town/etc"
	"aura.town/voice"
)

// Memory is an in-process Store, used when no database is configured.
type Memory struct {
	mu      sync.Mutex
	profile *Profile
	pref    voice.Preference
	history []HistoryEntry
}

func NewMemory() *Memory {
	return &Memory{pref: voice.PreferenceAuto}
}

func (m *Memory) Profile(ctx context.Context) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.profile == nil {
		return nil, ErrNoProfile
	}
	p := *m.profile
	return &p, nil
}

func (m *Memory) SaveProfile(ctx context.Context, p *Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *p
	m.profile = &copied
	return nil
}

func (m *Memory) ClearProfile(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profile = nil
	m.history = nil
	return nil
}

func (m *Memory) VoicePreference(ctx context.Context) (voice.Preference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pref == "" {
		return voice.PreferenceAuto, nil
	}
	return m.pref, nil
}

func (m *Memory) SaveVoicePreference(ctx context.Context, pref voice.Preference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pref = pref
	return nil
}

func (m *Memory) AddConversation(ctx context.Context, user, assistant string) error {
	if blankTurn(user, assistant) {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := HistoryEntry{
		ID:        etc.NewFreshID(),
		User:      user,
		Assistant: assistant,
		Timestamp: time.Now(),
	}
	m.history = append([]HistoryEntry{entry}, m.history...)
	if len(m.history) > HistoryLimit {
		m.history = m.history[:HistoryLimit]
	}
	return nil
}

func (m *Memory) History(ctx context.Context) ([]HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]HistoryEntry, len(m.history))
	copy(out, m.history)
	return out, nil
}

func (m *Memory) Close(ctx context.Context) error { return nil }
