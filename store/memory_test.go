package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"aura.town/voice"
)

func TestProfileLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.Profile(ctx); !errors.Is(err, ErrNoProfile) {
		t.Fatalf("fresh store profile error = %v, want ErrNoProfile", err)
	}

	saved := &Profile{UserName: "ada", DisplayName: "Ada", AssistantName: "Aura"}
	if err := m.SaveProfile(ctx, saved); err != nil {
		t.Fatal(err)
	}

	got, err := m.Profile(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.AssistantName != "Aura" || got.DisplayName != "Ada" {
		t.Errorf("loaded profile = %+v", got)
	}

	// Mutating the returned copy must not touch stored state.
	got.AssistantName = "Other"
	again, _ := m.Profile(ctx)
	if again.AssistantName != "Aura" {
		t.Error("store handed out a shared pointer")
	}
}

func TestClearProfileWipesHistory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	m.SaveProfile(ctx, &Profile{UserName: "ada", AssistantName: "Aura"})
	m.AddConversation(ctx, "hello", "hi there")

	if err := m.ClearProfile(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Profile(ctx); !errors.Is(err, ErrNoProfile) {
		t.Error("profile survived clear")
	}
	history, _ := m.History(ctx)
	if len(history) != 0 {
		t.Errorf("history survived clear: %d entries", len(history))
	}
}

func TestVoicePreferenceDefaultsToAuto(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	pref, err := m.VoicePreference(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if pref != voice.PreferenceAuto {
		t.Errorf("default preference = %v, want auto", pref)
	}

	if err := m.SaveVoicePreference(ctx, voice.PreferenceFemale); err != nil {
		t.Fatal(err)
	}
	pref, _ = m.VoicePreference(ctx)
	if pref != voice.PreferenceFemale {
		t.Errorf("saved preference = %v, want female", pref)
	}
}

func TestHistoryBoundedNewestFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	for i := 0; i < HistoryLimit+5; i++ {
		if err := m.AddConversation(ctx, fmt.Sprintf("question %d", i), "answer"); err != nil {
			t.Fatal(err)
		}
	}

	history, err := m.History(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != HistoryLimit {
		t.Fatalf("history length = %d, want %d", len(history), HistoryLimit)
	}
	if history[0].User != fmt.Sprintf("question %d", HistoryLimit+4) {
		t.Errorf("newest entry = %q, want the last added", history[0].User)
	}
	if history[len(history)-1].User != "question 5" {
		t.Errorf("oldest kept = %q, want question 5", history[len(history)-1].User)
	}
}

func TestBlankTurnsNotPersisted(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	m.AddConversation(ctx, "   ", "")
	m.AddConversation(ctx, "", "\n ")

	history, _ := m.History(ctx)
	if len(history) != 0 {
		t.Errorf("blank turns persisted: %d entries", len(history))
	}

	// One-sided turns still count.
	m.AddConversation(ctx, "", "I said something")
	history, _ = m.History(ctx)
	if len(history) != 1 {
		t.Errorf("one-sided turn dropped")
	}
}
