package typewriter

import (
	"testing"
	"time"
)

func TestInstantAppendForZeroDuration(t *testing.T) {
	tw := New()
	tw.StreamText("Hello world", 0)

	if got := tw.Displayed(); got != "Hello world" {
		t.Errorf("displayed = %q, want %q", got, "Hello world")
	}
	if tw.IsTyping() {
		t.Error("isTyping should be false after instant append")
	}
}

func TestEmptyDeltaDoesNotStallQueue(t *testing.T) {
	tw := New()
	tw.StreamText("   ", 5)
	tw.StreamText("next", 0)

	if got := tw.Displayed(); got != "next" {
		t.Errorf("displayed = %q, want %q", got, "next")
	}
	if tw.IsTyping() {
		t.Error("isTyping should be false")
	}
}

func TestWordsRevealInOrder(t *testing.T) {
	tw := New()
	tw.StreamText("one two three", 0.09)

	// The first word appears synchronously.
	if got := tw.Displayed(); got != "one" {
		t.Errorf("displayed = %q, want %q", got, "one")
	}
	if !tw.IsTyping() {
		t.Error("isTyping should be true mid-reveal")
	}

	deadline := time.Now().Add(2 * time.Second)
	for tw.IsTyping() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if got := tw.Displayed(); got != "one two three" {
		t.Errorf("displayed = %q, want %q", got, "one two three")
	}
	if tw.IsTyping() {
		t.Error("isTyping should be false once the queue drains")
	}
}

func TestQueuedDeltasAreSerializedFIFO(t *testing.T) {
	tw := New()
	tw.StreamText("alpha beta", 0.06)
	tw.StreamText(" gamma", 0.03)
	tw.StreamText(" delta", 0)

	if !tw.IsTyping() {
		t.Fatal("isTyping should be true with queued deltas")
	}

	deadline := time.Now().Add(2 * time.Second)
	for tw.IsTyping() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if got := tw.Displayed(); got != "alpha beta gamma delta" {
		t.Errorf("displayed = %q, want %q", got, "alpha beta gamma delta")
	}
}

func TestResetCancelsPendingReveal(t *testing.T) {
	tw := New()
	tw.StreamText("a b c d e f", 1.0)
	tw.Reset()

	if got := tw.Displayed(); got != "" {
		t.Errorf("displayed = %q, want empty", got)
	}
	if tw.IsTyping() {
		t.Error("isTyping should be false after reset")
	}

	// A timer from before the reset must not resurrect old words.
	time.Sleep(300 * time.Millisecond)
	if got := tw.Displayed(); got != "" {
		t.Errorf("displayed = %q after reset, want empty", got)
	}
}

func TestOnChangeObservesFinalText(t *testing.T) {
	tw := New()
	var last string
	tw.SetOnChange(func(s string) { last = s })

	tw.StreamText("hi there", 0)
	if last != "hi there" {
		t.Errorf("onChange saw %q, want %q", last, "hi there")
	}
}
