package ai

import (
	"strings"
	"testing"

	"aichat-backend/internal/models"
)

func TestFallbackGreeting(t *testing.T) {
	f := NewFallbackWithSeed(1)

	reply := f.Reply("hello there", nil)
	if !strings.Contains(strings.ToLower(reply), "hi") && !strings.Contains(strings.ToLower(reply), "hello") && !strings.Contains(strings.ToLower(reply), "hey") {
		t.Errorf("greeting reply = %q", reply)
	}
}

func TestFallbackKeywordBuckets(t *testing.T) {
	f := NewFallbackWithSeed(1)

	tests := []struct {
		message string
		want    string
	}{
		{"can you help me", "assist"},
		{"review my code please", "programming"},
		{"write a story", "creative"},
		{"explain recursion", "Learning"},
	}
	for _, tt := range tests {
		if reply := f.Reply(tt.message, nil); !strings.Contains(reply, tt.want) {
			t.Errorf("Reply(%q) = %q, want substring %q", tt.message, reply, tt.want)
		}
	}
}

func TestFallbackFollowUp(t *testing.T) {
	f := NewFallbackWithSeed(1)

	history := []models.ChatTurn{
		{Role: "user", Content: "interesting topic"},
		{Role: "assistant", Content: "indeed"},
		{Role: "user", Content: "tell me about it"},
	}
	reply := f.Reply("something vague", history)
	if !strings.Contains(reply, "dive deeper") {
		t.Errorf("follow-up reply = %q", reply)
	}
}

func TestFallbackNeverEmpty(t *testing.T) {
	f := NewFallbackWithSeed(42)

	for _, msg := range []string{"", "zzz", "random statement about weather"} {
		if f.Reply(msg, nil) == "" {
			t.Errorf("empty reply for %q", msg)
		}
	}
}
