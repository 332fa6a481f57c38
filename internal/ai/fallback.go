package ai

import (
	"math/rand"
	"strings"
	"time"

	"aichat-backend/internal/models"
)

// Fallback is the local responder used when the hosted model is unreachable
// or unconfigured. Pure keyword matching, no state, no learning.
type Fallback struct {
	rand *rand.Rand
}

func NewFallback() *Fallback {
	return &Fallback{rand: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// NewFallbackWithSeed returns a deterministic responder for tests.
func NewFallbackWithSeed(seed int64) *Fallback {
	return &Fallback{rand: rand.New(rand.NewSource(seed))}
}

var greetings = []string{
	"Hello! I'm your AI assistant. I'm here to help you with questions, creative tasks, learning, and engaging conversations. What would you like to explore today?",
	"Hi there! I'm excited to chat with you. I can help with a wide range of topics - from answering questions to brainstorming ideas. What's on your mind?",
	"Hey! Great to meet you. As your AI assistant, I'm ready to help with whatever you'd like to discuss or work on together.",
}

var thoughtfulResponses = []string{
	"That's a really interesting perspective! Let me share some thoughts on that and explore different angles we could consider together.",
	"I find that topic fascinating! There are several ways we could approach this, and I'd love to explore the possibilities with you.",
	"That's a great question that touches on some important concepts. Let me break this down and provide some insights that might be helpful.",
	"I appreciate you bringing this up! It's the kind of topic that can lead to really engaging discussions. Here's how I see it...",
	"That's worth exploring further! There are some interesting implications and considerations we should discuss.",
}

var elaborations = []string{
	"What aspects of this are you most curious about?",
	"I'd love to hear your thoughts on this approach.",
	"What questions does this raise for you?",
	"How does this connect to your experience or interests?",
	"What direction would you like to take this conversation?",
}

// Reply produces a canned, keyword-matched response.
func (f *Fallback) Reply(message string, history []models.ChatTurn) string {
	lower := strings.ToLower(message)

	switch {
	case containsAny(lower, "hello", "hi", "hey"):
		return greetings[f.rand.Intn(len(greetings))]
	case containsAny(lower, "help", "what can you do"):
		return "I'm here to assist you with a wide variety of tasks! I can help with:\n\n" +
			"• Answering questions and explaining concepts\n" +
			"• Creative writing and brainstorming\n" +
			"• Problem-solving and analysis\n" +
			"• Learning and education\n" +
			"• Programming and technical topics\n" +
			"• General conversation and discussion\n\n" +
			"What specific area would you like help with?"
	case containsAny(lower, "code", "programming", "develop"):
		return "I'd be happy to help with programming! I can assist with code review, debugging, explaining concepts, suggesting best practices, or helping you learn new technologies. What programming challenge are you working on?"
	case containsAny(lower, "creative", "write", "story"):
		return "I love helping with creative projects! Whether it's writing, brainstorming ideas, storytelling, or artistic concepts, I'm here to collaborate with you. What kind of creative work are you interested in?"
	case containsAny(lower, "learn", "study", "explain"):
		return "Learning is one of my favorite topics to help with! I can break down complex concepts, provide explanations, suggest study strategies, and help you understand new subjects. What would you like to learn about?"
	}

	if wantsFollowUp(history) {
		return "Absolutely! I'd be happy to dive deeper into that topic. Let me provide more detailed insights and explore different aspects of what we've been discussing..."
	}

	response := thoughtfulResponses[f.rand.Intn(len(thoughtfulResponses))]
	elaboration := elaborations[f.rand.Intn(len(elaborations))]
	return response + " " + elaboration
}

// wantsFollowUp checks the last few turns for continuation cues.
func wantsFollowUp(history []models.ChatTurn) bool {
	start := len(history) - 3
	if start < 0 {
		start = 0
	}
	for _, turn := range history[start:] {
		if containsAny(turn.Content, "more", "continue", "tell me") {
			return true
		}
	}
	return false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
