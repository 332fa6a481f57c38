package models

// ChatTurn is one role-tagged entry of the conversation history passed to
// the AI gateway. Role is "user" or "assistant".
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of the AI proxy endpoint.
type ChatRequest struct {
	Message             string     `json:"message"`
	ConversationHistory []ChatTurn `json:"conversationHistory,omitempty"`
}

// ChatResponse always carries usable content: upstream failures degrade to
// the canned fallback with Fallback set, never to an empty error response.
type ChatResponse struct {
	Content  string `json:"content"`
	Fallback bool   `json:"fallback,omitempty"`
	Error    string `json:"error,omitempty"`
}
