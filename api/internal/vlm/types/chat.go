package types

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn is the role/text pair sent to the model as conversation history.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// ChatMessage is never mutated after creation.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type ConverseRequest struct {
	History []Turn `json:"history"`
	Message string `json:"message"`
	Media   []byte `json:"-"`
	MIME    string `json:"mime,omitempty"`
}

type ConverseResult struct {
	Text     string    `json:"text"`
	Findings []Finding `json:"findings"`
}

const (
	CopilotDescription = "Identified via Copilot"
	ReplyHighlighted   = "I've highlighted the requested structure on the image."
	ReplyUnsure        = "I'm not sure."
	ReplyChatFailed    = "I encountered an error processing your request."
)

// DefaultReply fills an empty model reply depending on whether the turn
// produced annotations.
func DefaultReply(text string, findings int) string {
	if text != "" {
		return text
	}
	if findings > 0 {
		return ReplyHighlighted
	}
	return ReplyUnsure
}
