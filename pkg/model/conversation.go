package model

import (
	"time"

	"github.com/google/uuid"
)

type ConversationID string

// NewConversationID generates a new unique ConversationID
func NewConversationID() ConversationID {
	return ConversationID(uuid.New().String())
}

type Role string

const (
	RolePatient   Role = "patient"
	RoleAssistant Role = "assistant"
)

// Validate checks if the role is valid
func (r Role) Validate() error {
	switch r {
	case RolePatient, RoleAssistant:
		return nil
	default:
		return ErrInvalidRole
	}
}

// Message is a single turn in a conversation. Insertion order is
// significant and messages are never reordered after append.
type Message struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Conversation holds the ordered message sequence of one patient intake
// dialogue. The message sequence is append-only; UpdatedAt tracks the
// most recent append.
type Conversation struct {
	ID        ConversationID `json:"id"`
	PatientID string         `json:"patient_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Messages  []Message      `json:"messages"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// PatientMessages returns the text of all patient turns in order.
func (c *Conversation) PatientMessages() []string {
	var out []string
	for _, m := range c.Messages {
		if m.Role == RolePatient && m.Text != "" {
			out = append(out, m.Text)
		}
	}
	return out
}

// AssistantTurns returns the number of assistant messages appended so far.
func (c *Conversation) AssistantTurns() int {
	n := 0
	for _, m := range c.Messages {
		if m.Role == RoleAssistant {
			n++
		}
	}
	return n
}

// ConversationStatus is a lightweight view of a conversation.
type ConversationStatus struct {
	ID           ConversationID `json:"conversation_id"`
	PatientID    string         `json:"patient_id"`
	MessageCount int            `json:"message_count"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
