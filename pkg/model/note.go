package model

import "time"

// Note is a generated clinical intake note. Body is guaranteed to be
// non-empty: note generation falls back to the rule-based summary
// rather than propagating a generation failure.
type Note struct {
	ConversationID ConversationID     `json:"conversation_id"`
	Title          string             `json:"title"`
	Body           string             `json:"body"`
	GeneratedAt    time.Time          `json:"generated_at"`
	Failure        *GenerationFailure `json:"failure,omitempty"`
}

// SaveResult reports the outcome of one local note save.
type SaveResult struct {
	Path         string `json:"path"`
	Filename     string `json:"filename"`
	BytesWritten int    `json:"bytes_written"`
	Saved        bool   `json:"saved"`
}
