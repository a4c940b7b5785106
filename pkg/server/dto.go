package server

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/m-kurata/intake/pkg/model"
)

// StartRequest opens a new conversation. Message is optional: when
// present it is recorded as the first patient turn and answered.
type StartRequest struct {
	PatientID string         `json:"patient_id"`
	Message   string         `json:"message,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (x *StartRequest) Validate() error {
	return validation.ValidateStruct(x,
		validation.Field(&x.PatientID, validation.Required, validation.Length(1, 128)),
	)
}

// SendRequest records one patient message. PatientID is the recovery
// fallback: when the conversation ID is unknown, a new conversation is
// started for that patient instead of failing.
type SendRequest struct {
	ConversationID string `json:"conversation_id"`
	PatientID      string `json:"patient_id,omitempty"`
	Message        string `json:"message"`
}

func (x *SendRequest) Validate() error {
	return validation.ValidateStruct(x,
		validation.Field(&x.Message, validation.Required),
	)
}

// ContinueMessage is one transcript entry in a batch append.
type ContinueMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

func (x ContinueMessage) Validate() error {
	return validation.ValidateStruct(&x,
		validation.Field(&x.Role, validation.Required, validation.In("patient", "assistant")),
		validation.Field(&x.Text, validation.Required),
	)
}

// ContinueRequest appends a batch of messages to an existing
// conversation without a planning step.
type ContinueRequest struct {
	ConversationID string            `json:"conversation_id"`
	Messages       []ContinueMessage `json:"messages"`
}

func (x *ContinueRequest) Validate() error {
	return validation.ValidateStruct(x,
		validation.Field(&x.ConversationID, validation.Required),
		validation.Field(&x.Messages, validation.Required),
	)
}

// ContinueResponse reports how many messages a batch append recorded.
type ContinueResponse struct {
	ConversationID model.ConversationID `json:"conversation_id"`
	Appended       int                  `json:"appended"`
}

// NextFollowUpRequest asks for the next assistant turn without
// persisting it.
type NextFollowUpRequest struct {
	ConversationID string `json:"conversation_id"`
}

func (x *NextFollowUpRequest) Validate() error {
	return validation.ValidateStruct(x,
		validation.Field(&x.ConversationID, validation.Required),
	)
}

// GenerateNoteRequest produces an intake note for a conversation.
type GenerateNoteRequest struct {
	ConversationID string `json:"conversation_id"`
	Title          string `json:"title,omitempty"`
}

func (x *GenerateNoteRequest) Validate() error {
	return validation.ValidateStruct(x,
		validation.Field(&x.ConversationID, validation.Required),
	)
}

// SaveLocalRequest writes already-generated note text to local storage.
type SaveLocalRequest struct {
	Filename string `json:"filename"`
	Text     string `json:"text"`
}

func (x *SaveLocalRequest) Validate() error {
	return validation.ValidateStruct(x,
		validation.Field(&x.Filename, validation.Required),
		validation.Field(&x.Text, validation.Required),
	)
}

// GenerateAndSaveRequest generates a note and saves it in one call.
type GenerateAndSaveRequest struct {
	ConversationID string `json:"conversation_id"`
	Title          string `json:"title,omitempty"`
	Filename       string `json:"filename,omitempty"`
}

func (x *GenerateAndSaveRequest) Validate() error {
	return validation.ValidateStruct(x,
		validation.Field(&x.ConversationID, validation.Required),
	)
}

// FollowUp is the assistant's reply to a patient message. Conclusion is
// set instead of Question when the intake dialogue has finished.
type FollowUp struct {
	Question   string `json:"question,omitempty"`
	Conclusion string `json:"conclusion,omitempty"`
	Saved      bool   `json:"saved"`
}

// AIError reports degraded-mode generation. The reply it accompanies is
// still usable fallback text; this is a diagnostic, not a failure.
type AIError struct {
	Message string   `json:"message"`
	Hints   []string `json:"hints,omitempty"`
}

// SendResponse is returned by start, send and continue.
type SendResponse struct {
	ConversationID model.ConversationID `json:"conversation_id"`
	Created        bool                 `json:"created,omitempty"`
	AIFollowUp     *FollowUp            `json:"ai_follow_up,omitempty"`
	AIError        *AIError             `json:"ai_error,omitempty"`
}

// NoteResponse wraps a generated note, optionally with its save result.
type NoteResponse struct {
	Note    *model.Note       `json:"note"`
	Saved   *model.SaveResult `json:"saved,omitempty"`
	AIError *AIError          `json:"ai_error,omitempty"`
}
