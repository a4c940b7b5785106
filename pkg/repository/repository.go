// Package repository provides persistence for conversations and their
// append-only message sequences.
package repository

import (
	"context"

	"github.com/m-kurata/intake/pkg/model"
)

// ConversationStore is the persistence interface for conversations.
// Implementations must serialize appends per conversation so that the
// message sequence reflects one consistent total order, while letting
// unrelated conversations proceed concurrently.
type ConversationStore interface {
	// Create starts a new conversation for a patient.
	Create(ctx context.Context, patientID string, metadata map[string]any) (*model.Conversation, error)

	// Append adds a message to an existing conversation and returns the
	// stored message. Fails with model.ErrConversationNotFound when the
	// ID is unknown.
	Append(ctx context.Context, id model.ConversationID, msg model.Message) (*model.Message, error)

	// Get retrieves a conversation with its full message sequence.
	Get(ctx context.Context, id model.ConversationID) (*model.Conversation, error)

	// Status retrieves a lightweight view without the message bodies.
	Status(ctx context.Context, id model.ConversationID) (*model.ConversationStatus, error)

	// Close releases underlying resources.
	Close() error
}
