package repository

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/m-kurata/intake/pkg/model"
)

// memoryEntry guards one conversation with its own mutex so appends to
// the same conversation serialize while others proceed.
type memoryEntry struct {
	mu   sync.Mutex
	conv model.Conversation
}

// MemoryStore is an in-process ConversationStore, used by tests and by
// single-process deployments that do not need durability.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[model.ConversationID]*memoryEntry
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{entries: map[model.ConversationID]*memoryEntry{}}
}

func (s *MemoryStore) Create(_ context.Context, patientID string, metadata map[string]any) (*model.Conversation, error) {
	if patientID == "" {
		return nil, goerr.New("patient ID is required")
	}
	now := time.Now()
	conv := model.Conversation{
		ID:        model.NewConversationID(),
		PatientID: patientID,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.entries[conv.ID] = &memoryEntry{conv: conv}
	s.mu.Unlock()

	out := cloneConversation(&conv)
	return &out, nil
}

func (s *MemoryStore) Append(_ context.Context, id model.ConversationID, msg model.Message) (*model.Message, error) {
	if err := msg.Role.Validate(); err != nil {
		return nil, err
	}
	if msg.Role == model.RolePatient && msg.Text == "" {
		return nil, goerr.Wrap(model.ErrEmptyMessage, "append rejected", goerr.V("conversation_id", id))
	}

	s.mu.RLock()
	entry, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, goerr.Wrap(model.ErrConversationNotFound, "append failed", goerr.V("conversation_id", id))
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	entry.conv.Messages = append(entry.conv.Messages, msg)
	entry.conv.UpdatedAt = msg.CreatedAt

	stored := msg
	return &stored, nil
}

func (s *MemoryStore) Get(_ context.Context, id model.ConversationID) (*model.Conversation, error) {
	s.mu.RLock()
	entry, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, goerr.Wrap(model.ErrConversationNotFound, "get failed", goerr.V("conversation_id", id))
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	out := cloneConversation(&entry.conv)
	return &out, nil
}

func (s *MemoryStore) Status(ctx context.Context, id model.ConversationID) (*model.ConversationStatus, error) {
	conv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &model.ConversationStatus{
		ID:           conv.ID,
		PatientID:    conv.PatientID,
		MessageCount: len(conv.Messages),
		CreatedAt:    conv.CreatedAt,
		UpdatedAt:    conv.UpdatedAt,
	}, nil
}

func (s *MemoryStore) Close() error { return nil }

func cloneConversation(c *model.Conversation) model.Conversation {
	out := *c
	out.Messages = make([]model.Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	if c.Metadata != nil {
		out.Metadata = make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
