package repository

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/m-kurata/intake/pkg/model"
)

const (
	conversationCollection = "conversations"
	messageCollection      = "messages"
)

// conversationDoc is the Firestore representation of a conversation.
// Messages live in a subcollection keyed by a per-conversation sequence
// number so append order survives concurrent writers.
type conversationDoc struct {
	PatientID string         `firestore:"patient_id"`
	Metadata  map[string]any `firestore:"metadata"`
	Seq       int64          `firestore:"seq"`
	CreatedAt time.Time      `firestore:"created_at"`
	UpdatedAt time.Time      `firestore:"updated_at"`
}

type messageDoc struct {
	Seq       int64     `firestore:"seq"`
	Role      string    `firestore:"role"`
	Text      string    `firestore:"text"`
	CreatedAt time.Time `firestore:"created_at"`
}

// FirestoreStore is a ConversationStore backed by Firestore. Appends
// run in transactions against a sequence counter on the conversation
// document, which gives the required one-writer-at-a-time semantics per
// conversation.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestore connects to the given project and database.
func NewFirestore(ctx context.Context, projectID, databaseID string) (*FirestoreStore, error) {
	if projectID == "" {
		return nil, goerr.New("project ID is required")
	}
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client", goerr.V("project", projectID))
	}
	return &FirestoreStore{client: client}, nil
}

func (s *FirestoreStore) Create(ctx context.Context, patientID string, metadata map[string]any) (*model.Conversation, error) {
	if patientID == "" {
		return nil, goerr.New("patient ID is required")
	}
	if metadata == nil {
		metadata = map[string]any{}
	}

	now := time.Now().UTC()
	conv := model.Conversation{
		ID:        model.NewConversationID(),
		PatientID: patientID,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}

	ref := s.client.Collection(conversationCollection).Doc(string(conv.ID))
	_, err := ref.Create(ctx, &conversationDoc{
		PatientID: conv.PatientID,
		Metadata:  conv.Metadata,
		Seq:       0,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create conversation document", goerr.V("patient_id", patientID))
	}
	return &conv, nil
}

func (s *FirestoreStore) Append(ctx context.Context, id model.ConversationID, msg model.Message) (*model.Message, error) {
	if err := msg.Role.Validate(); err != nil {
		return nil, err
	}
	if msg.Role == model.RolePatient && msg.Text == "" {
		return nil, goerr.Wrap(model.ErrEmptyMessage, "append rejected", goerr.V("conversation_id", id))
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	ref := s.client.Collection(conversationCollection).Doc(string(id))

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(model.ErrConversationNotFound, "append failed", goerr.V("conversation_id", id))
		}
		if err != nil {
			return goerr.Wrap(err, "failed to read conversation document")
		}

		var doc conversationDoc
		if err := snap.DataTo(&doc); err != nil {
			return goerr.Wrap(err, "failed to decode conversation document")
		}

		seq := doc.Seq + 1
		msgRef := ref.Collection(messageCollection).Doc(fmt.Sprintf("%08d", seq))
		if err := tx.Create(msgRef, &messageDoc{
			Seq:       seq,
			Role:      string(msg.Role),
			Text:      msg.Text,
			CreatedAt: msg.CreatedAt,
		}); err != nil {
			return goerr.Wrap(err, "failed to create message document")
		}

		return tx.Update(ref, []firestore.Update{
			{Path: "seq", Value: seq},
			{Path: "updated_at", Value: msg.CreatedAt},
		})
	})
	if err != nil {
		return nil, err
	}

	stored := msg
	return &stored, nil
}

func (s *FirestoreStore) Get(ctx context.Context, id model.ConversationID) (*model.Conversation, error) {
	ref := s.client.Collection(conversationCollection).Doc(string(id))

	snap, err := ref.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, goerr.Wrap(model.ErrConversationNotFound, "get failed", goerr.V("conversation_id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read conversation document", goerr.V("conversation_id", id))
	}

	var doc conversationDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode conversation document")
	}

	conv := model.Conversation{
		ID:        id,
		PatientID: doc.PatientID,
		Metadata:  doc.Metadata,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}

	iter := ref.Collection(messageCollection).OrderBy("seq", firestore.Asc).Documents(ctx)
	defer iter.Stop()
	for {
		msgSnap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate messages", goerr.V("conversation_id", id))
		}
		var m messageDoc
		if err := msgSnap.DataTo(&m); err != nil {
			return nil, goerr.Wrap(err, "failed to decode message document")
		}
		conv.Messages = append(conv.Messages, model.Message{
			Role:      model.Role(m.Role),
			Text:      m.Text,
			CreatedAt: m.CreatedAt,
		})
	}

	return &conv, nil
}

func (s *FirestoreStore) Status(ctx context.Context, id model.ConversationID) (*model.ConversationStatus, error) {
	ref := s.client.Collection(conversationCollection).Doc(string(id))

	snap, err := ref.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, goerr.Wrap(model.ErrConversationNotFound, "status failed", goerr.V("conversation_id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read conversation document", goerr.V("conversation_id", id))
	}

	var doc conversationDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode conversation document")
	}

	return &model.ConversationStatus{
		ID:           id,
		PatientID:    doc.PatientID,
		MessageCount: int(doc.Seq),
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}, nil
}

// Close closes the Firestore client.
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
