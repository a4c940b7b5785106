package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/m-mizutani/goerr/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/m-kurata/intake/pkg/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	patient_id TEXT NOT NULL,
	metadata   TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversations_patient ON conversations(patient_id);

CREATE TABLE IF NOT EXISTS messages (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL REFERENCES conversations(id),
	role            TEXT NOT NULL,
	text            TEXT NOT NULL,
	created_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);
`

// SQLiteStore is a ConversationStore backed by a local SQLite file.
// Message order is the AUTOINCREMENT insertion order; appends run in
// immediate transactions so concurrent writers serialize on the
// database lock.
type SQLiteStore struct {
	conn *sql.DB
}

// NewSQLite opens (or creates) the database and applies the schema.
func NewSQLite(path string) (*SQLiteStore, error) {
	// _txlock=immediate takes the write lock at BeginTx, so a
	// transaction that reads before writing waits on the busy timeout
	// instead of failing when another writer committed in between.
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open sqlite database", goerr.V("path", path))
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, goerr.Wrap(err, "failed to ping sqlite database", goerr.V("path", path))
	}
	if _, err := conn.Exec(sqliteSchema); err != nil {
		conn.Close()
		return nil, goerr.Wrap(err, "failed to apply schema")
	}
	return &SQLiteStore{conn: conn}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, patientID string, metadata map[string]any) (*model.Conversation, error) {
	if patientID == "" {
		return nil, goerr.New("patient ID is required")
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode metadata")
	}

	now := time.Now().UTC()
	conv := model.Conversation{
		ID:        model.NewConversationID(),
		PatientID: patientID,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO conversations (id, patient_id, metadata, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		string(conv.ID), conv.PatientID, string(meta), conv.CreatedAt, conv.UpdatedAt,
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to insert conversation", goerr.V("patient_id", patientID))
	}
	return &conv, nil
}

func (s *SQLiteStore) Append(ctx context.Context, id model.ConversationID, msg model.Message) (*model.Message, error) {
	if err := msg.Role.Validate(); err != nil {
		return nil, err
	}
	if msg.Role == model.RolePatient && msg.Text == "" {
		return nil, goerr.Wrap(model.ErrEmptyMessage, "append rejected", goerr.V("conversation_id", id))
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations WHERE id = ?`, string(id)).Scan(&exists)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to check conversation", goerr.V("conversation_id", id))
	}
	if exists == 0 {
		return nil, goerr.Wrap(model.ErrConversationNotFound, "append failed", goerr.V("conversation_id", id))
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, role, text, created_at) VALUES (?, ?, ?, ?)`,
		string(id), string(msg.Role), msg.Text, msg.CreatedAt,
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to insert message", goerr.V("conversation_id", id))
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`, msg.CreatedAt, string(id),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to touch conversation", goerr.V("conversation_id", id))
	}

	if err := tx.Commit(); err != nil {
		return nil, goerr.Wrap(err, "failed to commit append")
	}

	stored := msg
	return &stored, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id model.ConversationID) (*model.Conversation, error) {
	var (
		conv model.Conversation
		meta string
	)
	err := s.conn.QueryRowContext(ctx,
		`SELECT id, patient_id, metadata, created_at, updated_at FROM conversations WHERE id = ?`,
		string(id),
	).Scan(&conv.ID, &conv.PatientID, &meta, &conv.CreatedAt, &conv.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, goerr.Wrap(model.ErrConversationNotFound, "get failed", goerr.V("conversation_id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query conversation", goerr.V("conversation_id", id))
	}
	if err := json.Unmarshal([]byte(meta), &conv.Metadata); err != nil {
		return nil, goerr.Wrap(err, "failed to decode metadata", goerr.V("conversation_id", id))
	}

	rows, err := s.conn.QueryContext(ctx,
		`SELECT role, text, created_at FROM messages WHERE conversation_id = ? ORDER BY id ASC`,
		string(id),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query messages", goerr.V("conversation_id", id))
	}
	defer rows.Close()

	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.Role, &m.Text, &m.CreatedAt); err != nil {
			return nil, goerr.Wrap(err, "failed to scan message")
		}
		conv.Messages = append(conv.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate messages")
	}
	return &conv, nil
}

func (s *SQLiteStore) Status(ctx context.Context, id model.ConversationID) (*model.ConversationStatus, error) {
	var st model.ConversationStatus
	err := s.conn.QueryRowContext(ctx,
		`SELECT c.id, c.patient_id, c.created_at, c.updated_at,
			(SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id)
		 FROM conversations c WHERE c.id = ?`,
		string(id),
	).Scan(&st.ID, &st.PatientID, &st.CreatedAt, &st.UpdatedAt, &st.MessageCount)
	if err == sql.ErrNoRows {
		return nil, goerr.Wrap(model.ErrConversationNotFound, "status failed", goerr.V("conversation_id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query status", goerr.V("conversation_id", id))
	}
	return &st, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}
