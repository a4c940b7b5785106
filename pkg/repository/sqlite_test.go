package repository_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/m-kurata/intake/pkg/model"
	"github.com/m-kurata/intake/pkg/repository"
)

func setupSQLite(t *testing.T) *repository.SQLiteStore {
	t.Helper()

	store, err := repository.NewSQLite(filepath.Join(t.TempDir(), "intake-test.db"))
	gt.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteCreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := setupSQLite(t)

	conv, err := store.Create(ctx, "patient-001", map[string]any{"source": "phone"})
	gt.NoError(t, err)

	got, err := store.Get(ctx, conv.ID)
	gt.NoError(t, err)
	gt.Equal(t, got.PatientID, "patient-001")
	gt.Equal(t, got.Metadata["source"], "phone")
	gt.A(t, got.Messages).Length(0)
}

func TestSQLiteAppendPreservesOrder(t *testing.T) {
	ctx := context.Background()
	store := setupSQLite(t)

	conv, err := store.Create(ctx, "patient-001", nil)
	gt.NoError(t, err)

	roles := []model.Role{model.RolePatient, model.RoleAssistant, model.RolePatient}
	texts := []string{"I have a headache", "How long has it lasted?", "Two days"}
	for i := range texts {
		_, err := store.Append(ctx, conv.ID, model.Message{Role: roles[i], Text: texts[i]})
		gt.NoError(t, err)
	}

	got, err := store.Get(ctx, conv.ID)
	gt.NoError(t, err)
	gt.A(t, got.Messages).Length(3)
	for i := range texts {
		gt.Equal(t, got.Messages[i].Role, roles[i])
		gt.Equal(t, got.Messages[i].Text, texts[i])
	}
}

func TestSQLiteAppendUnknownConversation(t *testing.T) {
	ctx := context.Background()
	store := setupSQLite(t)

	_, err := store.Append(ctx, "no-such-id", model.Message{
		Role: model.RolePatient,
		Text: "hello",
	})
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrConversationNotFound))
}

func TestSQLiteAppendRejectsEmptyPatientText(t *testing.T) {
	ctx := context.Background()
	store := setupSQLite(t)

	conv, err := store.Create(ctx, "patient-001", nil)
	gt.NoError(t, err)

	_, err = store.Append(ctx, conv.ID, model.Message{Role: model.RolePatient})
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrEmptyMessage))
}

func TestSQLiteStatus(t *testing.T) {
	ctx := context.Background()
	store := setupSQLite(t)

	conv, err := store.Create(ctx, "patient-001", nil)
	gt.NoError(t, err)
	_, err = store.Append(ctx, conv.ID, model.Message{Role: model.RolePatient, Text: "hi"})
	gt.NoError(t, err)
	_, err = store.Append(ctx, conv.ID, model.Message{Role: model.RoleAssistant, Text: "hello"})
	gt.NoError(t, err)

	status, err := store.Status(ctx, conv.ID)
	gt.NoError(t, err)
	gt.Equal(t, status.MessageCount, 2)

	_, err = store.Status(ctx, "missing")
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrConversationNotFound))
}

func TestSQLiteConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	store := setupSQLite(t)

	conv, err := store.Create(ctx, "patient-001", nil)
	gt.NoError(t, err)

	const writers = 16
	const perWriter = 20

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				if _, err := store.Append(ctx, conv.ID, model.Message{
					Role: model.RolePatient,
					Text: "concurrent message",
				}); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, conv.ID)
	gt.NoError(t, err)
	gt.A(t, got.Messages).Length(writers * perWriter)
}
