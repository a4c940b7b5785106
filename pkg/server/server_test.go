package server_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/m-kurata/intake/pkg/model"
	"github.com/m-kurata/intake/pkg/repository"
	"github.com/m-kurata/intake/pkg/server"
	"github.com/m-kurata/intake/pkg/service/ai"
	"github.com/m-kurata/intake/pkg/usecase/intake"
	"github.com/m-kurata/intake/pkg/usecase/note"
)

func testRouter(t *testing.T, cfg ai.Config) (http.Handler, string) {
	t.Helper()

	store := repository.NewMemory()
	t.Cleanup(func() { store.Close() })

	gen := ai.New(ai.StaticSource(cfg), nil)
	saver := note.NewSaveService(t.TempDir())
	uc := intake.New(store, gen)
	notes := note.NewGenerator(store, gen, saver)

	return server.NewRouter(uc, notes, saver, ai.StaticSource(cfg)), saver.Dir()
}

func postJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	gt.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func getPath(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func startConversation(t *testing.T, router http.Handler, message string) server.SendResponse {
	t.Helper()
	w := postJSON(t, router, "/api/conversations/start", map[string]any{
		"patient_id": "patient-001",
		"message":    message,
	})
	gt.Equal(t, w.Code, http.StatusCreated)

	var resp server.SendResponse
	gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	router, _ := testRouter(t, ai.Config{Provider: model.ProviderMock})

	w := getPath(t, router, "/health")
	gt.Equal(t, w.Code, http.StatusOK)
	gt.S(t, w.Body.String()).Contains(`"ok"`)
}

func TestStartConversation(t *testing.T) {
	router, _ := testRouter(t, ai.Config{Provider: model.ProviderMock})

	resp := startConversation(t, router, "I have a pounding headache")
	gt.True(t, resp.Created)
	gt.NotEqual(t, resp.ConversationID, model.ConversationID(""))
	gt.NotNil(t, resp.AIFollowUp)
	gt.True(t, resp.AIFollowUp.Saved)
	gt.NotEqual(t, resp.AIFollowUp.Question, "")
	gt.V(t, resp.AIError).Nil()
}

func TestStartRequiresPatientID(t *testing.T) {
	router, _ := testRouter(t, ai.Config{Provider: model.ProviderMock})

	w := postJSON(t, router, "/api/conversations/start", map[string]any{
		"message": "hello",
	})
	gt.Equal(t, w.Code, http.StatusBadRequest)
}

func TestSendMessage(t *testing.T) {
	router, _ := testRouter(t, ai.Config{Provider: model.ProviderMock})
	resp := startConversation(t, router, "I have a pounding headache")

	w := postJSON(t, router, "/api/conversations/send", map[string]any{
		"conversation_id": resp.ConversationID,
		"message":         "it started two days ago",
	})
	gt.Equal(t, w.Code, http.StatusOK)

	var sent server.SendResponse
	gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &sent))
	gt.Equal(t, sent.ConversationID, resp.ConversationID)
	gt.False(t, sent.Created)
	gt.S(t, sent.AIFollowUp.Question).Contains("scale")
}

func TestSendEmptyMessageRejected(t *testing.T) {
	router, _ := testRouter(t, ai.Config{Provider: model.ProviderMock})
	resp := startConversation(t, router, "hello")

	w := postJSON(t, router, "/api/conversations/send", map[string]any{
		"conversation_id": resp.ConversationID,
		"message":         "",
	})
	gt.Equal(t, w.Code, http.StatusBadRequest)
}

func TestSendUnknownConversation(t *testing.T) {
	router, _ := testRouter(t, ai.Config{Provider: model.ProviderMock})

	// Without a patient ID the unknown conversation is an error.
	w := postJSON(t, router, "/api/conversations/send", map[string]any{
		"conversation_id": "missing",
		"message":         "hello",
	})
	gt.Equal(t, w.Code, http.StatusNotFound)

	// With a patient ID a fresh conversation is started instead.
	w = postJSON(t, router, "/api/conversations/send", map[string]any{
		"conversation_id": "missing",
		"patient_id":      "patient-002",
		"message":         "hello",
	})
	gt.Equal(t, w.Code, http.StatusOK)

	var resp server.SendResponse
	gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	gt.True(t, resp.Created)
	gt.NotEqual(t, resp.ConversationID, model.ConversationID("missing"))
}

func TestContinueConversation(t *testing.T) {
	router, _ := testRouter(t, ai.Config{Provider: model.ProviderMock})
	resp := startConversation(t, router, "my knee hurts")

	w := postJSON(t, router, "/api/conversations/continue", map[string]any{
		"conversation_id": resp.ConversationID,
		"messages": []map[string]string{
			{"role": "assistant", "text": "How long has your knee hurt?"},
			{"role": "patient", "text": "about two weeks"},
		},
	})
	gt.Equal(t, w.Code, http.StatusOK)

	var cont server.ContinueResponse
	gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &cont))
	gt.Equal(t, cont.Appended, 2)

	w = getPath(t, router, "/api/conversations/"+string(resp.ConversationID))
	gt.Equal(t, w.Code, http.StatusOK)
	var conv model.Conversation
	gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &conv))
	gt.A(t, conv.Messages).Length(4)

	// Unknown conversation and invalid roles are rejected.
	w = postJSON(t, router, "/api/conversations/continue", map[string]any{
		"conversation_id": "missing",
		"messages":        []map[string]string{{"role": "patient", "text": "hi"}},
	})
	gt.Equal(t, w.Code, http.StatusNotFound)

	w = postJSON(t, router, "/api/conversations/continue", map[string]any{
		"conversation_id": resp.ConversationID,
		"messages":        []map[string]string{{"role": "doctor", "text": "hi"}},
	})
	gt.Equal(t, w.Code, http.StatusBadRequest)
}

func TestConversationStatusAndTranscript(t *testing.T) {
	router, _ := testRouter(t, ai.Config{Provider: model.ProviderMock})
	resp := startConversation(t, router, "I feel dizzy")

	w := getPath(t, router, "/api/conversations/"+string(resp.ConversationID)+"/status")
	gt.Equal(t, w.Code, http.StatusOK)

	var status model.ConversationStatus
	gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	gt.Equal(t, status.PatientID, "patient-001")
	gt.Equal(t, status.MessageCount, 2)

	w = getPath(t, router, "/api/conversations/"+string(resp.ConversationID))
	gt.Equal(t, w.Code, http.StatusOK)

	var conv model.Conversation
	gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &conv))
	gt.A(t, conv.Messages).Length(2)

	w = getPath(t, router, "/api/conversations/missing/status")
	gt.Equal(t, w.Code, http.StatusNotFound)
}

func TestGenerateNote(t *testing.T) {
	router, _ := testRouter(t, ai.Config{Provider: model.ProviderMock})
	resp := startConversation(t, router, "I have a rash on my arm")

	w := postJSON(t, router, "/api/notes/generate", map[string]any{
		"conversation_id": resp.ConversationID,
	})
	gt.Equal(t, w.Code, http.StatusOK)

	var noteResp server.NoteResponse
	gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &noteResp))
	gt.S(t, noteResp.Note.Title).Contains("patient-001")
	gt.S(t, noteResp.Note.Body).Contains("rash")
	gt.V(t, noteResp.AIError).Nil()
}

func TestSaveLocal(t *testing.T) {
	router, dir := testRouter(t, ai.Config{Provider: model.ProviderMock})

	w := postJSON(t, router, "/api/notes/save-local", map[string]any{
		"filename": "note",
		"text":     "summary text",
	})
	gt.Equal(t, w.Code, http.StatusCreated)

	var result model.SaveResult
	gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	gt.Equal(t, result.Filename, "note.txt")

	data, err := os.ReadFile(filepath.Join(dir, "note.txt"))
	gt.NoError(t, err)
	gt.Equal(t, string(data), "summary text")
}

func TestSaveLocalRejectsTraversal(t *testing.T) {
	router, _ := testRouter(t, ai.Config{Provider: model.ProviderMock})

	w := postJSON(t, router, "/api/notes/save-local", map[string]any{
		"filename": "../escape.txt",
		"text":     "should not land outside the notes dir",
	})
	gt.Equal(t, w.Code, http.StatusBadRequest)
}

func TestNextFollowUpDoesNotPersist(t *testing.T) {
	router, _ := testRouter(t, ai.Config{Provider: model.ProviderMock})
	resp := startConversation(t, router, "I have a cough")

	w := postJSON(t, router, "/api/ai/next-follow-up", map[string]any{
		"conversation_id": resp.ConversationID,
	})
	gt.Equal(t, w.Code, http.StatusOK)

	var preview server.SendResponse
	gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &preview))
	gt.NotEqual(t, preview.AIFollowUp.Question, "")
	gt.False(t, preview.AIFollowUp.Saved)

	// The preview left the transcript untouched.
	var status model.ConversationStatus
	w = getPath(t, router, "/api/conversations/"+string(resp.ConversationID)+"/status")
	gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	gt.Equal(t, status.MessageCount, 2)
}

func TestGenerateAndSaveSummary(t *testing.T) {
	router, dir := testRouter(t, ai.Config{Provider: model.ProviderMock})
	resp := startConversation(t, router, "severe chest pain since this morning")

	w := postJSON(t, router, "/api/ai/generate-and-save-summary", map[string]any{
		"conversation_id": resp.ConversationID,
		"filename":        "visit_summary.txt",
	})
	gt.Equal(t, w.Code, http.StatusOK)

	var noteResp server.NoteResponse
	gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &noteResp))
	gt.NotNil(t, noteResp.Saved)
	gt.True(t, noteResp.Saved.Saved)

	data, err := os.ReadFile(filepath.Join(dir, "visit_summary.txt"))
	gt.NoError(t, err)
	gt.S(t, string(data)).Contains("chest pain")
}

func TestDegradedGenerationAnnotates(t *testing.T) {
	// An openai provider without credentials cannot reach the external
	// path; the API must still answer with fallback text plus ai_error.
	router, _ := testRouter(t, ai.Config{Provider: model.ProviderOpenAI})

	resp := startConversation(t, router, "I have a headache")
	gt.NotNil(t, resp.AIFollowUp)
	gt.NotEqual(t, resp.AIFollowUp.Question, "")
	gt.NotNil(t, resp.AIError)
	gt.S(t, resp.AIError.Message).Contains("unauthorized")
	gt.A(t, resp.AIError.Hints).Longer(0)
}

func TestInvalidJSONBody(t *testing.T) {
	router, _ := testRouter(t, ai.Config{Provider: model.ProviderMock})

	req := httptest.NewRequest(http.MethodPost, "/api/conversations/start",
		bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	gt.Equal(t, w.Code, http.StatusBadRequest)
}

func TestAIHelpAndDiagnostics(t *testing.T) {
	router, _ := testRouter(t, ai.Config{
		Provider: model.ProviderOpenAI,
		Model:    "gpt-4o-mini",
		APIKey:   "sk-test",
	})

	w := getPath(t, router, "/api/ai/help")
	gt.Equal(t, w.Code, http.StatusOK)
	gt.S(t, w.Body.String()).Contains("AI_PROVIDER")
	gt.S(t, w.Body.String()).Contains("/api/ai/next-follow-up")

	w = getPath(t, router, "/api/ai/diagnostics")
	gt.Equal(t, w.Code, http.StatusOK)

	var diag struct {
		Provider  string `json:"provider"`
		Model     string `json:"model"`
		APIKeySet bool   `json:"api_key_set"`
	}
	gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &diag))
	gt.Equal(t, diag.Provider, "openai")
	gt.Equal(t, diag.Model, "gpt-4o-mini")
	gt.True(t, diag.APIKeySet)
	gt.S(t, w.Body.String()).NotContains("sk-test")
}
