package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/m-kurata/intake/pkg/model"
	"github.com/m-kurata/intake/pkg/service/ai"
	"github.com/m-kurata/intake/pkg/usecase/intake"
	"github.com/m-kurata/intake/pkg/usecase/note"
	"github.com/m-kurata/intake/pkg/utils/logging"
)

// Handler holds the API route handlers.
type Handler struct {
	intake *intake.UseCase
	notes  *note.Generator
	saver  *note.SaveService
	source ai.ConfigSource
}

func NewHandler(uc *intake.UseCase, notes *note.Generator, saver *note.SaveService, source ai.ConfigSource) *Handler {
	return &Handler{intake: uc, notes: notes, saver: saver, source: source}
}

type validator interface {
	Validate() error
}

// decode parses and validates a JSON request body. It writes the error
// response itself and reports whether the handler should proceed.
func decode(w http.ResponseWriter, r *http.Request, req validator) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, r, http.StatusBadRequest, errorBody(err.Error()))
		return false
	}
	return true
}

// writeError maps domain errors to HTTP status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrConversationNotFound):
		writeJSON(w, r, http.StatusNotFound, errorBody("conversation not found"))
	case errors.Is(err, model.ErrEmptyMessage),
		errors.Is(err, model.ErrInvalidFilename),
		errors.Is(err, model.ErrInvalidRole),
		errors.Is(err, model.ErrInvalidRequest):
		writeJSON(w, r, http.StatusBadRequest, errorBody(err.Error()))
	default:
		logging.From(r.Context()).Error("request failed", "error", err)
		writeJSON(w, r, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// StartConversation handles POST /api/conversations/start.
func (h *Handler) StartConversation(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if !decode(w, r, &req) {
		return
	}

	out, err := h.intake.Start(r.Context(), req.PatientID, req.Message, req.Metadata)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, sendResponse(out))
}

// SendMessage handles POST /api/conversations/send.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if !decode(w, r, &req) {
		return
	}

	out, err := h.intake.Send(r.Context(), &intake.SendInput{
		ConversationID: model.ConversationID(req.ConversationID),
		PatientID:      req.PatientID,
		Text:           req.Message,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sendResponse(out))
}

// ContinueConversation handles POST /api/conversations/continue. It
// appends a batch of messages to an existing conversation without a
// planning step.
func (h *Handler) ContinueConversation(w http.ResponseWriter, r *http.Request) {
	var req ContinueRequest
	if !decode(w, r, &req) {
		return
	}

	msgs := make([]model.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, model.Message{
			Role: model.Role(m.Role),
			Text: m.Text,
		})
	}

	id := model.ConversationID(req.ConversationID)
	appended, err := h.intake.AppendMessages(r.Context(), id, msgs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, ContinueResponse{
		ConversationID: id,
		Appended:       appended,
	})
}

// ConversationStatus handles GET /api/conversations/{id}/status.
func (h *Handler) ConversationStatus(w http.ResponseWriter, r *http.Request) {
	id := model.ConversationID(chi.URLParam(r, "id"))
	status, err := h.intake.Status(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, status)
}

// GetConversation handles GET /api/conversations/{id}.
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	id := model.ConversationID(chi.URLParam(r, "id"))
	conv, err := h.intake.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, conv)
}

// GenerateNote handles POST /api/notes/generate.
func (h *Handler) GenerateNote(w http.ResponseWriter, r *http.Request) {
	var req GenerateNoteRequest
	if !decode(w, r, &req) {
		return
	}

	n, err := h.notes.Generate(r.Context(), model.ConversationID(req.ConversationID), req.Title)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, NoteResponse{
		Note:    n,
		AIError: aiError(n.Failure),
	})
}

// SaveLocal handles POST /api/notes/save-local.
func (h *Handler) SaveLocal(w http.ResponseWriter, r *http.Request) {
	var req SaveLocalRequest
	if !decode(w, r, &req) {
		return
	}

	result, err := h.saver.Save(r.Context(), req.Filename, req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, result)
}

// AIHelp handles GET /api/ai/help. It documents the AI endpoints and
// the environment variables that configure them.
func (h *Handler) AIHelp(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"endpoints": map[string]string{
			"next_follow_up":            "/api/ai/next-follow-up",
			"generate_note":             "/api/notes/generate",
			"generate_and_save_summary": "/api/ai/generate-and-save-summary",
		},
		"env": map[string]string{
			"AI_PROVIDER":              "mock|openai|azure_openai|litellm|gemini",
			"AI_API_KEY":               "set when using a non-mock provider",
			"AI_MODEL":                 "model or deployment name",
			"AI_API_BASE":              "base URL override (Azure OpenAI requires it)",
			"AZURE_OPENAI_API_VERSION": "Azure API version, default " + ai.DefaultAzureAPIVersion,
		},
		"notes_dir": h.saver.Dir(),
	})
}

// AIDiagnostics handles GET /api/ai/diagnostics. It reports the
// currently resolved provider settings without exposing credentials.
func (h *Handler) AIDiagnostics(w http.ResponseWriter, r *http.Request) {
	cfg := h.source()
	writeJSON(w, r, http.StatusOK, map[string]any{
		"provider":    cfg.Provider,
		"model":       cfg.Model,
		"api_base":    cfg.BaseURL,
		"api_version": cfg.APIVersion,
		"api_key_set": cfg.APIKey != "",
	})
}

// NextFollowUp handles POST /api/ai/next-follow-up. It plans and
// renders the next turn without persisting anything.
func (h *Handler) NextFollowUp(w http.ResponseWriter, r *http.Request) {
	var req NextFollowUpRequest
	if !decode(w, r, &req) {
		return
	}

	conv, err := h.intake.Get(r.Context(), model.ConversationID(req.ConversationID))
	if err != nil {
		writeError(w, r, err)
		return
	}
	decision, err := h.intake.PlanNext(r.Context(), conv)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := SendResponse{
		ConversationID: conv.ID,
		AIFollowUp:     &FollowUp{Saved: false},
	}
	if decision.Kind == model.DecisionConclude {
		resp.AIFollowUp.Conclusion = decision.Summary
	} else {
		resp.AIFollowUp.Question = decision.Question
	}
	if decision.Generation != nil {
		resp.AIError = aiError(decision.Generation.Failure)
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// GenerateAndSaveSummary handles POST /api/ai/generate-and-save-summary.
func (h *Handler) GenerateAndSaveSummary(w http.ResponseWriter, r *http.Request) {
	var req GenerateAndSaveRequest
	if !decode(w, r, &req) {
		return
	}

	n, saved, err := h.notes.GenerateAndSave(r.Context(),
		model.ConversationID(req.ConversationID), req.Title, req.Filename)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, NoteResponse{
		Note:    n,
		Saved:   saved,
		AIError: aiError(n.Failure),
	})
}

func sendResponse(out *intake.SendOutput) SendResponse {
	resp := SendResponse{
		ConversationID: out.Conversation.ID,
		Created:        out.Created,
	}
	if out.Decision != nil {
		resp.AIFollowUp = &FollowUp{Saved: out.AssistantSaved}
		if out.Decision.Kind == model.DecisionConclude {
			resp.AIFollowUp.Conclusion = out.Decision.Summary
		} else {
			resp.AIFollowUp.Question = out.Decision.Question
		}
		if out.Decision.Generation != nil {
			resp.AIError = aiError(out.Decision.Generation.Failure)
		}
	}
	return resp
}

// aiError converts a generation failure into the degraded-mode
// annotation, with operator hints per failure kind.
func aiError(failure *model.GenerationFailure) *AIError {
	if failure == nil {
		return nil
	}
	return &AIError{
		Message: failure.Error(),
		Hints:   hintsFor(failure.Kind),
	}
}

func hintsFor(kind model.FailureKind) []string {
	switch kind {
	case model.FailureUnauthorized:
		return []string{
			"check that AI_API_KEY is set and valid",
			"for azure_openai, verify AI_API_BASE and AZURE_OPENAI_API_VERSION",
		}
	case model.FailureRateLimited:
		return []string{
			"the provider is rate limiting requests; retry after a short wait",
		}
	case model.FailureUnreachable:
		return []string{
			"check network connectivity to the provider",
			"verify AI_API_BASE points at a reachable endpoint",
		}
	case model.FailureMalformedResponse:
		return []string{
			"the provider returned an unusable response; verify AI_MODEL is valid",
		}
	default:
		return nil
	}
}
