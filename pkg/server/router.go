// Package server implements the intake REST API using chi.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/m-kurata/intake/pkg/service/ai"
	"github.com/m-kurata/intake/pkg/usecase/intake"
	"github.com/m-kurata/intake/pkg/usecase/note"
	"github.com/m-kurata/intake/pkg/utils/logging"
)

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(uc *intake.UseCase, notes *note.Generator, saver *note.SaveService, source ai.ConfigSource) chi.Router {
	h := NewHandler(uc, notes, saver, source)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/conversations", func(r chi.Router) {
			r.Post("/start", h.StartConversation)
			r.Post("/send", h.SendMessage)
			r.Post("/continue", h.ContinueConversation)
			r.Get("/{id}", h.GetConversation)
			r.Get("/{id}/status", h.ConversationStatus)
		})
		r.Route("/notes", func(r chi.Router) {
			r.Post("/generate", h.GenerateNote)
			r.Post("/save-local", h.SaveLocal)
		})
		r.Route("/ai", func(r chi.Router) {
			r.Get("/help", h.AIHelp)
			r.Get("/diagnostics", h.AIDiagnostics)
			r.Post("/next-follow-up", h.NextFollowUp)
			r.Post("/generate-and-save-summary", h.GenerateAndSaveSummary)
		})
	})

	return r
}

// requestLogger attaches a request-scoped logger to the context and
// logs one line per request on completion.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := logging.From(r.Context()).With(
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
		)
		ctx := logging.With(r.Context(), logger)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))

		logger.Info("request completed",
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}
