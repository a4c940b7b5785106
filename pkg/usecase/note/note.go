// Package note generates clinical intake notes from conversations and
// saves them to local storage.
package note

import (
	"context"
	"fmt"
	"time"

	"github.com/m-kurata/intake/pkg/catalog"
	"github.com/m-kurata/intake/pkg/model"
	"github.com/m-kurata/intake/pkg/repository"
	"github.com/m-kurata/intake/pkg/utils/logging"
)

// GenerationClient produces the note body. The result always carries
// usable text, degrading to a rule-based summary on provider failure.
type GenerationClient interface {
	Generate(ctx context.Context, req *model.GenerationRequest) (*model.GenerationResult, error)
}

// Generator builds intake notes from stored conversations.
type Generator struct {
	store   repository.ConversationStore
	gen     GenerationClient
	catalog *catalog.Catalog
	saver   *SaveService
}

func NewGenerator(store repository.ConversationStore, gen GenerationClient, saver *SaveService) *Generator {
	return &Generator{
		store:   store,
		gen:     gen,
		catalog: catalog.Default(),
		saver:   saver,
	}
}

// Generate summarizes a conversation into a note. The body is never
// empty: provider failures degrade to the rule-based summary, recorded
// on the note as a diagnostic rather than an error.
func (x *Generator) Generate(ctx context.Context, id model.ConversationID, title string) (*model.Note, error) {
	conv, err := x.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if title == "" {
		title = fmt.Sprintf("Intake Note for Patient %s", conv.PatientID)
	}

	covered := x.catalog.CoveredIDs(x.catalog.Coverage(conv.PatientMessages()))
	result, err := x.gen.Generate(ctx, &model.GenerationRequest{
		Task:           model.TaskSummarize,
		Turns:          noteTurns(conv),
		CoveredDomains: covered,
		ConversationID: conv.ID,
		PatientID:      conv.PatientID,
		NoteTitle:      title,
	})
	if err != nil {
		return nil, err
	}

	if result.Degraded() {
		logging.From(ctx).Warn("note generated in degraded mode",
			"conversation_id", id,
			"failure_kind", result.Failure.Kind,
		)
	}

	return &model.Note{
		ConversationID: conv.ID,
		Title:          title,
		Body:           result.Text,
		GeneratedAt:    time.Now(),
		Failure:        result.Failure,
	}, nil
}

// GenerateAndSave generates a note and writes it to local storage in
// one step. An empty filename defaults to one derived from the
// conversation ID.
func (x *Generator) GenerateAndSave(ctx context.Context, id model.ConversationID, title, filename string) (*model.Note, *model.SaveResult, error) {
	n, err := x.Generate(ctx, id, title)
	if err != nil {
		return nil, nil, err
	}

	if filename == "" {
		filename = fmt.Sprintf("intake_note_%s.txt", id)
	}

	saved, err := x.saver.Save(ctx, filename, n.Title+"\n\n"+n.Body)
	if err != nil {
		return n, nil, err
	}
	return n, saved, nil
}

func noteTurns(conv *model.Conversation) []model.Turn {
	out := make([]model.Turn, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		out = append(out, model.Turn{Role: m.Role, Content: m.Text})
	}
	return out
}
