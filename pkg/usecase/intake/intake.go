// Package intake orchestrates the patient intake dialogue: conversation
// persistence, turn planning and follow-up generation.
package intake

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/m-kurata/intake/pkg/catalog"
	"github.com/m-kurata/intake/pkg/model"
	"github.com/m-kurata/intake/pkg/repository"
	"github.com/m-kurata/intake/pkg/utils/logging"
)

// GenerationClient produces follow-up questions and summaries. The
// returned result always carries usable text, degrading to a rule-based
// fallback instead of failing.
type GenerationClient interface {
	Generate(ctx context.Context, req *model.GenerationRequest) (*model.GenerationResult, error)
}

// UseCase drives intake conversations.
type UseCase struct {
	store   repository.ConversationStore
	gen     GenerationClient
	planner *Planner
}

type Option func(*UseCase)

// WithPlanner replaces the default planner, mainly to adjust the turn cap.
func WithPlanner(p *Planner) Option {
	return func(x *UseCase) {
		x.planner = p
	}
}

func New(store repository.ConversationStore, gen GenerationClient, opts ...Option) *UseCase {
	x := &UseCase{
		store:   store,
		gen:     gen,
		planner: NewPlanner(catalog.Default()),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Start creates a new conversation and, when the patient supplied an
// opening message, records it and returns the first follow-up.
func (x *UseCase) Start(ctx context.Context, patientID, openingText string, metadata map[string]any) (*SendOutput, error) {
	conv, err := x.store.Create(ctx, patientID, metadata)
	if err != nil {
		return nil, err
	}
	logging.From(ctx).Info("conversation started",
		"conversation_id", conv.ID,
		"patient_id", patientID,
	)

	out := &SendOutput{Conversation: conv, Created: true}
	if strings.TrimSpace(openingText) == "" {
		return out, nil
	}
	return x.advance(ctx, conv.ID, openingText, out)
}

// SendInput is one patient message addressed to a conversation. When
// ConversationID is empty or unknown and PatientID is set, a fresh
// conversation is created for the patient instead of failing.
type SendInput struct {
	ConversationID model.ConversationID
	PatientID      string
	Text           string
}

// SendOutput is the result of recording a patient message: the updated
// conversation, the planner's decision and how its text was produced.
type SendOutput struct {
	Conversation   *model.Conversation
	Created        bool
	Decision       *model.IntakeDecision
	AssistantSaved bool
}

// Send appends a patient message and returns the next assistant turn.
// Generation failures degrade to fallback text and never fail the send.
func (x *UseCase) Send(ctx context.Context, input *SendInput) (*SendOutput, error) {
	if strings.TrimSpace(input.Text) == "" {
		return nil, goerr.Wrap(model.ErrEmptyMessage, "send requires patient text",
			goerr.V("conversation_id", input.ConversationID))
	}

	out := &SendOutput{}
	id := input.ConversationID

	if id == "" {
		if input.PatientID == "" {
			return nil, goerr.Wrap(model.ErrConversationNotFound, "no conversation ID and no patient ID to start one")
		}
		conv, err := x.store.Create(ctx, input.PatientID, nil)
		if err != nil {
			return nil, err
		}
		id = conv.ID
		out.Created = true
	}

	result, err := x.advance(ctx, id, input.Text, out)
	if err == nil || !errors.Is(err, model.ErrConversationNotFound) {
		return result, err
	}

	// Unknown ID: recover by starting a fresh conversation when the
	// caller identified the patient.
	if out.Created || input.PatientID == "" {
		return nil, err
	}
	conv, cerr := x.store.Create(ctx, input.PatientID, nil)
	if cerr != nil {
		return nil, cerr
	}
	logging.From(ctx).Info("unknown conversation ID, started a new one",
		"requested_id", input.ConversationID,
		"conversation_id", conv.ID,
	)
	out.Created = true
	return x.advance(ctx, conv.ID, input.Text, out)
}

// advance appends the patient message, plans the next step and records
// the assistant turn.
func (x *UseCase) advance(ctx context.Context, id model.ConversationID, text string, out *SendOutput) (*SendOutput, error) {
	if _, err := x.store.Append(ctx, id, model.Message{
		Role:      model.RolePatient,
		Text:      text,
		CreatedAt: time.Now(),
	}); err != nil {
		return nil, err
	}
	return x.replan(ctx, id, out)
}

// replan loads the conversation, plans the next step and records the
// assistant turn when its text is non-empty.
func (x *UseCase) replan(ctx context.Context, id model.ConversationID, out *SendOutput) (*SendOutput, error) {
	conv, err := x.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	out.Conversation = conv

	decision, err := x.PlanNext(ctx, conv)
	if err != nil {
		return nil, err
	}
	out.Decision = decision

	if reply := decision.Text(); reply != "" {
		if _, err := x.store.Append(ctx, id, model.Message{
			Role:      model.RoleAssistant,
			Text:      reply,
			CreatedAt: time.Now(),
		}); err != nil {
			// The patient message is already durable; report the reply as
			// unsaved instead of failing the whole send.
			logging.From(ctx).Warn("failed to persist assistant turn",
				"conversation_id", id, "error", err)
			return out, nil
		}
		out.AssistantSaved = true
		conv, err = x.store.Get(ctx, id)
		if err == nil {
			out.Conversation = conv
		}
	}
	return out, nil
}

// AppendMessages records a batch of already-composed messages without
// triggering a planning step. Used to import transcript fragments, for
// example from a client that buffered turns while offline.
func (x *UseCase) AppendMessages(ctx context.Context, id model.ConversationID, msgs []model.Message) (int, error) {
	for i, m := range msgs {
		if err := m.Role.Validate(); err != nil {
			return i, goerr.Wrap(err, "message batch has invalid role",
				goerr.V("conversation_id", id), goerr.V("index", i))
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now()
		}
		if _, err := x.store.Append(ctx, id, m); err != nil {
			return i, err
		}
	}
	return len(msgs), nil
}

// PlanNext decides the next dialogue step for a conversation and renders
// its text through the generation layer.
func (x *UseCase) PlanNext(ctx context.Context, conv *model.Conversation) (*model.IntakeDecision, error) {
	decision := x.planner.Plan(conv)
	covered := x.planner.Covered(conv)

	req := &model.GenerationRequest{
		Turns:          turns(conv),
		TargetDomain:   decision.Domain,
		CoveredDomains: covered,
		ConversationID: conv.ID,
		PatientID:      conv.PatientID,
	}
	switch decision.Kind {
	case model.DecisionConclude:
		req.Task = model.TaskSummarize
	default:
		req.Task = model.TaskFollowUp
	}

	result, err := x.gen.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	decision.Generation = result
	if decision.Kind == model.DecisionConclude {
		decision.Summary = result.Text
	} else {
		decision.Question = result.Text
	}
	return decision, nil
}

// Get returns a conversation with its full message sequence.
func (x *UseCase) Get(ctx context.Context, id model.ConversationID) (*model.Conversation, error) {
	return x.store.Get(ctx, id)
}

// Status returns a lightweight view of a conversation.
func (x *UseCase) Status(ctx context.Context, id model.ConversationID) (*model.ConversationStatus, error) {
	return x.store.Status(ctx, id)
}

func turns(conv *model.Conversation) []model.Turn {
	out := make([]model.Turn, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		out = append(out, model.Turn{Role: m.Role, Content: m.Text})
	}
	return out
}
