package intake_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/m-kurata/intake/pkg/catalog"
	"github.com/m-kurata/intake/pkg/model"
	"github.com/m-kurata/intake/pkg/repository"
	"github.com/m-kurata/intake/pkg/service/ai"
	"github.com/m-kurata/intake/pkg/usecase/intake"
)

type recordingGen struct {
	client   *ai.Client
	requests []*model.GenerationRequest
}

func newRecordingGen() *recordingGen {
	return &recordingGen{
		client: ai.New(ai.StaticSource(ai.Config{Provider: model.ProviderMock}), nil),
	}
}

func (x *recordingGen) Generate(ctx context.Context, req *model.GenerationRequest) (*model.GenerationResult, error) {
	x.requests = append(x.requests, req)
	return x.client.Generate(ctx, req)
}

func TestStartWithOpeningMessage(t *testing.T) {
	ctx := context.Background()
	gen := newRecordingGen()
	uc := intake.New(repository.NewMemory(), gen)

	out, err := uc.Start(ctx, "patient-001", "I have a terrible headache", nil)
	gt.NoError(t, err)
	gt.True(t, out.Created)
	gt.NotNil(t, out.Conversation)
	gt.Equal(t, out.Conversation.PatientID, "patient-001")

	// Opening message recorded, follow-up generated and persisted.
	gt.Equal(t, out.Decision.Kind, model.DecisionAskDomain)
	gt.Equal(t, out.Decision.Domain, catalog.Duration)
	gt.True(t, out.AssistantSaved)
	gt.A(t, out.Conversation.Messages).Length(2)
	gt.Equal(t, out.Conversation.Messages[0].Role, model.RolePatient)
	gt.Equal(t, out.Conversation.Messages[1].Role, model.RoleAssistant)
	gt.Equal(t, out.Conversation.Messages[1].Text, out.Decision.Question)
}

func TestStartWithoutOpeningMessage(t *testing.T) {
	ctx := context.Background()
	uc := intake.New(repository.NewMemory(), newRecordingGen())

	out, err := uc.Start(ctx, "patient-001", "", nil)
	gt.NoError(t, err)
	gt.True(t, out.Created)
	gt.V(t, out.Decision).Nil()
	gt.A(t, out.Conversation.Messages).Length(0)
}

func TestSendRejectsEmptyText(t *testing.T) {
	ctx := context.Background()
	uc := intake.New(repository.NewMemory(), newRecordingGen())

	out, err := uc.Start(ctx, "patient-001", "", nil)
	gt.NoError(t, err)

	_, err = uc.Send(ctx, &intake.SendInput{
		ConversationID: out.Conversation.ID,
		Text:           "   ",
	})
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrEmptyMessage))
}

func TestSendUnknownConversationFailsWithoutPatientID(t *testing.T) {
	ctx := context.Background()
	uc := intake.New(repository.NewMemory(), newRecordingGen())

	_, err := uc.Send(ctx, &intake.SendInput{
		ConversationID: "no-such-conversation",
		Text:           "hello",
	})
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrConversationNotFound))
}

func TestSendUnknownConversationRecoversWithPatientID(t *testing.T) {
	ctx := context.Background()
	uc := intake.New(repository.NewMemory(), newRecordingGen())

	out, err := uc.Send(ctx, &intake.SendInput{
		ConversationID: "no-such-conversation",
		PatientID:      "patient-002",
		Text:           "my stomach hurts",
	})
	gt.NoError(t, err)

	gt.True(t, out.Created)
	gt.Equal(t, out.Conversation.PatientID, "patient-002")
	gt.NotNil(t, out.Decision)
}

func TestSendProgressesThroughDomains(t *testing.T) {
	ctx := context.Background()
	gen := newRecordingGen()
	uc := intake.New(repository.NewMemory(), gen)

	out, err := uc.Start(ctx, "patient-001", "I have a bad cough", nil)
	gt.NoError(t, err)
	id := out.Conversation.ID

	answers := []struct {
		text string
		next model.DomainID
	}{
		{"it started about a week ago", catalog.Severity},
		{"it's pretty severe at night", catalog.AssociatedSymptoms},
		{"I also get chills and night sweats", catalog.MedicalHistory},
	}
	for _, a := range answers {
		out, err = uc.Send(ctx, &intake.SendInput{ConversationID: id, Text: a.text})
		gt.NoError(t, err)
		gt.Equal(t, out.Decision.Kind, model.DecisionAskDomain)
		gt.Equal(t, out.Decision.Domain, a.next)
		gt.False(t, out.Created)
	}

	// Each patient turn earns exactly one assistant turn.
	conv, err := uc.Get(ctx, id)
	gt.NoError(t, err)
	gt.A(t, conv.Messages).Length(8)
}

func TestSendConcludesWithSummary(t *testing.T) {
	ctx := context.Background()
	gen := newRecordingGen()
	uc := intake.New(repository.NewMemory(), gen)

	out, err := uc.Start(ctx, "patient-001",
		"I've had a severe headache since two days ago, along with chills", nil)
	gt.NoError(t, err)
	id := out.Conversation.ID

	_, err = uc.Send(ctx, &intake.SendInput{ConversationID: id, Text: "I was diagnosed with asthma years back"})
	gt.NoError(t, err)
	_, err = uc.Send(ctx, &intake.SendInput{ConversationID: id, Text: "just paracetamol when it gets bad"})
	gt.NoError(t, err)
	out, err = uc.Send(ctx, &intake.SendInput{ConversationID: id, Text: "no allergies that I know of"})
	gt.NoError(t, err)

	gt.Equal(t, out.Decision.Kind, model.DecisionConclude)
	gt.S(t, out.Decision.Summary).Contains("Patient Intake Summary")
	gt.True(t, out.AssistantSaved)

	last := gen.requests[len(gen.requests)-1]
	gt.Equal(t, last.Task, model.TaskSummarize)
	gt.A(t, last.CoveredDomains).Length(7)
}

func TestTurnCapConcludes(t *testing.T) {
	ctx := context.Background()
	uc := intake.New(repository.NewMemory(), newRecordingGen(),
		intake.WithPlanner(intake.NewPlanner(nil, intake.WithMaxTurns(2))))

	out, err := uc.Start(ctx, "patient-001", "hello", nil)
	gt.NoError(t, err)
	id := out.Conversation.ID
	gt.Equal(t, out.Decision.Kind, model.DecisionAskDomain)

	out, err = uc.Send(ctx, &intake.SendInput{ConversationID: id, Text: "hello again"})
	gt.NoError(t, err)
	gt.Equal(t, out.Decision.Kind, model.DecisionAskDomain)

	// Two assistant turns recorded: the cap forces a conclusion now.
	out, err = uc.Send(ctx, &intake.SendInput{ConversationID: id, Text: "still here"})
	gt.NoError(t, err)
	gt.Equal(t, out.Decision.Kind, model.DecisionConclude)
	gt.NotEqual(t, out.Decision.Summary, "")
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	uc := intake.New(repository.NewMemory(), newRecordingGen())

	out, err := uc.Start(ctx, "patient-001", "I feel dizzy", nil)
	gt.NoError(t, err)

	status, err := uc.Status(ctx, out.Conversation.ID)
	gt.NoError(t, err)
	gt.Equal(t, status.PatientID, "patient-001")
	gt.Equal(t, status.MessageCount, 2)
}

func TestAppendMessagesBatch(t *testing.T) {
	ctx := context.Background()
	uc := intake.New(repository.NewMemory(), newRecordingGen())

	out, err := uc.Start(ctx, "patient-001", "", nil)
	gt.NoError(t, err)
	id := out.Conversation.ID

	n, err := uc.AppendMessages(ctx, id, []model.Message{
		{Role: model.RolePatient, Text: "I have a sore throat"},
		{Role: model.RoleAssistant, Text: "How long has it been sore?"},
		{Role: model.RolePatient, Text: "since monday"},
	})
	gt.NoError(t, err)
	gt.Equal(t, n, 3)

	conv, err := uc.Get(ctx, id)
	gt.NoError(t, err)
	gt.A(t, conv.Messages).Length(3)
	gt.Equal(t, conv.Messages[2].Text, "since monday")
}

func TestAppendMessagesRejectsInvalidRole(t *testing.T) {
	ctx := context.Background()
	uc := intake.New(repository.NewMemory(), newRecordingGen())

	out, err := uc.Start(ctx, "patient-001", "", nil)
	gt.NoError(t, err)

	n, err := uc.AppendMessages(ctx, out.Conversation.ID, []model.Message{
		{Role: model.RolePatient, Text: "hello"},
		{Role: model.Role("doctor"), Text: "hi"},
	})
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrInvalidRole))
	gt.Equal(t, n, 1)

	conv, err := uc.Get(ctx, out.Conversation.ID)
	gt.NoError(t, err)
	gt.A(t, conv.Messages).Length(1)
}
