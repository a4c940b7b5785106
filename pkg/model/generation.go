package model

// TaskKind selects what the generation layer should produce.
type TaskKind string

const (
	TaskFollowUp  TaskKind = "follow_up"
	TaskSummarize TaskKind = "summarize"
)

// ProviderKind identifies a generation provider. ProviderMock never
// touches the network and is the deterministic fallback path.
type ProviderKind string

const (
	ProviderMock        ProviderKind = "mock"
	ProviderOpenAI      ProviderKind = "openai"
	ProviderAzureOpenAI ProviderKind = "azure_openai"
	ProviderLiteLLM     ProviderKind = "litellm"
	ProviderGemini      ProviderKind = "gemini"
)

// DomainID identifies one intake topic in the domain catalog.
type DomainID string

// Turn is one role-tagged entry of a generation request payload.
type Turn struct {
	Role    Role
	Content string
}

// GenerationRequest is the ephemeral input to the generation layer. It
// carries the full role-tagged transcript plus planner context so the
// provider (or the fallback templates) can phrase output that does not
// repeat ground already covered.
type GenerationRequest struct {
	Task           TaskKind
	Turns          []Turn
	TargetDomain   DomainID
	CoveredDomains []DomainID
	ConversationID ConversationID
	PatientID      string
	NoteTitle      string
}

// FailureKind is a provider-agnostic classification of a generation
// failure.
type FailureKind string

const (
	FailureUnreachable       FailureKind = "unreachable"
	FailureUnauthorized      FailureKind = "unauthorized"
	FailureRateLimited       FailureKind = "rate_limited"
	FailureMalformedResponse FailureKind = "malformed_response"
)

// GenerationFailure describes why the external provider path did not
// produce text. It is diagnostic: callers always receive fallback text
// alongside it and must not treat it as a hard error.
type GenerationFailure struct {
	Kind     FailureKind  `json:"kind"`
	Provider ProviderKind `json:"provider"`
	Message  string       `json:"message"`
}

func (f *GenerationFailure) Error() string {
	return string(f.Provider) + ": " + string(f.Kind) + ": " + f.Message
}

// GenerationResult is the outcome of one generation call. Text is never
// empty: when the external path is skipped or fails, it carries the
// deterministic fallback output and Failure records the degradation.
type GenerationResult struct {
	Text     string             `json:"text"`
	Provider ProviderKind       `json:"provider"`
	Failure  *GenerationFailure `json:"failure,omitempty"`
}

// Degraded reports whether the result came from the fallback path after
// an external provider failure.
func (r *GenerationResult) Degraded() bool {
	return r.Failure != nil
}
