// Package ai implements the generation layer: an external language
// model when one is configured and reachable, a deterministic
// rule-based generator otherwise.
package ai

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"net"
	"net/url"
	"strings"
	"text/template"
	"time"

	"github.com/m-mizutani/goerr/v2"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/m-kurata/intake/pkg/adapter"
	"github.com/m-kurata/intake/pkg/catalog"
	"github.com/m-kurata/intake/pkg/model"
	"github.com/m-kurata/intake/pkg/utils/logging"
)

//go:embed prompt/*.md
var promptFS embed.FS

var (
	followUpPromptTmpl  = template.Must(template.New("follow_up.md").ParseFS(promptFS, "prompt/follow_up.md"))
	summarizePromptTmpl = template.Must(template.New("summarize.md").ParseFS(promptFS, "prompt/summarize.md"))
)

const defaultTimeout = 60 * time.Second

// Client produces follow-up questions and dialogue summaries. Provider
// resolution happens per call: the configuration source is consulted on
// every Generate so credential and provider changes apply immediately.
type Client struct {
	source   ConfigSource
	catalog  *catalog.Catalog
	fallback *Fallback
}

// New creates a generation client. A nil source defaults to reading the
// process environment on every call.
func New(source ConfigSource, c *catalog.Catalog) *Client {
	if source == nil {
		source = EnvConfig
	}
	if c == nil {
		c = catalog.Default()
	}
	return &Client{
		source:   source,
		catalog:  c,
		fallback: NewFallback(c),
	}
}

// builder constructs a provider adapter for one call, or explains why
// the external path cannot be attempted (missing credentials). A flat
// table keyed by provider kind; no provider hierarchy.
type builder func(ctx context.Context, cfg Config) (adapter.ChatModel, *model.GenerationFailure)

var builders = map[model.ProviderKind]builder{
	model.ProviderOpenAI: func(_ context.Context, cfg Config) (adapter.ChatModel, *model.GenerationFailure) {
		if cfg.APIKey == "" {
			return nil, missingCredential(model.ProviderOpenAI, "AI_API_KEY is required for the openai provider")
		}
		return adapter.NewOpenAI(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	},
	model.ProviderAzureOpenAI: func(_ context.Context, cfg Config) (adapter.ChatModel, *model.GenerationFailure) {
		if cfg.APIKey == "" {
			return nil, missingCredential(model.ProviderAzureOpenAI, "AI_API_KEY is required for the azure_openai provider")
		}
		if cfg.BaseURL == "" {
			return nil, missingCredential(model.ProviderAzureOpenAI, "AI_API_BASE (Azure endpoint) is required for the azure_openai provider")
		}
		return adapter.NewAzureOpenAI(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.APIVersion), nil
	},
	model.ProviderLiteLLM: func(_ context.Context, cfg Config) (adapter.ChatModel, *model.GenerationFailure) {
		if cfg.APIKey == "" {
			return nil, missingCredential(model.ProviderLiteLLM, "AI_API_KEY is required for the litellm provider")
		}
		return adapter.NewLiteLLM(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	},
	model.ProviderGemini: func(ctx context.Context, cfg Config) (adapter.ChatModel, *model.GenerationFailure) {
		if cfg.APIKey == "" {
			return nil, missingCredential(model.ProviderGemini, "AI_API_KEY is required for the gemini provider")
		}
		chat, err := adapter.NewGemini(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, &model.GenerationFailure{
				Kind:     model.FailureUnreachable,
				Provider: model.ProviderGemini,
				Message:  err.Error(),
			}
		}
		return chat, nil
	},
}

// Generate produces text for the request. The returned result always
// carries non-empty text: when the external provider path is skipped or
// fails, the deterministic fallback output is returned with a Failure
// diagnostic attached. The only hard errors are malformed requests.
func (x *Client) Generate(ctx context.Context, req *model.GenerationRequest) (*model.GenerationResult, error) {
	if req == nil {
		return nil, goerr.Wrap(model.ErrInvalidRequest, "request is nil")
	}
	if req.Task != model.TaskFollowUp && req.Task != model.TaskSummarize {
		return nil, goerr.Wrap(model.ErrInvalidRequest, "unknown task kind", goerr.V("task", req.Task))
	}

	cfg := x.source()
	if cfg.Provider == "" || cfg.Provider == model.ProviderMock {
		return &model.GenerationResult{
			Text:     x.fallbackText(req),
			Provider: model.ProviderMock,
		}, nil
	}

	build, ok := builders[cfg.Provider]
	if !ok {
		return x.degraded(ctx, req, &model.GenerationFailure{
			Kind:     model.FailureUnreachable,
			Provider: cfg.Provider,
			Message:  "unknown provider kind",
		}), nil
	}

	chat, failure := build(ctx, cfg)
	if failure != nil {
		return x.degraded(ctx, req, failure), nil
	}

	system, err := x.systemPrompt(req)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	text, err := chat.Complete(callCtx, system, req.Turns)
	if err != nil {
		return x.degraded(ctx, req, classify(cfg.Provider, err)), nil
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return x.degraded(ctx, req, &model.GenerationFailure{
			Kind:     model.FailureMalformedResponse,
			Provider: cfg.Provider,
			Message:  "provider returned empty text",
		}), nil
	}

	return &model.GenerationResult{Text: text, Provider: cfg.Provider}, nil
}

func (x *Client) fallbackText(req *model.GenerationRequest) string {
	if req.Task == model.TaskSummarize {
		return x.fallback.Summarize(req)
	}
	return x.fallback.FollowUp(req)
}

// degraded returns the fallback text annotated with the failure so
// operators can see degraded-mode operation while callers proceed.
func (x *Client) degraded(ctx context.Context, req *model.GenerationRequest, failure *model.GenerationFailure) *model.GenerationResult {
	logging.From(ctx).Warn("generation degraded to fallback",
		"provider", failure.Provider,
		"kind", failure.Kind,
		"message", failure.Message,
	)
	return &model.GenerationResult{
		Text:     x.fallbackText(req),
		Provider: model.ProviderMock,
		Failure:  failure,
	}
}

func (x *Client) systemPrompt(req *model.GenerationRequest) (string, error) {
	var (
		buf  bytes.Buffer
		tmpl *template.Template
		data map[string]string
	)

	switch req.Task {
	case model.TaskSummarize:
		tmpl = summarizePromptTmpl
		data = map[string]string{"PatientID": req.PatientID}
	default:
		tmpl = followUpPromptTmpl
		data = map[string]string{
			"TargetLabel":   x.domainLabel(req.TargetDomain),
			"CoveredLabels": x.domainLabels(req.CoveredDomains),
		}
	}

	if err := tmpl.Execute(&buf, data); err != nil {
		return "", goerr.Wrap(err, "failed to execute prompt template", goerr.V("task", req.Task))
	}
	return buf.String(), nil
}

func (x *Client) domainLabel(id model.DomainID) string {
	if d, ok := x.catalog.Lookup(id); ok {
		return d.Label
	}
	return ""
}

func (x *Client) domainLabels(ids []model.DomainID) string {
	var labels []string
	for _, id := range ids {
		if d, ok := x.catalog.Lookup(id); ok {
			labels = append(labels, d.Label)
		}
	}
	return strings.Join(labels, ", ")
}

func missingCredential(provider model.ProviderKind, msg string) *model.GenerationFailure {
	return &model.GenerationFailure{
		Kind:     model.FailureUnauthorized,
		Provider: provider,
		Message:  msg,
	}
}

// classify normalizes provider-specific errors into the shared failure
// taxonomy.
func classify(provider model.ProviderKind, err error) *model.GenerationFailure {
	failure := &model.GenerationFailure{
		Kind:     model.FailureUnreachable,
		Provider: provider,
		Message:  err.Error(),
	}

	if errors.Is(err, adapter.ErrEmptyCompletion) {
		failure.Kind = model.FailureMalformedResponse
		return failure
	}
	if errors.Is(err, context.DeadlineExceeded) {
		failure.Kind = model.FailureUnreachable
		return failure
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		failure.Kind = kindFromStatus(apiErr.HTTPStatusCode)
		return failure
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		failure.Kind = kindFromStatus(reqErr.HTTPStatusCode)
		return failure
	}
	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) {
		failure.Kind = kindFromStatus(genaiErr.Code)
		return failure
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		failure.Kind = model.FailureUnreachable
		return failure
	}

	return failure
}

func kindFromStatus(code int) model.FailureKind {
	switch {
	case code == 401 || code == 403:
		return model.FailureUnauthorized
	case code == 429:
		return model.FailureRateLimited
	case code >= 500 || code == 0:
		return model.FailureUnreachable
	default:
		return model.FailureMalformedResponse
	}
}
