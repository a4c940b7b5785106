package adapter

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	openai "github.com/sashabaranov/go-openai"

	"github.com/m-kurata/intake/pkg/model"
)

// OpenAIClient calls an OpenAI-compatible chat-completion endpoint.
// It backs the openai, azure_openai, and litellm provider kinds, which
// all speak the same wire format.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates a client for the OpenAI API. baseURL may be empty
// to use the public endpoint.
func NewOpenAI(apiKey, baseURL, modelName string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  modelName,
	}
}

// NewAzureOpenAI creates a client for an Azure OpenAI deployment.
// endpoint is the resource base URL and deployment carries the
// deployment name in the model slot.
func NewAzureOpenAI(apiKey, endpoint, deployment, apiVersion string) *OpenAIClient {
	cfg := openai.DefaultAzureConfig(apiKey, endpoint)
	if apiVersion != "" {
		cfg.APIVersion = apiVersion
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  deployment,
	}
}

// NewLiteLLM creates a client for a LiteLLM proxy, which exposes the
// OpenAI wire format on a local base URL.
func NewLiteLLM(apiKey, baseURL, modelName string) *OpenAIClient {
	if baseURL == "" {
		baseURL = "http://localhost:4000/v1"
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  modelName,
	}
}

// Complete sends the system instruction and transcript to the provider
// and returns the first completion text.
func (c *OpenAIClient) Complete(ctx context.Context, system string, turns []model.Turn) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(turns)+1)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	for _, t := range turns {
		role := openai.ChatMessageRoleUser
		if t.Role == model.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: t.Content,
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0.4,
	})
	if err != nil {
		return "", goerr.Wrap(err, "chat completion request failed", goerr.V("model", c.model))
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", goerr.Wrap(ErrEmptyCompletion, "no choices in completion", goerr.V("model", c.model))
	}
	return resp.Choices[0].Message.Content, nil
}
