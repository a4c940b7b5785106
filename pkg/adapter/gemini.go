package adapter

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"

	"github.com/m-kurata/intake/pkg/model"
)

// GeminiClient calls the Gemini API through the genai SDK.
type GeminiClient struct {
	client          *genai.Client
	generativeModel string
}

// NewGemini creates a Gemini-backed chat model using an API key.
func NewGemini(ctx context.Context, apiKey, modelName string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}

	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	return &GeminiClient{
		client:          client,
		generativeModel: modelName,
	}, nil
}

// Complete sends the transcript to Gemini and returns the first text
// part of the first candidate.
func (g *GeminiClient) Complete(ctx context.Context, system string, turns []model.Turn) (string, error) {
	contents := geminiContents(turns)

	config := &genai.GenerateContentConfig{}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, "")
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.generativeModel, contents, config)
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate content", goerr.V("model", g.generativeModel))
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", goerr.Wrap(ErrEmptyCompletion, "invalid response structure from gemini")
	}

	var parts []string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			parts = append(parts, part.Text)
		}
	}
	if len(parts) == 0 {
		return "", goerr.Wrap(ErrEmptyCompletion, "no text parts in gemini response")
	}
	return strings.Join(parts, "\n"), nil
}

// geminiContents maps the intake transcript onto genai contents.
// Patient turns become user contents and assistant turns model contents.
func geminiContents(turns []model.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := genai.Role(genai.RoleUser)
		if t.Role == model.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Content, role))
	}
	return contents
}
