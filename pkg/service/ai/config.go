package ai

import (
	"os"
	"strings"
	"time"

	"github.com/m-kurata/intake/pkg/model"
)

// DefaultAzureAPIVersion is used for Azure OpenAI deployments when
// AZURE_OPENAI_API_VERSION is not set.
const DefaultAzureAPIVersion = "2024-02-15-preview"

// Config holds the provider selection and credentials for one
// generation call.
type Config struct {
	Provider   model.ProviderKind
	APIKey     string
	Model      string
	BaseURL    string
	APIVersion string
	Timeout    time.Duration
}

// ConfigSource yields the current configuration. The client calls it on
// every generation so rotated credentials or a changed provider take
// effect without a restart; implementations must not cache stale state.
type ConfigSource func() Config

// EnvConfig reads the provider configuration from the environment:
// AI_PROVIDER, AI_API_KEY, AI_MODEL, AI_API_BASE, and
// AZURE_OPENAI_API_VERSION for Azure deployments.
func EnvConfig() Config {
	provider := strings.ToLower(strings.TrimSpace(os.Getenv("AI_PROVIDER")))
	if provider == "" || provider == "none" {
		provider = string(model.ProviderMock)
	}

	modelName := os.Getenv("AI_MODEL")
	if modelName == "" {
		modelName = "gpt-4o-mini"
	}

	apiVersion := os.Getenv("AZURE_OPENAI_API_VERSION")
	if apiVersion == "" {
		apiVersion = DefaultAzureAPIVersion
	}

	return Config{
		Provider:   model.ProviderKind(provider),
		APIKey:     os.Getenv("AI_API_KEY"),
		Model:      modelName,
		BaseURL:    os.Getenv("AI_API_BASE"),
		APIVersion: apiVersion,
	}
}

// StaticSource returns a source that always yields cfg. Useful for
// tests and for CLI runs where the configuration is fixed per process.
func StaticSource(cfg Config) ConfigSource {
	return func() Config { return cfg }
}
