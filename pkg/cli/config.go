package cli

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-kurata/intake/pkg/model"
	"github.com/m-kurata/intake/pkg/repository"
	"github.com/m-kurata/intake/pkg/service/ai"
	"github.com/m-kurata/intake/pkg/usecase/intake"
	"github.com/m-kurata/intake/pkg/usecase/note"
)

// config holds flag-bound configuration values shared across commands.
type config struct {
	// Conversation store
	store             string
	sqlitePath        string
	firestoreProject  string
	firestoreDatabase string

	// Notes
	notesDir string

	// Dialogue
	maxTurns int64

	// Generation provider
	aiProvider   string
	aiAPIKey     string
	aiModel      string
	aiBaseURL    string
	aiAPIVersion string
}

// storeFlags selects and configures the conversation store backend.
func storeFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "store",
			Usage:       "Conversation store backend (memory, sqlite, firestore)",
			Value:       "memory",
			Sources:     cli.EnvVars("INTAKE_STORE"),
			Destination: &cfg.store,
		},
		&cli.StringFlag{
			Name:        "sqlite-path",
			Usage:       "Path to the SQLite database file",
			Value:       "./intake.db",
			Sources:     cli.EnvVars("INTAKE_SQLITE_PATH"),
			Destination: &cfg.sqlitePath,
		},
		&cli.StringFlag{
			Name:        "firestore-project",
			Usage:       "Google Cloud project ID for the Firestore store",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.firestoreProject,
		},
		&cli.StringFlag{
			Name:        "firestore-database",
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.firestoreDatabase,
		},
	}
}

// noteFlags configures local note storage.
func noteFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "notes-dir",
			Usage:       "Directory for locally saved notes",
			Value:       "notes",
			Sources:     cli.EnvVars("INTAKE_NOTES_DIR"),
			Destination: &cfg.notesDir,
		},
	}
}

// dialogueFlags configures the intake planner.
func dialogueFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "max-turns",
			Usage:       "Maximum assistant turns before the dialogue concludes",
			Value:       10,
			Sources:     cli.EnvVars("INTAKE_MAX_TURNS"),
			Destination: &cfg.maxTurns,
		},
	}
}

// aiFlags configures the generation provider. They share environment
// variable names with the server so one .env works for both.
func aiFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "ai-provider",
			Usage:       "Generation provider (mock, openai, azure_openai, litellm, gemini)",
			Value:       "mock",
			Sources:     cli.EnvVars("AI_PROVIDER"),
			Destination: &cfg.aiProvider,
		},
		&cli.StringFlag{
			Name:        "ai-api-key",
			Usage:       "API key for the generation provider",
			Sources:     cli.EnvVars("AI_API_KEY"),
			Destination: &cfg.aiAPIKey,
		},
		&cli.StringFlag{
			Name:        "ai-model",
			Usage:       "Model name or Azure deployment name",
			Value:       "gpt-4o-mini",
			Sources:     cli.EnvVars("AI_MODEL"),
			Destination: &cfg.aiModel,
		},
		&cli.StringFlag{
			Name:        "ai-api-base",
			Usage:       "Base URL for the provider API",
			Sources:     cli.EnvVars("AI_API_BASE"),
			Destination: &cfg.aiBaseURL,
		},
		&cli.StringFlag{
			Name:        "azure-api-version",
			Usage:       "Azure OpenAI API version",
			Value:       ai.DefaultAzureAPIVersion,
			Sources:     cli.EnvVars("AZURE_OPENAI_API_VERSION"),
			Destination: &cfg.aiAPIVersion,
		},
	}
}

// newStore creates the configured conversation store.
func (cfg *config) newStore(ctx context.Context) (repository.ConversationStore, error) {
	switch cfg.store {
	case "", "memory":
		return repository.NewMemory(), nil

	case "sqlite":
		store, err := repository.NewSQLite(cfg.sqlitePath)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to open sqlite store")
		}
		return store, nil

	case "firestore":
		if cfg.firestoreProject == "" {
			return nil, goerr.New("firestore-project is required for the firestore store")
		}
		store, err := repository.NewFirestore(ctx, cfg.firestoreProject, cfg.firestoreDatabase)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to open firestore store")
		}
		return store, nil

	default:
		return nil, goerr.New("unknown store backend", goerr.V("store", cfg.store))
	}
}

// aiSource yields the flag-bound generation configuration.
func (cfg *config) aiSource() ai.ConfigSource {
	return ai.StaticSource(ai.Config{
		Provider:   model.ProviderKind(cfg.aiProvider),
		APIKey:     cfg.aiAPIKey,
		Model:      cfg.aiModel,
		BaseURL:    cfg.aiBaseURL,
		APIVersion: cfg.aiAPIVersion,
		Timeout:    60 * time.Second,
	})
}

// newIntake wires the intake usecase from the configured store and
// generation client.
func (cfg *config) newIntake(store repository.ConversationStore, gen *ai.Client) *intake.UseCase {
	return intake.New(store, gen,
		intake.WithPlanner(intake.NewPlanner(nil, intake.WithMaxTurns(int(cfg.maxTurns)))))
}

// newNotes wires the note generator and save service.
func (cfg *config) newNotes(store repository.ConversationStore, gen *ai.Client) (*note.Generator, *note.SaveService) {
	saver := note.NewSaveService(cfg.notesDir)
	return note.NewGenerator(store, gen, saver), saver
}
