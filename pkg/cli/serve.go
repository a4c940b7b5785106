package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	loader "github.com/m-kurata/intake/pkg/config"
	"github.com/m-kurata/intake/pkg/server"
	"github.com/m-kurata/intake/pkg/service/ai"
	"github.com/m-kurata/intake/pkg/utils/logging"
)

// serveFileConfig is the optional YAML configuration for the server.
// Values present in the file override the corresponding flags.
type serveFileConfig struct {
	Addr     string `yaml:"addr"`
	Store    string `yaml:"store"`
	SQLite   string `yaml:"sqlite_path"`
	NotesDir string `yaml:"notes_dir"`
	MaxTurns int64  `yaml:"max_turns"`
}

func (c *serveFileConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Store, validation.In("", "memory", "sqlite", "firestore")),
		validation.Field(&c.MaxTurns, validation.Min(int64(0))),
	)
}

func serveCommand() *cli.Command {
	var (
		cfg        config
		addr       string
		configPath string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP listen address",
			Value:       ":8000",
			Sources:     cli.EnvVars("INTAKE_ADDR"),
			Destination: &addr,
		},
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to a YAML config file",
			Sources:     cli.EnvVars("INTAKE_CONFIG"),
			Destination: &configPath,
		},
	}
	flags = append(flags, storeFlags(&cfg)...)
	flags = append(flags, noteFlags(&cfg)...)
	flags = append(flags, dialogueFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Run the intake HTTP API server",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if configPath != "" {
				var fileCfg serveFileConfig
				if err := loader.Load(configPath, &fileCfg); err != nil {
					return err
				}
				applyFileConfig(&cfg, &addr, &fileCfg)
			}

			store, err := cfg.newStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			// The server reads provider settings from the environment on
			// every call, so rotated credentials apply without a restart.
			gen := ai.New(ai.EnvConfig, nil)
			uc := cfg.newIntake(store, gen)
			notes, saver := cfg.newNotes(store, gen)

			httpServer := &http.Server{
				Addr:    addr,
				Handler: server.NewRouter(uc, notes, saver, ai.EnvConfig),
			}

			logger := logging.From(ctx)
			logger.Info("starting intake server",
				"addr", addr,
				"store", cfg.store,
				"notes_dir", saver.Dir(),
			)

			sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g, gCtx := errgroup.WithContext(sigCtx)

			g.Go(func() error {
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return goerr.Wrap(err, "http server failed")
				}
				return nil
			})

			g.Go(func() error {
				<-gCtx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				logger.Info("shutting down intake server")
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "graceful shutdown failed")
				}
				return nil
			})

			return g.Wait()
		},
	}
}

func applyFileConfig(cfg *config, addr *string, fileCfg *serveFileConfig) {
	if fileCfg.Addr != "" {
		*addr = fileCfg.Addr
	}
	if fileCfg.Store != "" {
		cfg.store = fileCfg.Store
	}
	if fileCfg.SQLite != "" {
		cfg.sqlitePath = fileCfg.SQLite
	}
	if fileCfg.NotesDir != "" {
		cfg.notesDir = fileCfg.NotesDir
	}
	if fileCfg.MaxTurns > 0 {
		cfg.maxTurns = fileCfg.MaxTurns
	}
}
