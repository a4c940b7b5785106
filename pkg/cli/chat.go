package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-kurata/intake/pkg/model"
	"github.com/m-kurata/intake/pkg/service/ai"
	"github.com/m-kurata/intake/pkg/usecase/intake"
)

func chatCommand() *cli.Command {
	var (
		cfg       config
		patientID string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "patient-id",
			Aliases:     []string{"p"},
			Usage:       "Patient ID for the conversation",
			Sources:     cli.EnvVars("INTAKE_PATIENT_ID"),
			Destination: &patientID,
			Required:    true,
		},
	}
	flags = append(flags, storeFlags(&cfg)...)
	flags = append(flags, noteFlags(&cfg)...)
	flags = append(flags, dialogueFlags(&cfg)...)
	flags = append(flags, aiFlags(&cfg)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Run an interactive intake dialogue",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			store, err := cfg.newStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			gen := ai.New(cfg.aiSource(), nil)
			uc := cfg.newIntake(store, gen)

			out, err := uc.Start(ctx, patientID, "", nil)
			if err != nil {
				return goerr.Wrap(err, "failed to start conversation")
			}
			id := out.Conversation.ID

			rl, err := readline.New("you> ")
			if err != nil {
				return goerr.Wrap(err, "failed to initialize prompt")
			}
			defer rl.Close()

			fmt.Fprintf(c.Root().Writer, "Intake session %s started. Type 'exit' to quit.\n", id)
			fmt.Fprintf(c.Root().Writer, "intake> Hello! What brings you in today?\n")

			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return goerr.Wrap(err, "failed to read input")
				}

				text := strings.TrimSpace(line)
				if text == "exit" {
					break
				}
				if text == "" {
					continue
				}

				sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
				sp.Suffix = " thinking..."
				sp.Start()
				reply, err := uc.Send(ctx, &intake.SendInput{
					ConversationID: id,
					Text:           text,
				})
				sp.Stop()
				if err != nil {
					return goerr.Wrap(err, "failed to send message")
				}

				if reply.Decision != nil && reply.Decision.Generation != nil {
					if failure := reply.Decision.Generation.Failure; failure != nil {
						fmt.Fprintf(c.Root().Writer, "(degraded: %s)\n", failure.Error())
					}
				}

				fmt.Fprintf(c.Root().Writer, "intake> %s\n", reply.Decision.Text())
				if reply.Decision.Kind == model.DecisionConclude {
					break
				}
			}

			fmt.Fprintf(c.Root().Writer, "\nIntake session completed: %s\n", id)
			return nil
		},
	}
}
