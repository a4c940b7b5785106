package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/m-kurata/intake/pkg/model"
	"github.com/m-kurata/intake/pkg/service/ai"
)

func noteCommand() *cli.Command {
	var (
		cfg            config
		conversationID string
		title          string
		filename       string
		save           bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "conversation-id",
			Aliases:     []string{"id"},
			Usage:       "Conversation to summarize",
			Destination: &conversationID,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "title",
			Usage:       "Note title (defaults to one derived from the patient ID)",
			Destination: &title,
		},
		&cli.StringFlag{
			Name:        "filename",
			Usage:       "Filename for the saved note (defaults to one derived from the conversation ID)",
			Destination: &filename,
		},
		&cli.BoolFlag{
			Name:        "save",
			Aliases:     []string{"s"},
			Usage:       "Save the note to the notes directory",
			Destination: &save,
		},
	}
	flags = append(flags, storeFlags(&cfg)...)
	flags = append(flags, noteFlags(&cfg)...)
	flags = append(flags, aiFlags(&cfg)...)

	return &cli.Command{
		Name:  "note",
		Usage: "Generate an intake note for a conversation",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			store, err := cfg.newStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			notes, _ := cfg.newNotes(store, ai.New(cfg.aiSource(), nil))
			id := model.ConversationID(conversationID)

			if save {
				n, result, err := notes.GenerateAndSave(ctx, id, title, filename)
				if err != nil {
					return err
				}
				if n.Failure != nil {
					fmt.Fprintf(c.Root().Writer, "(degraded: %s)\n", n.Failure.Error())
				}
				fmt.Fprintf(c.Root().Writer, "Saved %s (%d bytes)\n", result.Path, result.BytesWritten)
				return nil
			}

			n, err := notes.Generate(ctx, id, title)
			if err != nil {
				return err
			}
			if n.Failure != nil {
				fmt.Fprintf(c.Root().Writer, "(degraded: %s)\n", n.Failure.Error())
			}
			fmt.Fprintf(c.Root().Writer, "%s\n\n%s\n", n.Title, n.Body)
			return nil
		},
	}
}
