package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"redgram/db"
)

func subscribersCmd() *cli.Command {
	return &cli.Command{
		Name:        "subscribers",
		Usage:       "List subscribed chats",
		Description: `Prints every subscribed chat id, one per line.`,
		Flags:       databaseFlags(),
		Action: func(ctx *cli.Context) error {
			store, err := db.Open(ctx.String("database-url"))
			if err != nil {
				return err
			}
			defer store.Close()

			chatIDs, err := store.ListSubscribers(ctx.Context)
			if err != nil {
				return err
			}

			for _, chatID := range chatIDs {
				fmt.Println(chatID)
			}
			fmt.Printf("%d subscriber(s)\n", len(chatIDs))
			return nil
		},
	}
}
