package cmd

import (
	"errors"
	"fmt"

	"github.com/cqroot/prompt"
	"github.com/urfave/cli/v2"

	"redgram/db"
	"redgram/telegram"
)

func broadcastCmd() *cli.Command {
	return &cli.Command{
		Name:  "broadcast",
		Usage: "Send a one-off message to all subscribers",
		Description: `Interactively composes a message and sends it to every
subscribed chat. Useful for maintenance announcements.`,
		Flags: append(databaseFlags(),
			&cli.StringFlag{
				Name:     "telegram-token",
				Usage:    "Telegram bot token",
				EnvVars:  []string{"TELEGRAM_TOKEN"},
				Required: true,
			},
		),
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
			if len(chatIDs) == 0 {
				return errors.New("no subscribers to broadcast to")
			}

			text, err := prompt.New().Ask("Message:").Input("")
			if err != nil {
				return err
			}
			if text == "" {
				return errors.New("empty message")
			}

			confirm, err := prompt.New().
				Ask(fmt.Sprintf("Send to %d subscriber(s)?", len(chatIDs))).
				Choose([]string{"Yes", "No"})
			if err != nil {
				return err
			}
			if confirm != "Yes" {
				fmt.Println("Aborted")
				return nil
			}

			chat, err := telegram.New(ctx.String("telegram-token"))
			if err != nil {
				return err
			}

			sent := 0
			for _, chatID := range chatIDs {
				if err := chat.SendMessage(chatID, text); err != nil {
					fmt.Printf("send to %d failed: %v\n", chatID, err)
					continue
				}
				sent++
			}

			fmt.Printf("Sent to %d/%d subscriber(s)\n", sent, len(chatIDs))
			return nil
		},
	}
}
