package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func RootApp() *cli.App {
	return &cli.App{
		Name:  "redgram",
		Usage: "Forward matching subreddit posts to Telegram subscribers",
		Description: `A bridge between a subreddit's new-post feed and a Telegram bot.

		Redgram polls the subreddit's new listing, filters posts against a
		configured keyword set and forwards every match (title plus link) to
		all subscribed chats. Chats subscribe and unsubscribe themselves by
		sending /subscribe and /unsubscribe to the bot.

		Flags can generally be set via environment variables, e.g.:

		--subreddit => SUBREDDIT=mechmarket
		--keywords => KEYWORDS=wts,keycap
		`,
		Commands: []*cli.Command{
			serveCmd(),
			migrateCmd(),
			rollbackCmd(),
			subscribersCmd(),
			broadcastCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return ctx.App.Run([]string{"", "help"})
		},
	}
}

func Execute() {
	if err := RootApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
