package cmd

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"redgram/bot"
	"redgram/bridge"
	"redgram/config"
	"redgram/db"
	"redgram/filter"
	"redgram/poller"
	"redgram/reddit"
	"redgram/registry"
	"redgram/telegram"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the Reddit to Telegram bridge",
		Description: `Starts the bridge loop.

Polls the subreddit's new listing on an interval and long-polls the Telegram
bot for inbound commands. Matching posts are forwarded to every subscribed
chat; cursors are persisted after each successful cycle so a restart resumes
where the previous run stopped.`,
		Flags: append(databaseFlags(),
			&cli.StringFlag{
				Name:     "reddit-client-id",
				Usage:    "Reddit script application client id",
				EnvVars:  []string{"REDDIT_CLIENT_ID"},
				Required: true,
			},
			&cli.StringFlag{
				Name:     "reddit-client-secret",
				Usage:    "Reddit script application client secret",
				EnvVars:  []string{"REDDIT_CLIENT_SECRET"},
				Required: true,
			},
			&cli.StringFlag{
				Name:     "reddit-username",
				Usage:    "Reddit account username",
				EnvVars:  []string{"REDDIT_USERNAME"},
				Required: true,
			},
			&cli.StringFlag{
				Name:     "reddit-password",
				Usage:    "Reddit account password",
				EnvVars:  []string{"REDDIT_PASSWORD"},
				Required: true,
			},
			&cli.StringFlag{
				Name:     "telegram-token",
				Usage:    "Telegram bot token",
				EnvVars:  []string{"TELEGRAM_TOKEN"},
				Required: true,
			},
			&cli.StringFlag{
				Name:     "subreddit",
				Usage:    "Subreddit to monitor, without the r/ prefix",
				EnvVars:  []string{"SUBREDDIT"},
				Required: true,
			},
			&cli.StringFlag{
				Name:     "keywords",
				Usage:    "Comma-separated keywords to match against post titles and bodies",
				EnvVars:  []string{"KEYWORDS"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to an optional TOML file with extra keyword groups",
				EnvVars: []string{"REDGRAM_CONFIG"},
			},
			&cli.DurationFlag{
				Name:    "poll-interval",
				Usage:   "Delay between feed poll cycles",
				EnvVars: []string{"REDGRAM_POLL_INTERVAL"},
				Value:   30 * time.Second,
			},
			&cli.IntFlag{
				Name:    "batch-limit",
				Usage:   "Maximum posts fetched per poll cycle",
				EnvVars: []string{"REDGRAM_BATCH_LIMIT"},
				Value:   20,
			},
			&cli.DurationFlag{
				Name:    "retry-initial-delay",
				Usage:   "Initial backoff delay after a failed feed fetch",
				EnvVars: []string{"REDGRAM_RETRY_INITIAL_DELAY"},
				Value:   time.Second,
			},
			&cli.Float64Flag{
				Name:    "retry-multiplier",
				Usage:   "Backoff delay multiplier",
				EnvVars: []string{"REDGRAM_RETRY_MULTIPLIER"},
				Value:   1.5,
			},
			&cli.Uint64Flag{
				Name:    "retry-max-attempts",
				Usage:   "Feed fetch retries per cycle before the tick is abandoned",
				EnvVars: []string{"REDGRAM_RETRY_MAX_ATTEMPTS"},
				Value:   3,
			},
			&cli.StringFlag{
				Name:    "metrics-address",
				Usage:   "Address to serve Prometheus metrics on, e.g. :9090. Disabled when empty",
				EnvVars: []string{"REDGRAM_METRICS_ADDRESS"},
			},
		),
		Action: func(ctx *cli.Context) error {
			keywords := filter.Keywords(ctx.String("keywords"))
			if path := ctx.String("config"); path != "" {
				cfg, err := config.LoadConfig(path)
				if err != nil {
					return err
				}
				keywords = filter.Keywords(ctx.String("keywords"), cfg.AllKeywords())
			}
			if len(keywords) == 0 {
				return fmt.Errorf("no keywords configured")
			}

			subreddit := ctx.String("subreddit")

			log.WithFields(log.Fields{
				"subreddit": subreddit,
				"keywords":  keywords,
			}).Info("Starting redgram")

			store, err := db.Open(ctx.String("database-url"))
			if err != nil {
				return err
			}
			defer store.Close()

			userAgent := fmt.Sprintf("redgram/0.1 by /u/%s", ctx.String("reddit-username"))
			source, err := reddit.ClientFromCredentials(ctx.Context, userAgent, reddit.Credentials{
				ClientID:     ctx.String("reddit-client-id"),
				ClientSecret: ctx.String("reddit-client-secret"),
				Username:     ctx.String("reddit-username"),
				Password:     ctx.String("reddit-password"),
			})
			if err != nil {
				return err
			}

			chat, err := telegram.New(ctx.String("telegram-token"))
			if err != nil {
				return err
			}

			offset, marker, err := bridge.LoadCursors(ctx.Context, store)
			if err != nil {
				return err
			}

			reg, err := registry.Load(ctx.Context, store)
			if err != nil {
				return err
			}

			p := poller.New(source, poller.Config{
				Subreddit:    subreddit,
				Keywords:     keywords,
				Limit:        ctx.Int("batch-limit"),
				PollInterval: ctx.Duration("poll-interval"),
				Retry: poller.RetryPolicy{
					InitialDelay: ctx.Duration("retry-initial-delay"),
					Multiplier:   ctx.Float64("retry-multiplier"),
					MaxAttempts:  ctx.Uint64("retry-max-attempts"),
				},
			}, marker)

			handler := bot.NewHandler(chat, chat, reg, subreddit)

			if address := ctx.String("metrics-address"); address != "" {
				go func() {
					log.Infof("Serving metrics on %s", address)
					mux := http.NewServeMux()
					mux.Handle("/metrics", promhttp.Handler())
					if err := http.ListenAndServe(address, mux); err != nil {
						log.Errorf("Metrics server stopped: %v", err)
					}
				}()
			}

			// Graceful shutdown
			runCtx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			bridge.New(store, reg, p, handler, chat, offset).Run(runCtx)
			return nil
		},
	}
}
