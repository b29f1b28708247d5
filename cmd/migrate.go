package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"redgram/db"
)

func databaseFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "PostgreSQL connection string",
			EnvVars:  []string{"DATABASE_URL"},
			Required: true,
		},
	}
}

func migrateCmd() *cli.Command {
	return &cli.Command{
		Name:        "migrate",
		Usage:       "Run database migrations",
		Description: `Runs database migrations on the configured database. Creates the settings and subscribers tables.`,
		Flags:       databaseFlags(),
		Action: func(ctx *cli.Context) error {
			fmt.Println("Running migrations...")
			return db.Migrate(ctx.String("database-url"))
		},
	}
}

func rollbackCmd() *cli.Command {
	return &cli.Command{
		Name:        "rollback",
		Usage:       "Rollback database migration",
		Description: `Rolls back the last database migration`,
		Flags:       databaseFlags(),
		Action: func(ctx *cli.Context) error {
			fmt.Println("Rolling back last migration...")
			return db.Rollback(ctx.String("database-url"))
		},
	}
}
