// Package main provides the journey operator CLI.
package main

import (
	"context"
	"os"

	"github.com/dukex/journeys/pkg/log"
	"github.com/joho/godotenv"
	cli "github.com/urfave/cli/v3"
)

func newApp() *cli.Command {
	return &cli.Command{
		Name:                  "journey",
		Usage:                 "Validate, inspect and move journey definitions",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			log.Setup(command.String("log-level"))

			return ctx, nil
		},
		Commands: []*cli.Command{
			NewValidateCommand(),
			NewGraphCommand(),
			NewAnalyticsCommand(),
			NewImportCommand(),
			NewExportCommand(),
		},
	}
}

func main() {
	_ = godotenv.Load()

	err := newApp().Run(context.Background(), os.Args)
	if err != nil {
		log.WithModule("journey-cli").Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func databaseURLFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "database-url",
		Usage:    "Database connection URL for persistence (file://... or postgres://...)",
		Required: true,
		Sources:  cli.EnvVars("DATABASE_URL"),
	}
}

func journeyIDFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "journey-id",
		Aliases:  []string{"j"},
		Usage:    "Journey ID",
		Required: true,
	}
}
