package main

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/dukex/journeys/pkg/cmd"
	"github.com/dukex/journeys/pkg/services"
	"github.com/jonboulle/clockwork"
	"github.com/urfave/cli/v3"
)

func NewAnalyticsCommand() *cli.Command {
	return &cli.Command{
		Name:    "analytics",
		Aliases: []string{"a"},
		Usage:   "Recompute and print the analytics of a stored journey",
		Flags: []cli.Flag{
			databaseURLFlag(),
			journeyIDFlag(),
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := slog.With("module", "journey-cli", "action", "analytics")

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			analytics := services.NewAnalytics(persistence, clockwork.NewRealClock(), logger)

			result, err := analytics.Compute(ctx, command.String("journey-id"))
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(command.Root().Writer)
			encoder.SetIndent("", "  ")

			return encoder.Encode(result)
		},
	}
}
