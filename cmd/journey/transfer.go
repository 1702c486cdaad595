package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/journeys/pkg/cmd"
	"github.com/dukex/journeys/pkg/definition"
	"github.com/dukex/journeys/pkg/services"
	"github.com/jonboulle/clockwork"
	"github.com/urfave/cli/v3"
)

// NewImportCommand stores a definition file as a draft journey. Workers are not notified;
// publishing through the API does that.
func NewImportCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Store a journey definition file as a draft",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			databaseURLFlag(),
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			path := command.Args().First()
			if path == "" {
				return errors.New("a journey definition file is required")
			}

			journey, err := definition.LoadFile(path)
			if err != nil {
				return err
			}

			logger := slog.With("module", "journey-cli", "action", "import")

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			created, err := services.NewJourney(persistence, nil, clockwork.NewRealClock(), logger).Create(ctx, journey)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(command.Root().Writer, "Imported %s as draft %s\n", created.Name, created.ID)

			return nil
		},
	}
}

func NewExportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write a stored journey, or one of its versions, to a YAML or JSON file",
		Flags: []cli.Flag{
			databaseURLFlag(),
			journeyIDFlag(),
			&cli.IntFlag{
				Name:  "version",
				Usage: "Export this published version instead of the current definition",
			},
			&cli.StringFlag{
				Name:     "output",
				Aliases:  []string{"o"},
				Usage:    "Destination file; the extension selects the format",
				Required: true,
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := slog.With("module", "journey-cli", "action", "export")

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			journeys := services.NewJourney(persistence, nil, clockwork.NewRealClock(), logger)
			id := command.String("journey-id")

			journey, err := journeys.FetchByID(ctx, id)
			if version := command.Int("version"); version > 0 {
				journey, err = journeys.Version(ctx, id, version)
			}

			if err != nil {
				return err
			}

			output := command.String("output")

			err = definition.WriteFile(output, journey)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(command.Root().Writer, "Exported %s v%d to %s\n", journey.Name, journey.Version, output)

			return nil
		},
	}
}
