package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/journeys/pkg/definition"
	"github.com/dukex/journeys/pkg/validation"
	"github.com/urfave/cli/v3"
)

var errInvalidJourney = errors.New("journey definition is invalid")

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Aliases:   []string{"v"},
		Usage:     "Validate a journey definition file (YAML or JSON)",
		ArgsUsage: "<file>",
		Action: func(_ context.Context, command *cli.Command) error {
			path := command.Args().First()
			if path == "" {
				return errors.New("a journey definition file is required")
			}

			journey, err := definition.LoadFile(path)
			if err != nil {
				return err
			}

			out := command.Root().Writer
			errs := validation.Validate(journey)

			if errs.OK() {
				_, _ = fmt.Fprintf(out, "✅ %s (%s) is valid: %d nodes\n", journey.Name, path, len(journey.Nodes))

				return nil
			}

			_, _ = fmt.Fprintf(out, "❌ %s (%s) has %d errors:\n", journey.Name, path, len(errs))

			for _, fieldErr := range errs {
				_, _ = fmt.Fprintf(out, "  %s [%s]: %s\n", fieldErr.Field, fieldErr.Code, fieldErr.Message)
			}

			return errInvalidJourney
		},
	}
}
