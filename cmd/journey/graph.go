package main

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dukex/journeys/pkg/definition"
	"github.com/dukex/journeys/pkg/graph"
	"github.com/urfave/cli/v3"
)

func NewGraphCommand() *cli.Command {
	return &cli.Command{
		Name:      "graph",
		Aliases:   []string{"g"},
		Usage:     "Print the editor graph of a journey definition file as JSON",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "layout",
				Usage: "Lay the nodes out top to bottom before printing",
			},
		},
		Action: func(_ context.Context, command *cli.Command) error {
			path := command.Args().First()
			if path == "" {
				return errors.New("a journey definition file is required")
			}

			journey, err := definition.LoadFile(path)
			if err != nil {
				return err
			}

			result, err := graph.ToGraph(journey)
			if err != nil {
				return err
			}

			if command.Bool("layout") {
				graph.Layout(result)
			}

			encoder := json.NewEncoder(command.Root().Writer)
			encoder.SetIndent("", "  ")

			return encoder.Encode(result)
		},
	}
}
