package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

func simulateCmd() *cli.Command {
	var realtime bool

	return &cli.Command{
		Name:  "simulate",
		Usage: "Record synthetic continuous data, TTL events and spikes",
		Flags: append(append(recorderFlags(),
			&cli.BoolFlag{
				Name:        "realtime",
				Usage:       "pace producers at the configured sample rates",
				Destination: &realtime,
			},
		), loggingFlags()...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadRunConfig(configPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			err = run(ctx, cfg, runOptions{
				log:         newLogger(),
				metricsAddr: metricsAddr,
				realtime:    realtime,
			})
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			return nil
		},
	}
}
