package main

import (
	"context"
	"os"
	"time"

	"github.com/delaneyj/readable/store"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
)

const (
	fingerprintKey = "fingerprint"
	observersKey   = "observers"
	verboseKey     = "verbose"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Str("app", "readable").Logger()

	cmd := &cli.Command{
		Name:  "readable",
		Usage: "Play scenarios against a readable cell",
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "Run a scenario file, or the built-in one, printing observer events as JSON lines",
				ArgsUsage: "[scenario.toml]",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  fingerprintKey,
						Usage: "Add an xxhash fingerprint of every published value",
					},
					&cli.IntFlag{
						Name:  observersKey,
						Usage: "Subscribe this many extra observers (o1..oN) before the steps run",
					},
					&cli.BoolFlag{
						Name:  verboseKey,
						Usage: "Log store activity",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runScenario(cmd, logger)
				},
			},
			{
				Name:  "demo",
				Usage: "Print the built-in scenario as TOML",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return defaultScenario().encode(os.Stdout)
				},
			},
		},
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logger.Fatal().Err(err).Msg("readable failed")
	}
}

func runScenario(cmd *cli.Command, logger zerolog.Logger) error {
	sc := defaultScenario()
	if path := cmd.Args().First(); path != "" {
		var err error
		if sc, err = loadScenario(path); err != nil {
			return err
		}
	}

	if err := sc.addObservers(int(cmd.Int(observersKey))); err != nil {
		return err
	}

	level := zerolog.InfoLevel
	if cmd.Bool(verboseKey) {
		level = zerolog.DebugLevel
	}
	sys := store.NewSystem(store.WithLogger(logger.Level(level)))

	ew := newEventWriter(os.Stdout, cmd.Bool(fingerprintKey))
	defer ew.release()

	start := time.Now()
	final, err := sc.run(sys, ew.write)
	if err != nil {
		return err
	}
	logger.Info().Int("value", final).Dur("took", time.Since(start)).Msg("scenario finished")
	return nil
}
