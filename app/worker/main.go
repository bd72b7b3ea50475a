package main

import (
	"os"

	"mimic/domain"
	"mimic/pkg/logger"

	"github.com/urfave/cli/v2"
)

const exitDataError = 3

func main() {
	w := &worker{}

	app := &cli.App{
		Name:  "worker",
		Usage: "run one partition of the log-odds pipeline",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "override the log level",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Before: w.init,
		Commands: []*cli.Command{
			{
				Name:  "log-odds",
				Usage: "log-odds discrete choice jobs",
				Subcommands: []*cli.Command{
					{
						Name:      "build-records",
						Usage:     "collapse one partition into a record file",
						ArgsUsage: "<json payload>",
						Action:    w.buildRecords,
					},
					{
						Name:      "inspect-records",
						Usage:     "download a record file and summarize it",
						ArgsUsage: "<json payload>",
						Action:    w.inspectRecords,
					},
					{
						Name:      "build-contrast",
						Usage:     "resample one partition of individuals into binary decisions",
						ArgsUsage: "<json payload>",
						Action:    w.buildContrast,
					},
					{
						Name:      "infer",
						Usage:     "score one partition with a trained run",
						ArgsUsage: "<json payload>",
						Action:    w.infer,
					},
					{
						Name:      "setup-experiment",
						Usage:     "validate and store an experiment config",
						ArgsUsage: "<json payload>",
						Action:    w.setupExperiment,
					},
					{
						Name:  "create-example-data",
						Usage: "write the two-alternative example table",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "database", Required: true},
							&cli.StringFlag{Name: "table", Required: true},
							&cli.IntFlag{Name: "individuals", Value: 10},
							&cli.IntFlag{Name: "decisions", Value: 10},
							&cli.Int64Flag{Name: "seed", Value: 0},
						},
						Action: w.createExampleData,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		// data errors repeat on retry; a distinct exit code lets the queue's
		// retry strategy skip them
		if domain.IsDataError(err) {
			logger.Error("Partition rejected", "kind", domain.ErrorKind(err), "error", err)
			os.Exit(exitDataError)
		}
		logger.Fatal("Worker failed", "error", err)
	}
}
