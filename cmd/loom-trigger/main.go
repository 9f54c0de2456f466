package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/loomwork/loom/pkg/log"
)

func main() {
	dataURLFlag := &cli.StringFlag{
		Name:     "data-url",
		Usage:    "Storage URL for states, triggers, and artifacts (file://<dir> or azblob://<container>)",
		Required: true,
		Sources:  cli.EnvVars("DATA_URL"),
	}

	logLevelFlag := &cli.StringFlag{
		Name:    "log-level",
		Usage:   "Log level (debug, info, warn, error)",
		Value:   "info",
		Sources: cli.EnvVars("LOG_LEVEL"),
	}

	cmd := &cli.Command{
		Name:                  "loom-trigger",
		Usage:                 "Inject and inspect workflow triggers",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			{
				Name:    "inject",
				Aliases: []string{"i"},
				Usage:   "Drop a trigger into a workflow's inbox",
				Flags: []cli.Flag{
					dataURLFlag,
					logLevelFlag,
					&cli.StringFlag{
						Name:     "workflow-id",
						Aliases:  []string{"w"},
						Usage:    "Target workflow id",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "payload",
						Usage: "Trigger payload as a JSON object",
						Value: "{}",
					},
					&cli.StringFlag{
						Name:  "prefix",
						Usage: "Inbox prefix (defaults to inbox/<workflow-id>/)",
						Value: "",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					log.Setup(cmd.String("log-level"))

					return InjectTrigger(ctx, cmd)
				},
			},
			{
				Name:    "abandoned",
				Aliases: []string{"ls"},
				Usage:   "List abandoned triggers for a workflow",
				Flags: []cli.Flag{
					dataURLFlag,
					logLevelFlag,
					&cli.StringFlag{
						Name:     "workflow-id",
						Aliases:  []string{"w"},
						Usage:    "Target workflow id",
						Required: true,
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					log.Setup(cmd.String("log-level"))

					return ListAbandoned(ctx, cmd)
				},
			},
			{
				Name:    "requeue",
				Aliases: []string{"r"},
				Usage:   "Re-submit an abandoned trigger's payload as a fresh trigger",
				Flags: []cli.Flag{
					dataURLFlag,
					logLevelFlag,
					&cli.StringFlag{
						Name:     "workflow-id",
						Aliases:  []string{"w"},
						Usage:    "Target workflow id",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "trigger-id",
						Aliases:  []string{"t"},
						Usage:    "Abandoned trigger id",
						Required: true,
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					log.Setup(cmd.String("log-level"))

					return RequeueTrigger(ctx, cmd)
				},
			},
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
