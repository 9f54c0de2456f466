package main

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/loomwork/loom/pkg/log"
)

func main() {
	cmd := &cli.Command{
		Name:                  "loomd",
		EnableShellCompletion: true,
		Usage:                 "Run the workflow daemon: watch triggers, execute AI step sequences, commit state",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "daemon-id",
				Aliases: []string{"id"},
				Usage:   "Custom daemon ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("DAEMON_ID"),
			},
			&cli.StringFlag{
				Name:     "definitions-path",
				Usage:    "Directory containing workflow definition JSON files",
				Required: true,
				Sources:  cli.EnvVars("DEFINITIONS_PATH"),
			},
			&cli.StringFlag{
				Name:     "data-url",
				Usage:    "Storage URL for states, triggers, and artifacts (file://<dir> or azblob://<container>)",
				Required: true,
				Sources:  cli.EnvVars("DATA_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.DurationFlag{
				Name:    "tick-interval",
				Usage:   "Interval between scheduler ticks",
				Value:   5 * time.Second,
				Sources: cli.EnvVars("TICK_INTERVAL"),
			},
			&cli.IntFlag{
				Name:    "api-port",
				Usage:   "Port for the HTTP status API",
				Value:   8080,
				Sources: cli.EnvVars("API_PORT"),
			},
			&cli.StringFlag{
				Name:    "ai-base-url",
				Usage:   "Base URL of the AI completion API",
				Value:   "https://api.openai.com",
				Sources: cli.EnvVars("AI_BASE_URL"),
			},
			&cli.StringFlag{
				Name:     "ai-api-key",
				Usage:    "API key for the AI completion API",
				Required: true,
				Sources:  cli.EnvVars("AI_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "ai-model",
				Usage:   "Default model for steps that do not set one",
				Value:   "gpt-4o-mini",
				Sources: cli.EnvVars("AI_MODEL"),
			},
			&cli.StringFlag{
				Name:    "mail-base-url",
				Usage:   "Base URL of the mail API (empty disables mail context)",
				Value:   "",
				Sources: cli.EnvVars("MAIL_BASE_URL"),
			},
			&cli.StringFlag{
				Name:    "mail-api-key",
				Usage:   "API key for the mail API",
				Value:   "",
				Sources: cli.EnvVars("MAIL_API_KEY"),
			},
			&cli.BoolFlag{
				Name:    "otel-enabled",
				Usage:   "Enable OpenTelemetry tracing",
				Value:   false,
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			daemonID := command.String("daemon-id")
			if daemonID == "" {
				daemonID = "loomd-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("loomd").With("daemon_id", daemonID)

			daemon := NewDaemon(daemonID, logger, Options{
				DefinitionsPath: command.String("definitions-path"),
				DataURL:         command.String("data-url"),
				EventBus:        command.String("event-bus"),
				TickInterval:    command.Duration("tick-interval"),
				APIPort:         command.Int("api-port"),
				AIBaseURL:       command.String("ai-base-url"),
				AIAPIKey:        command.String("ai-api-key"),
				AIModel:         command.String("ai-model"),
				MailBaseURL:     command.String("mail-base-url"),
				MailAPIKey:      command.String("mail-api-key"),
				OTELEnabled:     command.Bool("otel-enabled"),
			})

			return daemon.Run(ctx)
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
