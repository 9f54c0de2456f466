package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"

	"github.com/loomwork/loom/pkg/assembler"
	"github.com/loomwork/loom/pkg/cmd"
	"github.com/loomwork/loom/pkg/committer"
	"github.com/loomwork/loom/pkg/config"
	"github.com/loomwork/loom/pkg/engine"
	"github.com/loomwork/loom/pkg/models"
	"github.com/loomwork/loom/pkg/otelhelper"
	"github.com/loomwork/loom/pkg/persistence/blobstore"
	"github.com/loomwork/loom/pkg/providers/ai"
	"github.com/loomwork/loom/pkg/providers/mail"
	"github.com/loomwork/loom/pkg/scheduler"
	"github.com/loomwork/loom/pkg/watcher"
	"github.com/loomwork/loom/pkg/web"
)

const apiShutdownTimeout = 5 * time.Second

type Options struct {
	DefinitionsPath string
	DataURL         string
	EventBus        string
	TickInterval    time.Duration
	APIPort         int
	AIBaseURL       string
	AIAPIKey        string
	AIModel         string
	MailBaseURL     string
	MailAPIKey      string
	OTELEnabled     bool
}

type Daemon struct {
	id      string
	logger  *slog.Logger
	options Options
}

func NewDaemon(id string, logger *slog.Logger, options Options) *Daemon {
	return &Daemon{
		id:      id,
		logger:  logger,
		options: options,
	}
}

// Run wires every component and blocks until SIGINT or SIGTERM. In-flight
// runs finish before shutdown completes.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.logger.InfoContext(ctx, "Initializing daemon")

	if d.options.OTELEnabled {
		_, err := otelhelper.NewTracer(ctx, "loomd")
		if err != nil {
			return fmt.Errorf("initialize tracing: %w", err)
		}
	}

	workflows, err := config.LoadWorkflows(d.options.DefinitionsPath)
	if err != nil {
		return err
	}

	d.logger.InfoContext(ctx, "Workflow definitions loaded", "count", len(workflows))

	blobs, err := cmd.NewBlobStore(d.options.DataURL)
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}

	store := blobstore.New(blobs)
	defer func() {
		err := store.Close(ctx)
		if err != nil {
			d.logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	eventBus := cmd.NewEventBus(d.options.EventBus, d.logger)
	defer func() {
		err := eventBus.Close()
		if err != nil {
			d.logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	sources := make(map[string]watcher.Source, len(workflows))

	for _, workflow := range workflows {
		source, err := watcher.NewSource(workflow, blobs, d.logger)
		if err != nil {
			return fmt.Errorf("trigger source for workflow %s: %w", workflow.ID, err)
		}

		sources[workflow.ID] = source
	}

	provider := ai.NewCompletion(d.options.AIBaseURL, d.options.AIAPIKey, d.options.AIModel)

	var mailClient mail.Client
	if d.options.MailBaseURL != "" {
		mailClient = mail.NewHTTPClient(d.options.MailBaseURL, d.options.MailAPIKey)
	}

	sched, err := scheduler.NewScheduler(
		workflows,
		sources,
		store,
		assembler.NewAssembler(store.States(), mailClient, d.logger),
		engine.NewEngine(provider, d.logger),
		committer.NewCommitter(store, eventBus, d.logger),
		eventBus,
		d.logger,
		scheduler.Config{TickInterval: d.options.TickInterval},
	)
	if err != nil {
		return err
	}

	app := d.startAPI(ctx, workflows, store)

	schedulerDone := make(chan error, 1)

	go func() {
		schedulerDone <- sched.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var schedErr error

	select {
	case sig := <-sigChan:
		d.logger.InfoContext(ctx, "Shutting down", "signal", sig.String())
		cancel()
		// Wait for in-flight runs.
		schedErr = <-schedulerDone
	case schedErr = <-schedulerDone:
		cancel()
	}

	if schedErr != nil {
		d.logger.ErrorContext(ctx, "Scheduler stopped with error", "error", schedErr)
	}

	shutdownErr := app.ShutdownWithTimeout(apiShutdownTimeout)
	if shutdownErr != nil {
		d.logger.ErrorContext(ctx, "API shutdown failed", "error", shutdownErr)
	}

	d.logger.Info("Daemon stopped")

	return schedErr
}

func (d *Daemon) startAPI(ctx context.Context, workflows []*models.Workflow, store *blobstore.Store) *fiber.App {
	app := fiber.New()
	app.Use(cors.New())

	web.NewAPIHandlers(workflows, store, d.logger).Register(app)

	go func() {
		addr := fmt.Sprintf(":%d", d.options.APIPort)

		err := app.Listen(addr)
		if err != nil {
			d.logger.ErrorContext(ctx, "API server stopped", "error", err)
		}
	}()

	return app
}
