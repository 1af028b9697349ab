package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/stepflow/pkg/cmd"
	"github.com/dukex/stepflow/pkg/dispatch"
	"github.com/dukex/stepflow/pkg/log"
	"github.com/dukex/stepflow/pkg/otelhelper"
	"github.com/dukex/stepflow/pkg/overdue"
	"github.com/dukex/stepflow/pkg/reminder"
	"github.com/dukex/stepflow/pkg/runner"
	"github.com/dukex/stepflow/pkg/triggers"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "stepflow-api",
		Usage:                 "Define and run step-based workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL (postgres://... or a directory for file storage)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Step event channel (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis address for the reminder store; empty disables reminders",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "overdue-schedule",
				Usage:   "Cron schedule for the overdue monitor",
				Value:   "@every 1m",
				Sources: cli.EnvVars("OVERDUE_SCHEDULE"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OTLP trace export",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))
	logger := log.WithModule("api")

	logger.InfoContext(ctx, "Initializing Stepflow API")

	p, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := p.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	publisher, subscriber, err := cmd.NewChannel(command.String("event-bus"), "stepflow-api", logger)
	if err != nil {
		return err
	}

	deliveries := cmd.NewLogDeliveries(logger)

	var reminderStore *reminder.Store

	if redisURL := command.String("redis-url"); redisURL != "" {
		reminderStore, err = reminder.NewStore(ctx, logger, redisURL)
		if err != nil {
			return err
		}

		defer func() {
			if err := reminderStore.Close(); err != nil {
				logger.ErrorContext(ctx, "Failed to close reminder store", "error", err)
			}
		}()

		deliveries.Reminders = reminderStore
	}

	registry := cmd.NewRegistry(logger, deliveries)

	worker := dispatch.NewWorker(subscriber, p, triggers.NewEvaluator(registry, logger), logger)
	if err := worker.Start(ctx); err != nil {
		return err
	}

	var tracer trace.Tracer

	if command.Bool("tracing") {
		tracer, err = otelhelper.NewTracer(ctx, "stepflow-api")
		if err != nil {
			return err
		}
	}

	workflowRunner := runner.NewWorkflowRunner(p, dispatch.NewDispatcher(publisher, logger), tracer, logger)

	monitor := overdue.NewMonitor(workflowRunner, p, logger).
		WithSchedule(command.String("overdue-schedule"))
	if reminderStore != nil {
		monitor = monitor.WithReminders(reminderStore, deliveries.Notifications)
	}

	if err := monitor.Start(ctx); err != nil {
		return err
	}

	defer monitor.Stop()

	api := NewAPI(logger, p, workflowRunner)

	return api.Start(command.Int("port"))
}
