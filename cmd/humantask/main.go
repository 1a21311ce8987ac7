// @title			HumanTask API
// @version		1.0
// @description	Human task service for workflow engines with forms, SLAs and escalation chains.
// @BasePath		/api/v1

// @securityDefinitions.apikey	TenantAuth
// @in							header
// @name						X-Tenant-ID

// @securityDefinitions.apikey	UserAuth
// @in							header
// @name						X-User-ID

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/mtlprog/humantask/internal/config"
	"github.com/mtlprog/humantask/internal/database"
	"github.com/mtlprog/humantask/internal/handler"
	"github.com/mtlprog/humantask/internal/logger"
)

func main() {
	cliApp := &cli.App{
		Name:  "humantask",
		Usage: "Human task lifecycle service with SLA tracking and escalation",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   config.DefaultLogFormat,
				Usage:   "Log format (json, text)",
				EnvVars: []string{"LOG_FORMAT"},
			},
			&cli.StringFlag{
				Name:    "store",
				Value:   config.DefaultStore,
				Usage:   "Task store backend (postgres, memory)",
				EnvVars: []string{"STORE"},
			},
			&cli.StringFlag{
				Name:    "database-url",
				Aliases: []string{"d"},
				Value:   config.DefaultDatabaseURL,
				Usage:   "PostgreSQL database URL",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.IntFlag{
				Name:    "db-max-conns",
				Value:   config.DefaultMaxConns,
				Usage:   "Maximum database connections",
				EnvVars: []string{"DB_MAX_CONNS"},
			},
			&cli.StringFlag{
				Name:    "assignment-strategy",
				Value:   config.DefaultAssignmentStrategy,
				Usage:   "How group tasks are narrowed to a member (none, round_robin)",
				EnvVars: []string{"ASSIGNMENT_STRATEGY"},
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma-separated Kafka brokers for lifecycle events; empty disables",
				EnvVars: []string{"KAFKA_BROKERS"},
			},
			&cli.StringFlag{
				Name:    "kafka-topic",
				Value:   config.DefaultKafkaTopic,
				Usage:   "Kafka topic for lifecycle events",
				EnvVars: []string{"KAFKA_TOPIC"},
			},
			&cli.StringFlag{
				Name:    "ses-from",
				Usage:   "Sender address for SES e-mail notifications; empty disables",
				EnvVars: []string{"SES_FROM_EMAIL"},
			},
			&cli.StringFlag{
				Name:    "aws-region",
				Value:   config.DefaultAWSRegion,
				Usage:   "AWS region for SES",
				EnvVars: []string{"AWS_REGION"},
			},
			&cli.StringFlag{
				Name:    "temporal-host",
				Usage:   "Temporal frontend host:port for workflow signals; empty disables",
				EnvVars: []string{"TEMPORAL_HOST"},
			},
			&cli.StringFlag{
				Name:    "temporal-namespace",
				Value:   config.DefaultTemporalNamespace,
				Usage:   "Temporal namespace",
				EnvVars: []string{"TEMPORAL_NAMESPACE"},
			},
		},
		Before: func(c *cli.Context) error {
			// A missing .env file is fine; the environment may already be set.
			_ = godotenv.Load()
			logger.Setup(logger.ParseLevel(c.String("log-level")), c.String("log-format"))
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Start the web server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "port",
						Aliases: []string{"p"},
						Value:   config.DefaultPort,
						Usage:   "HTTP server port",
						EnvVars: []string{"PORT"},
					},
				},
				Action: runServe,
			},
			{
				Name:  "migrate",
				Usage: "Apply database migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "down",
						Usage: "Revert the most recent migration instead",
					},
				},
				Action: runMigrate,
			},
			{
				Name:   "sweep-escalations",
				Usage:  "Apply due escalation steps and deadline breaches",
				Flags:  sweepFlags(),
				Action: runSweepEscalations,
			},
			{
				Name:   "sweep-warnings",
				Usage:  "Send SLA warnings for tasks nearing their deadline",
				Flags:  sweepFlags(),
				Action: runSweepWarnings,
			},
		},
		Action: runServe,
	}

	if err := cliApp.Run(os.Args); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func sweepFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:     "tenant",
			Aliases:  []string{"t"},
			Usage:    "Tenant to sweep (repeatable)",
			EnvVars:  []string{"SWEEP_TENANTS"},
			Required: true,
		},
	}
}

func runServe(c *cli.Context) error {
	ctx := c.Context

	port := c.String("port")
	if port == "" {
		port = config.DefaultPort
	}

	stack, err := newApp(ctx, c)
	if err != nil {
		return err
	}
	defer stack.Close()

	h := handler.New(stack.tasks, stack.directory, stack.pinger)

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           h.Routes(),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "server_addr", "http://localhost:"+port, "store", c.String("store"))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-done:
		slog.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

func runMigrate(c *cli.Context) error {
	ctx := c.Context

	db, err := database.New(ctx, c.String("database-url"), database.Options{MinConns: 1, MaxConns: 2})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if c.Bool("down") {
		return database.RollbackMigration(ctx, db.Pool())
	}
	return database.RunMigrations(ctx, db.Pool())
}

func runSweepEscalations(c *cli.Context) error {
	return runSweep(c, "escalation", func(a *app) sweepFunc { return a.tasks.ProcessEscalations })
}

func runSweepWarnings(c *cli.Context) error {
	return runSweep(c, "warning", func(a *app) sweepFunc { return a.tasks.ProcessWarnings })
}

type sweepFunc func(ctx context.Context, tenantID string) (int, error)

// runSweep runs one pass per tenant. Scheduling repeated passes is left to
// an external poller such as cron. Per-tenant failures are logged and the
// command fails if any tenant failed.
func runSweep(c *cli.Context, name string, pick func(*app) sweepFunc) error {
	ctx := c.Context

	stack, err := newApp(ctx, c)
	if err != nil {
		return err
	}
	defer stack.Close()

	sweep := pick(stack)

	var errs []error
	for _, tenantID := range c.StringSlice("tenant") {
		count, err := sweep(ctx, tenantID)
		if err != nil {
			slog.Error("sweep failed", "sweep", name, "tenant_id", tenantID, "changed", count, "error", err)
			errs = append(errs, fmt.Errorf("tenant %s: %w", tenantID, err))
		}
	}
	return errors.Join(errs...)
}
