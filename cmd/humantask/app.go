package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/urfave/cli/v2"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"

	"github.com/mtlprog/humantask/internal/assignment"
	"github.com/mtlprog/humantask/internal/config"
	"github.com/mtlprog/humantask/internal/database"
	"github.com/mtlprog/humantask/internal/handler"
	"github.com/mtlprog/humantask/internal/notify"
	"github.com/mtlprog/humantask/internal/repository"
	"github.com/mtlprog/humantask/internal/service"
	"github.com/mtlprog/humantask/internal/workflow"
)

// directory is what the resolver, the e-mail channel and the HTTP layer need
// from the user directory.
type directory interface {
	handler.Directory
	assignment.MemberLookup
}

// app holds the wired service stack and everything that must be closed on exit.
type app struct {
	tasks     *service.TaskService
	directory directory
	pinger    handler.Pinger

	closers []func() error
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Error("failed to close resource", "error", err)
		}
	}
}

func newApp(ctx context.Context, c *cli.Context) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	store, err := a.openStore(ctx, c)
	if err != nil {
		return nil, err
	}

	strategy, err := assignment.ParseStrategy(c.String("assignment-strategy"))
	if err != nil {
		return nil, err
	}
	resolver := assignment.NewResolver(a.directory, strategy)

	notifier, err := a.newNotifier(ctx, c)
	if err != nil {
		return nil, err
	}

	signaler, err := a.newSignaler(c)
	if err != nil {
		return nil, err
	}

	a.tasks = service.NewTaskService(store, resolver, notifier, signaler)
	ok = true
	return a, nil
}

func (a *app) openStore(ctx context.Context, c *cli.Context) (service.TaskStore, error) {
	switch c.String("store") {
	case config.StoreMemory:
		mem := repository.NewMemoryStore()
		a.directory = mem
		slog.Warn("using in-memory store; tasks are lost on exit")
		return mem, nil

	case config.StorePostgres, "":
		databaseURL := c.String("database-url")
		if databaseURL == "" {
			return nil, errors.New("database-url is required for the postgres store")
		}

		db, err := database.New(ctx, databaseURL, database.Options{
			MaxConns: int32(c.Int("db-max-conns")),
			MinConns: config.DefaultMinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.closers = append(a.closers, func() error { db.Close(); return nil })

		if err := database.RunMigrations(ctx, db.Pool()); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}

		a.directory = repository.NewDirectoryRepository(db.Pool())
		a.pinger = db
		return repository.NewTaskRepository(db.Pool()), nil

	default:
		return nil, fmt.Errorf("unknown store %q", c.String("store"))
	}
}

func (a *app) newNotifier(ctx context.Context, c *cli.Context) (*notify.Dispatcher, error) {
	channels := []notify.Channel{notify.LogChannel{}}

	if brokers := c.String("kafka-brokers"); brokers != "" {
		w, err := notify.NewKafkaWriter(brokers, c.String("kafka-topic"))
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka writer: %w", err)
		}
		a.closers = append(a.closers, w.Close)
		channels = append(channels, notify.NewKafkaChannel(w, notify.DefaultPublishTimeout))
		slog.Info("kafka notifications enabled", "brokers", brokers, "topic", c.String("kafka-topic"))
	}

	if from := c.String("ses-from"); from != "" {
		cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(c.String("aws-region")))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		email, err := notify.NewEmailChannel(notify.NewSESClient(cfg), a.directory, from)
		if err != nil {
			return nil, err
		}
		channels = append(channels, email)
		slog.Info("email notifications enabled", "from", from, "region", cfg.Region)
	}

	return notify.NewDispatcher(channels...), nil
}

func (a *app) newSignaler(c *cli.Context) (service.Signaler, error) {
	host := c.String("temporal-host")
	if host == "" {
		return workflow.NoopSignaler{}, nil
	}

	tc, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: c.String("temporal-namespace"),
		Logger:    tlog.NewStructuredLogger(slog.Default()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to temporal: %w", err)
	}
	a.closers = append(a.closers, func() error { tc.Close(); return nil })

	slog.Info("workflow signals enabled", "temporal_host", host, "namespace", c.String("temporal-namespace"))
	return workflow.NewTemporalSignaler(tc, 0), nil
}
