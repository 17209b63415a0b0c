package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/OFFIS-RIT/graphvec/internal/app"
	"github.com/OFFIS-RIT/graphvec/internal/config"
	"github.com/OFFIS-RIT/graphvec/internal/queue"
	"github.com/OFFIS-RIT/graphvec/internal/server"
	mid "github.com/OFFIS-RIT/graphvec/internal/server/middleware"
	"github.com/OFFIS-RIT/graphvec/internal/util"
	"github.com/OFFIS-RIT/graphvec/pkg/logger"
	"github.com/OFFIS-RIT/graphvec/pkg/logger/console"

	"github.com/rabbitmq/amqp091-go"
)

func main() {
	util.LoadEnv()

	cfg, err := config.Load()
	if err != nil {
		logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{}))
		logger.Fatal("Invalid configuration", "err", err)
	}

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: cfg.Debug,
		JSON:  util.GetEnvBool("LOG_JSON", false),
	})
	logger.Init(consoleLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, app.OpenOptions{})
	if err != nil {
		logger.Fatal("Failed to initialize", "err", err)
	}
	defer a.Close()

	if _, err := a.Bootstrap(ctx); err != nil {
		logger.Fatal("Failed to build knowledge graph", "err", err)
	}

	var publisher mid.BuildPublisher
	conn, err := queue.Dial(cfg.Queue.URL())
	if err != nil {
		logger.Warn("Running without build queue", "err", err)
	} else {
		defer conn.Close()
		publisher, err = setupQueue(ctx, conn, a)
		if err != nil {
			logger.Fatal("Failed to set up queues", "err", err)
		}
	}

	e := server.New(&mid.App{Service: a, Publisher: publisher})
	if err := server.Run(ctx, e, cfg.Port); err != nil {
		logger.Fatal("Server stopped", "err", err)
	}
	logger.Info("Shutdown signal received, exiting...")
}

// setupQueue declares the build queue and reloads the served graph whenever
// the worker announces a rebuild.
func setupQueue(ctx context.Context, conn *amqp091.Connection, a *app.App) (mid.BuildPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := queue.SetupQueues(ch, []string{queue.BuildQueue}); err != nil {
		return nil, err
	}

	subCh, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	events, err := queue.Subscribe(subCh, queue.GraphRebuiltTopic)
	if err != nil {
		return nil, err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-events:
				if !ok {
					logger.Warn("Rebuild subscription closed")
					return
				}
				logger.Info("Graph rebuilt by worker, reloading", "event", string(msg.Body))
				if err := a.ReloadGraph(ctx); err != nil {
					logger.Error("Failed to reload graph", "err", err)
				}
			}
		}
	}()

	return queue.NewPublisher(ch), nil
}
