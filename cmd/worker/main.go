package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/OFFIS-RIT/graphvec/internal/app"
	"github.com/OFFIS-RIT/graphvec/internal/config"
	"github.com/OFFIS-RIT/graphvec/internal/queue"
	"github.com/OFFIS-RIT/graphvec/internal/util"
	"github.com/OFFIS-RIT/graphvec/pkg/logger"
	"github.com/OFFIS-RIT/graphvec/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	cfg, err := config.Load()
	if err != nil {
		logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{}))
		logger.Fatal("Invalid configuration", "err", err)
	}

	// logger
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: cfg.Debug,
		JSON:  util.GetEnvBool("LOG_JSON", false),
	})
	logger.Init(consoleLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// the server owns the vector index, the worker only writes snapshots
	a, err := app.Open(ctx, cfg, app.OpenOptions{SkipIndex: true})
	if err != nil {
		logger.Fatal("Failed to initialize", "err", err)
	}
	defer a.Close()

	// Init rabbitmq
	conn, err := queue.Dial(cfg.Queue.URL())
	if err != nil {
		logger.Fatal("Failed to connect to queue", "err", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, []string{queue.BuildQueue}); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	// Builds are expensive, take one message at a time
	if err := ch.Qos(1, 0, false); err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	msgs, err := ch.Consume(
		queue.BuildQueue,
		queue.BuildQueue+"_consumer",
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		logger.Fatal("Failed to start consuming", "queue", queue.BuildQueue, "err", err)
	}

	logger.Info("Listening for messages")
	queue.NewWorker(ch, a).Serve(ctx, msgs)
	logger.Info("Shutdown signal received, exiting...")
}
