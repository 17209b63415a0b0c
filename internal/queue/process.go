package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/graphvec/pkg/graph"
	"github.com/OFFIS-RIT/graphvec/pkg/logger"
	"github.com/OFFIS-RIT/graphvec/pkg/query"

	"github.com/rabbitmq/amqp091-go"
)

// Rebuilder reloads the corpus and rebuilds the knowledge graph.
type Rebuilder interface {
	Prepare(ctx context.Context) error
	Rebuild(ctx context.Context, force bool) (*graph.BuildReport, error)
	Engine() *query.Engine
}

// Worker consumes build requests one at a time.
//
// A Worker should be created using NewWorker.
type Worker struct {
	ch         Channel
	rebuilder  Rebuilder
	queueName  string
	maxRetries int
}

func NewWorker(ch Channel, r Rebuilder) *Worker {
	return &Worker{
		ch:         ch,
		rebuilder:  r,
		queueName:  BuildQueue,
		maxRetries: DefaultMaxRetries,
	}
}

// Serve handles deliveries until ctx is done or the channel is closed.
func (w *Worker) Serve(ctx context.Context, deliveries <-chan amqp091.Delivery) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("[Queue] Stopping consumer", "queue", w.queueName)
			return
		case msg, ok := <-deliveries:
			if !ok {
				logger.Info("[Queue] Message channel closed", "queue", w.queueName)
				return
			}
			w.handle(ctx, msg)
			logger.Info("[Queue] Waiting for next message")
		}
	}
}

func (w *Worker) handle(ctx context.Context, msg amqp091.Delivery) {
	start := time.Now()
	logger.Info("[Queue] Received message", "queue", w.queueName)

	event, err := w.Process(ctx, msg.Body)
	if err != nil {
		if ctx.Err() != nil {
			// shutting down, let the broker redeliver
			_ = msg.Nack(false, true)
			return
		}
		logger.Error("[Queue] Error processing message", "queue", w.queueName, "err", err)
		HandleFailure(ctx, w.ch, msg, w.queueName, w.maxRetries, err)
		return
	}

	if err := msg.Ack(false); err != nil {
		logger.Error("[Queue] Failed to ack message", "err", err)
	}

	data, err := json.Marshal(event)
	if err == nil {
		err = PublishTopic(ctx, w.ch, GraphRebuiltTopic, data)
	}
	if err != nil {
		logger.Error("[Queue] Failed to publish rebuild event", "err", err)
	}

	d := time.Since(start)
	logger.Info(
		"[Queue] Message processed successfully",
		"queue", w.queueName,
		"duration", fmt.Sprintf("%02d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60),
	)
}

// Process decodes a BuildRequest and runs the rebuild. A malformed body is
// a permanent failure.
func (w *Worker) Process(ctx context.Context, body []byte) (*GraphRebuiltEvent, error) {
	var req BuildRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("%w: decode build request: %w", errPermanent, err)
	}

	if err := w.rebuilder.Prepare(ctx); err != nil {
		return nil, err
	}
	report, err := w.rebuilder.Rebuild(ctx, req.Force)
	if err != nil {
		return nil, err
	}

	event := &GraphRebuiltEvent{
		CorrelationID: req.CorrelationID,
		Loaded:        report.Loaded,
		Failures:      len(report.ExtractionFailures),
	}
	if e := w.rebuilder.Engine(); e != nil {
		event.Nodes = e.Graph().NodeCount()
		event.Edges = e.Graph().EdgeCount()
	}
	return event, nil
}
