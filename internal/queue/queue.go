package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/graphvec/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

const (
	// BuildQueue carries BuildRequest messages to the worker.
	BuildQueue = "graph_build_queue"

	// PubSubExchange is the topic exchange for graph events.
	PubSubExchange = "pubsub_exchange"
	// GraphRebuiltTopic announces a new snapshot with a GraphRebuiltEvent.
	GraphRebuiltTopic = "graph.rebuilt"

	retryTTL = 10 * time.Second
)

// BuildRequest asks the worker to rebuild the knowledge graph. Force deletes
// the snapshot first so that entities are extracted again.
type BuildRequest struct {
	Force         bool      `json:"force"`
	CorrelationID string    `json:"correlation_id"`
	RequestedAt   time.Time `json:"requested_at"`
}

// GraphRebuiltEvent is published after a successful rebuild.
type GraphRebuiltEvent struct {
	CorrelationID string `json:"correlation_id"`
	Loaded        bool   `json:"loaded"`
	Nodes         int    `json:"nodes"`
	Edges         int    `json:"edges"`
	Failures      int    `json:"extraction_failures"`
}

// Channel is the subset of *amqp091.Channel used for publishing.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

func Dial(url string) (*amqp091.Connection, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

// SetupQueues declares every queue together with its dead letter queue and
// its retry queue. Messages in the retry queue return to the main queue
// after retryTTL.
func SetupQueues(ch Channel, queueNames []string) error {
	for _, name := range queueNames {
		if _, err := ch.QueueDeclare(
			name,
			true,  // durable
			false, // autoDelete
			false, // exclusive
			false, // noWait
			nil,   // args
		); err != nil {
			return fmt.Errorf("declare queue %s: %w", name, err)
		}

		dlqName := name + "_dlq"
		if _, err := ch.QueueDeclare(dlqName, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", dlqName, err)
		}

		retryName := name + "_retry"
		if _, err := ch.QueueDeclare(
			retryName,
			true,
			false,
			false,
			false,
			amqp091.Table{
				"x-message-ttl":             int32(retryTTL.Milliseconds()),
				"x-dead-letter-exchange":    "",
				"x-dead-letter-routing-key": name,
			},
		); err != nil {
			return fmt.Errorf("declare queue %s: %w", retryName, err)
		}
		logger.Debug("[Queue] Declared queue", "queue", name)
	}

	return nil
}

func PublishFIFO(ctx context.Context, ch Channel, queueName string, data []byte) error {
	q, err := ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return err
	}

	publishing := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         data,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	}

	return ch.PublishWithContext(ctx, "", q.Name, false, false, publishing)
}

func declarePubSub(ch Channel) error {
	return ch.ExchangeDeclare(
		PubSubExchange,
		"topic",
		false, // durable
		true,  // autoDelete
		false, // internal
		false, // noWait
		nil,
	)
}

func PublishTopic(ctx context.Context, ch Channel, topic string, data []byte) error {
	if err := declarePubSub(ch); err != nil {
		return err
	}

	publishing := amqp091.Publishing{
		ContentType: "application/json",
		Body:        data,
		Timestamp:   time.Now(),
	}

	return ch.PublishWithContext(ctx, PubSubExchange, topic, false, false, publishing)
}

// Subscribe binds a server owned, auto deleted queue to topic and starts
// consuming it.
func Subscribe(ch *amqp091.Channel, topic string) (<-chan amqp091.Delivery, error) {
	if err := declarePubSub(ch); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, fmt.Errorf("declare subscription queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, topic, PubSubExchange, false, nil); err != nil {
		return nil, fmt.Errorf("bind subscription queue: %w", err)
	}
	return ch.Consume(q.Name, "", true, true, false, false, nil)
}

// Publisher enqueues build requests.
type Publisher struct {
	ch Channel
}

func NewPublisher(ch Channel) *Publisher {
	return &Publisher{ch: ch}
}

func (p *Publisher) PublishBuild(ctx context.Context, req BuildRequest) error {
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if err := PublishFIFO(ctx, p.ch, BuildQueue, data); err != nil {
		return fmt.Errorf("publish build request: %w", err)
	}
	logger.Info("[Queue] Build requested", "force", req.Force, "correlation_id", req.CorrelationID)
	return nil
}
