package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/OFFIS-RIT/graphvec/pkg/graph"
	"github.com/OFFIS-RIT/graphvec/pkg/query"

	"github.com/rabbitmq/amqp091-go"
)

type published struct {
	exchange string
	key      string
	msg      amqp091.Publishing
}

type fakeChannel struct {
	mu         sync.Mutex
	declared   []string
	args       map[string]amqp091.Table
	exchanges  []string
	published  []published
	publishErr error
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.declared = append(f.declared, name)
	if f.args == nil {
		f.args = map[string]amqp091.Table{}
	}
	f.args[name] = args
	return amqp091.Queue{Name: name}, nil
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanges = append(f.exchanges, name)
	return nil
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, published{exchange: exchange, key: key, msg: msg})
	return nil
}

type fakeAcker struct {
	mu      sync.Mutex
	acks    int
	nacks   int
	requeue bool
}

func (a *fakeAcker) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks++
	return nil
}

func (a *fakeAcker) Nack(tag uint64, multiple bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks++
	a.requeue = requeue
	return nil
}

func (a *fakeAcker) Reject(tag uint64, requeue bool) error { return nil }

type fakeRebuilder struct {
	prepared int
	forced   []bool
	err      error
	engine   *query.Engine
}

func (f *fakeRebuilder) Prepare(ctx context.Context) error {
	f.prepared++
	return nil
}

func (f *fakeRebuilder) Rebuild(ctx context.Context, force bool) (*graph.BuildReport, error) {
	f.forced = append(f.forced, force)
	if f.err != nil {
		return nil, f.err
	}
	return &graph.BuildReport{ExtractionFailures: []graph.ChunkFailure{{Index: 3}}}, nil
}

func (f *fakeRebuilder) Engine() *query.Engine {
	return f.engine
}

func testEngine(t *testing.T) *query.Engine {
	t.Helper()
	g := graph.New()
	g.AddRelation("Tesla", "Panasonic", "partners_with", 0.8)
	e, err := query.NewEngine(query.NewEngineParams{Graph: g})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return e
}

func TestSetupQueues(t *testing.T) {
	ch := &fakeChannel{}
	if err := SetupQueues(ch, []string{BuildQueue}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{BuildQueue, BuildQueue + "_dlq", BuildQueue + "_retry"}
	if len(ch.declared) != len(want) {
		t.Fatalf("expected %v, got %v", want, ch.declared)
	}
	for i := range want {
		if ch.declared[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, ch.declared)
		}
	}
	retryArgs := ch.args[BuildQueue+"_retry"]
	if retryArgs["x-dead-letter-routing-key"] != BuildQueue {
		t.Fatalf("expected retry queue to dead letter into %s, got %v", BuildQueue, retryArgs["x-dead-letter-routing-key"])
	}
	if retryArgs["x-message-ttl"] != int32(10000) {
		t.Fatalf("expected ttl 10000, got %v", retryArgs["x-message-ttl"])
	}
}

func TestPublishBuild(t *testing.T) {
	ch := &fakeChannel{}
	p := NewPublisher(ch)
	if err := p.PublishBuild(context.Background(), BuildRequest{Force: true, CorrelationID: "abc"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ch.published) != 1 {
		t.Fatalf("expected 1 message, got %d", len(ch.published))
	}
	msg := ch.published[0]
	if msg.key != BuildQueue || msg.exchange != "" {
		t.Fatalf("expected message on %s, got %s/%s", BuildQueue, msg.exchange, msg.key)
	}
	if msg.msg.DeliveryMode != amqp091.Persistent {
		t.Fatal("expected a persistent message")
	}

	var req BuildRequest
	if err := json.Unmarshal(msg.msg.Body, &req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !req.Force || req.CorrelationID != "abc" || req.RequestedAt.IsZero() {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestHandleFailure(t *testing.T) {
	tests := []struct {
		name    string
		headers amqp091.Table
		cause   error
		target  string
		retries any
	}{
		{"first failure", nil, errors.New("boom"), BuildQueue + "_retry", int32(1)},
		{"int32 header", amqp091.Table{"x-retries": int32(4)}, errors.New("boom"), BuildQueue + "_retry", int32(5)},
		{"int64 header", amqp091.Table{"x-retries": int64(2)}, errors.New("boom"), BuildQueue + "_retry", int32(3)},
		{"retries exhausted", amqp091.Table{"x-retries": int32(10)}, errors.New("boom"), BuildQueue + "_dlq", int32(10)},
		{"permanent", nil, errPermanent, BuildQueue + "_dlq", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := &fakeChannel{}
			acker := &fakeAcker{}
			msg := amqp091.Delivery{Acknowledger: acker, Headers: tt.headers, Body: []byte(`{}`)}

			HandleFailure(context.Background(), ch, msg, BuildQueue, DefaultMaxRetries, tt.cause)

			if len(ch.published) != 1 {
				t.Fatalf("expected 1 republished message, got %d", len(ch.published))
			}
			if got := ch.published[0].key; got != tt.target {
				t.Fatalf("expected target %s, got %s", tt.target, got)
			}
			if got := ch.published[0].msg.Headers["x-retries"]; got != tt.retries {
				t.Fatalf("expected x-retries %v, got %v", tt.retries, got)
			}
			if acker.acks != 1 {
				t.Fatalf("expected 1 ack, got %d", acker.acks)
			}
		})
	}
}

func TestHandleFailurePublishError(t *testing.T) {
	ch := &fakeChannel{publishErr: errors.New("channel closed")}
	acker := &fakeAcker{}
	HandleFailure(context.Background(), ch, amqp091.Delivery{Acknowledger: acker}, BuildQueue, DefaultMaxRetries, errors.New("boom"))

	if acker.acks != 0 || acker.nacks != 1 || !acker.requeue {
		t.Fatalf("expected a requeueing nack, got acks=%d nacks=%d requeue=%v", acker.acks, acker.nacks, acker.requeue)
	}
}

func TestWorkerProcess(t *testing.T) {
	r := &fakeRebuilder{engine: testEngine(t)}
	w := NewWorker(&fakeChannel{}, r)

	event, err := w.Process(context.Background(), []byte(`{"force": true, "correlation_id": "c1"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.prepared != 1 || len(r.forced) != 1 || !r.forced[0] {
		t.Fatalf("expected one forced rebuild, got prepared=%d forced=%v", r.prepared, r.forced)
	}
	if event.CorrelationID != "c1" || event.Nodes != 2 || event.Edges != 1 || event.Failures != 1 {
		t.Fatalf("unexpected event %+v", event)
	}

	if _, err := w.Process(context.Background(), []byte(`not json`)); !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestWorkerServe(t *testing.T) {
	ch := &fakeChannel{}
	r := &fakeRebuilder{engine: testEngine(t)}
	w := NewWorker(ch, r)

	okAcker := &fakeAcker{}
	badAcker := &fakeAcker{}
	deliveries := make(chan amqp091.Delivery, 2)
	deliveries <- amqp091.Delivery{Acknowledger: okAcker, Body: []byte(`{"force": false}`)}
	deliveries <- amqp091.Delivery{Acknowledger: badAcker, Body: []byte(`{`)}
	close(deliveries)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	w.Serve(ctx, deliveries)

	if okAcker.acks != 1 {
		t.Fatalf("expected the valid message to be acked, got %d", okAcker.acks)
	}
	if badAcker.acks != 1 {
		t.Fatalf("expected the invalid message to be acked after DLQ publish, got %d", badAcker.acks)
	}

	var event, dlq bool
	for _, p := range ch.published {
		switch {
		case p.exchange == PubSubExchange && p.key == GraphRebuiltTopic:
			event = true
		case p.key == BuildQueue+"_dlq":
			dlq = true
		}
	}
	if !event {
		t.Fatal("expected a rebuild event")
	}
	if !dlq {
		t.Fatal("expected the malformed message in the DLQ")
	}
}

func TestWorkerRebuildFailureRetries(t *testing.T) {
	ch := &fakeChannel{}
	w := NewWorker(ch, &fakeRebuilder{err: errors.New("lease lock busy")})

	acker := &fakeAcker{}
	w.handle(context.Background(), amqp091.Delivery{Acknowledger: acker, Body: []byte(`{}`)})

	if len(ch.published) != 1 || ch.published[0].key != BuildQueue+"_retry" {
		t.Fatalf("expected a retry, got %+v", ch.published)
	}
}
