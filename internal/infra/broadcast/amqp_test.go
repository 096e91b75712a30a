package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/fintrack-go/internal/domain"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// fakeChannel records publications and serves deliveries from a Go channel.
type fakeChannel struct {
	mu         sync.Mutex
	published  []amqp091.Publishing
	deliveries chan amqp091.Delivery
	publishErr error
	kind       string
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{deliveries: make(chan amqp091.Delivery, 8)}
}

func (f *fakeChannel) ExchangeDeclare(_, kind string, _, _, _, _ bool, _ amqp091.Table) error {
	f.kind = kind
	return nil
}

func (f *fakeChannel) QueueDeclare(string, bool, bool, bool, bool, amqp091.Table) (amqp091.Queue, error) {
	return amqp091.Queue{Name: "amq.gen-test"}, nil
}

func (f *fakeChannel) QueueBind(string, string, string, bool, amqp091.Table) error { return nil }

func (f *fakeChannel) PublishWithContext(_ context.Context, _, _ string, _, _ bool, msg amqp091.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Consume(string, string, bool, bool, bool, bool, amqp091.Table) (<-chan amqp091.Delivery, error) {
	return f.deliveries, nil
}

func (f *fakeChannel) Close() error { return nil }

type fakeAck struct {
	mu    sync.Mutex
	acks  int
	nacks int
}

func (a *fakeAck) Ack(uint64, bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks++
	return nil
}

func (a *fakeAck) Nack(uint64, bool, bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks++
	return nil
}

func (a *fakeAck) Reject(uint64, bool) error { return nil }

func delivery(t *testing.T, ack *fakeAck, change domain.StorageChange) amqp091.Delivery {
	t.Helper()
	body, err := NewStorageMessage(change).ToJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return amqp091.Delivery{Acknowledger: ack, Body: body}
}

func TestAMQPBridge_PublishDeliversLocallyAndRemotely(t *testing.T) {
	ch := newFakeChannel()
	bus := NewBus("proc-a", zap.NewNop())
	bridge, err := newBridge(ch, "fintrack.session", bus, zap.NewNop())
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if ch.kind != "fanout" {
		t.Errorf("expected fanout exchange, got %q", ch.kind)
	}

	sub, cancel := bridge.Subscribe()
	defer cancel()

	token := "tok"
	if err := bridge.Publish(context.Background(), domain.StorageChange{Key: domain.KeyAuthToken, Value: &token}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case c := <-sub:
		if c.Origin != "proc-a" {
			t.Errorf("expected local origin, got %q", c.Origin)
		}
	case <-time.After(time.Second):
		t.Fatal("expected local delivery")
	}

	if len(ch.published) != 1 {
		t.Fatalf("expected 1 publication, got %d", len(ch.published))
	}
	msg, err := StorageMessageFromJSON(ch.published[0].Body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Origin != "proc-a" || msg.Value == nil || *msg.Value != "tok" {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestAMQPBridge_PublishFailureStillDeliversLocally(t *testing.T) {
	ch := newFakeChannel()
	ch.publishErr = errors.New("connection closed")
	bus := NewBus("proc-a", zap.NewNop())
	bridge, _ := newBridge(ch, "fintrack.session", bus, zap.NewNop())

	sub, cancel := bridge.Subscribe()
	defer cancel()

	if err := bridge.Publish(context.Background(), domain.StorageChange{Key: domain.KeyAuthToken}); err == nil {
		t.Fatal("expected publish error")
	}

	select {
	case <-sub:
	case <-time.After(time.Second):
		t.Fatal("expected local delivery despite publish failure")
	}
}

func TestAMQPBridge_RunReinjectsRemoteChangesOnly(t *testing.T) {
	ch := newFakeChannel()
	bus := NewBus("proc-a", zap.NewNop())
	bridge, _ := newBridge(ch, "fintrack.session", bus, zap.NewNop())

	sub, cancel := bridge.Subscribe()
	defer cancel()

	ack := &fakeAck{}
	ch.deliveries <- delivery(t, ack, domain.StorageChange{Key: domain.KeyAuthToken, Origin: "proc-a"})
	ch.deliveries <- delivery(t, ack, domain.StorageChange{Key: domain.KeyAuthToken, Origin: "proc-b"})
	ch.deliveries <- amqp091.Delivery{Acknowledger: ack, Body: []byte("garbage")}

	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bridge.Run(ctx) }()

	select {
	case c := <-sub:
		if c.Origin != "proc-b" {
			t.Errorf("expected only the remote change, got origin %q", c.Origin)
		}
	case <-time.After(time.Second):
		t.Fatal("expected remote change")
	}

	deadline := time.Now().Add(time.Second)
	for {
		ack.mu.Lock()
		acks, nacks := ack.acks, ack.nacks
		ack.mu.Unlock()
		if acks == 2 && nacks == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 2 acks and 1 nack, got %d/%d", acks, nacks)
		}
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case c := <-sub:
		t.Errorf("own message was re-injected: %+v", c)
	default:
	}

	stop()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
