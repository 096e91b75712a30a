package broadcast

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/fintrack-go/internal/domain"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// amqpChannel is the subset of *amqp091.Channel the bridge needs.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp091.Table) (<-chan amqp091.Delivery, error)
	Close() error
}

// AMQPBridge extends a Bus across processes through a fanout exchange.
// Local changes are delivered in-process and published; remote changes are
// re-injected into the bus. A process never re-injects its own messages.
type AMQPBridge struct {
	bus      *Bus
	conn     *amqp091.Connection
	channel  amqpChannel
	exchange string
	queue    string
	logger   *zap.Logger
}

// NewAMQPBridge dials url and declares the exchange plus this process's private queue.
func NewAMQPBridge(url, exchange string, bus *Bus, logger *zap.Logger) (*AMQPBridge, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	b, err := newBridge(ch, exchange, bus, logger)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	b.conn = conn
	return b, nil
}

func newBridge(ch amqpChannel, exchange string, bus *Bus, logger *zap.Logger) (*AMQPBridge, error) {
	b := &AMQPBridge{
		bus:      bus,
		channel:  ch,
		exchange: exchange,
		logger:   logger,
	}
	if err := b.setup(); err != nil {
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}
	return b, nil
}

func (b *AMQPBridge) setup() error {
	err := b.channel.ExchangeDeclare(
		b.exchange, // name
		"fanout",   // type
		true,       // durable
		false,      // auto-deleted
		false,      // internal
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	// Server-named, exclusive queue: one per process, gone when it disconnects.
	q, err := b.channel.QueueDeclare(
		"",    // name
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	b.queue = q.Name

	if err := b.channel.QueueBind(b.queue, "", b.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// Publish delivers the change locally, then to the other processes.
// A publish failure is returned; local subscribers have already been notified.
func (b *AMQPBridge) Publish(ctx context.Context, change domain.StorageChange) error {
	if change.Origin == "" {
		change.Origin = b.bus.Origin()
	}
	b.bus.Deliver(change)

	body, err := NewStorageMessage(change).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = b.channel.PublishWithContext(
		ctx,
		b.exchange, // exchange
		"",         // routing key (ignored by fanout)
		false,      // mandatory
		false,      // immediate
		amqp091.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now(),
			Body:        body,
		},
	)
	if err != nil {
		b.logger.Warn("broadcast: publish failed", zap.String("key", change.Key), zap.Error(err))
		return fmt.Errorf("publish message: %w", err)
	}

	b.logger.Debug("broadcast: published storage change",
		zap.String("key", change.Key),
		zap.Bool("removed", change.Removed()),
		zap.String("exchange", b.exchange),
	)
	return nil
}

// Subscribe subscribes to the underlying bus.
func (b *AMQPBridge) Subscribe() (<-chan domain.StorageChange, func()) {
	return b.bus.Subscribe()
}

// Run consumes remote changes until ctx is done or the channel closes.
func (b *AMQPBridge) Run(ctx context.Context) error {
	msgs, err := b.channel.Consume(
		b.queue, // queue
		"",      // consumer
		false,   // auto-ack (we want manual ack)
		true,    // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	b.logger.Info("broadcast: consuming storage changes", zap.String("queue", b.queue))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}
			b.handle(delivery)
		}
	}
}

func (b *AMQPBridge) handle(d amqp091.Delivery) {
	msg, err := StorageMessageFromJSON(d.Body)
	if err != nil {
		b.logger.Error("broadcast: failed to unmarshal message", zap.Error(err))
		_ = d.Nack(false, false)
		return
	}

	if msg.Origin != b.bus.Origin() {
		b.bus.Deliver(msg.Change())
		b.logger.Debug("broadcast: remote storage change",
			zap.String("key", msg.Key),
			zap.String("origin", msg.Origin),
		)
	}
	_ = d.Ack(false)
}

// Close closes the channel and the connection.
func (b *AMQPBridge) Close() error {
	if b.channel != nil {
		b.channel.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}
