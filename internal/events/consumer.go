package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"rentacar-backend/internal/domain"
	"rentacar-backend/internal/logger"
)

// Handler reacts to one delivered event.
type Handler interface {
	Handle(ctx context.Context, e domain.Event) error
}

type HandlerFunc func(ctx context.Context, e domain.Event) error

func (f HandlerFunc) Handle(ctx context.Context, e domain.Event) error { return f(ctx, e) }

// Deduper remembers which events were already handled.
type Deduper interface {
	// Seen marks key and reports whether it was marked before.
	Seen(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

type RedisDeduper struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
}

func NewRedisDeduper(rdb redis.Cmdable, group string, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{rdb: rdb, ttl: ttl, prefix: "dedup:" + group + ":"}
}

func (d *RedisDeduper) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, d.prefix+key, "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: redis: %v", domain.ErrExternalDependency, err)
	}
	return !ok, nil
}

func (d *RedisDeduper) Forget(ctx context.Context, key string) error {
	return d.rdb.Del(ctx, d.prefix+key).Err()
}

const handleAttempts = 3

// dispatcher is the delivery path shared by the Kafka and AMQP consumers.
type dispatcher struct {
	log     *slog.Logger
	tracer  trace.Tracer
	dedup   Deduper
	handler Handler
	backoff time.Duration
}

func newDispatcher(dedup Deduper, h Handler) dispatcher {
	return dispatcher{
		log:     logger.WithComponent("event-consumer"),
		tracer:  otel.Tracer("rentacar-backend/events"),
		dedup:   dedup,
		handler: h,
		backoff: 200 * time.Millisecond,
	}
}

// dispatch handles one message body. Errors it returns are transient and the
// message should be redelivered; poison messages are logged and dropped.
func (d dispatcher) dispatch(ctx context.Context, body []byte, hdrs map[string]string) error {
	ctx = extract(ctx, hdrs)
	e, err := decode(body)
	if err != nil {
		d.log.Error("dropping undecodable event", "error", err)
		return nil
	}

	ctx, span := d.tracer.Start(ctx, "events.consume")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("reservation.id", e.ReservationID),
		attribute.String("event.type", string(e.Type)),
	)

	key := e.DedupKey()
	seen, err := d.dedup.Seen(ctx, key)
	if err != nil {
		return err
	}
	if seen {
		d.log.Debug("duplicate event skipped", "key", key)
		return nil
	}

	for attempt := 1; ; attempt++ {
		err = d.handler.Handle(ctx, e)
		if err == nil {
			return nil
		}
		if attempt == handleAttempts || poison(err) || ctx.Err() != nil {
			break
		}
		time.Sleep(d.backoff * time.Duration(attempt))
	}

	span.RecordError(err)
	if !poison(err) {
		// Let a redelivery try again.
		if ferr := d.dedup.Forget(ctx, key); ferr != nil {
			d.log.Error("failed to release dedup key", "key", key, "error", ferr)
		}
		return err
	}
	d.log.Error("event handler failed, dropping event", "key", key, "error", err)
	return nil
}

// poison reports whether the handler rejected the event itself, so a
// redelivery would fail the same way. Unclassified errors count as transient.
func poison(err error) bool {
	k := domain.Kind(err)
	return k != nil && k != domain.ErrExternalDependency
}

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer reads the event topic as a consumer group member.
type KafkaConsumer struct {
	dispatcher
	reader MessageReader
}

func NewKafkaConsumer(brokers []string, topic, group string, dedup Deduper, h Handler) *KafkaConsumer {
	return NewKafkaConsumerWithReader(kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	}), dedup, h)
}

func NewKafkaConsumerWithReader(r MessageReader, dedup Deduper, h Handler) *KafkaConsumer {
	return &KafkaConsumer{dispatcher: newDispatcher(dedup, h), reader: r}
}

// Run consumes until ctx is cancelled. A transient handling failure stops the
// consumer without committing, so the message is read again on restart.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}
		if err := c.dispatch(ctx, m.Value, kafkaHeaders(m.Headers)); err != nil {
			return fmt.Errorf("handle message at offset %d: %w", m.Offset, err)
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil {
			return fmt.Errorf("commit offset %d: %w", m.Offset, err)
		}
	}
}

// AMQPConsumer reads a durable queue bound to the reservation exchange.
type AMQPConsumer struct {
	dispatcher
	url      string
	exchange string
	queue    string
}

func NewAMQPConsumer(url, exchange, queue string, dedup Deduper, h Handler) *AMQPConsumer {
	return &AMQPConsumer{dispatcher: newDispatcher(dedup, h), url: url, exchange: exchange, queue: queue}
}

func (c *AMQPConsumer) Run(ctx context.Context) error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer conn.Close()
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(c.exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", c.exchange, err)
	}
	q, err := ch.QueueDeclare(c.queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", c.queue, err)
	}
	if err := ch.QueueBind(q.Name, "reservation.#", c.exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", q.Name, err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}
	deliveries, err := ch.ConsumeWithContext(ctx, q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume %s: %w", q.Name, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			if err := c.dispatch(ctx, d.Body, amqpHeaders(d.Headers)); err != nil {
				c.log.Warn("requeueing event", "message_id", d.MessageId, "error", err)
				_ = d.Nack(false, true)
				continue
			}
			_ = d.Ack(false)
		}
	}
}
