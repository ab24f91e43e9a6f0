package events

import (
	"context"
	"fmt"

	"github.com/rabbitmq/amqp091-go"

	"rentacar-backend/internal/domain"
)

type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// AMQPSink publishes to a durable topic exchange with routing keys of the form
// reservation.<type>.
type AMQPSink struct {
	conn     *amqp091.Connection
	ch       Channel
	exchange string
}

func NewAMQPSink(url, exchange string) (*AMQPSink, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	return &AMQPSink{conn: conn, ch: ch, exchange: exchange}, nil
}

func NewAMQPSinkWithChannel(ch Channel, exchange string) *AMQPSink {
	return &AMQPSink{ch: ch, exchange: exchange}
}

func (s *AMQPSink) Publish(ctx context.Context, e domain.Event) error {
	body, err := encode(e)
	if err != nil {
		return err
	}
	table := amqp091.Table{}
	for k, v := range headers(ctx, e) {
		table[k] = v
	}
	err = s.ch.PublishWithContext(ctx,
		s.exchange,         // exchange
		RoutingKey(e.Type), // routing key
		false,              // mandatory
		false,              // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         body,
			Headers:      table,
			DeliveryMode: amqp091.Persistent,
			MessageId:    e.DedupKey(),
			Timestamp:    e.OccurredAt,
		})
	if err != nil {
		return fmt.Errorf("failed to publish event %d: %w", e.ID, err)
	}
	return nil
}

func (s *AMQPSink) Close() error {
	err := s.ch.Close()
	if s.conn != nil {
		if cerr := s.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func amqpHeaders(t amqp091.Table) map[string]string {
	out := make(map[string]string, len(t))
	for k, v := range t {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
