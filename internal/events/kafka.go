package events

import (
	"context"
	"strconv"

	"github.com/segmentio/kafka-go"

	"rentacar-backend/internal/domain"
)

type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink keys messages by reservation id, so one reservation's events stay
// on one partition in publish order.
type KafkaSink struct {
	producer Producer
	topic    string
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return NewKafkaSinkWithProducer(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}, topic)
}

func NewKafkaSinkWithProducer(p Producer, topic string) *KafkaSink {
	return &KafkaSink{producer: p, topic: topic}
}

func (s *KafkaSink) Publish(ctx context.Context, e domain.Event) error {
	body, err := encode(e)
	if err != nil {
		return err
	}
	h := headers(ctx, e)
	kh := make([]kafka.Header, 0, len(h))
	for k, v := range h {
		kh = append(kh, kafka.Header{Key: k, Value: []byte(v)})
	}
	return s.producer.WriteMessages(ctx, kafka.Message{
		Topic:   s.topic,
		Key:     []byte(strconv.FormatInt(e.ReservationID, 10)),
		Value:   body,
		Headers: kh,
		Time:    e.OccurredAt,
	})
}

func (s *KafkaSink) Close() error {
	return s.producer.Close()
}

func kafkaHeaders(hs []kafka.Header) map[string]string {
	out := make(map[string]string, len(hs))
	for _, h := range hs {
		out[h.Key] = string(h.Value)
	}
	return out
}
