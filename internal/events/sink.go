package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"rentacar-backend/internal/config"
	"rentacar-backend/internal/domain"
	"rentacar-backend/internal/logger"
)

const (
	HeaderEventType = "event_type"
	HeaderVersion   = "version"
	HeaderDedupKey  = "dedup_key"
)

// Sink delivers one lifecycle event to the bus.
type Sink interface {
	Publish(ctx context.Context, e domain.Event) error
	Close() error
}

// NewSink builds the sink selected by cfg.Sink.
func NewSink(cfg config.EventsConfig) (Sink, error) {
	switch cfg.Sink {
	case "", "log":
		return NewLogSink(logger.WithComponent("event-sink")), nil
	case "kafka":
		return NewKafkaSink(cfg.Brokers, cfg.Topic), nil
	case "amqp":
		return NewAMQPSink(cfg.AMQPURL, cfg.Exchange)
	}
	return nil, fmt.Errorf("unknown event sink %q", cfg.Sink)
}

// headers are the metadata every sink attaches, plus the trace context of ctx.
func headers(ctx context.Context, e domain.Event) map[string]string {
	h := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, h)
	h[HeaderEventType] = string(e.Type)
	h[HeaderVersion] = strconv.FormatInt(int64(e.Version), 10)
	h[HeaderDedupKey] = e.DedupKey()
	return h
}

// extract restores the trace context carried in message headers.
func extract(ctx context.Context, h map[string]string) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(h))
}

// RoutingKey is the topic-exchange key of an event, e.g. reservation.picked_up.
func RoutingKey(t domain.EventType) string {
	return "reservation." + strings.ToLower(string(t))
}

func encode(e domain.Event) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event %d: %w", e.ID, err)
	}
	return b, nil
}

func decode(b []byte) (domain.Event, error) {
	var e domain.Event
	if err := json.Unmarshal(b, &e); err != nil {
		return domain.Event{}, fmt.Errorf("decode event: %w", err)
	}
	return e, nil
}

// LogSink writes events to the structured log. It stands in for a broker in
// local runs.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Publish(ctx context.Context, e domain.Event) error {
	s.log.InfoContext(ctx, "reservation event",
		"event_id", e.ID, "reservation_id", e.ReservationID, "type", e.Type, "version", e.Version, "status", e.Status)
	return nil
}

func (s *LogSink) Close() error { return nil }
