// Package kafkasink publishes diagnostic entries to a Kafka topic so findings and
// failures reach downstream consumers alongside the local diagnostic file.
package kafkasink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"tracekeeper/internal/diagnostics"
	"tracekeeper/pkg/attrs"
	"tracekeeper/pkg/platform/circuit"
)

// Producer is the subset of *kgo.Client the sink needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Sink writes one record per entry, keyed by component. While the breaker is
// open, produce failures are swallowed so a broker outage does not flood the
// other sinks with errors.
type Sink struct {
	producer Producer
	topic    string
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

type Option func(*Sink)

func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Sink) {
		s.breaker = b
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) {
		s.logger = logger
	}
}

func New(producer Producer, topic string, opts ...Option) *Sink {
	s := &Sink{
		producer: producer,
		topic:    topic,
		breaker:  circuit.New("kafka-diagnostics"),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// entryPayload is the JSON value of each published record.
type entryPayload struct {
	Time      string         `json:"time"`
	Level     string         `json:"level"`
	Component string         `json:"component"`
	Event     string         `json:"event"`
	Message   string         `json:"message"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

func (s *Sink) Record(ctx context.Context, e diagnostics.Entry) error {
	value, err := json.Marshal(toPayload(e))
	if err != nil {
		return fmt.Errorf("marshal diagnostic entry: %w", err)
	}
	rec := &kgo.Record{
		Topic:     s.topic,
		Key:       []byte(e.Component),
		Value:     value,
		Timestamp: e.Time,
	}
	if err := s.producer.ProduceSync(ctx, rec).FirstErr(); err != nil {
		useFallback, change := s.breaker.RecordFailure()
		if change.Opened {
			s.logger.WarnContext(ctx, "diagnostics topic unreachable, suppressing produce errors",
				"topic", s.topic, "error", err)
		}
		if useFallback {
			return nil
		}
		return fmt.Errorf("produce diagnostic entry: %w", err)
	}
	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.logger.InfoContext(ctx, "diagnostics topic reachable again", "topic", s.topic)
	}
	return nil
}

func toPayload(e diagnostics.Entry) entryPayload {
	return entryPayload{
		Time:      e.Time.UTC().Format(time.RFC3339Nano),
		Level:     string(e.Level),
		Component: e.Component,
		Event:     e.Event,
		Message:   e.Message,
		Attrs:     attrs.ToMap(e.Attrs),
	}
}
