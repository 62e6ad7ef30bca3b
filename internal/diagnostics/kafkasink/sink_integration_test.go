//go:build integration

package kafkasink_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"tracekeeper/internal/diagnostics"
	"tracekeeper/internal/diagnostics/kafkasink"
	"tracekeeper/internal/platform/config"
	"tracekeeper/internal/platform/kafka"
	"tracekeeper/pkg/testutil/containers"
)

const topic = "tracekeeper.diagnostics.it"

type SinkIntegrationSuite struct {
	suite.Suite
	brokers  []string
	producer *kgo.Client
}

func TestSinkIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(SinkIntegrationSuite))
}

func (s *SinkIntegrationSuite) SetupSuite() {
	s.brokers = containers.GetManager().GetRedpanda(s.T()).Brokers

	client, err := kafka.New(config.KafkaConfig{
		Brokers:          s.brokers,
		ClientID:         "tracekeeper-it",
		DiagnosticsTopic: topic,
	})
	s.Require().NoError(err)
	s.Require().NotNil(client)
	s.producer = client

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.Require().NoError(kafka.EnsureTopic(ctx, client, topic, 1, 1))
	s.Require().NoError(kafka.EnsureTopic(ctx, client, topic, 1, 1), "existing topic is not an error")
}

func (s *SinkIntegrationSuite) TearDownSuite() {
	if s.producer != nil {
		s.producer.Close()
	}
}

func (s *SinkIntegrationSuite) TestRecordIsConsumable() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sink := kafkasink.New(s.producer, topic)
	at := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	s.Require().NoError(sink.Record(ctx, diagnostics.Entry{
		Time:      at,
		Level:     diagnostics.LevelWarn,
		Component: diagnostics.ComponentAuditor,
		Event:     "excessive_fields",
		Message:   "too many distinct top-level fields",
		Attrs:     []any{"distinct", 150, "threshold", 100},
	}))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	var got *kgo.Record
	for got == nil {
		fetches := consumer.PollFetches(ctx)
		s.Require().NoError(ctx.Err(), "no record consumed before the deadline")
		for _, fe := range fetches.Errors() {
			s.Require().NoError(fe.Err)
		}
		fetches.EachRecord(func(r *kgo.Record) {
			if got == nil && string(r.Key) == diagnostics.ComponentAuditor {
				got = r
			}
		})
	}

	s.True(at.Equal(got.Timestamp))
	var payload map[string]any
	s.Require().NoError(json.Unmarshal(got.Value, &payload))
	s.Equal("WARN", payload["level"])
	s.Equal("quality_auditor", payload["component"])
	s.Equal("excessive_fields", payload["event"])
	s.Equal("2025-08-01T12:00:00Z", payload["time"])
	s.Equal(map[string]any{"distinct": float64(150), "threshold": float64(100)}, payload["attrs"])
}
