package kafkasink

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"tracekeeper/internal/diagnostics"
	"tracekeeper/pkg/platform/circuit"
)

type fakeProducer struct {
	records []*kgo.Record
	err     error
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	f.records = append(f.records, rs...)
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		results = append(results, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return results
}

func TestSinkRecord(t *testing.T) {
	ctx := context.Background()
	entry := diagnostics.Entry{
		Time:      time.Date(2025, 10, 12, 8, 0, 0, 0, time.UTC),
		Level:     diagnostics.LevelWarn,
		Component: diagnostics.ComponentAuditor,
		Event:     "large_time_gap",
		Message:   "store time far behind event time",
		Attrs:     []any{"record_id", "r1", "gap_seconds", 7200.0, "error", errors.New("x")},
	}

	t.Run("publishes one keyed JSON record", func(t *testing.T) {
		p := &fakeProducer{}
		require.NoError(t, New(p, "tracekeeper.diagnostics").Record(ctx, entry))

		require.Len(t, p.records, 1)
		rec := p.records[0]
		assert.Equal(t, "tracekeeper.diagnostics", rec.Topic)
		assert.Equal(t, "quality_auditor", string(rec.Key))

		var payload map[string]any
		require.NoError(t, json.Unmarshal(rec.Value, &payload))
		assert.Equal(t, "WARN", payload["level"])
		assert.Equal(t, "large_time_gap", payload["event"])
		attrs := payload["attrs"].(map[string]any)
		assert.Equal(t, "r1", attrs["record_id"])
		assert.Equal(t, 7200.0, attrs["gap_seconds"])
		assert.Equal(t, "x", attrs["error"])
	})

	t.Run("broker failure is returned", func(t *testing.T) {
		p := &fakeProducer{err: errors.New("not leader")}
		err := New(p, "t").Record(ctx, entry)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not leader")
	})
}

func TestSinkBreaker(t *testing.T) {
	ctx := context.Background()
	entry := diagnostics.Entry{Time: time.Now(), Level: diagnostics.LevelInfo, Component: "dispatcher", Event: "dispatch_attempt"}
	p := &fakeProducer{err: errors.New("broker down")}
	breaker := circuit.New("test", circuit.WithFailureThreshold(2), circuit.WithSuccessThreshold(1))
	sink := New(p, "t", WithBreaker(breaker))

	assert.Error(t, sink.Record(ctx, entry), "first failure surfaces")
	assert.NoError(t, sink.Record(ctx, entry), "threshold reached, breaker opens")
	assert.True(t, breaker.IsOpen())
	assert.NoError(t, sink.Record(ctx, entry), "open breaker swallows failures")
	assert.Len(t, p.records, 3, "every entry is still attempted")

	p.err = nil
	require.NoError(t, sink.Record(ctx, entry))
	assert.False(t, breaker.IsOpen())
}
