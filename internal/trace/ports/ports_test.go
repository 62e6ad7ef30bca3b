package ports_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"tracekeeper/internal/diagnostics"
	"tracekeeper/internal/trace/ports"
	"tracekeeper/internal/trace/ports/mocks"
	"tracekeeper/pkg/requestcontext"
)

func TestEmit(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	t.Run("stamps time and request id", func(t *testing.T) {
		rec := diagnostics.NewRecorder(0)
		ctx := requestcontext.WithRequestID(context.Background(), "req-7")

		ports.Emit(ctx, logger, rec, diagnostics.Entry{
			Level:     diagnostics.LevelWarn,
			Component: diagnostics.ComponentDispatcher,
			Event:     "insert_attempt_failed",
			Attrs:     []any{"region", "EU"},
		})

		entries := rec.Entries()
		require.Len(t, entries, 1)
		assert.False(t, entries[0].Time.IsZero())
		assert.Equal(t, "req-7", entries[0].Attr("request_id"))
		assert.Equal(t, "EU", entries[0].Attr("region"))
	})

	t.Run("keeps an explicit request id and time", func(t *testing.T) {
		rec := diagnostics.NewRecorder(0)
		ctx := requestcontext.WithRequestID(context.Background(), "req-7")
		at := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)

		ports.Emit(ctx, logger, rec, diagnostics.Entry{Time: at, Level: diagnostics.LevelInfo, Attrs: []any{"request_id", "job-1"}})

		entries := rec.Entries()
		require.Len(t, entries, 1)
		assert.Equal(t, at, entries[0].Time)
		assert.Equal(t, "job-1", entries[0].Attr("request_id"))
		assert.Len(t, entries[0].Attrs, 2)
	})

	t.Run("sink failure is not fatal", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		sink := mocks.NewMockDiagnosticSink(ctrl)
		sink.EXPECT().Record(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))

		assert.NotPanics(t, func() {
			ports.Emit(context.Background(), logger, sink, diagnostics.Entry{Level: diagnostics.LevelError})
		})
	})

	t.Run("nil sink and logger", func(t *testing.T) {
		assert.NotPanics(t, func() {
			ports.Emit(context.Background(), nil, nil, diagnostics.Entry{Level: diagnostics.LevelInfo})
		})
	})
}
