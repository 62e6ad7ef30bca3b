package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServe(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	t.Run("returns nil after cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		srv := New("127.0.0.1:0", http.NotFoundHandler())

		done := make(chan error, 1)
		go func() { done <- Serve(ctx, srv, logger) }()
		cancel()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("server did not shut down")
		}
	})

	t.Run("reports listener errors", func(t *testing.T) {
		srv := New("256.0.0.1:bad", http.NotFoundHandler())
		err := Serve(context.Background(), srv, logger)
		require.Error(t, err)
	})
}
