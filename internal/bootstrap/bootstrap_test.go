package bootstrap

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracekeeper/internal/platform/config"
	"tracekeeper/internal/trace/models"
)

func TestNewWiresMemoryPipeline(t *testing.T) {
	ctx := context.Background()
	diagPath := filepath.Join(t.TempDir(), "logs", "diagnostics.log")

	app, err := New(ctx, config.Server{
		DiagnosticLogPath: diagPath,
		DiagnosticsBuffer: 10,
		Store:             config.StoreConfig{Driver: DriverMemory},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "1.32", app.Schema.Current())
	assert.Contains(t, app.Health, "store")
	assert.NotContains(t, app.Health, "redis")
	assert.NotContains(t, app.Health, "region:US", "default regions publish no status url")
	require.NotNil(t, app.Lookup)

	event := time.Now().UTC()
	res, err := app.Dispatcher.DispatchCandidate(ctx, "US", &models.TraceRecord{
		Attributes: models.Attributes{"trade_id": "T-1", "level": "info"},
		EventTime:  &event,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.Len(t, app.Recorder.ByEvent("dispatch_attempt"), 1)

	require.NoError(t, app.Close())

	raw, err := os.ReadFile(diagPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"event":"dispatch_attempt"`)
}

func TestNewRegistersRegionStatusChecks(t *testing.T) {
	status := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(status.Close)

	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
regions:
  - id: US
    max_retries: 3
    status_url: `+status.URL+`/v1/status
  - id: EU
    max_retries: 3
`), 0o600))

	app, err := New(context.Background(), config.Server{PipelineConfigPath: path}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	require.Contains(t, app.Health, "region:US")
	assert.NotContains(t, app.Health, "region:EU")
	assert.ErrorContains(t, app.Health["region:US"](context.Background()), "status 503")
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := New(context.Background(), config.Server{
		Store: config.StoreConfig{Driver: "cassandra"},
	}, nil)
	assert.ErrorContains(t, err, `unknown store driver "cassandra"`)
}

func TestNewRejectsBadPipelineFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("current_version: \"9.9\"\n"), 0o600))

	_, err := New(context.Background(), config.Server{PipelineConfigPath: path}, nil)
	assert.Error(t, err)
}

func TestNewReleasesOpenedResourcesOnLateFailure(t *testing.T) {
	cfg := config.Server{
		DiagnosticLogPath: filepath.Join(t.TempDir(), "diagnostics.log"),
		Store:             config.StoreConfig{Driver: DriverMemory},
		Redis:             config.RedisConfig{URL: "http://localhost:6379"},
	}

	t.Run("New returns the error without panicking", func(t *testing.T) {
		var app *App
		var err error
		require.NotPanics(t, func() {
			app, err = New(context.Background(), cfg, nil)
		})
		assert.Nil(t, app)
		assert.ErrorContains(t, err, "parse redis URL")
	})

	t.Run("abort closes what build opened", func(t *testing.T) {
		pipeline, err := config.LoadPipeline("")
		require.NoError(t, err)
		app := &App{
			Config:   cfg,
			Pipeline: pipeline,
			Logger:   slog.New(slog.DiscardHandler),
			Health:   make(map[string]func(context.Context) error),
		}

		err = app.build(context.Background())
		require.ErrorContains(t, err, "parse redis URL")
		require.Len(t, app.closers, 1, "diagnostic file opened before the job lock")

		assert.Equal(t, err, app.abort(err))
		assert.Empty(t, app.closers)
		assert.NoError(t, app.Close())
	})
}
