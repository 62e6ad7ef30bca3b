package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPipelineIsValid(t *testing.T) {
	p := DefaultPipeline()
	require.NoError(t, p.Validate())
	assert.Equal(t, "1.32", p.CurrentVersion)
	assert.Equal(t, 100, p.Quality.MaxFields)
	assert.Equal(t, time.Hour, p.Quality.TimeGapThreshold)
	require.Len(t, p.Regions, 2)
	assert.Equal(t, 3, p.Regions[0].MaxRetries)
}

func TestParsePipeline(t *testing.T) {
	t.Run("overrides lists and durations", func(t *testing.T) {
		raw := []byte(`
current_version: "1.33"
known_versions: ["1.25", "1.32", " 1.33", "1.32"]
regions:
  - id: APAC
    endpoint: apac.zero0x.trade
    max_retries: 5
    backoff:
      initial: 50ms
      max: 1s
version_changes:
  - target: "1.33"
    renames:
      - from: trade.type
        to: trade.kind
quality:
  max_fields: 20
  time_gap_threshold: 30m
`)
		p, err := ParsePipeline(raw)
		require.NoError(t, err)

		assert.Equal(t, []string{"1.25", "1.32", "1.33"}, p.KnownVersions)
		require.Len(t, p.Regions, 1)
		assert.Equal(t, "APAC", p.Regions[0].ID)
		assert.Equal(t, 50*time.Millisecond, p.Regions[0].Backoff.Initial)
		assert.Equal(t, 30*time.Minute, p.Quality.TimeGapThreshold)
		assert.Equal(t, 20, p.Quality.MaxFields)
		assert.Equal(t, 500, p.Migration.BatchSize, "untouched sections keep defaults")
	})

	t.Run("rejects inconsistent config", func(t *testing.T) {
		raw := []byte(`
current_version: "2.0"
regions:
  - id: US
    max_retries: 0
  - id: US
    max_retries: 1
version_changes:
  - target: "9.9"
    renames:
      - from: ""
        to: x
      - from: y
        to: x
`)
		_, err := ParsePipeline(raw)
		require.Error(t, err)
		msg := err.Error()
		assert.Contains(t, msg, `current_version "2.0"`)
		assert.Contains(t, msg, "max_retries must be at least 1")
		assert.Contains(t, msg, `region "US" declared twice`)
		assert.Contains(t, msg, `target "9.9" is not a known version`)
		assert.Contains(t, msg, "rename paths must be non-empty")
		assert.Contains(t, msg, `"x" is the destination of more than one rename`)
	})

	t.Run("region status url", func(t *testing.T) {
		p, err := ParsePipeline([]byte(`
regions:
  - id: US
    max_retries: 3
    status_url: https://us.example.test/v1/status
`))
		require.NoError(t, err)
		assert.Equal(t, "https://us.example.test/v1/status", p.Regions[0].StatusURL)

		_, err = ParsePipeline([]byte(`
regions:
  - id: US
    max_retries: 3
    status_url: us.example.test/v1/status
`))
		assert.ErrorContains(t, err, `region "US": status_url must be an absolute http(s) URL`)
	})

	t.Run("rejects renames of store-tagged attributes", func(t *testing.T) {
		raw := []byte(`
version_changes:
  - target: "1.32"
    renames:
      - from: region_id
        to: legacy.region
      - from: custom.version
        to: semconv_version.value
`)
		_, err := ParsePipeline(raw)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"region_id" is a reserved attribute`)
		assert.Contains(t, err.Error(), `"semconv_version.value" is a reserved attribute`)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := ParsePipeline([]byte("regions: [oops"))
		assert.ErrorContains(t, err, "decode pipeline config")
	})
}

func TestLoadPipeline(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		p, err := LoadPipeline("")
		require.NoError(t, err)
		assert.Equal(t, DefaultPipeline(), p)
	})

	t.Run("reads file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "pipeline.yaml")
		require.NoError(t, os.WriteFile(path, []byte("quality:\n  max_fields: 5\n"), 0o600))
		p, err := LoadPipeline(path)
		require.NoError(t, err)
		assert.Equal(t, 5, p.Quality.MaxFields)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadPipeline(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorContains(t, err, "read pipeline config")
	})
}
