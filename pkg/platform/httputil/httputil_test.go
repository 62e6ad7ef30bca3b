package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "tracekeeper/pkg/domain-errors"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		status      int
		code        string
		description string
	}{
		{
			name:        "validation rejection",
			err:         dErrors.New(dErrors.CodeValidation, "missing trade_id"),
			status:      http.StatusUnprocessableEntity,
			code:        "validation_error",
			description: "missing trade_id",
		},
		{
			name:        "exhausted retries",
			err:         dErrors.Wrap(errors.New("dial tcp: refused"), dErrors.CodeUnavailable, "region EU unavailable"),
			status:      http.StatusServiceUnavailable,
			code:        "unavailable",
			description: "region EU unavailable",
		},
		{
			name:   "internal errors hide their message",
			err:    dErrors.New(dErrors.CodeInternal, "db failed"),
			status: http.StatusInternalServerError,
			code:   "internal_error",
		},
		{
			name:   "uncoded errors are internal",
			err:    errors.New("boom"),
			status: http.StatusInternalServerError,
			code:   "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err)

			assert.Equal(t, tt.status, w.Code)
			body := decodeError(t, w)
			assert.Equal(t, tt.code, body["error"])
			if tt.description == "" {
				assert.NotContains(t, body, "error_description")
			} else {
				assert.Equal(t, tt.description, body["error_description"])
			}
		})
	}
}

func TestReadBody(t *testing.T) {
	t.Run("within limit", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"attributes":{}}`))
		body, err := ReadBody(r)
		require.NoError(t, err)
		assert.JSONEq(t, `{"attributes":{}}`, string(body))
	})

	t.Run("over limit", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", maxBodyBytes+1)))
		_, err := ReadBody(r)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func TestDecodeJSON(t *testing.T) {
	type migration struct {
		From string `json:"from"`
	}

	t.Run("decodes", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"from":"1.25"}`))
		got, err := DecodeJSON[migration](r)
		require.NoError(t, err)
		assert.Equal(t, "1.25", got.From)
	})

	t.Run("empty body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
		_, err := DecodeJSON[migration](r)
		assert.Equal(t, "request body is empty", dErrors.MessageOf(err))
	})

	t.Run("unknown field", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"from":"1.25","purge":true}`))
		_, err := DecodeJSON[migration](r)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}
