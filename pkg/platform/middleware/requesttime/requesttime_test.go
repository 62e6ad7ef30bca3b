package requesttime

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tracekeeper/pkg/requestcontext"
)

func TestMiddleware(t *testing.T) {
	var first, second time.Time
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		first = requestcontext.Now(r.Context())
		time.Sleep(time.Millisecond)
		second = requestcontext.Now(r.Context())
	}))

	before := time.Now().UTC()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/audit", nil))

	assert.Equal(t, first, second, "one instant per request")
	assert.Equal(t, time.UTC, first.Location())
	assert.False(t, first.Before(before.Truncate(time.Microsecond)))
}
