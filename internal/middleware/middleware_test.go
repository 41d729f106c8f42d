package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID(t *testing.T) {
	echo := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(RequestIDFromContext(r.Context())))
	}))

	t.Run("generates_an_id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		id := rec.Header().Get("X-Request-ID")
		require.NotEmpty(t, id)
		assert.Equal(t, id, rec.Body.String())
	})

	t.Run("reuses_the_inbound_id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "upstream-7")
		rec := httptest.NewRecorder()
		echo.ServeHTTP(rec, req)

		assert.Equal(t, "upstream-7", rec.Header().Get("X-Request-ID"))
		assert.Equal(t, "upstream-7", rec.Body.String())
	})
}

func TestRateLimiter(t *testing.T) {
	limited := RateLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 2})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	do := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		return rec.Code
	}

	t.Run("burst_then_429", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, do("10.0.0.1:1234"))
		assert.Equal(t, http.StatusOK, do("10.0.0.1:1234"))
		assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1:1234"))
	})

	t.Run("limits_are_per_client", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			require.Equal(t, http.StatusOK, do("10.0.0.2:1"))
		}
		assert.Equal(t, http.StatusOK, do("10.0.0.3:1"))
	})
}
