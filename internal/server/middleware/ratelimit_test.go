package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gosuda/trajlog/internal/server/middleware"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitByIP(t *testing.T) {
	t.Parallel()

	t.Run("burst then 429", func(t *testing.T) {
		t.Parallel()

		h := middleware.RateLimitByIP(middleware.NewLimiters(0.001, 2))(okHandler())

		codes := make([]int, 0, 3)
		for range 3 {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "10.0.0.1:5555"
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			codes = append(codes, rec.Code)
		}

		assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	})

	t.Run("ports of one host share a bucket", func(t *testing.T) {
		t.Parallel()

		h := middleware.RateLimitByIP(middleware.NewLimiters(0.001, 1))(okHandler())

		first := httptest.NewRequest(http.MethodGet, "/", nil)
		first.RemoteAddr = "10.0.0.2:1000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, first)
		assert.Equal(t, http.StatusOK, rec.Code)

		second := httptest.NewRequest(http.MethodGet, "/", nil)
		second.RemoteAddr = "10.0.0.2:2000"
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, second)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	})

	t.Run("clients are independent", func(t *testing.T) {
		t.Parallel()

		h := middleware.RateLimitByIP(middleware.NewLimiters(0.001, 1))(okHandler())

		for _, addr := range []string{"10.0.0.3:1", "10.0.0.4:1"} {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = addr
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusOK, rec.Code, addr)
		}
	})
}

func TestLimiters_Sweep(t *testing.T) {
	t.Parallel()

	l := middleware.NewLimiters(1, 1)
	l.Allow("a")
	l.Allow("b")

	assert.Equal(t, 2, l.Sweep(time.Now().Add(-time.Minute)))
	assert.Equal(t, 0, l.Sweep(time.Now().Add(time.Minute)))
}
