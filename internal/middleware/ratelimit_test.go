package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"

	"podplayer/internal/middleware"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestFrom(addr string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.RemoteAddr = addr
	return req
}

func TestRateLimiterAllowsWithinBurst(t *testing.T) {
	rl := middleware.NewRateLimiterMiddleware(rate.Limit(1), 3)
	handler := rl.Middleware(okHandler())

	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, requestFrom("127.0.0.1:50000"))
		assert.Equal(t, http.StatusOK, rr.Code)
	}
}

func TestRateLimiterRejectsBeyondBurst(t *testing.T) {
	rl := middleware.NewRateLimiterMiddleware(rate.Limit(1), 2)
	handler := rl.Middleware(okHandler())

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, requestFrom("127.0.0.1:50000"))
		assert.Equal(t, http.StatusOK, rr.Code)
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, requestFrom("127.0.0.1:50000"))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestRateLimiterIsPerHost(t *testing.T) {
	rl := middleware.NewRateLimiterMiddleware(rate.Limit(1), 1)
	handler := rl.Middleware(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, requestFrom("10.0.0.1:1111"))
	assert.Equal(t, http.StatusOK, rr.Code)

	// Exhausting one host's budget leaves another untouched. Ports don't
	// matter, only the host.
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, requestFrom("10.0.0.1:2222"))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, requestFrom("10.0.0.2:1111"))
	assert.Equal(t, http.StatusOK, rr.Code)
}
