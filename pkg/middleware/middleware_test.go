// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jontk/batchsched/pkg/logging"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestChainOrder(t *testing.T) {
	var order []string
	var mu sync.Mutex

	mk := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				mu.Lock()
				order = append(order, name)
				mu.Unlock()
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(mk("first"), mk("second"), mk("third"))(okHandler())
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestWithRecovery(t *testing.T) {
	panicky := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	WithRecovery(logging.NoOpLogger{})(panicky).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWithRequestIDGeneratesAndPropagates(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	})

	rec := httptest.NewRecorder()
	WithRequestID(func() string { return "req-123" })(inner).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "req-123", seen)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}

func TestWithRequestIDKeepsCallerProvidedID(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "caller-id")

	WithRequestID(func() string { return "generated" })(okHandler()).ServeHTTP(rec, req)
	assert.Equal(t, "caller-id", rec.Header().Get("X-Request-ID"))
}

type recordingCollector struct {
	mu        sync.Mutex
	requests  []string
	responses []int
}

func (c *recordingCollector) RecordRequest(op, target string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, op+" "+target)
}

func (c *recordingCollector) RecordResponse(op string, code int, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, code)
}

func TestWithMetrics(t *testing.T) {
	collector := &recordingCollector{}
	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	WithMetrics(collector)(notFound).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/status/jobs", nil))

	require.Len(t, collector.requests, 1)
	assert.Equal(t, "GET /status/jobs", collector.requests[0])
	assert.Equal(t, []int{http.StatusNotFound}, collector.responses)
}

func TestWithTimeoutExpiresContext(t *testing.T) {
	done := make(chan struct{})
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			close(done)
		case <-time.After(time.Second):
		}
	})

	go WithTimeout(10 * time.Millisecond)(inner).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("handler context never expired")
	}
}

func TestWithLoggingPassesThrough(t *testing.T) {
	rec := httptest.NewRecorder()
	WithLogging(logging.NoOpLogger{})(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
