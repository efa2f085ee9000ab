package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(opts ...Option) *Client {
	opts = append([]Option{WithInitialBackoff(time.Millisecond)}, opts...)
	return NewClient(opts...)
}

func TestExecute_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "grantpost-test", r.Header.Get("User-Agent"))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := newTestClient(WithUserAgent("grantpost-test"))
	body, err := client.Execute(context.Background(), server.URL)

	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestExecute_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newTestClient(WithMaxRetries(3))
	_, err := client.Execute(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestExecute_ExhaustsRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(WithMaxRetries(3))
	_, err := client.Execute(context.Background(), server.URL)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, ErrServerStatus)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestExecute_ClientErrorsNotRetried(t *testing.T) {
	tests := []struct {
		status   int
		category error
	}{
		{http.StatusBadRequest, ErrBadRequest},
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusMethodNotAllowed, ErrMethodNotAllowed},
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusConflict, ErrClientStatus},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"message":"rejected by upstream"}`))
			}))
			defer server.Close()

			client := newTestClient(WithMaxRetries(3))
			_, err := client.Execute(context.Background(), server.URL)

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.category)
			assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

			var statusErr *StatusError
			require.True(t, errors.As(err, &statusErr))
			assert.Equal(t, tt.status, statusErr.StatusCode)
			assert.Equal(t, "rejected by upstream", statusErr.Message)
		})
	}
}

func TestExecute_TransportFailureRetried(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := newTestClient(WithMaxRetries(2))
	_, err := client.Execute(context.Background(), url)

	assert.ErrorIs(t, err, ErrRetriesExhausted)
}

func TestExecute_ContextCancelledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(WithMaxRetries(3), WithInitialBackoff(time.Hour))
	client.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := client.Execute(ctx, server.URL)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoffDoubles(t *testing.T) {
	client := NewClient(WithInitialBackoff(time.Second))

	assert.Equal(t, time.Second, client.Backoff(0))
	assert.Equal(t, 2*time.Second, client.Backoff(1))
	assert.Equal(t, 4*time.Second, client.Backoff(2))
}

func TestHead(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	status, err := NewClient().Head(context.Background(), server.URL, time.Second)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
}
