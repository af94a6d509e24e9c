package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/citysense-ai/citysense/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() *retry.Executor {
	return retry.New(retry.Policy{
		MaxAttempts:          4,
		InitialDelay:         time.Millisecond,
		BackoffBase:          2,
		RetryableStatusCodes: map[int]bool{429: true, 500: true, 503: true, 504: true},
	})
}

func TestTavily_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "AQI Pune", body["query"])
		assert.Equal(t, "test-key", body["api_key"])
		assert.Equal(t, "basic", body["depth"])

		_, _ = w.Write([]byte(`{"results":[
			{"title":"Pune AQI today","url":"https://example.com/aqi","content":"AQI is 95"},
			{"title":"Weather","url":"https://example.com/wx","content":"Light winds"}
		]}`))
	}))
	defer srv.Close()

	tv := NewTavily("test-key", func(o *TavilyOptions) {
		o.Endpoint = srv.URL
		o.Retry = fastRetry()
	})

	results, err := tv.Search(context.Background(), "AQI Pune")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Pune AQI today", results[0].Title)
	assert.Equal(t, "AQI is 95", results[0].Snippet)
}

func TestTavily_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"results":[{"title":"ok","url":"u","content":"c"}]}`))
	}))
	defer srv.Close()

	tv := NewTavily("test-key", func(o *TavilyOptions) {
		o.Endpoint = srv.URL
		o.Retry = fastRetry()
	})

	results, err := tv.Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestTavily_NonRetryableStatusFailsFast(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tv := NewTavily("bad-key", func(o *TavilyOptions) {
		o.Endpoint = srv.URL
		o.Retry = fastRetry()
	})

	_, err := tv.Search(context.Background(), "q")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTavily_MissingAPIKey(t *testing.T) {
	tv := NewTavily("  ")
	_, err := tv.Search(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestTavily_CapsResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[
			{"title":"1"},{"title":"2"},{"title":"3"},{"title":"4"},{"title":"5"},{"title":"6"},{"title":"7"}
		]}`))
	}))
	defer srv.Close()

	tv := NewTavily("k", func(o *TavilyOptions) {
		o.Endpoint = srv.URL
		o.Retry = fastRetry()
	})

	results, err := tv.Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Len(t, results, 5)
}
