package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/ichiba/internal/model"
	"github.com/ashita-ai/ichiba/internal/ratelimit"
	"github.com/ashita-ai/ichiba/internal/testutil"
)

func testRunner(t *testing.T, cfg RunnerConfig, l ratelimit.Limiter) *Runner {
	t.Helper()
	if l == nil {
		l = ratelimit.NoopLimiter{}
	}
	return NewRunner("testprov", cfg, l, &http.Client{Timeout: 2 * time.Second}, testutil.TestLogger())
}

func fastRetries() RunnerConfig {
	return RunnerConfig{MaxAttempts: 3, BaseDelay: 2 * time.Millisecond}
}

func TestRunnerGetJSONSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		fmt.Fprint(w, `{"price": 1.5}`)
	}))
	defer srv.Close()

	r := testRunner(t, fastRetries(), nil)

	var out struct {
		Price float64 `json:"price"`
	}
	err := r.GetJSON(context.Background(), "quote", srv.URL+"/quote", &out)
	require.NoError(t, err)
	assert.Equal(t, 1.5, out.Price)
}

func TestRunnerPostJSONSendsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var in struct {
			Query string `json:"query"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "apple", in.Query)
		fmt.Fprint(w, `{"ok": true}`)
	}))
	defer srv.Close()

	r := testRunner(t, fastRetries(), nil)

	var out struct {
		OK bool `json:"ok"`
	}
	in := map[string]string{"query": "apple"}
	err := r.PostJSON(context.Background(), "search", srv.URL+"/search", in, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
}

func TestRunnerRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"price": 2}`)
	}))
	defer srv.Close()

	r := testRunner(t, fastRetries(), nil)

	var out struct {
		Price float64 `json:"price"`
	}
	err := r.GetJSON(context.Background(), "quote", srv.URL, &out)
	require.NoError(t, err, "the third attempt should succeed")
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, float64(2), out.Price)
}

func TestRunnerStopsAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := testRunner(t, fastRetries(), nil)

	var out map[string]any
	err := r.GetJSON(context.Background(), "quote", srv.URL, &out)
	require.Error(t, err)
	f := model.AsFailure(err)
	assert.Equal(t, model.KindUpstreamUnavailable, f.Kind)
	assert.True(t, f.Retriable)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRunnerDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "no such symbol", http.StatusNotFound)
	}))
	defer srv.Close()

	r := testRunner(t, fastRetries(), nil)

	var out map[string]any
	err := r.GetJSON(context.Background(), "quote", srv.URL, &out)
	require.Error(t, err)
	f := model.AsFailure(err)
	assert.Equal(t, model.KindUpstreamUnavailable, f.Kind)
	assert.False(t, f.Retriable)
	assert.Equal(t, int32(1), calls.Load(), "4xx must not be retried")
}

func TestRunnerUpstream429(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	r := testRunner(t, fastRetries(), nil)

	var out map[string]any
	err := r.GetJSON(context.Background(), "quote", srv.URL, &out)
	require.Error(t, err)
	f := model.AsFailure(err)
	assert.Equal(t, model.KindRateLimited, f.Kind)
	assert.True(t, f.Retriable)
	assert.Equal(t, int32(3), calls.Load(), "429 is retriable")
}

func TestRunnerUpstream408(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusRequestTimeout)
			return
		}
		fmt.Fprint(w, `{"price": 3}`)
	}))
	defer srv.Close()

	r := testRunner(t, fastRetries(), nil)

	var out struct {
		Price float64 `json:"price"`
	}
	err := r.GetJSON(context.Background(), "quote", srv.URL, &out)
	require.NoError(t, err, "408 is retriable, second attempt succeeds")
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, float64(3), out.Price)
}

func TestRunnerInvalidJSON(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{not json`)
	}))
	defer srv.Close()

	r := testRunner(t, fastRetries(), nil)

	var out map[string]any
	err := r.GetJSON(context.Background(), "quote", srv.URL, &out)
	require.Error(t, err)
	f := model.AsFailure(err)
	assert.Equal(t, model.KindInvalidUpstreamResponse, f.Kind)
	assert.False(t, f.Retriable)
	assert.Equal(t, int32(1), calls.Load(), "decode failures must not be retried")
}

func TestRunnerRejectPolicyFailsFast(t *testing.T) {
	ctx := context.Background()

	lim := ratelimit.NewMemoryLimiter(0, 1)
	defer lim.Close()
	_, _ = lim.Allow(ctx, "testprov") // spend the only token

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	cfg := fastRetries()
	cfg.Policy = PolicyReject
	r := testRunner(t, cfg, lim)

	var out map[string]any
	err := r.GetJSON(ctx, "quote", srv.URL, &out)
	require.Error(t, err)
	f := model.AsFailure(err)
	assert.Equal(t, model.KindRateLimited, f.Kind)
	assert.Equal(t, int32(0), calls.Load(), "rejected calls must not reach the upstream")
}

func TestRunnerWaitPolicyQueues(t *testing.T) {
	ctx := context.Background()

	// Fast refill: the queued call picks up a token on the first poll.
	lim := ratelimit.NewMemoryLimiter(1000, 1)
	defer lim.Close()
	_, _ = lim.Allow(ctx, "testprov")

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	cfg := fastRetries()
	cfg.Policy = PolicyWait
	cfg.MaxWait = 500 * time.Millisecond
	r := testRunner(t, cfg, lim)

	var out map[string]any
	err := r.GetJSON(ctx, "quote", srv.URL, &out)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRunnerNetworkErrorRetriable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	u := srv.URL
	srv.Close() // nothing listens anymore

	r := testRunner(t, RunnerConfig{MaxAttempts: 2, BaseDelay: time.Millisecond}, nil)

	var out map[string]any
	err := r.GetJSON(context.Background(), "quote", u, &out)
	require.Error(t, err)
	f := model.AsFailure(err)
	assert.Equal(t, model.KindUpstreamUnavailable, f.Kind)
	assert.True(t, f.Retriable)
}

func TestRunnerContextCancelDuringBackoff(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := testRunner(t, RunnerConfig{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var out map[string]any
	err := r.GetJSON(ctx, "quote", srv.URL, &out)
	require.Error(t, err)
	assert.Equal(t, model.KindTimeout, model.AsFailure(err).Kind)
	assert.Equal(t, int32(1), calls.Load(), "the deadline lands during the first backoff")
}

func TestRunnerClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	r := NewRunner("testprov", RunnerConfig{MaxAttempts: 1}, ratelimit.NoopLimiter{},
		&http.Client{Timeout: 20 * time.Millisecond}, testutil.TestLogger())

	var out map[string]any
	err := r.GetJSON(context.Background(), "quote", srv.URL, &out)
	require.Error(t, err)
	f := model.AsFailure(err)
	assert.Equal(t, model.KindTimeout, f.Kind)
	assert.True(t, f.Retriable)
}
