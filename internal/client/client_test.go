package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/drug/event.json", r.URL.Path)
		assert.Equal(t, "metformin", r.URL.Query().Get("search"))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, nil)
	body, err := c.Request(context.Background(), "/drug/event.json", url.Values{"search": {"metformin"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestRequestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, MaxRetries: 3, BackoffBase: 10 * time.Millisecond}, nil)
	_, err := c.Request(context.Background(), "/", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load(), "should succeed on third attempt")
}

func TestRequestExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, MaxRetries: 3, BackoffBase: 5 * time.Millisecond}, nil)
	_, err := c.Request(context.Background(), "/", nil)
	require.Error(t, err)

	var ce *ClientError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, KindExhausted, ce.Kind)
	assert.Equal(t, http.StatusInternalServerError, ce.Status)
	assert.Equal(t, int32(4), calls.Load(), "initial attempt plus three retries")
}

func TestRequestPermanentOn4xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad subject", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, MaxRetries: 3, BackoffBase: 5 * time.Millisecond}, nil)
	_, err := c.Request(context.Background(), "/", nil)
	require.Error(t, err)

	var ce *ClientError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, KindPermanent, ce.Kind)
	assert.Equal(t, http.StatusBadRequest, ce.Status)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, int32(1), calls.Load(), "4xx other than 429 must not be retried")
}

func TestRequestBackoffGrowsExponentially(t *testing.T) {
	var mu sync.Mutex
	var arrivals []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		arrivals = append(arrivals, time.Now())
		mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	base := 100 * time.Millisecond
	c := New(Config{BaseURL: srv.URL, MaxRetries: 2, BackoffBase: base}, nil)
	_, err := c.Request(context.Background(), "/", nil)
	require.Error(t, err)
	require.Len(t, arrivals, 3)

	// Retry k waits at least base * 2^k before firing (jitter only adds).
	assert.GreaterOrEqual(t, arrivals[1].Sub(arrivals[0]), base)
	assert.GreaterOrEqual(t, arrivals[2].Sub(arrivals[1]), 2*base)
}

func TestRequestHonorsRetryAfter(t *testing.T) {
	var calls atomic.Int32
	var firstAttempt, secondAttempt time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			firstAttempt = time.Now()
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			secondAttempt = time.Now()
			w.Write([]byte(`{}`))
		}
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, MaxRetries: 2, BackoffBase: 5 * time.Millisecond}, nil)
	_, err := c.Request(context.Background(), "/", nil)
	require.NoError(t, err)
	require.Equal(t, int32(2), calls.Load())

	gap := secondAttempt.Sub(firstAttempt)
	assert.GreaterOrEqual(t, gap, time.Second, "Retry-After must be honored exactly, not replaced by backoff")
	assert.Less(t, gap, 2*time.Second)
}

func TestRequestMinIntervalSpacesCalls(t *testing.T) {
	var mu sync.Mutex
	var arrivals []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		arrivals = append(arrivals, time.Now())
		mu.Unlock()
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, MinInterval: 150 * time.Millisecond}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Request(context.Background(), "/", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, arrivals, 3)
	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(arrivals); i++ {
		for j := 0; j < i; j++ {
			gap := arrivals[i].Sub(arrivals[j])
			if gap < 0 {
				gap = -gap
			}
			assert.GreaterOrEqual(t, gap, 140*time.Millisecond,
				"concurrent calls through one client must stay spaced")
		}
	}
}

func TestRequestContextCancelledWhileGated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, MinInterval: 5 * time.Second}, nil)

	// First call claims the gate.
	_, err := c.Request(context.Background(), "/", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Request(ctx, "/", nil)
	require.Error(t, err)

	var ce *ClientError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, KindTransient, ce.Kind)
}

func TestRequestJSON(t *testing.T) {
	t.Run("decodes valid body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"count": 7}`))
		}))
		defer srv.Close()

		c := New(Config{BaseURL: srv.URL}, nil)
		var out struct {
			Count int `json:"count"`
		}
		require.NoError(t, c.RequestJSON(context.Background(), "/", nil, &out))
		assert.Equal(t, 7, out.Count)
	})

	t.Run("malformed body is permanent", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{not json`))
		}))
		defer srv.Close()

		c := New(Config{BaseURL: srv.URL}, nil)
		var out map[string]any
		err := c.RequestJSON(context.Background(), "/", nil, &out)
		require.Error(t, err)

		var ce *ClientError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, KindPermanent, ce.Kind)
	})
}

func TestParseRetryAfter(t *testing.T) {
	d, ok := parseRetryAfter("3")
	require.True(t, ok)
	assert.Equal(t, 3*time.Second, d)

	d, ok = parseRetryAfter(time.Now().Add(2 * time.Second).UTC().Format(http.TimeFormat))
	require.True(t, ok)
	assert.Greater(t, d, time.Duration(0))
	assert.LessOrEqual(t, d, 2*time.Second)

	_, ok = parseRetryAfter("")
	assert.False(t, ok)
	_, ok = parseRetryAfter("garbage")
	assert.False(t, ok)
}

func TestBuildURL(t *testing.T) {
	c := New(Config{BaseURL: "https://api.fda.gov"}, nil)

	u, err := c.buildURL("/drug/event.json", url.Values{"limit": {"10"}})
	require.NoError(t, err)
	assert.Equal(t, "https://api.fda.gov/drug/event.json?limit=10", u)

	u, err = c.buildURL("/path", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://api.fda.gov/path", u)
}
