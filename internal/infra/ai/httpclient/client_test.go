package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string) (*Client, *[]time.Duration) {
	c := New(baseURL, 5*time.Second)
	var delays []time.Duration
	c.sleep = func(d time.Duration) { delays = append(delays, d) }
	return c, &delays
}

func TestAnalyzeVulnVerdict(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/scan", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		buf, _ := io.ReadAll(r.Body)
		gotBody = string(buf)
		w.Write([]byte(`{"label":"VULN","confidence":0.93}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(srv.URL)
	res, err := c.Analyze(context.Background(), `eval(input())`)
	require.NoError(t, err)

	assert.True(t, res.HasVulnerabilities)
	assert.Equal(t, 0.93, res.Confidence)
	assert.Equal(t, `{"label":"VULN","confidence":0.93}`, res.RawResponse)
	assert.JSONEq(t, `{"code":"eval(input())"}`, gotBody)
}

func TestAnalyzeSafeVerdict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"label":"SAFE","confidence":0.71}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(srv.URL)
	res, err := c.Analyze(context.Background(), "print(1)")
	require.NoError(t, err)

	assert.False(t, res.HasVulnerabilities)
	assert.Equal(t, 0.71, res.Confidence)
}

func TestAnalyzeRetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls <= 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"label":"VULN","confidence":0.5}`))
	}))
	defer srv.Close()

	c, delays := newTestClient(srv.URL)
	res, err := c.Analyze(context.Background(), "code")
	require.NoError(t, err)

	assert.True(t, res.HasVulnerabilities)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, *delays)
}

func TestAnalyzeRetriesRateLimited(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"label":"SAFE","confidence":0.9}`))
	}))
	defer srv.Close()

	c, delays := newTestClient(srv.URL)
	_, err := c.Analyze(context.Background(), "code")
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	assert.Equal(t, []time.Duration{2 * time.Second}, *delays)
}

func TestAnalyzeGivesUpAfterRetries(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, delays := newTestClient(srv.URL)
	_, err := c.Analyze(context.Background(), "code")
	require.Error(t, err)

	assert.Contains(t, err.Error(), "502")
	assert.Equal(t, 4, calls)
	assert.Len(t, *delays, 3)
}

func TestAnalyzeNoRetryOnClientError(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "bad payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	c, delays := newTestClient(srv.URL)
	_, err := c.Analyze(context.Background(), "code")
	require.Error(t, err)

	assert.Equal(t, 1, calls)
	assert.Empty(t, *delays)
}

func TestAnalyzeRetriesConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	c, delays := newTestClient(srv.URL)
	_, err := c.Analyze(context.Background(), "code")
	require.Error(t, err)

	assert.Len(t, *delays, 3)
}

func TestAnalyzeInvalidResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c, _ := newTestClient(srv.URL)
	_, err := c.Analyze(context.Background(), "code")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid ai response")
}

func TestAnalyzeContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c, _ := newTestClient(srv.URL)
	_, err := c.Analyze(ctx, "code")
	require.Error(t, err)
}
