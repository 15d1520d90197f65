package httpclient

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestNew(t *testing.T) {
	t.Run("nil config uses defaults", func(t *testing.T) {
		client := New(nil)
		require.NotNil(t, client, "expected non-nil client")
		assert.Equal(t, DefaultTimeout, client.defaultTimeout, "expected default timeout")
		assert.Equal(t, defaultUserAgent, client.userAgent, "expected default user agent")
	})

	t.Run("custom config", func(t *testing.T) {
		client := New(&Config{DefaultTimeout: 5 * time.Second, UserAgent: "TestAgent/1.0"})
		assert.Equal(t, 5*time.Second, client.defaultTimeout, "expected timeout 5s")
		assert.Equal(t, "TestAgent/1.0", client.userAgent, "expected custom user agent")
	})
}

func TestGet(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method, "expected GET method")
		assert.Equal(t, defaultUserAgent, r.Header.Get("User-Agent"), "expected injected user agent")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	client := New(nil)
	defer client.Close()

	resp, err := client.Get(t.Context(), server.URL)
	require.NoError(t, err, "request failed")
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "failed to read body")
	assert.Equal(t, "ok", string(body), "expected body 'ok'")
}

func TestAuthTokenInjection(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"), "expected bearer token")
		w.WriteHeader(http.StatusOK)
	})

	client := New(&Config{AuthToken: "secret"})
	defer client.Close()

	resp, err := client.Get(t.Context(), server.URL)
	require.NoError(t, err, "request failed")
	_ = resp.Body.Close()
}

func TestDefaultTimeoutApplied(t *testing.T) {
	started := make(chan struct{})
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	})

	client := New(&Config{DefaultTimeout: 100 * time.Millisecond})
	defer client.Close()

	_, err := client.Get(t.Context(), server.URL)
	require.Error(t, err, "expected timeout error")
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("server never saw the request")
	}
}

func TestAfterResponseHook(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	client := New(nil)
	defer client.Close()

	var hookCalls atomic.Int32
	client.SetAfterResponseHook(func(req *http.Request, resp *http.Response, err error) {
		hookCalls.Add(1)
		assert.NoError(t, err, "hook should see no transport error")
		assert.Equal(t, http.StatusTeapot, resp.StatusCode, "hook should see the response")
	})

	resp, err := client.Get(t.Context(), server.URL)
	require.NoError(t, err, "request failed")
	_ = resp.Body.Close()

	assert.Equal(t, int32(1), hookCalls.Load(), "hook should run once per request")
}

func TestDoNilRequest(t *testing.T) {
	client := New(nil)
	defer client.Close()

	_, err := client.Do(t.Context(), nil)
	assert.Error(t, err, "nil request should be rejected")
}
