package eventstream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beyproweb/beypro-notify/internal/httpclient"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// socketServer is a minimal backend double: it records the first frame of
// every connection and lets tests push frames to the newest client.
type socketServer struct {
	t *testing.T

	mu       sync.Mutex
	conn     *websocket.Conn
	tenants  []string
	firstMsg []Frame

	connected chan struct{}
}

func newSocketServer(t *testing.T) (*socketServer, *httptest.Server) {
	t.Helper()
	s := &socketServer{t: t, connected: make(chan struct{}, 16)}
	ts := httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(ts.Close)
	return s, ts
}

func (s *socketServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := testUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	var first Frame
	if err := conn.ReadJSON(&first); err != nil {
		_ = conn.Close()
		return
	}

	s.mu.Lock()
	s.conn = conn
	s.tenants = append(s.tenants, r.URL.Query().Get("restaurantId"))
	s.firstMsg = append(s.firstMsg, first)
	s.mu.Unlock()
	s.connected <- struct{}{}

	// Drain pings until the client goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *socketServer) send(frame Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(frame)
}

func (s *socketServer) dropClient() {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.Close()
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func testBridge(ts *httptest.Server) *Bridge {
	cfg := DefaultConfig()
	cfg.SocketURL = wsURL(ts)
	cfg.ReconnectAttempts = 3
	cfg.ReconnectDelay = 20 * time.Millisecond
	return NewBridge(cfg, nil)
}

func TestBridgeJoinsBeforeCallbacks(t *testing.T) {
	server, ts := newSocketServer(t)

	bridge := testBridge(ts)
	defer bridge.Close()

	connectFired := make(chan struct{}, 1)
	bridge.OnConnect(func() { connectFired <- struct{}{} })

	bridge.SetTenant("rest-42")
	waitFor(t, server.connected, "server-side connect")
	waitFor(t, connectFired, "connect callback")

	server.mu.Lock()
	defer server.mu.Unlock()
	require.Len(t, server.firstMsg, 1, "exactly one connection expected")
	assert.Equal(t, "join_restaurant", server.firstMsg[0].Event,
		"channel join must be the first frame on the wire")
	assert.JSONEq(t, `{"restaurantId":"rest-42"}`, string(server.firstMsg[0].Data),
		"join frame should carry the tenant")
	assert.Equal(t, []string{"rest-42"}, server.tenants, "tenant should ride the dial query")
	assert.True(t, bridge.IsConnected(), "bridge should report connected")
	assert.Equal(t, TransportWebsocket, bridge.CurrentTransport(), "websocket transport expected")
}

func TestBridgeDispatchesBoundEvents(t *testing.T) {
	server, ts := newSocketServer(t)

	bridge := testBridge(ts)
	defer bridge.Close()

	got := make(chan string, 4)
	bridge.Bind([]Binding{
		{Event: "order_confirmed", Handler: func(event string, data json.RawMessage) {
			got <- event + ":" + string(data)
		}},
	})

	bridge.SetTenant("rest-1")
	waitFor(t, server.connected, "server-side connect")

	require.NoError(t, server.send(Frame{Event: "order_confirmed", Data: json.RawMessage(`{"id":7}`)}),
		"failed to push bound event")
	require.NoError(t, server.send(Frame{Event: "orders_updated", Data: json.RawMessage(`{}`)}),
		"failed to push unbound event")
	require.NoError(t, server.send(Frame{Event: "order_confirmed", Data: json.RawMessage(`{"id":8}`)}),
		"failed to push second bound event")

	assert.Equal(t, `order_confirmed:{"id":7}`, <-got, "first bound event should arrive")
	assert.Equal(t, `order_confirmed:{"id":8}`, <-got, "unbound event must be skipped silently")
}

func TestBridgeReconnectsAndRefires(t *testing.T) {
	server, ts := newSocketServer(t)

	bridge := testBridge(ts)
	defer bridge.Close()

	var fires atomic.Int32
	refired := make(chan struct{}, 4)
	bridge.OnConnect(func() {
		fires.Add(1)
		refired <- struct{}{}
	})

	bridge.SetTenant("rest-9")
	waitFor(t, server.connected, "initial connect")
	waitFor(t, refired, "initial callback")
	gen1 := bridge.Generation()

	server.dropClient()

	waitFor(t, server.connected, "reconnect")
	waitFor(t, refired, "callback after reconnect")

	assert.Equal(t, int32(2), fires.Load(), "callback should fire once per connect")
	assert.Greater(t, bridge.Generation(), gen1, "generation should advance on reconnect")

	server.mu.Lock()
	defer server.mu.Unlock()
	require.Len(t, server.firstMsg, 2, "both connections expected")
	assert.Equal(t, "join_restaurant", server.firstMsg[1].Event,
		"channel must be rejoined after reconnect")
}

func TestBridgeTenantLossTearsDown(t *testing.T) {
	server, ts := newSocketServer(t)

	bridge := testBridge(ts)
	defer bridge.Close()

	bridge.SetTenant("rest-5")
	waitFor(t, server.connected, "connect")

	bridge.SetTenant("")

	assert.False(t, bridge.IsConnected(), "tenant loss must disconnect")
	assert.Equal(t, TransportNone, bridge.CurrentTransport(), "no transport after teardown")
	assert.Empty(t, bridge.Tenant(), "tenant should be cleared")
}

func TestBridgeSetTenantIdempotent(t *testing.T) {
	server, ts := newSocketServer(t)

	bridge := testBridge(ts)
	defer bridge.Close()

	bridge.SetTenant("rest-3")
	waitFor(t, server.connected, "connect")

	bridge.SetTenant("rest-3")

	select {
	case <-server.connected:
		t.Fatal("same tenant must not trigger a reconnect")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestBridgeFallsBackToPolling(t *testing.T) {
	var cursors []string
	var mu sync.Mutex
	pollSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		cursors = append(cursors, r.URL.Query().Get("cursor"))
		first := len(cursors) == 1
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if first {
			_, _ = w.Write([]byte(`{"events":[{"event":"payment_made","data":{"amount":12}}],"cursor":"c1"}`))
			return
		}
		// Long poll with nothing new: hold briefly, return empty batch.
		time.Sleep(50 * time.Millisecond)
		_, _ = w.Write([]byte(`{"events":[],"cursor":"c1"}`))
	}))
	defer pollSrv.Close()

	cfg := DefaultConfig()
	cfg.SocketURL = "ws://127.0.0.1:1/unreachable"
	cfg.PollURL = pollSrv.URL
	cfg.ReconnectAttempts = 1
	cfg.ReconnectDelay = 10 * time.Millisecond

	client := httpclient.New(&httpclient.Config{DefaultTimeout: 5 * time.Second})
	defer client.Close()

	bridge := NewBridge(cfg, client)
	defer bridge.Close()

	connectFired := make(chan struct{}, 1)
	bridge.OnConnect(func() { connectFired <- struct{}{} })

	got := make(chan string, 1)
	bridge.Bind([]Binding{
		{Event: "payment_made", Handler: func(event string, data json.RawMessage) {
			got <- string(data)
		}},
	})

	bridge.SetTenant("rest-7")
	waitFor(t, connectFired, "polling connect callback")

	assert.JSONEq(t, `{"amount":12}`, <-got, "polled event should be dispatched")
	assert.Equal(t, TransportPolling, bridge.CurrentTransport(), "polling transport expected")
	assert.True(t, bridge.IsConnected(), "polling counts as connected")

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(cursors), 1, "at least one poll expected")
	assert.Empty(t, cursors[0], "first poll starts without a cursor")
}

func TestBridgeSerializesConcurrentTenantChanges(t *testing.T) {
	server, ts := newSocketServer(t)

	bridge := testBridge(ts)
	defer bridge.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			bridge.SetTenant(fmt.Sprintf("rest-%d", i%2))
		}(i)
	}
	wg.Wait()

	// Let the surviving connection settle, then drain the connect signals.
	for drained := false; !drained; {
		select {
		case <-server.connected:
		case <-time.After(500 * time.Millisecond):
			drained = true
		}
	}

	tenant := bridge.Tenant()
	require.NotEmpty(t, tenant, "a tenant must survive the churn")
	require.True(t, bridge.IsConnected(), "the surviving tenant should be connected")

	// Exactly one run loop may own the stream: dropping the connection
	// must produce exactly one reconnect, for the surviving tenant.
	server.dropClient()
	waitFor(t, server.connected, "reconnect after drop")

	server.mu.Lock()
	lastTenant := server.tenants[len(server.tenants)-1]
	server.mu.Unlock()
	assert.Equal(t, tenant, lastTenant, "reconnect must carry the surviving tenant")

	select {
	case <-server.connected:
		t.Fatal("a second run loop reconnected for a stale tenant")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestBridgeRecoversWebsocketFromPolling(t *testing.T) {
	var wsUp atomic.Bool
	server := &socketServer{t: t, connected: make(chan struct{}, 16)}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !wsUp.Load() {
			http.Error(w, "socket backend down", http.StatusServiceUnavailable)
			return
		}
		server.handle(w, r)
	}))
	defer ts.Close()

	pollSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(20 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"events":[],"cursor":"c1"}`))
	}))
	defer pollSrv.Close()

	cfg := DefaultConfig()
	cfg.SocketURL = wsURL(ts)
	cfg.PollURL = pollSrv.URL
	cfg.ReconnectAttempts = 1
	cfg.ReconnectDelay = 10 * time.Millisecond
	cfg.TransportRetryInterval = 150 * time.Millisecond

	client := httpclient.New(&httpclient.Config{DefaultTimeout: 5 * time.Second})
	defer client.Close()

	bridge := NewBridge(cfg, client)
	defer bridge.Close()

	connectFired := make(chan struct{}, 8)
	bridge.OnConnect(func() { connectFired <- struct{}{} })

	bridge.SetTenant("rest-11")
	waitFor(t, connectFired, "polling connect callback")
	assert.Equal(t, TransportPolling, bridge.CurrentTransport(), "polling fallback expected first")

	// The websocket backend comes back: the next retry window should move
	// the bridge off the fallback transport.
	wsUp.Store(true)
	waitFor(t, server.connected, "websocket reconnect")
	assert.Equal(t, TransportWebsocket, bridge.CurrentTransport(), "websocket transport should be restored")
	assert.True(t, bridge.IsConnected(), "bridge should stay connected across the switch")
}

func TestBridgeBindReplacesTable(t *testing.T) {
	server, ts := newSocketServer(t)

	bridge := testBridge(ts)
	defer bridge.Close()

	oldHits := make(chan struct{}, 4)
	bridge.Bind([]Binding{
		{Event: "order_ready", Handler: func(string, json.RawMessage) { oldHits <- struct{}{} }},
	})

	bridge.SetTenant("rest-2")
	waitFor(t, server.connected, "connect")

	newHits := make(chan struct{}, 4)
	bridge.Bind([]Binding{
		{Event: "stock_critical", Handler: func(string, json.RawMessage) { newHits <- struct{}{} }},
	})

	require.NoError(t, server.send(Frame{Event: "order_ready"}), "failed to push event")
	require.NoError(t, server.send(Frame{Event: "stock_critical"}), "failed to push event")

	waitFor(t, newHits, "handler from the new table")
	select {
	case <-oldHits:
		t.Fatal("handler from the replaced table must not fire")
	default:
	}
}
