package eventstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/beyproweb/beypro-notify/internal/events"
	"github.com/beyproweb/beypro-notify/internal/httpclient"
	"github.com/beyproweb/beypro-notify/internal/logging"
)

// Bridge maintains at most one live event stream per tenant identity.
// The connection is exclusively owned here; consumers see it only through
// bound handlers, connect callbacks and status accessors.
type Bridge struct {
	config     Config
	httpClient *httpclient.Client
	logger     *slog.Logger

	// opMu serializes SetTenant and Close end to end, so a teardown and
	// the reopen that follows are never interleaved by a second caller.
	opMu sync.Mutex

	mu     sync.Mutex
	tenant string
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool

	bindMu    sync.RWMutex
	bindings  map[string]Handler
	onConnect []func()

	generation atomic.Uint64
	connected  atomic.Bool
	transport  atomic.Value // Transport
}

// NewBridge creates a bridge with the given connection policy. The HTTP
// client backs the long-poll fallback.
func NewBridge(config Config, httpClient *httpclient.Client) *Bridge {
	if config.ReconnectAttempts <= 0 {
		config.ReconnectAttempts = DefaultConfig().ReconnectAttempts
	}
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = DefaultConfig().ReconnectDelay
	}
	if config.TransportRetryInterval <= 0 {
		config.TransportRetryInterval = DefaultConfig().TransportRetryInterval
	}
	if config.ClientID == "" {
		config.ClientID = uuid.NewString()
	}
	b := &Bridge{
		config:     config,
		httpClient: httpClient,
		logger:     logging.ForService("eventstream"),
		bindings:   make(map[string]Handler),
	}
	b.transport.Store(TransportNone)
	return b
}

// OnConnect registers a callback fired after every successful (re)connect,
// once the tenant channel has been joined. Callbacks run on a dedicated
// goroutine per connect and may block.
func (b *Bridge) OnConnect(fn func()) {
	b.bindMu.Lock()
	defer b.bindMu.Unlock()
	b.onConnect = append(b.onConnect, fn)
}

// Bind atomically replaces the handler table. All previously bound
// handlers stop receiving events, exactly the new set is attached.
func (b *Bridge) Bind(bindings []Binding) {
	table := make(map[string]Handler, len(bindings))
	for _, binding := range bindings {
		table[binding.Event] = binding.Handler
	}
	b.bindMu.Lock()
	b.bindings = table
	b.bindMu.Unlock()
	b.logger.Debug("handler table replaced", "events", len(table))
}

// SetTenant updates the tenant identity. The current connection, if any,
// is torn down; a new one is opened when the identity is non-empty.
// Concurrent calls are serialized.
func (b *Bridge) SetTenant(tenant string) {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	b.mu.Lock()
	if b.closed || b.tenant == tenant {
		b.mu.Unlock()
		return
	}
	b.tenant = tenant
	cancel := b.cancel
	b.cancel = nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	b.wg.Wait()

	if tenant == "" {
		b.logger.Info("tenant cleared, event stream torn down")
		return
	}

	ctx, cancelNew := context.WithCancel(context.Background())
	b.mu.Lock()
	b.cancel = cancelNew
	b.mu.Unlock()

	b.wg.Add(1)
	go b.run(ctx, tenant)
}

// Close permanently tears down the bridge.
func (b *Bridge) Close() {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	b.mu.Lock()
	b.closed = true
	cancel := b.cancel
	b.cancel = nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	b.wg.Wait()
	b.logger.Info("event stream closed")
}

// IsConnected reports whether a live transport is currently established.
func (b *Bridge) IsConnected() bool {
	return b.connected.Load()
}

// Generation increments on every successful (re)connect. Consumers can use
// it to detect that the connection identity changed.
func (b *Bridge) Generation() uint64 {
	return b.generation.Load()
}

// CurrentTransport reports how events currently reach the bridge.
func (b *Bridge) CurrentTransport() Transport {
	return b.transport.Load().(Transport)
}

// Tenant returns the current tenant identity, empty when unknown.
func (b *Bridge) Tenant() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tenant
}

// AttachBus reopens the connection whenever the tenant identity changes.
func (b *Bridge) AttachBus(bus *events.Bus) {
	bus.Subscribe("eventstream", func(sig events.Signal) {
		if sig.Kind == events.KindTenantChanged {
			// SetTenant blocks on connection teardown, keep the bus free.
			go b.SetTenant(sig.Tenant)
		}
	})
}

// run drives the connection lifecycle for one tenant identity until the
// context is cancelled.
func (b *Bridge) run(ctx context.Context, tenant string) {
	defer b.wg.Done()
	defer b.transport.Store(TransportNone)

	for ctx.Err() == nil {
		hadSession := b.connectCycle(ctx, tenant)
		if ctx.Err() != nil {
			return
		}
		if hadSession {
			continue
		}

		// Dial budget spent. Serve events over long polling for a
		// bounded window, then give the websocket another chance.
		b.logger.Warn("websocket attempts exhausted, falling back to long polling",
			"tenant", tenant,
			"attempts", b.config.ReconnectAttempts)
		pollCtx, cancel := context.WithTimeout(ctx, b.config.TransportRetryInterval)
		b.pollLoop(pollCtx, tenant)
		cancel()
		if ctx.Err() == nil {
			b.logger.Info("retrying websocket transport", "tenant", tenant)
		}
	}
}

// connectCycle dials with the bounded fixed-delay policy. Returns true
// when a session was established (the attempt budget resets afterwards),
// false when every attempt failed.
func (b *Bridge) connectCycle(ctx context.Context, tenant string) bool {
	for attempt := 1; attempt <= b.config.ReconnectAttempts; attempt++ {
		if ctx.Err() != nil {
			return true
		}

		conn, err := b.dial(ctx, tenant)
		if err != nil {
			b.logger.Warn("websocket dial failed",
				"tenant", tenant,
				"attempt", attempt,
				"max_attempts", b.config.ReconnectAttempts,
				"error", err)
			if !sleepCtx(ctx, b.config.ReconnectDelay) {
				return true
			}
			continue
		}

		b.session(ctx, conn, tenant)
		return true
	}
	return false
}

func (b *Bridge) dial(ctx context.Context, tenant string) (*websocket.Conn, error) {
	endpoint := fmt.Sprintf("%s?restaurantId=%s&clientId=%s",
		b.config.SocketURL, url.QueryEscape(tenant), url.QueryEscape(b.config.ClientID))

	header := http.Header{}
	if b.config.Token != "" {
		header.Set("Authorization", "Bearer "+b.config.Token)
	}

	dialer := websocket.Dialer{HandshakeTimeout: writeWait}
	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// session owns one live websocket connection until it drops or the
// context is cancelled.
func (b *Bridge) session(ctx context.Context, conn *websocket.Conn, tenant string) {
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Unblock the read loop when the tenant changes or the bridge closes.
	go func() {
		<-sessionCtx.Done()
		_ = conn.Close()
	}()

	var writeMu sync.Mutex
	writeFrame := func(frame Frame) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(frame)
	}

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	gen := b.generation.Add(1)
	b.connected.Store(true)
	b.transport.Store(TransportWebsocket)
	defer b.connected.Store(false)

	b.logger.Info("event stream connected", "tenant", tenant, "generation", gen)

	// Join the tenant channel first, then let consumers refresh state
	// they may have missed while disconnected.
	joinData, _ := json.Marshal(map[string]string{"restaurantId": tenant})
	if err := writeFrame(Frame{Event: joinEvent, Data: joinData}); err != nil {
		b.logger.Warn("failed to join tenant channel", "tenant", tenant, "error", err)
		return
	}
	b.fireOnConnect()

	// Keepalive pings on their own goroutine, writes serialized above.
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-sessionCtx.Done():
				return
			case <-ticker.C:
				writeMu.Lock()
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				err := conn.WriteMessage(websocket.PingMessage, nil)
				writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				b.logger.Warn("event stream read failed, reconnecting",
					"tenant", tenant, "error", err)
			}
			return
		}
		b.dispatch(message)
	}
}

func (b *Bridge) dispatch(message []byte) {
	var frame Frame
	if err := json.Unmarshal(message, &frame); err != nil {
		b.logger.Warn("discarding malformed event frame", "error", err)
		return
	}
	if frame.Event == "" {
		return
	}

	b.bindMu.RLock()
	handler := b.bindings[frame.Event]
	b.bindMu.RUnlock()

	if handler == nil {
		b.logger.Debug("no handler bound for event", "event", frame.Event)
		return
	}
	handler(frame.Event, frame.Data)
}

func (b *Bridge) fireOnConnect() {
	b.bindMu.RLock()
	callbacks := make([]func(), len(b.onConnect))
	copy(callbacks, b.onConnect)
	b.bindMu.RUnlock()

	// Callbacks may do network work (settings refresh), keep them off
	// the read loop.
	go func() {
		for _, fn := range callbacks {
			fn()
		}
	}()
}

// sleepCtx sleeps for d unless the context is cancelled first. Returns
// false on cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
