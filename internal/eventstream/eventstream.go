// Package eventstream owns the live connection to the backend's business
// event stream for one restaurant. It dials the websocket endpoint when
// the tenant identity becomes known, joins the tenant channel, retries
// with a bounded fixed-delay policy and falls back to HTTP long polling
// when the websocket stays unreachable. Inbound frames are dispatched to
// a bound handler table.
package eventstream

import (
	"encoding/json"
	"time"
)

const (
	// Time allowed to write a message to the backend
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the backend
	pongWait = 60 * time.Second

	// Send pings with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound frame size; event payloads are small JSON objects
	maxMessageSize = 16 * 1024

	// joinEvent is the channel-join message sent after every (re)connect
	joinEvent = "join_restaurant"
)

// Frame is a single message on the event stream.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Handler processes one inbound event frame. Handlers run on the
// connection's read goroutine and must not block.
type Handler func(event string, data json.RawMessage)

// Binding ties an event name to its handler. The full set is installed
// atomically via Bind, so tearing down one set and attaching the next is
// always symmetric.
type Binding struct {
	Event   string
	Handler Handler
}

// Config holds the connection policy for the bridge.
type Config struct {
	// SocketURL is the websocket endpoint.
	SocketURL string

	// PollURL is the long-poll fallback endpoint.
	PollURL string

	// Token is sent as a bearer credential on dial and poll requests.
	Token string

	// ClientID identifies this daemon instance to the backend. A random
	// one is generated when empty.
	ClientID string

	// ReconnectAttempts bounds consecutive failed dials before the
	// bridge falls back to polling.
	ReconnectAttempts int

	// ReconnectDelay is the fixed delay between dial attempts.
	ReconnectDelay time.Duration

	// TransportRetryInterval bounds how long the bridge stays on the
	// polling fallback before the websocket is attempted again.
	TransportRetryInterval time.Duration
}

// DefaultConfig returns the production connection policy.
func DefaultConfig() Config {
	return Config{
		ReconnectAttempts:      10,
		ReconnectDelay:         2 * time.Second,
		TransportRetryInterval: 5 * time.Minute,
	}
}

// Transport identifies how events currently reach the bridge.
type Transport string

const (
	TransportNone      Transport = "none"
	TransportWebsocket Transport = "websocket"
	TransportPolling   Transport = "polling"
)
