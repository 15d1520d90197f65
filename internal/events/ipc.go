package events

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/beyproweb/beypro-notify/internal/errors"
	"github.com/beyproweb/beypro-notify/internal/logging"
)

// IPCListener accepts signals from other local processes over a unix
// domain socket. Each connection carries newline-delimited JSON signals,
// e.g. {"signal":"settings_updated","payload":{"volume":0.5}}.
type IPCListener struct {
	socketPath string
	bus        *Bus
	listener   net.Listener
	wg         sync.WaitGroup
	logger     *slog.Logger

	connMu sync.Mutex
	conns  map[net.Conn]struct{}
}

// NewIPCListener creates a listener that feeds decoded signals into bus.
func NewIPCListener(socketPath string, bus *Bus) *IPCListener {
	return &IPCListener{
		socketPath: socketPath,
		bus:        bus,
		logger:     logging.ForService("events-ipc"),
		conns:      make(map[net.Conn]struct{}),
	}
}

// Start binds the unix socket and begins accepting connections.
// A stale socket file from a previous run is removed first.
func (l *IPCListener) Start() error {
	if err := os.Remove(l.socketPath); err != nil && !os.IsNotExist(err) {
		return errors.New(err).
			Component("events-ipc").
			Category(errors.CategoryFileIO).
			Context("socket_path", l.socketPath).
			Build()
	}

	listener, err := net.Listen("unix", l.socketPath)
	if err != nil {
		return errors.New(err).
			Component("events-ipc").
			Category(errors.CategoryBroadcast).
			Context("socket_path", l.socketPath).
			Build()
	}
	l.listener = listener

	l.wg.Add(1)
	go l.acceptLoop()

	l.logger.Info("local broadcast socket listening", "path", l.socketPath)
	return nil
}

// Close stops accepting connections, unblocks readers on connections
// still held open by peers, and waits for them to drain.
func (l *IPCListener) Close() {
	if l.listener != nil {
		_ = l.listener.Close()
	}

	l.connMu.Lock()
	for conn := range l.conns {
		_ = conn.Close()
	}
	l.connMu.Unlock()

	l.wg.Wait()
	_ = os.Remove(l.socketPath)
}

func (l *IPCListener) acceptLoop() {
	defer l.wg.Done()
	for {
		conn, err := l.listener.Accept()
		if err != nil {
			// Listener closed, shut down quietly
			return
		}
		l.connMu.Lock()
		l.conns[conn] = struct{}{}
		l.connMu.Unlock()
		l.wg.Add(1)
		go l.readConn(conn)
	}
}

func (l *IPCListener) readConn(conn net.Conn) {
	defer l.wg.Done()
	defer func() {
		_ = conn.Close()
		l.connMu.Lock()
		delete(l.conns, conn)
		l.connMu.Unlock()
	}()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var sig Signal
		if err := json.Unmarshal(line, &sig); err != nil {
			l.logger.Warn("discarding malformed broadcast line", "error", err)
			continue
		}
		if sig.Kind == "" {
			l.logger.Warn("discarding broadcast line without signal kind")
			continue
		}
		l.logger.Debug("broadcast signal received", "kind", sig.Kind)
		l.bus.Publish(sig)
	}
}
