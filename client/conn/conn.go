// Package conn presents one connect, write, read and stop contract over
// either a blocking [Socket] or a callback driven [AsyncTransport], and
// brings up the network medium underneath it.
//
// # Probing
//
// A Handler never asks the socket whether it is connected before the
// first successful connect. After that the cached state is re-checked on
// every IsConnected call.
//
// # Networks
//
// [GenericNetwork], [WiFiNetwork], [EthernetNetwork] and [GSMNetwork] are
// small polling state machines. Clients sharing one medium pass the same
// [Owner] so only one of them drives a bring-up at a time.
package conn

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/adamwoolhether/fbclient/client/timer"
)

// Handler owns the single connection of a client.
type Handler struct {
	Host  string
	Port  int
	SSE   bool
	Async bool

	sock      Socket
	transport *AsyncTransport
	logger    *slog.Logger

	connected  bool
	connecting bool
	changed    bool
	connTimer  timer.Timer

	// ConnectTimeout bounds an asynchronous transport connect.
	ConnectTimeout time.Duration

	rbuf []byte
	rlen int
	roff int
}

// New returns a Handler over sock.
func New(sock Socket, logger *slog.Logger, now func() time.Time) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		sock:           sock,
		logger:         logger,
		connTimer:      *timer.New(now),
		ConnectTimeout: ConnectTimeout,
	}
}

// NewAsync returns a Handler over the callback transport t.
func NewAsync(t AsyncTransport, logger *slog.Logger, now func() time.Time) (*Handler, error) {
	if !t.valid() {
		return nil, fmt.Errorf("async transport: %w", ErrNoTransport)
	}
	h := New(nil, logger, now)
	h.transport = &t
	h.rbuf = make([]byte, 2048)
	return h, nil
}

// SetSocket replaces the socket. The next request reconnects.
func (h *Handler) SetSocket(sock Socket) {
	h.sock = sock
	h.transport = nil
	h.changed = true
}

// Changed reports whether the socket was replaced since the last reset.
func (h *Handler) Changed() bool { return h.changed }

// HasTransport reports whether a socket or transport is assigned.
func (h *Handler) HasTransport() bool {
	return h.sock != nil || h.transport != nil
}

// Connecting reports whether an asynchronous connect is in progress.
func (h *Handler) Connecting() bool { return h.connecting }

// IsConnected returns the cached state, re-checking the transport only
// when it was connected before.
func (h *Handler) IsConnected() bool {
	if !h.connected {
		return false
	}
	switch {
	case h.sock != nil:
		h.connected = h.sock.Connected() || h.sock.Available() > 0
	case h.transport != nil:
		h.connected = h.transport.Status() || h.roff < h.rlen
	default:
		h.connected = false
	}
	return h.connected
}

// Connect connects to host:port. An asynchronous transport returns
// Continue until its status reports up or the connect timeout expires.
func (h *Handler) Connect(host string, port int) Return {
	if h.IsConnected() {
		return Complete
	}

	switch {
	case h.sock != nil:
		h.logger.Debug("connecting to server", "host", host, "port", port)
		if err := h.sock.Connect(host, port); err != nil {
			h.logger.Debug("connect failed", "host", host, "port", port, "error", err)
			return Failure
		}
		h.connected = true

	case h.transport != nil:
		if !h.connecting {
			h.logger.Debug("connecting to server", "host", host, "port", port)
			h.transport.Connect(host, port)
			h.connecting = true
			h.connTimer.Feed(h.ConnectTimeout)
		}
		if !h.transport.Status() {
			if h.connTimer.Expired() {
				h.connecting = false
				h.connTimer.Stop()
				return Failure
			}
			return Continue
		}
		h.connecting = false
		h.connTimer.Stop()
		h.connected = true

	default:
		return Failure
	}

	h.Host = host
	h.Port = port
	return Complete
}

// Write sends p and returns the number of bytes accepted.
func (h *Handler) Write(p []byte) (int, error) {
	switch {
	case h.sock != nil:
		return h.sock.Write(p)
	case h.transport != nil:
		return h.transport.Send(p), nil
	}
	return 0, ErrNoTransport
}

// Available returns the number of bytes Read can return without waiting.
func (h *Handler) Available() int {
	switch {
	case h.sock != nil:
		return h.sock.Available()
	case h.transport != nil:
		if h.roff == h.rlen {
			h.roff = 0
			h.rlen = max(h.transport.Receive(h.rbuf), 0)
		}
		return h.rlen - h.roff
	}
	return 0
}

// Read reads up to len(p) received bytes.
func (h *Handler) Read(p []byte) (int, error) {
	switch {
	case h.sock != nil:
		return h.sock.Read(p)
	case h.transport != nil:
		if h.Available() == 0 {
			return 0, nil
		}
		n := copy(p, h.rbuf[h.roff:h.rlen])
		h.roff += n
		return n, nil
	}
	return 0, ErrNoTransport
}

// Stop closes the connection and forgets the peer.
func (h *Handler) Stop() {
	if h.connected || h.connecting {
		h.logger.Debug("terminating the server connection", "host", h.Host)
	}
	switch {
	case h.sock != nil:
		h.sock.Stop()
	case h.transport != nil:
		h.transport.Stop()
	}
	h.Reset()
}

// Reset forgets the peer without touching the transport.
func (h *Handler) Reset() {
	h.Host = ""
	h.Port = 0
	h.connected = false
	h.connecting = false
	h.changed = false
	h.roff, h.rlen = 0, 0
	h.connTimer.Stop()
}

// Addr returns host:port of the current peer.
func (h *Handler) Addr() string {
	return h.Host + ":" + strconv.Itoa(h.Port)
}
