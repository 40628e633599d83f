package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"weak"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/adamwoolhether/fbclient/client/conn"
	"github.com/adamwoolhether/fbclient/client/request"
	"github.com/adamwoolhether/fbclient/client/result"
	"github.com/adamwoolhether/fbclient/client/throttle"
	"github.com/adamwoolhether/fbclient/client/timer"
)

// Client queues tasks and runs them one at a time over a single
// connection. Async tasks advance on each [Client.Process] call; sync
// tasks are driven by [Client.Send] until they finish.
type Client struct {
	mu        sync.Mutex
	inProcess atomic.Bool

	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time

	conn    *conn.Handler
	network conn.Network
	owner   *conn.Owner
	ownerID uint64

	slots      []*slot
	queueLimit int

	sendTimeoutDur   time.Duration
	readTimeoutDur   time.Duration
	syncSendTimeout  time.Duration
	syncReadTimeout  time.Duration
	sseTimeout       time.Duration
	reconnectTimeout time.Duration
	sessionTimeout   time.Duration
	sessionTimer     timer.Timer

	throttle   *throttle.Limiter
	tokens     TokenProvider
	authStamp  int64
	userAgent  string
	sseFilters string

	lastErr  *result.Error
	etag     string
	external weak.Pointer[result.AsyncResult]

	pending      []func()
	pollInterval time.Duration
	closed       bool
}

// New builds a Client. A socket or an async transport is required.
func New(optFns ...Option) (*Client, error) {
	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying client option: %w", err)
		}
	}

	c := &Client{
		logger:           slog.Default(),
		tracer:           noop.NewTracerProvider().Tracer("no-op tracer"),
		now:              time.Now,
		queueLimit:       DefaultQueueLimit,
		sendTimeoutDur:   request.WriteTimeout,
		readTimeoutDur:   ReadTimeout,
		sseTimeout:       SSETimeout,
		reconnectTimeout: ReconnectTimeout,
		sessionTimeout:   opts.sessionTimeout,
		tokens:           opts.tokens,
		userAgent:        opts.userAgent,
		sseFilters:       opts.sseFilters,
		network:          opts.network,
		owner:            opts.owner,
		ownerID:          conn.NewOwnerID(),
		pollInterval:     defaultPollInterval,
	}

	if opts.logger != nil {
		c.logger = opts.logger
	}
	if opts.tracer != nil {
		c.tracer = opts.tracer
	}
	if opts.now != nil {
		c.now = opts.now
	}
	if opts.queueLimit > 0 {
		c.queueLimit = opts.queueLimit
	}
	if opts.sendTimeout != nil {
		c.sendTimeoutDur = *opts.sendTimeout
	}
	if opts.readTimeout != nil {
		c.readTimeoutDur = *opts.readTimeout
	}
	if opts.sseTimeout != nil {
		c.sseTimeout = *opts.sseTimeout
	}
	if opts.reconnectTimeout != nil {
		c.reconnectTimeout = *opts.reconnectTimeout
	}
	if opts.pollInterval > 0 {
		c.pollInterval = opts.pollInterval
	}
	c.sessionTimer = *timer.New(c.now)

	switch {
	case opts.transport != nil:
		h, err := conn.NewAsync(*opts.transport, c.logger, c.now)
		if err != nil {
			return nil, err
		}
		c.conn = h
	case opts.socket != nil:
		c.conn = conn.New(opts.socket, c.logger, c.now)
	default:
		return nil, conn.ErrNoTransport
	}

	if opts.throttle != nil {
		lim, err := throttle.New(opts.throttle.RPS, opts.throttle.Burst, c.logger, c.now)
		if err != nil {
			return nil, fmt.Errorf("configuring throttle: %w", err)
		}
		c.throttle = lim
	}

	return c, nil
}

// Send queues req. An async request returns its result at once; the
// result fills in as [Client.Process] runs. A sync request is driven
// until it finishes or ctx ends, and a failed task is also returned as
// a [*result.Error].
func (c *Client) Send(ctx context.Context, req Request) (*result.AsyncResult, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("validating request: %w", err)
	}
	if req.SSE {
		req.Async = true
	}

	if !req.Async {
		if err := c.throttle.Wait(ctx); err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	s, err := c.createSlot(ctx, req)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if s.async {
		return s.visible(), nil
	}

	c.drive(ctx, s)

	res := s.visible()
	if e := s.res.LastError(); e != nil && s.res.IsError() {
		return res, e
	}
	return res, nil
}

// drive runs sync passes until s is evicted or ctx ends.
func (c *Client) drive(ctx context.Context, s *slot) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		c.mu.Lock()
		if !s.removed {
			c.step(false)
		}
		done := s.removed
		cbs := c.takeCallbacks()
		c.mu.Unlock()
		run(cbs)

		if done {
			return
		}

		select {
		case <-ctx.Done():
			c.mu.Lock()
			if i := c.indexOf(s); i > -1 {
				c.setAsyncError(s, result.NewError(result.CodeOperationCancelled), true, true)
				c.removeSlot(i, true)
			}
			cbs := c.takeCallbacks()
			c.mu.Unlock()
			run(cbs)
			return
		case <-ticker.C:
		}
	}
}

// Process advances the queued tasks by one pass. A call made while
// another pass is running returns at once.
func (c *Client) Process() {
	if !c.inProcess.CompareAndSwap(false, true) {
		return
	}

	c.mu.Lock()
	if !c.closed {
		c.step(true)
	}
	cbs := c.takeCallbacks()
	c.mu.Unlock()
	c.inProcess.Store(false)

	run(cbs)
}

// Run calls Process every poll interval until ctx ends.
func (c *Client) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		c.Process()

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return ErrClosed
		}
	}
}

func (c *Client) takeCallbacks() []func() {
	cbs := c.pending
	c.pending = nil
	return cbs
}

func run(cbs []func()) {
	for _, cb := range cbs {
		cb()
	}
}

// StopAsync cancels the running async task, or every async task when all
// is set. Cancelled tasks are evicted on the next pass.
func (c *Client) StopAsync(all bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range c.slots {
		if !s.async || s.auth || s.toRemove {
			continue
		}
		s.toRemove = true
		if !all {
			return
		}
	}
}

// StopAsyncUID cancels the async task with the given UID.
func (c *Client) StopAsyncUID(uid string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range c.slots {
		if s.async && !s.auth && !s.toRemove && s.res.UID() == uid {
			s.toRemove = true
		}
	}
}

// TaskCount returns the number of queued tasks.
func (c *Client) TaskCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.slots)
}

// LastError returns the error of the last failed task, or nil.
func (c *Client) LastError() *result.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// ETag returns the ETag of the last response that carried one.
func (c *Client) ETag() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.etag
}

// SetAsyncResult sets the result sync tasks report to when their request
// names none. The client does not keep r alive.
func (c *Client) SetAsyncResult(r *result.AsyncResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.external = weak.Make(r)
}

// UnsetAsyncResult reverts sync tasks to their own results.
func (c *Client) UnsetAsyncResult() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.external = weak.Pointer[result.AsyncResult]{}
}

// SetSSEFilters replaces the stream event filter. See [WithSSEFilters].
func (c *Client) SetSSEFilters(filter string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sseFilters = filter
}

// SetSyncSendTimeout overrides the send timeout of sync tasks. Zero
// reverts to the client send timeout.
func (c *Client) SetSyncSendTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.syncSendTimeout = max(d, 0)
}

// SetSyncReadTimeout overrides the read timeout of sync tasks. Zero
// reverts to the client read timeout.
func (c *Client) SetSyncReadTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.syncReadTimeout = max(d, 0)
}

// SetSessionTimeout sets the connection lifetime. See [WithSessionTimeout].
func (c *Client) SetSessionTimeout(d time.Duration) error {
	if d != 0 && d < MinSessionTimeout {
		return fmt.Errorf("session timeout must be zero or at least %s", MinSessionTimeout)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionTimeout = d
	return nil
}

// SetAuthTimestamp records when the auth token last changed. A running
// stream reconnects with the new token on the next pass.
func (c *Client) SetAuthTimestamp(ts int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authStamp = ts
}

// SetSocket replaces the socket. The next pass reconnects.
func (c *Client) SetSocket(sock conn.Socket) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetSocket(sock)
}

// Close stops the connection and drops every queued task.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	for _, s := range c.slots {
		c.closeSink(s, false)
		s.req.CloseFile()
		s.span.End()
		s.removed = true
	}
	c.slots = nil
	c.stop()
	c.releaseNetwork()
	c.pending = nil

	return nil
}
