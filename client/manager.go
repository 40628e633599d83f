package client

import (
	"context"
	"fmt"
	"slices"
	"weak"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/fbclient/client/conn"
	"github.com/adamwoolhether/fbclient/client/result"
	"github.com/adamwoolhether/fbclient/client/throttle"
	"github.com/adamwoolhether/fbclient/client/timer"
)

// availableSlot returns the queue index for a new task, or -1 to append
// it. Auth and sync tasks run first. Async tasks queue behind a pending
// auth task and in front of a running stream.
func (c *Client) availableSlot(req *Request) (int, error) {
	if req.Auth || !req.Async {
		return 0, nil
	}

	sseIndex, authIndex := -1, -1
	for i, s := range c.slots {
		switch {
		case s.auth:
			authIndex = i
		case s.sse:
			sseIndex = i
		}
	}

	if sseIndex > -1 && req.SSE {
		return 0, fmt.Errorf("%w: a stream is already running", ErrNoSlot)
	}
	if len(c.slots) >= c.queueLimit {
		return 0, fmt.Errorf("%w: queue limit %d reached", ErrNoSlot, c.queueLimit)
	}

	index := -1
	switch {
	case authIndex > -1:
		index = authIndex + 1
	case sseIndex > -1:
		index = sseIndex
	}
	if index >= len(c.slots) {
		index = -1
	}
	return index, nil
}

// createSlot admits req and queues its slot.
func (c *Client) createSlot(ctx context.Context, req Request) (*slot, error) {
	index, err := c.availableSlot(&req)
	if err != nil {
		return nil, err
	}

	prevAsync := len(c.slots) > 0 && c.slots[0].async && c.conn.Async

	s, err := c.newSlot(ctx, req)
	if err != nil {
		return nil, err
	}

	// A sync task interrupts a running async one, which resumes later.
	if prevAsync && !req.Auth && !req.Async {
		s.stopCurrentAsync = true
	}

	if index < 0 {
		c.slots = append(c.slots, s)
	} else {
		c.slots = slices.Insert(c.slots, index, s)
	}
	return s, nil
}

func (c *Client) newSlot(ctx context.Context, req Request) (*slot, error) {
	s := &slot{
		state:     stateUndefined,
		ret:       conn.Undefined,
		async:     req.Async,
		sse:       req.SSE,
		auth:      req.Auth,
		download:  req.Download != nil || req.Sink != nil || req.OTA != nil,
		upload:    req.Upload != nil || len(req.Blob) > 0,
		admitted:  !req.Async,
		authStamp: c.authStamp,
		res:       result.New(),
		cb:        req.Callback,
		reconnect: throttle.NewBackoff(c.reconnectTimeout, c.now),
		sink:      sink{cfg: req.Download, w: req.Sink, ota: req.OTA},
	}

	if err := c.newRequest(s, req); err != nil {
		return nil, fmt.Errorf("%w: %w", result.NewError(result.CodeFileOpen), err)
	}
	s.req.SendTimer = *timer.New(c.now)
	s.resp.ReadTimer = *timer.New(c.now)

	uid := req.UID
	switch {
	case req.Result != nil:
		if uid == "" {
			uid = req.Result.UID()
		}
		s.ext = weak.Make(req.Result)
	case !req.Async:
		s.ext = c.external
	}

	s.res.SetUID(uid)
	s.res.SetClock(c.now)
	s.res.SetPath(s.req.Path)
	s.res.SetOTA(req.OTA != nil)
	s.res.SetNullETag(req.NullETag)

	_, s.span = c.tracer.Start(ctx, "fbclient.task", trace.WithAttributes(
		attribute.String("uid", s.res.UID()),
		attribute.String("method", req.Method.String()),
		attribute.String("host", s.host),
		attribute.String("path", s.req.Path),
		attribute.Bool("async", s.async),
		attribute.Bool("sse", s.sse),
	))

	return s, nil
}

func (c *Client) indexOf(s *slot) int {
	return slices.Index(c.slots, s)
}

// removeSlot evicts the slot at i after handing its final state to the
// caller. Streams are kept unless sse is set.
func (c *Client) removeSlot(i int, sse bool) {
	s := c.slots[i]
	if s.sse && !sse {
		return
	}

	if s.sse {
		s.res.ClearStream()
	}
	c.closeSink(s, false)
	s.req.CloseFile()
	c.setLastError(s)
	c.returnResult(s)

	// The rest of an unfinished exchange must not reach the next task.
	if i == 0 && s.state != stateUndefined {
		c.stop()
	}
	if i == 0 {
		c.releaseNetwork()
	}
	c.reset(s, s.auth)

	s.span.End()
	s.removed = true
	c.slots = slices.Delete(c.slots, i, i+1)
}

// handleRemove evicts every slot marked for removal.
func (c *Client) handleRemove() {
	for i := len(c.slots) - 1; i >= 0; i-- {
		if c.slots[i].toRemove {
			c.removeSlot(i, true)
		}
	}
}

func (c *Client) setLastError(s *slot) {
	if s.res.IsError() {
		c.lastErr = s.res.LastError()
	}
}

// returnResult pushes the internal result of s to the caller's result
// and queues the callback when anything changed since the last push.
func (c *Client) returnResult(s *slot) {
	ext := s.external()
	if !s.res.Flush(ext) {
		return
	}

	if s.cb == nil || s.auth {
		return
	}
	target := ext
	if target == nil {
		target = s.res
	}
	cb := s.cb
	c.pending = append(c.pending, func() { cb(target) })
}

// reset returns s to its initial state so it is sent again from the
// start. disconnect also closes the connection.
func (c *Client) reset(s *slot, disconnect bool) {
	if disconnect {
		c.stop()
		c.releaseNetwork()
	}

	s.resp.Clear()
	s.resp.ReadTimer.Stop()
	s.req.SendTimer.Stop()
	s.req.Rewind()
	s.state = stateUndefined
	s.ret = conn.Undefined
	s.hdr = nil
	s.hdrIndex = 0
	s.metaDone = false
	s.delivered = false
	c.closeSink(s, false)
}

// newCon closes the connection when s cannot reuse it.
func (c *Client) newCon(s *slot) {
	expired := !s.sse && c.sessionTimeout >= MinSessionTimeout &&
		c.sessionTimer.Running() && c.sessionTimer.Remaining() == 0

	mismatch := c.conn.IsConnected() &&
		(expired || c.conn.SSE != s.sse || c.conn.Host != s.host || c.conn.Port != s.port)

	if s.stopCurrentAsync || (s.auth && s.state == stateUndefined) || mismatch {
		s.stopCurrentAsync = false
		c.stop()
	}

	if !s.async {
		s.res.SetError(nil)
		c.lastErr = nil
	}
}

// connect brings the network up and connects to the host of s. It
// returns Continue while either is in progress.
func (c *Client) connect(s *slot) conn.Return {
	s.res.SetError(nil)
	c.lastErr = nil

	if (s.auth || s.sse) && !c.conn.Connecting() && !s.reconnect.Ready() {
		return conn.Continue
	}

	if c.network != nil && !c.network.Up() {
		if !c.owner.Acquire(c.ownerID) {
			// Another client drives the bring-up; wait at most one
			// connect timeout for it.
			if !s.req.SendTimer.Running() {
				s.req.SendTimer.Feed(c.conn.ConnectTimeout)
			}
			if s.req.SendTimer.Expired() {
				s.req.SendTimer.Stop()
				c.logger.Debug("network held by another client", "host", s.host, "holder", c.owner.Holder())
				return conn.Failure
			}
			return conn.Continue
		}
		s.req.SendTimer.Stop()

		ret := c.network.Poll()
		if ret == conn.Continue {
			return conn.Continue
		}
		c.owner.Release(c.ownerID)
		if ret == conn.Failure {
			c.logger.Debug("network bring-up failed", "host", s.host)
			return conn.Failure
		}
	}

	c.releaseNetwork()

	ret := c.conn.Connect(s.host, s.port)
	if ret == conn.Complete {
		if c.sessionTimeout > 0 {
			c.sessionTimer.Feed(c.sessionTimeout)
		}
		s.span.AddEvent("connected", trace.WithAttributes(attribute.String("addr", c.conn.Addr())))
	}
	return ret
}

func (c *Client) stop() {
	c.conn.Stop()
}

// releaseNetwork hands the shared medium to the next client that needs it.
func (c *Client) releaseNetwork() {
	c.owner.Release(c.ownerID)
}

// setAsyncError records e on s and the client. toRemove marks s for
// eviction; closeFile releases its upload file and download sink.
func (c *Client) setAsyncError(s *slot, e *result.Error, toRemove, closeFile bool) {
	s.res.SetError(e)
	c.lastErr = e
	if toRemove {
		s.toRemove = true
	}
	if closeFile {
		s.req.CloseFile()
		c.closeSink(s, false)
	}

	s.span.RecordError(e)
	s.span.SetStatus(codes.Error, e.Message)
	c.logger.Debug("task error", "uid", s.res.UID(), "state", s.state.String(), "code", e.Code, "error", e.Message)
}

// connError records a failed connect on s.
func (c *Client) connError(s *slot) conn.Return {
	c.setAsyncError(s, result.NewError(result.CodeTCPConnectionRefused), !s.sse, false)
	return conn.Failure
}
