package client

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/adamwoolhether/fbclient/client/b64"
	"github.com/adamwoolhether/fbclient/client/conn"
	"github.com/adamwoolhether/fbclient/client/request"
	"github.com/adamwoolhether/fbclient/client/response"
	"github.com/adamwoolhether/fbclient/client/result"
)

// step advances the task at the front of the queue as far as the
// connection allows without waiting. A sync pass leaves async tasks
// alone.
func (c *Client) step(async bool) {
	c.handleRemove()
	if len(c.slots) == 0 {
		return
	}

	s := c.slots[0]
	if s.async && !async {
		return
	}

	// A running stream follows auth and connection changes.
	if (s.sse && s.state != stateUndefined && s.state != stateSendHeader &&
		(s.authStamp != c.authStamp || !c.conn.IsConnected())) || c.conn.Changed() {
		c.stop()
		s.restart()
	}

	// Resume an async task that a sync task interrupted.
	if !c.conn.Async && s.async && !s.complete {
		if s.state != stateUndefined {
			s.restart()
		}
		c.conn.Async = true
	}

	if !s.admitted {
		if !c.throttle.Allow() {
			return
		}
		s.admitted = true
	}

	if s.sending() {
		for {
			written := s.req.PayloadIndex + s.hdrIndex
			s.ret = c.send(s)
			c.handleSendTimeout(s)
			progressed := s.req.PayloadIndex+s.hdrIndex != written
			if s.async || s.ret != conn.Continue || !s.sending() || !progressed {
				break
			}
		}
	}

	if s.state == stateReadResponse {
		s.complete = s.upload

		if c.conn.Available() == 0 && !c.closeDelimitedEnd(s) {
			if s.sse {
				c.handleEventTimeout(s)
			} else {
				c.handleReadTimeout(s)
			}
		} else {
			c.readLoop(s)
		}
	}

	c.handleProcessFailure(s)
	c.handleEventTimeout(s)

	if !s.sse && s.ret == conn.Complete && s.state != stateSendPayload {
		s.toRemove = true
		s.complete = true
	}
	if s.toRemove {
		if i := c.indexOf(s); i > -1 {
			c.removeSlot(i, true)
		}
	}
}

// readLoop consumes what the connection holds for the response of s.
func (c *Client) readLoop(s *slot) {
	if s.ret == conn.Complete || s.ret == conn.Undefined {
		s.ret = conn.Continue
	}

	for s.ret == conn.Continue {
		s.ret = c.receive(s)
		c.handleReadTimeout(s)

		if s.resp.Stage == response.StageFinished && s.resp.HTTPCode >= http.StatusBadRequest {
			if s.sse {
				s.res.ClearStream()
			}
			body, _ := s.resp.Body()
			s.ret = conn.Failure
			c.setAsyncError(s, result.HTTPError(s.resp.HTTPCode, string(body)), !s.sse, true)
		}

		if s.state != stateReadResponse || c.conn.Available() == 0 {
			break
		}
	}
}

// closeDelimitedEnd finishes a payload that ends with the connection.
func (c *Client) closeDelimitedEnd(s *slot) bool {
	if s.resp.CloseDelimited() && !c.conn.IsConnected() {
		s.resp.Finish()
		return true
	}
	return false
}

func (c *Client) sendTimeout(s *slot) time.Duration {
	if !s.async && c.syncSendTimeout > 0 {
		return c.syncSendTimeout
	}
	return c.sendTimeoutDur
}

func (c *Client) readTimeout(s *slot) time.Duration {
	if !s.async && c.syncReadTimeout > 0 {
		return c.syncReadTimeout
	}
	return c.readTimeoutDur
}

func (c *Client) handleSendTimeout(s *slot) {
	if !s.sending() || !s.req.SendTimer.Expired() {
		return
	}
	c.setAsyncError(s, result.NewError(result.CodeTCPSendFailed), !s.sse, false)
	s.ret = conn.Failure
	c.reset(s, true)
}

func (c *Client) handleReadTimeout(s *slot) {
	if s.sse || s.state != stateReadResponse || !s.resp.ReadTimer.Expired() {
		return
	}
	c.setAsyncError(s, result.NewError(result.CodeTCPReceiveTimeout), true, false)
	s.ret = conn.Failure
	c.reset(s, true)
}

// handleEventTimeout resumes a stream that went idle or was cancelled.
func (c *Client) handleEventTimeout(s *slot) {
	if !s.sse {
		return
	}
	rtdb := s.res.RTDB()
	if !rtdb.EventTimeout() || rtdb.ResumeStatus() == result.ResumeResuming {
		return
	}

	code := result.CodeStreamTimeout
	if s.lastEvent == "auth_revoked" {
		code = result.CodeStreamAuthRevoked
	}
	s.res.SetResumeStatus(result.ResumeResuming)
	c.setAsyncError(s, result.NewError(code), false, false)
	c.returnResult(s)
	c.reset(s, true)
}

func (c *Client) handleProcessFailure(s *slot) {
	if s.ret != conn.Failure {
		return
	}
	if s.async {
		c.returnResult(s)
	}
	c.reset(s, s.resp.HTTPCode == 0)
}

// =============================================================================
// Sending

// send writes the next piece of the request of s.
func (c *Client) send(s *slot) conn.Return {
	switch s.state {
	case stateUndefined, stateSendHeader:
		if s.hdr == nil {
			return c.beginHeader(s)
		}
		return c.sendHeader(s)

	case stateSendPayload:
		if s.upload {
			s.uploadProgress = true
		}
		if s.req.Method == request.MethodGet || s.req.Method == request.MethodDelete {
			c.toRead(s)
			return conn.Continue
		}
		return c.sendPayload(s)
	}
	return s.ret
}

// beginHeader connects when needed and starts writing the header.
func (c *Client) beginHeader(s *slot) conn.Return {
	var token string
	if !s.auth && c.tokens != nil {
		tok, typ, ok := c.tokens.Token()
		if typ != request.AuthNone && (!ok || tok == "") {
			c.setAsyncError(s, result.NewError(result.CodeUnauthenticated), !s.sse, false)
			return conn.Failure
		}
		token = tok
	}

	if s.state == stateUndefined {
		s.res.ResetProgress()
	}
	c.newCon(s)
	s.state = stateSendHeader

	if !c.conn.IsConnected() {
		if s.host == "" {
			c.setAsyncError(s, result.NewError(result.CodeInvalidHost), !s.sse, false)
			return conn.Failure
		}

		switch c.connect(s) {
		case conn.Continue:
			return conn.Continue
		case conn.Complete:
		default:
			return c.connError(s)
		}

		c.conn.SSE = s.sse
		c.conn.Async = s.async
		s.authStamp = c.authStamp
	}

	if s.upload {
		s.uploadProgress = false
	}
	s.beginResponse()
	s.hdr = []byte(s.req.Header(token))
	s.hdrIndex = 0
	s.req.SendTimer.Feed(c.sendTimeout(s))

	return c.sendHeader(s)
}

func (c *Client) sendHeader(s *slot) conn.Return {
	n, err := c.write(s, s.hdr[s.hdrIndex:])
	if err != nil {
		return c.sendFailed(s, err)
	}
	s.hdrIndex += n
	if s.hdrIndex < len(s.hdr) {
		return conn.Continue
	}

	hdr := string(s.hdr)
	s.hdr = nil
	s.hdrIndex = 0

	// No payload when Content-Length is 0 or not set.
	if !strings.Contains(hdr, "Content-Length") || strings.Contains(hdr, "Content-Length: 0\r\n") {
		c.toRead(s)
		return conn.Continue
	}
	s.state = stateSendPayload
	return conn.Continue
}

func (c *Client) sendPayload(s *slot) conn.Return {
	seg, err := s.req.Segment()
	if err != nil {
		code := result.CodeFileRead
		if errors.Is(err, request.ErrFileOpen) {
			code = result.CodeFileOpen
		}
		c.logger.Debug("reading upload", "uid", s.res.UID(), "error", err)
		c.setAsyncError(s, result.NewError(code), !s.sse, true)
		return conn.Failure
	}
	if seg == nil {
		s.req.Rewind()
		c.toRead(s)
		return conn.Continue
	}

	n, err := c.write(s, seg)
	if err != nil {
		return c.sendFailed(s, err)
	}
	s.req.Advance(n)
	c.uploadProgress(s)

	if s.req.PayloadIndex >= s.req.BodyLen() {
		s.req.Rewind()
		c.toRead(s)
	}
	return conn.Continue
}

func (c *Client) uploadProgress(s *slot) {
	if !s.upload || !s.uploadProgress {
		return
	}

	transferred, total := s.req.PayloadIndex, s.req.BodyLen()
	if s.req.Resumable.Uploading() {
		transferred = s.req.Resumable.Start() + s.req.PayloadIndex
		total = s.req.Resumable.Size()
	}
	if s.res.UpdateUpload(transferred, total) {
		c.returnResult(s)
	}
}

// write sends at most one chunk of p.
func (c *Client) write(s *slot, p []byte) (int, error) {
	p = p[:min(len(p), request.ChunkSize)]
	n, err := s.req.TCPWrite(c.conn, p)
	if n > 0 {
		s.req.SendTimer.Refresh()
	}
	return n, err
}

func (c *Client) sendFailed(s *slot, err error) conn.Return {
	c.logger.Debug("writing request", "uid", s.res.UID(), "addr", c.conn.Addr(), "error", err)
	c.setAsyncError(s, result.NewError(result.CodeTCPSendFailed), !s.sse, false)
	return conn.Failure
}

// toRead switches s to waiting for the response.
func (c *Client) toRead(s *slot) {
	s.state = stateReadResponse
	s.req.SendTimer.Stop()
	s.resp.ReadTimer.Feed(c.readTimeout(s))
}

// =============================================================================
// Receiving

// countReader counts the bytes read through it.
type countReader struct {
	r response.Reader
	n int
}

func (cr *countReader) Available() int { return cr.r.Available() }

func (cr *countReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += n
	return n, err
}

// receive parses what is available of the response of s and acts on a
// finished one: a resumable session step, a redirect or completion.
func (c *Client) receive(s *slot) conn.Return {
	if err := c.readResponse(s); err != nil {
		c.logger.Debug("reading response", "uid", s.res.UID(), "error", err)
		c.setAsyncError(s, c.receiveError(s, err), !s.sse, true)

		// Whatever is left of this response would be read by the next task.
		c.stop()
		return conn.Failure
	}

	if s.resp.HTTPCode == 0 {
		return conn.Continue
	}

	finished := s.resp.Stage == response.StageFinished
	if !finished || s.resp.HTTPCode >= http.StatusBadRequest {
		return conn.Continue
	}

	if rs := &s.req.Resumable; rs.Enabled() {
		switch {
		case !rs.Uploading() && s.resp.Location != "":
			// Session created; upload the first range to its location.
			rs.Begin(s.resp.Location)
			c.resumableChunk(s)
			return conn.Continue

		case rs.Uploading() && s.resp.HTTPCode == http.StatusPermanentRedirect && !rs.Complete():
			c.resumableChunk(s)
			return conn.Continue
		}
	}

	if s.resp.Location != "" && !s.req.Resumable.Enabled() &&
		s.resp.HTTPCode >= http.StatusMultipleChoices && s.resp.HTTPCode < http.StatusBadRequest {
		c.redirect(s, s.resp.Location)
		return conn.Continue
	}

	if !s.sse {
		s.state = stateUndefined
		return conn.Complete
	}
	return conn.Continue
}

func (c *Client) receiveError(s *slot, err error) *result.Error {
	var se *sinkError
	switch {
	case errors.As(err, &se):
		return result.NewError(se.code)
	case errors.Is(err, b64.ErrCorrupt), errors.Is(err, b64.ErrPartialGroup):
		return result.NewError(s.sink.code)
	case s.resp.HTTPCode >= http.StatusBadRequest:
		body, _ := s.resp.Body()
		return result.HTTPError(s.resp.HTTPCode, string(body))
	}
	return result.NewError(result.CodeTCPReceiveTimeout)
}

// resumableChunk points s at the upload location with the header of the
// next range.
func (c *Client) resumableChunk(s *slot) {
	host, port, path := request.SplitURL(s.req.Resumable.Location)
	if port == 0 {
		port = s.port
	}
	if host != s.host || port != s.port {
		c.stop()
	}
	s.host, s.port = host, port
	s.req.SetHeader(s.req.Resumable.Header(host, path))
	s.restart()
}

// redirect sends the request again to location.
func (c *Client) redirect(s *slot, location string) {
	host, port, path := request.SplitURL(location)
	if host == "" {
		host = s.host
	}
	if port == 0 {
		port = s.port
	}
	c.logger.Debug("following redirect", "uid", s.res.UID(), "location", location)

	c.stop()
	s.host, s.port = host, port
	s.req.Relocate(host, port, path)
	s.restart()
}

func (c *Client) readResponse(s *slot) error {
	cr := &countReader{r: c.conn}
	defer func() {
		if cr.n > 0 {
			s.resp.ReadTimer.Refresh()
		}
	}()

	if !s.metaDone {
		if err := s.resp.ReadMeta(cr, s.sse, s.req.Resumable.Uploading()); err != nil {
			return err
		}
		if s.resp.Stage != response.StagePayload && s.resp.Stage != response.StageFinished {
			return nil
		}
		s.metaDone = true
		if err := c.readHeader(s); err != nil {
			return err
		}
	}

	if err := c.readPayload(s, cr); err != nil {
		return err
	}

	if s.sse {
		c.readFrames(s)
		return nil
	}

	if s.resp.Stage == response.StageFinished && !s.delivered {
		s.delivered = true
		return c.finishResponse(s)
	}
	return nil
}

// readHeader applies a complete header block to the result of s.
func (c *Client) readHeader(s *slot) error {
	if s.resp.ETag != "" {
		c.etag = s.resp.ETag
		s.res.SetETag(s.resp.ETag)
	}

	if s.resp.Flags.UploadRange {
		if err := s.req.Resumable.UpdateRange(s.resp.Range); err != nil {
			return err
		}
	}

	if s.req.Method == request.MethodDelete && s.resp.HTTPCode == http.StatusNoContent {
		c.logger.Debug("delete operation complete", "path", s.req.Path)
	}

	if s.sse && s.resp.HTTPCode < http.StatusBadRequest {
		s.res.FeedStream(c.sseTimeout)
		s.httpResp = s.resp.Flags.HTTPResponse
	}
	return nil
}

func (c *Client) readPayload(s *slot, r response.Reader) error {
	if s.resp.Stage != response.StagePayload {
		return nil
	}

	ok := s.resp.HTTPCode >= http.StatusOK && s.resp.HTTPCode < http.StatusMultipleChoices
	var dst io.Writer
	if s.download && ok && !s.sse {
		if !s.sink.open {
			if err := c.openSink(s); err != nil {
				return err
			}
		}
		dst = s.sink.out
	}

	n, err := s.resp.ReadPayload(r, dst)
	if err != nil {
		return err
	}
	if n > 0 && s.download && ok && s.resp.PayloadLen > 0 {
		if s.res.UpdateDownload(s.resp.PayloadRead, s.resp.PayloadLen) {
			c.returnResult(s)
		}
	}
	return nil
}

// finishResponse hands a complete non-stream response to the result.
func (c *Client) finishResponse(s *slot) error {
	code := s.resp.HTTPCode
	if code >= http.StatusBadRequest || (code >= http.StatusMultipleChoices && s.resp.Location != "") {
		return nil
	}

	body, err := s.resp.Body()
	if err != nil {
		return err
	}

	if s.download && code >= http.StatusOK && code < http.StatusMultipleChoices {
		return c.finishDownload(s, body)
	}

	if s.req.Resumable.Uploading() && code == http.StatusPermanentRedirect && !s.req.Resumable.Complete() {
		return nil
	}

	s.res.SetPayload(string(body))
	if s.upload {
		if u := downloadURL(body); u != "" {
			s.res.SetDownloadURL(u)
		}
	}
	if s.req.Method == request.MethodPost {
		s.res.ParseName()
	}
	if s.auth && s.resp.Flags.Chunks {
		c.stop()
	}
	c.returnResult(s)
	return nil
}

func (c *Client) finishDownload(s *slot, body []byte) error {
	if !s.sink.open {
		if err := c.openSink(s); err != nil {
			return err
		}
	}
	// Compressed bodies are only complete once inflated.
	if s.resp.Flags.Gzip && len(body) > 0 {
		if _, err := s.sink.out.Write(body); err != nil {
			return err
		}
	}
	if err := c.closeSink(s, true); err != nil {
		return err
	}

	total := max(s.resp.PayloadLen, s.resp.PayloadRead)
	s.res.UpdateDownload(s.resp.PayloadRead, total)
	c.returnResult(s)
	return nil
}

// readFrames delivers the complete event stream frames of s.
func (c *Client) readFrames(s *slot) {
	for {
		frame, ok := s.resp.NextFrame()
		if !ok {
			return
		}

		event := eventOf(frame)
		s.lastEvent = event
		if !c.sseFilter(s, event) {
			idle := c.sseTimeout
			if event == "cancel" || event == "auth_revoked" {
				idle = 0
			}
			s.res.FeedStream(idle)
			continue
		}

		resuming := s.res.RTDB().ResumeStatus() == result.ResumeResuming
		s.res.SetPayload(frame)
		s.res.ParseSSE(c.sseTimeout)
		if resuming {
			s.res.SetResumeStatus(result.ResumeFinished)
			c.logger.Info("stream resumed", "path", s.req.Path)
		}
		s.httpResp = false
		c.returnResult(s)
	}
}

func eventOf(frame string) string {
	for line := range strings.SplitSeq(frame, "\n") {
		if v, ok := strings.CutPrefix(line, "event:"); ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// sseFilter reports whether event passes the configured filter. The
// first put after the response header is the "get" event.
func (c *Client) sseFilter(s *slot, event string) bool {
	f := c.sseFilters
	if f == "" {
		return true
	}

	has := func(name string) bool {
		return strings.Contains(f, name) && strings.Contains(event, name)
	}
	switch {
	case strings.Contains(event, "put"):
		if s.httpResp {
			return strings.Contains(f, "get")
		}
		return has("put")
	case strings.Contains(event, "patch"):
		return has("patch")
	case strings.Contains(event, "keep-alive"):
		return has("keep-alive")
	case strings.Contains(event, "cancel"):
		return has("cancel")
	case strings.Contains(event, "auth_revoked"):
		return has("auth_revoked")
	}
	return false
}
