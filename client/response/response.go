// Package response parses one HTTP/1.1 response off a non-blocking byte
// source that may deliver it in arbitrarily small pieces per poll. All
// parse state lives in the Handler so parsing resumes where the previous
// call stopped.
//
// # Status line
//
// A first line without the "HTTP/1." prefix is taken as stream payload
// already in flight on a reused connection: the handler assumes status 200
// and continues in the payload stage with the line as the first payload
// bytes.
//
// # Payload
//
// Bodies are chunked, length delimited or, when neither is announced,
// read until the connection closes. Server-sent event streams never
// finish; complete frames are taken with NextFrame.
package response

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/adamwoolhether/fbclient/client/timer"
)

// Handler holds the parse state of one response.
type Handler struct {
	HTTPCode    int
	Status      string
	Stage       Stage
	Flags       Flags
	PayloadLen  int
	PayloadRead int
	ETag        string
	Location    string
	Range       string
	Header      http.Header
	ReadTimer   timer.Timer

	lengthSet bool
	line      []byte
	headerLen int
	body      bytes.Buffer
	chunks    ChunkDecoder
}

// Clear resets the handler for a new response.
func (h *Handler) Clear() {
	h.HTTPCode = 0
	h.Status = ""
	h.Stage = StageUndefined
	h.Flags = Flags{}
	h.PayloadLen = 0
	h.PayloadRead = 0
	h.ETag = ""
	h.Location = ""
	h.Range = ""
	h.Header = nil
	h.lengthSet = false
	h.line = h.line[:0]
	h.headerLen = 0
	h.body.Reset()
	h.chunks.Reset()
}

// Begin prepares for a new response on the current connection.
func (h *Handler) Begin() {
	h.Clear()
	h.Stage = StageStatus
}

// Body returns the payload collected so far, decompressed once a gzip
// payload is finished.
func (h *Handler) Body() ([]byte, error) {
	if h.Flags.Gzip && h.Stage == StageFinished && h.body.Len() > 0 {
		zr, err := gzip.NewReader(bytes.NewReader(h.body.Bytes()))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrGzip, err)
		}
		defer zr.Close()
		b, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrGzip, err)
		}
		return b, nil
	}
	return h.body.Bytes(), nil
}

// readLine reads bytes into the partial line until a line feed or until
// nothing is available. It reports whether a full line is held.
func (h *Handler) readLine(r Reader) (bool, error) {
	var one [1]byte
	for r.Available() > 0 {
		n, err := r.Read(one[:])
		if n == 1 {
			h.line = append(h.line, one[0])
			if one[0] == '\n' {
				return true, nil
			}
			if len(h.line) > maxHeaderLen {
				return false, ErrHeaderTooLarge
			}
		}
		if err != nil && err != io.EOF {
			return false, err
		}
		if n == 0 {
			break
		}
	}
	return false, nil
}

// ReadMeta advances through the status line and headers as far as the
// available bytes allow. sse tells whether the request asked for an
// event stream, upload whether it carried a ranged upload.
func (h *Handler) ReadMeta(r Reader, sse, upload bool) error {
	if h.Stage == StageUndefined {
		h.Stage = StageStatus
	}

	for h.Stage == StageStatus || h.Stage == StageHeader {
		full, err := h.readLine(r)
		if err != nil {
			return err
		}
		if !full {
			return nil
		}

		line := string(h.line)
		h.line = h.line[:0]

		if h.Stage == StageStatus {
			if err := h.status(line); err != nil {
				return err
			}
			continue
		}

		if s := strings.TrimRight(line, "\r\n"); s != "" {
			h.headerLen += len(line)
			if h.headerLen > maxHeaderLen {
				return ErrHeaderTooLarge
			}
			name, value, ok := strings.Cut(s, ":")
			if ok {
				h.Header.Add(textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(name)), strings.TrimSpace(value))
			}
			continue
		}

		h.endOfHeader(sse, upload)
	}

	return nil
}

func (h *Handler) status(line string) error {
	if !strings.HasPrefix(line, "HTTP/1.") {
		// Stream payload on a reused connection.
		h.HTTPCode = http.StatusOK
		h.Flags.PayloadRemaining = true
		h.Flags.PayloadAvailable = true
		h.Stage = StagePayload
		h.body.WriteString(line)
		h.PayloadRead += len(line)
		return nil
	}

	fields := strings.SplitN(strings.TrimRight(line, "\r\n"), " ", 3)
	code := 0
	if len(fields) > 1 {
		code, _ = strconv.Atoi(fields[1])
	}
	if code <= 0 {
		return fmt.Errorf("%w: %q", ErrMalformedStatus, strings.TrimSpace(line))
	}

	h.HTTPCode = code
	if len(fields) > 2 {
		h.Status = fields[1] + " " + fields[2]
	} else {
		h.Status = fields[1]
	}
	h.Flags.HeaderRemaining = true
	h.Header = make(http.Header)
	h.Stage = StageHeader
	return nil
}

func (h *Handler) endOfHeader(sse, upload bool) {
	h.Flags.HeaderRemaining = false
	h.Flags.HTTPResponse = true

	h.ETag = h.Header.Get("Etag")
	h.Location = h.Header.Get("Location")

	if v := h.Header.Get("Content-Length"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			h.PayloadLen = n
			h.lengthSet = true
		}
	}
	h.Flags.KeepAlive = strings.Contains(strings.ToLower(h.Header.Get("Connection")), "keep-alive")
	h.Flags.Chunks = strings.Contains(strings.ToLower(h.Header.Get("Transfer-Encoding")), "chunked")
	h.Flags.SSE = strings.Contains(h.Header.Get("Content-Type"), "text/event-stream")
	h.Flags.Gzip = strings.Contains(h.Header.Get("Content-Encoding"), "gzip")

	if upload && h.HTTPCode == http.StatusPermanentRedirect {
		if v := h.Header.Get("Range"); strings.Contains(v, "bytes=") {
			h.Range = v
			h.Flags.UploadRange = true
		}
	}

	h.Flags.PayloadRemaining = h.HTTPCode > 0 && h.HTTPCode != http.StatusNoContent
	switch {
	case h.Flags.Chunks, h.Flags.SSE, sse:
	case h.lengthSet && h.PayloadLen == 0:
		h.Flags.PayloadRemaining = false
	case h.PayloadLen == 0 && (h.HTTPCode == http.StatusOK || h.HTTPCode == http.StatusPermanentRedirect):
		h.Flags.PayloadRemaining = false
	}

	if h.Flags.PayloadRemaining {
		h.Stage = StagePayload
		return
	}
	h.Stage = StageFinished
}

// counter counts bytes passed to w.
type counter struct {
	w io.Writer
	n int
}

func (c *counter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += n
	return n, err
}

// ReadPayload moves available payload bytes from r to dst, or into the
// handler's own buffer when dst is nil. It returns the number of payload
// bytes delivered.
func (h *Handler) ReadPayload(r Reader, dst io.Writer) (int, error) {
	if h.Stage != StagePayload {
		return 0, nil
	}
	if dst == nil || h.Flags.SSE || h.Flags.Gzip {
		dst = &h.body
	}
	cw := &counter{w: dst}

	if h.Flags.Chunks {
		ret, err := h.chunks.Decode(r, cw)
		h.PayloadRead += cw.n
		if cw.n > 0 {
			h.Flags.PayloadAvailable = true
		}
		if err != nil {
			return cw.n, err
		}
		if ret == ChunksComplete {
			h.PayloadLen = h.chunks.Total()
			if !h.Flags.SSE {
				h.finish()
			}
		}
		return cw.n, nil
	}

	buf := make([]byte, ChunkSize)
	for r.Available() > 0 {
		want := min(r.Available(), ChunkSize)
		if h.lengthSet && !h.Flags.SSE {
			want = min(want, h.PayloadLen-h.PayloadRead)
		}
		if want <= 0 {
			break
		}
		n, err := r.Read(buf[:want])
		if n > 0 {
			if _, werr := cw.Write(buf[:n]); werr != nil {
				return cw.n, werr
			}
			h.PayloadRead += n
			h.Flags.PayloadAvailable = true
		}
		if err != nil && err != io.EOF {
			return cw.n, err
		}
		if n == 0 {
			break
		}
	}

	if h.lengthSet && !h.Flags.SSE && h.PayloadRead >= h.PayloadLen {
		h.finish()
	}
	return cw.n, nil
}

// CloseDelimited reports whether the payload ends only when the server
// closes the connection.
func (h *Handler) CloseDelimited() bool {
	return h.Stage == StagePayload && !h.lengthSet && !h.Flags.Chunks && !h.Flags.SSE
}

// Finish ends a payload that is delimited by connection close.
func (h *Handler) Finish() {
	if h.Stage == StagePayload {
		h.finish()
	}
}

func (h *Handler) finish() {
	h.Flags.PayloadRemaining = false
	h.Stage = StageFinished
}

// NextFrame removes and returns the next complete event stream frame, or
// false when none is buffered. Frames are separated by a blank line.
func (h *Handler) NextFrame() (string, bool) {
	b := h.body.Bytes()
	sep := []byte("\n\n")
	i := bytes.Index(b, sep)
	if crlf := bytes.Index(b, []byte("\r\n\r\n")); crlf > -1 && (i == -1 || crlf < i) {
		i, sep = crlf, []byte("\r\n\r\n")
	}
	if i == -1 {
		return "", false
	}

	frame := strings.ReplaceAll(string(b[:i]), "\r\n", "\n")
	h.body.Next(i + len(sep))
	return frame, true
}

// Buffered returns the number of payload bytes held by the handler.
func (h *Handler) Buffered() int { return h.body.Len() }

// ChunkPhase returns where the chunked body decoder stands.
func (h *Handler) ChunkPhase() ChunkPhase { return h.chunks.Phase() }

// Complete reports whether neither header nor payload bytes remain.
func (h *Handler) Complete() bool {
	return h.Stage == StageFinished && !h.Flags.HeaderRemaining && !h.Flags.PayloadRemaining
}
