// Package request serializes one HTTP/1.1 request: the request line and
// headers, and a body taken from exactly one of a literal payload, a
// byte slice or a file.
package request

import (
	"fmt"
	"io"
	"strings"

	"github.com/adamwoolhether/fbclient/client/b64"
	"github.com/adamwoolhether/fbclient/client/file"
	"github.com/adamwoolhether/fbclient/client/timer"
)

// Handler holds the request of one task and the cursors of its
// transmission. PayloadIndex counts body bytes sent on the current
// connection; DataIndex counts bytes sent of the current segment. Both
// only move forward until Rewind.
type Handler struct {
	Method   Method
	URL      string
	Path     string
	ETag     string
	Port     int
	Base64   bool
	OTA      bool
	Location string

	header  strings.Builder
	payload string
	blob    []byte
	file    *file.Config

	f       file.File
	fileLen int
	pos     int
	seg     []byte
	quoted  int

	PayloadIndex int
	DataIndex    int
	SendTimer    timer.Timer
	Resumable    Resumable
}

// Clear resets the handler for a new request.
func (h *Handler) Clear() {
	h.closeFile()
	*h = Handler{Port: DefaultPort, SendTimer: h.SendTimer}
}

// SetPayload makes s the request body.
func (h *Handler) SetPayload(s string) {
	h.blob = nil
	h.file = nil
	h.payload = s
}

// SetBlob makes b the request body.
func (h *Handler) SetBlob(b []byte) {
	h.payload = ""
	h.file = nil
	h.blob = b
}

// SetFile makes the named file the request body.
func (h *Handler) SetFile(cfg *file.Config) {
	h.payload = ""
	h.blob = nil
	h.file = cfg
}

// Payload returns the literal payload.
func (h *Handler) Payload() string { return h.payload }

// HasBody reports whether any body source is set.
func (h *Handler) HasBody() bool {
	return h.payload != "" || len(h.blob) > 0 || h.file != nil
}

// IsUpload reports whether the body comes from a blob or a file.
func (h *Handler) IsUpload() bool {
	return len(h.blob) > 0 || h.file != nil
}

// rawLen returns the unencoded size of the blob or file body.
func (h *Handler) rawLen() int {
	if len(h.blob) > 0 {
		return len(h.blob)
	}
	return h.fileLen
}

// PrepareFile opens the file body to learn its size. The file stays
// open for the first send.
func (h *Handler) PrepareFile() error {
	if h.file == nil {
		return nil
	}
	if err := h.openFile(); err != nil {
		return err
	}
	return nil
}

func (h *Handler) openFile() error {
	if h.f != nil {
		return nil
	}
	f, err := h.file.Open(h.file.Name, file.ModeRead)
	if err != nil {
		return fmt.Errorf("%w %s: %w", ErrFileOpen, h.file.Name, err)
	}
	if f == nil {
		return fmt.Errorf("%w %s: no file returned", ErrFileOpen, h.file.Name)
	}
	h.f = f
	h.fileLen = int(f.Size())
	return nil
}

func (h *Handler) closeFile() {
	if h.f != nil {
		h.f.Close()
		h.f = nil
	}
}

// CloseFile closes an open file body.
func (h *Handler) CloseFile() { h.closeFile() }

// BodyLen returns the number of bytes the body occupies on the wire,
// including base64 inflation and the surrounding quotes.
func (h *Handler) BodyLen() int {
	if h.payload != "" {
		return len(h.payload)
	}
	if h.Resumable.Enabled() && !h.Resumable.Uploading() {
		// The session initiating request carries no body.
		return 0
	}
	if h.Resumable.Uploading() {
		return h.Resumable.ChunkLen()
	}
	n := h.rawLen()
	if n == 0 {
		return 0
	}
	if h.Base64 {
		return b64.QuotedLen(n)
	}
	return n
}

// Segment returns the bytes of the body still to send in the current
// segment, producing the next segment once the previous one is sent. It
// returns nil when the body is complete.
func (h *Handler) Segment() ([]byte, error) {
	if h.DataIndex < len(h.seg) {
		return h.seg[h.DataIndex:], nil
	}
	h.seg = nil
	h.DataIndex = 0

	if h.PayloadIndex >= h.BodyLen() {
		return nil, nil
	}

	if h.payload != "" {
		h.seg = []byte(h.payload[h.PayloadIndex:])
		return h.seg, nil
	}

	if h.Base64 && !h.Resumable.Uploading() {
		return h.base64Segment()
	}

	end := h.rawLen()
	if h.Resumable.Uploading() {
		if want := h.Resumable.Start() + h.PayloadIndex; h.pos != want {
			if err := h.seek(want); err != nil {
				return nil, err
			}
		}
		end = h.Resumable.Start() + h.Resumable.ChunkLen()
	}
	n := min(ChunkSize, end-h.pos)
	buf, err := h.read(n)
	if err != nil {
		return nil, err
	}
	h.seg = buf
	return h.seg, nil
}

func (h *Handler) base64Segment() ([]byte, error) {
	switch {
	case h.PayloadIndex == 0 && h.quoted == 0:
		h.quoted = 1
		h.seg = []byte{'"'}
		return h.seg, nil
	case h.pos >= h.rawLen():
		h.seg = []byte{'"'}
		return h.seg, nil
	}

	raw, err := h.read(min(Base64ChunkSize, h.rawLen()-h.pos))
	if err != nil {
		return nil, err
	}
	h.seg = b64.Encode(raw)
	return h.seg, nil
}

func (h *Handler) read(n int) ([]byte, error) {
	if len(h.blob) > 0 {
		buf := h.blob[h.pos : h.pos+n]
		h.pos += n
		return buf, nil
	}

	if err := h.openFile(); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	read, err := io.ReadFull(h.f, buf)
	if read == 0 {
		if err == nil {
			err = ErrFileShortRead
		}
		return nil, fmt.Errorf("reading %s: %w", h.file.Name, err)
	}
	h.pos += read
	return buf[:read], nil
}

// seek moves the raw body cursor to off.
func (h *Handler) seek(off int) error {
	if len(h.blob) > 0 {
		h.pos = off
		return nil
	}
	if err := h.openFile(); err != nil {
		return err
	}
	if s, ok := h.f.(io.Seeker); ok {
		if _, err := s.Seek(int64(off), io.SeekStart); err != nil {
			return fmt.Errorf("seeking %s: %w", h.file.Name, err)
		}
		h.pos = off
		return nil
	}
	if off < h.pos {
		h.closeFile()
		h.pos = 0
		if err := h.openFile(); err != nil {
			return err
		}
	}
	if _, err := io.CopyN(io.Discard, h.f, int64(off-h.pos)); err != nil {
		return fmt.Errorf("skipping %s: %w", h.file.Name, err)
	}
	h.pos = off
	return nil
}

// Advance records n bytes of the current segment as sent.
func (h *Handler) Advance(n int) {
	h.DataIndex += n
	h.PayloadIndex += n
	if h.DataIndex >= len(h.seg) {
		h.seg = nil
		h.DataIndex = 0
	}
}

// Rewind resets the transmission cursors so the body is sent again from
// the start on a new connection.
func (h *Handler) Rewind() {
	h.PayloadIndex = 0
	h.DataIndex = 0
	h.seg = nil
	h.quoted = 0
	h.pos = 0
	h.closeFile()
}

// TCPWrite writes p through w. A write that accepts nothing from a
// non-empty p is reported as [ErrZeroWrite].
func (h *Handler) TCPWrite(w io.Writer, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n, err := w.Write(p)
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, ErrZeroWrite
	}
	return n, nil
}
