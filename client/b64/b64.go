// Package b64 implements the streaming base64 codec used for uploads and
// downloads whose bodies travel as quoted base64 JSON strings.
package b64

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

var (
	ErrCorrupt      = errors.New("corrupt base64 stream")
	ErrPartialGroup = errors.New("base64 stream ended inside a group")
)

// EncodedLen returns the encoded length of n raw bytes.
func EncodedLen(n int) int {
	return base64.StdEncoding.EncodedLen(n)
}

// QuotedLen returns the encoded length of n raw bytes wrapped in quotes.
func QuotedLen(n int) int {
	return 2 + EncodedLen(n)
}

// MaxDecodedLen returns the largest raw size a quoted base64 body of n
// bytes can decode to.
func MaxDecodedLen(n int) int {
	return base64.StdEncoding.DecodedLen(max(n-2, 0))
}

// Encode returns the base64 text of src.
func Encode(src []byte) []byte {
	dst := make([]byte, EncodedLen(len(src)))
	base64.StdEncoding.Encode(dst, src)
	return dst
}

// Decoder decodes base64 text written in arbitrarily sized pieces and
// writes the raw bytes to w. Quotes and line breaks are skipped. Bytes
// that do not complete a 4 byte group are held until the next Write.
type Decoder struct {
	w       io.Writer
	pending []byte
	written int
}

// NewDecoder returns a Decoder writing decoded bytes to w.
func NewDecoder(w io.Writer) *Decoder {
	return &Decoder{w: w, pending: make([]byte, 0, 4)}
}

func (d *Decoder) Write(p []byte) (int, error) {
	src := make([]byte, 0, len(d.pending)+len(p))
	src = append(src, d.pending...)
	for _, c := range p {
		switch c {
		case '"', '\r', '\n', ' ', '\t':
			continue
		}
		src = append(src, c)
	}

	full := len(src) / 4 * 4
	d.pending = append(d.pending[:0], src[full:]...)
	if full == 0 {
		return len(p), nil
	}

	out := make([]byte, base64.StdEncoding.DecodedLen(full))
	n, err := base64.StdEncoding.Decode(out, src[:full])
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	if _, err := d.w.Write(out[:n]); err != nil {
		return 0, err
	}
	d.written += n

	return len(p), nil
}

// Pending returns the number of buffered bytes of an incomplete group.
func (d *Decoder) Pending() int { return len(d.pending) }

// Written returns the number of decoded bytes written so far.
func (d *Decoder) Written() int { return d.written }

// Close reports an error when the stream ended inside a group.
func (d *Decoder) Close() error {
	if len(d.pending) > 0 {
		return fmt.Errorf("%w: %d bytes left", ErrPartialGroup, len(d.pending))
	}
	return nil
}
