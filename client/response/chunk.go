package response

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
)

// ChunksComplete is returned by [ChunkDecoder.Decode] once the terminating
// chunk and trailer have been consumed.
const ChunksComplete = -1

// ChunkPhase is the position of a [ChunkDecoder] within the chunked body.
type ChunkPhase int

const (
	PhaseSize ChunkPhase = iota
	PhaseData
	PhaseDataEnd
	PhaseTrailer
	PhaseDone
)

// ChunkDecoder decodes a Transfer-Encoding: chunked body delivered in
// arbitrarily small pieces. Line phases consume one byte at a time so no
// byte past the body is read from the source.
type ChunkDecoder struct {
	phase ChunkPhase
	size  int
	read  int
	line  []byte
	total int
}

// Reset prepares the decoder for a new body.
func (d *ChunkDecoder) Reset() {
	*d = ChunkDecoder{line: d.line[:0]}
}

// Phase returns the current phase.
func (d *ChunkDecoder) Phase() ChunkPhase { return d.phase }

// Total returns the sum of all chunk sizes seen so far.
func (d *ChunkDecoder) Total() int { return d.total }

// Decode consumes what r has available and writes chunk data to dst. It
// returns the number of data bytes written, or ChunksComplete exactly
// once when the body ends. Calls after completion return zero.
func (d *ChunkDecoder) Decode(r Reader, dst io.Writer) (int, error) {
	written := 0
	var one [1]byte
	var buf []byte

	for d.phase != PhaseDone && r.Available() > 0 {
		if d.phase == PhaseData {
			want := min(d.size-d.read, r.Available(), ChunkSize)
			if cap(buf) < want {
				buf = make([]byte, want)
			}
			n, err := r.Read(buf[:want])
			if n > 0 {
				if _, werr := dst.Write(buf[:n]); werr != nil {
					return written, werr
				}
				d.read += n
				written += n
			}
			if err != nil && err != io.EOF {
				return written, err
			}
			if n == 0 {
				break
			}
			if d.read == d.size {
				d.phase = PhaseDataEnd
			}
			continue
		}

		n, err := r.Read(one[:])
		if err != nil && err != io.EOF {
			return written, err
		}
		if n == 0 {
			break
		}
		if err := d.consume(one[0]); err != nil {
			return written, err
		}
		if d.phase == PhaseDone {
			return ChunksComplete, nil
		}
	}

	return written, nil
}

// consume feeds one byte of a size, CRLF or trailer line.
func (d *ChunkDecoder) consume(c byte) error {
	d.line = append(d.line, c)

	switch d.phase {
	case PhaseDataEnd:
		switch {
		case len(d.line) == 1 && c == '\r':
			return nil
		case len(d.line) == 2 && c == '\n':
			d.line = d.line[:0]
			d.phase = PhaseSize
			return nil
		}
		return fmt.Errorf("%w: missing CRLF after chunk data", ErrMalformedChunk)

	case PhaseSize:
		if c != '\n' {
			if len(d.line) > 1024 {
				return fmt.Errorf("%w: size line too long", ErrMalformedChunk)
			}
			return nil
		}
		line := bytes.TrimRight(d.line, "\r\n")
		if i := bytes.IndexByte(line, ';'); i > -1 {
			line = line[:i]
		}
		size, err := strconv.ParseUint(string(bytes.TrimSpace(line)), 16, 31)
		if err != nil {
			return fmt.Errorf("%w: size %q", ErrMalformedChunk, line)
		}
		d.line = d.line[:0]
		d.size = int(size)
		d.read = 0
		d.total += d.size
		if d.size == 0 {
			d.phase = PhaseTrailer
			return nil
		}
		d.phase = PhaseData
		return nil

	case PhaseTrailer:
		if c != '\n' {
			return nil
		}
		blank := len(bytes.TrimRight(d.line, "\r\n")) == 0
		d.line = d.line[:0]
		if blank {
			d.phase = PhaseDone
		}
		return nil
	}

	return nil
}
