package request

import (
	"fmt"
	"strconv"
	"strings"
)

// ResumableChunkSize is the default size of one ranged upload request.
const ResumableChunkSize = 256 * 1024

// Resumable tracks a ranged upload. After the initiating request returns
// an upload Location, the body is sent in chunks, each as its own PUT
// with a Content-Range header, until the server has acknowledged the
// whole file.
type Resumable struct {
	Location string

	size   int
	chunk  int
	index  int
	read   int
	active bool
}

// Enable prepares a ranged upload of size bytes in chunks of chunk bytes.
// A chunk of zero selects [ResumableChunkSize].
func (r *Resumable) Enable(size, chunk int) {
	if chunk <= 0 {
		chunk = ResumableChunkSize
	}
	*r = Resumable{size: size, chunk: chunk}
}

// Enabled reports whether a ranged upload is configured.
func (r *Resumable) Enabled() bool { return r.size > 0 }

// Uploading reports whether chunks are being sent to the upload location.
func (r *Resumable) Uploading() bool { return r.active }

// Start is the offset of the current chunk.
func (r *Resumable) Start() int { return r.index }

// ChunkLen is the length of the current chunk.
func (r *Resumable) ChunkLen() int { return r.read }

// Size is the total upload size.
func (r *Resumable) Size() int { return r.size }

// Begin switches to chunk uploads against location, starting at offset 0.
func (r *Resumable) Begin(location string) {
	r.Location = location
	r.index = 0
	r.active = true
	r.nextRange()
}

func (r *Resumable) nextRange() {
	r.read = min(r.size-r.index, r.chunk)
}

// UpdateRange advances past the range the server acknowledged, given as
// the value of a Range header such as "bytes=0-262143".
func (r *Resumable) UpdateRange(rng string) error {
	v, ok := strings.CutPrefix(rng, "bytes=")
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidRange, rng)
	}
	_, last, ok := strings.Cut(v, "-")
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidRange, rng)
	}
	end, err := strconv.Atoi(strings.TrimSpace(last))
	if err != nil || end < 0 || end >= r.size {
		return fmt.Errorf("%w: %q", ErrInvalidRange, rng)
	}

	r.index = end + 1
	r.nextRange()
	return nil
}

// Complete reports whether every byte has been acknowledged.
func (r *Resumable) Complete() bool { return r.index >= r.size }

// Header returns the request header for the current chunk.
func (r *Resumable) Header(host, path string) string {
	var b strings.Builder
	b.WriteString("PUT ")
	b.WriteString(path)
	b.WriteString(" HTTP/1.1\r\nHost: ")
	b.WriteString(host)
	b.WriteString("\r\nConnection: keep-alive\r\nContent-Length: ")
	b.WriteString(strconv.Itoa(r.read))
	fmt.Fprintf(&b, "\r\nContent-Range: bytes %d-%d/%d\r\n\r\n", r.index, r.index+r.read-1, r.size)
	return b.String()
}

// Clear ends the ranged upload.
func (r *Resumable) Clear() { *r = Resumable{} }
