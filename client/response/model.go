package response

import "errors"

// ChunkSize is the largest piece read from the socket in one call.
const ChunkSize = 2048

var (
	ErrMalformedChunk  = errors.New("malformed chunked body")
	ErrMalformedStatus = errors.New("malformed status line")
	ErrHeaderTooLarge  = errors.New("response header too large")
	ErrGzip            = errors.New("decompressing payload")
)

// maxHeaderLen bounds the header block held while it is parsed.
const maxHeaderLen = 64 << 10

// Reader is the non-blocking byte source a response is parsed from.
// Available reports how many bytes Read can return without waiting.
type Reader interface {
	Available() int
	Read(p []byte) (int, error)
}

// Stage is the parse position within one response.
type Stage int

const (
	StageUndefined Stage = iota
	StageStatus
	StageHeader
	StagePayload
	StageFinished
)

func (s Stage) String() string {
	switch s {
	case StageStatus:
		return "status"
	case StageHeader:
		return "header"
	case StagePayload:
		return "payload"
	case StageFinished:
		return "finished"
	}
	return "undefined"
}

// Flags describe what the header block announced.
type Flags struct {
	HeaderRemaining  bool
	PayloadRemaining bool
	KeepAlive        bool
	UploadRange      bool
	SSE              bool
	HTTPResponse     bool
	Chunks           bool
	PayloadAvailable bool
	Gzip             bool
}
