package client

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/adamwoolhether/fbclient/client/file"
	"github.com/adamwoolhether/fbclient/client/request"
	"github.com/adamwoolhether/fbclient/client/result"
	"github.com/adamwoolhether/fbclient/internal/validate"
)

const (
	// DefaultQueueLimit caps the number of queued async tasks.
	DefaultQueueLimit = 10
	// ReadTimeout is the default time a response may stay silent.
	ReadTimeout = 30 * time.Second
	// SSETimeout is the idle window of an event stream. A stream that
	// delivers nothing, not even a keep-alive, for this long is resumed.
	SSETimeout = 40 * time.Second
	// ReconnectTimeout spaces reconnect attempts of auth and stream tasks.
	ReconnectTimeout = 5 * time.Second
	// MinSessionTimeout is the shortest accepted session lifetime.
	MinSessionTimeout = 150 * time.Second

	defaultPollInterval = time.Millisecond
)

var (
	ErrNoSlot          = errors.New("no slot available")
	ErrClosed          = errors.New("client closed")
	ErrMultipleSink    = errors.New("more than one download sink")
	ErrResumableSource = errors.New("resumable upload needs a blob or file body without base64")
	ErrGroupShutdown   = errors.New("group is shut down")
)

// state is the position of a task in its request/response exchange.
type state int

const (
	stateUndefined state = iota
	stateSendHeader
	stateSendPayload
	stateReadResponse
	stateComplete
)

func (s state) String() string {
	switch s {
	case stateSendHeader:
		return "send header"
	case stateSendPayload:
		return "send payload"
	case stateReadResponse:
		return "read response"
	case stateComplete:
		return "complete"
	}
	return "undefined"
}

// OTAUpdater receives a firmware image downloaded by a task. Begin is
// called with the expected image size, or zero when the server did not
// announce one.
type OTAUpdater interface {
	Begin(size int) error
	Write(p []byte) (int, error)
	End() error
}

// TokenProvider supplies the credential placed in the Authorization
// header of every non-auth request. ok is false while no token is ready.
type TokenProvider interface {
	Token() (token string, typ request.AuthType, ok bool)
}

// Request describes one task. URL names the host, optionally with a
// scheme, port and path; Path, when set, replaces the URL path. Extras
// is appended to the path verbatim and usually carries the query.
//
// At most one of Payload, Blob and Upload is the body, and at most one
// of Download, Sink and OTA receives a successful response body.
type Request struct {
	Method request.Method `json:"method" validate:"required"`
	URL    string         `json:"url" validate:"required"`
	Path   string         `json:"path"`
	Extras string         `json:"extras"`
	ETag   string         `json:"etag"`
	Header http.Header    `json:"-"`

	Payload string       `json:"payload"`
	Blob    []byte       `json:"-"`
	Upload  *file.Config `json:"upload"`

	// ContentType is sent with the body, if any.
	ContentType string `json:"content_type"`

	Download *file.Config `json:"download"`
	Sink     io.Writer    `json:"-"`
	OTA      OTAUpdater   `json:"-"`

	// Base64 sends blob and file bodies, and expects download bodies, as
	// quoted base64 strings.
	Base64 bool `json:"base64"`
	// Resumable uploads the body in ranged chunks after a session
	// initiating request. ResumableChunk of zero uses the default size.
	Resumable      bool `json:"resumable"`
	ResumableChunk int  `json:"resumable_chunk" validate:"gte=0"`

	Async    bool `json:"async"`
	SSE      bool `json:"sse"`
	Auth     bool `json:"auth"`
	NoETag   bool `json:"no_etag"`
	NullETag bool `json:"null_etag"`

	UID      string              `json:"uid"`
	Result   *result.AsyncResult `json:"-"`
	Callback result.Callback     `json:"-"`
}

// Validate checks the request tags and that body and sink sources do
// not conflict.
func (r *Request) Validate() error {
	if err := validate.Check(r); err != nil {
		return err
	}

	if count(r.Payload != "", len(r.Blob) > 0, r.Upload != nil) > 1 {
		return request.ErrMultipleBody
	}
	if count(r.Download != nil, r.Sink != nil, r.OTA != nil) > 1 {
		return ErrMultipleSink
	}
	if r.Resumable && (r.Base64 || (len(r.Blob) == 0 && r.Upload == nil)) {
		return ErrResumableSource
	}
	if r.Method.String() == "" {
		return fmt.Errorf("unknown method %d", r.Method)
	}

	return nil
}

func count(flags ...bool) int {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	return n
}
