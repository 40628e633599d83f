package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"weak"

	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/fbclient/client/b64"
	"github.com/adamwoolhether/fbclient/client/conn"
	"github.com/adamwoolhether/fbclient/client/file"
	"github.com/adamwoolhether/fbclient/client/request"
	"github.com/adamwoolhether/fbclient/client/response"
	"github.com/adamwoolhether/fbclient/client/result"
	"github.com/adamwoolhether/fbclient/client/throttle"
)

// slot is one queued task and all state needed to resume it on the next
// pass.
type slot struct {
	state state
	ret   conn.Return

	async            bool
	sse              bool
	auth             bool
	toRemove         bool
	complete         bool
	stopCurrentAsync bool
	download         bool
	upload           bool
	uploadProgress   bool
	admitted         bool
	removed          bool
	metaDone         bool
	delivered        bool
	httpResp         bool

	authStamp int64
	lastEvent string
	host      string
	port      int

	req  request.Handler
	resp response.Handler
	res  *result.AsyncResult
	ext  weak.Pointer[result.AsyncResult]
	cb   result.Callback
	span trace.Span

	reconnect *throttle.Backoff

	// hdr holds the header of the current send with the token in place.
	hdr      []byte
	hdrIndex int

	sink sink
}

// external returns the caller's result while it is still alive.
func (s *slot) external() *result.AsyncResult {
	return s.ext.Value()
}

// visible returns the result the caller observes.
func (s *slot) visible() *result.AsyncResult {
	if r := s.external(); r != nil {
		return r
	}
	return s.res
}

func (s *slot) sending() bool {
	return s.state == stateUndefined || s.state == stateSendHeader || s.state == stateSendPayload
}

// restart sends the request again from the first header byte.
func (s *slot) restart() {
	s.state = stateSendHeader
	s.hdr = nil
	s.hdrIndex = 0
	s.req.Rewind()
}

// beginResponse prepares the response handler for the reply to the
// header about to be sent.
func (s *slot) beginResponse() {
	switch {
	case s.resp.Stage == response.StageUndefined,
		s.resp.Stage == response.StageFinished,
		s.sse && s.resp.Stage == response.StagePayload:
		s.resp.Begin()
		s.metaDone = false
		s.delivered = false
	}
}

// newRequest builds the request header of s from req.
func (c *Client) newRequest(s *slot, req Request) error {
	h := &s.req
	h.Clear()
	h.Method = req.Method
	h.URL = req.URL
	h.ETag = req.ETag
	h.Base64 = req.Base64
	h.OTA = req.OTA != nil

	host, port, urlPath := request.SplitURL(req.URL)
	if port == 0 {
		port = request.DefaultPort
	}
	path := req.Path
	if path == "" {
		path = urlPath
	}
	if path == "" {
		path = "/"
	}
	h.Path = path
	h.Port = port
	s.host, s.port = host, port

	switch {
	case req.Payload != "":
		h.SetPayload(req.Payload)
	case len(req.Blob) > 0:
		h.SetBlob(req.Blob)
	case req.Upload != nil:
		h.SetFile(req.Upload)
		if err := h.PrepareFile(); err != nil {
			return err
		}
	}

	h.AddRequestHeader(req.Method, path, req.Extras)
	h.AddHostHeader(request.HostPort(host, port))

	if !req.Auth {
		if c.tokens != nil {
			if _, typ, _ := c.tokens.Token(); typ != request.AuthNone {
				h.AddAuthHeader(typ)
			}
		}
	}
	if c.userAgent != "" {
		h.AddUAHeader(c.userAgent)
	}
	if req.ContentType != "" && h.HasBody() {
		h.AddContentTypeHeader(req.ContentType)
	}
	h.AddConnectionHeader(true)

	if !req.Auth {
		if !req.NoETag && req.Method != request.MethodPatch && !strings.Contains(req.Extras, "orderBy") {
			h.AddETagHeader()
		}
		if req.ETag != "" && (req.Method == request.MethodPut || req.Method == request.MethodDelete) {
			h.AddIfMatchHeader(req.ETag)
		}
		if req.SSE {
			h.AddSSEHeader()
		}
	}

	for _, name := range slices.Sorted(maps.Keys(req.Header)) {
		for _, v := range req.Header[name] {
			h.AddHeader(name, v)
		}
	}

	if req.Resumable {
		size := h.BodyLen()
		h.Resumable.Enable(size, req.ResumableChunk)
		h.AddHeader("X-Upload-Content-Length", strconv.Itoa(size))
	}

	h.Finish()
	return nil
}

// downloadURL builds the public URL of an uploaded object from the
// metadata returned by the storage server.
func downloadURL(body []byte) string {
	var meta struct {
		Name           string `json:"name"`
		Bucket         string `json:"bucket"`
		DownloadTokens string `json:"downloadTokens"`
	}
	if err := json.Unmarshal(body, &meta); err != nil {
		return ""
	}
	if meta.Name == "" || meta.Bucket == "" || meta.DownloadTokens == "" {
		return ""
	}

	token, _, _ := strings.Cut(meta.DownloadTokens, ",")
	return "https://firebasestorage.googleapis.com/v0/b/" + meta.Bucket + "/o/" + url.PathEscape(meta.Name) + "?alt=media&token=" + token
}

// =============================================================================

var errNoFile = errors.New("opener returned no file")

// sinkError carries the result code of a failed download write.
type sinkError struct {
	code int
	err  error
}

func (e *sinkError) Error() string {
	return fmt.Sprintf("download sink (%d): %v", e.code, e.err)
}

func (e *sinkError) Unwrap() error {
	return e.err
}

// codedWriter tags write failures with the code reported to the caller.
type codedWriter struct {
	w    io.Writer
	code int
}

func (cw codedWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	if err != nil {
		return n, &sinkError{code: cw.code, err: err}
	}
	return n, nil
}

// sink is the destination of a download body. It is opened lazily on
// the first payload byte of a successful response.
type sink struct {
	cfg *file.Config
	w   io.Writer
	ota OTAUpdater

	f    file.File
	dec  *b64.Decoder
	out  io.Writer
	code int
	open bool
}

func (c *Client) openSink(s *slot) error {
	k := &s.sink
	var w io.Writer
	code := result.CodeFileWrite

	switch {
	case k.ota != nil:
		size := s.resp.PayloadLen
		if s.req.Base64 {
			size = b64.MaxDecodedLen(size)
		}
		if err := k.ota.Begin(size); err != nil {
			return &sinkError{code: result.CodeOTATooLowSpace, err: err}
		}
		w, code = k.ota, result.CodeOTAWriteFailed

	case k.cfg != nil:
		f, err := k.cfg.Open(k.cfg.Name, file.ModeWrite)
		if err == nil && f == nil {
			err = errNoFile
		}
		if err != nil {
			return &sinkError{code: result.CodeFileOpen, err: err}
		}
		k.f, w = f, f

	default:
		w = k.w
	}

	k.code = code
	k.out = codedWriter{w: w, code: code}
	if s.req.Base64 {
		k.dec = b64.NewDecoder(k.out)
		k.out = k.dec
	}
	k.open = true
	return nil
}

// closeSink ends a download. commit finalizes the file or firmware
// image; otherwise a partially written file is discarded.
func (c *Client) closeSink(s *slot, commit bool) error {
	k := &s.sink
	if !k.open {
		return nil
	}
	k.open = false

	var err error
	if commit && k.dec != nil {
		if derr := k.dec.Close(); derr != nil {
			err = &sinkError{code: k.code, err: derr}
			commit = false
		}
	}

	switch {
	case k.ota != nil:
		if commit {
			if eerr := k.ota.End(); eerr != nil {
				err = &sinkError{code: result.CodeOTAEndFailed, err: eerr}
			}
		}

	case k.f != nil:
		var cerr error
		if a, ok := k.f.(file.Aborter); ok && !commit {
			cerr = a.Abort()
		} else {
			cerr = k.f.Close()
		}
		if cerr != nil && commit {
			err = &sinkError{code: result.CodeFileWrite, err: cerr}
		}
		if cerr != nil {
			c.logger.Error("closing download file", "name", k.cfg.Name, "error", cerr)
		}
		k.f = nil
	}

	k.dec = nil
	k.out = nil
	return err
}
