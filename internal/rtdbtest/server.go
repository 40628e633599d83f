// Package rtdbtest is an in-memory stand-in for the Firebase Realtime
// Database REST API. It serves reads, writes, pushes and event streams
// over plain HTTP/1.1 for use with net/http/httptest.
package rtdbtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// KeepAlive is the default interval between keep-alive frames of an
// event stream.
const KeepAlive = 30 * time.Second

// StatusError is a handler error answered with Code and a JSON body of
// {"error": Message}.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// Option configures a Server.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	tracer    trace.Tracer
	authToken string
	keepAlive time.Duration
}

// WithLogger sets the logger for request logs. Default is slog.Default().
func WithLogger(log *slog.Logger) Option {
	return Option(func(opts *options) {
		opts.logger = log
	})
}

// WithTracer injects the tracer used for request spans.
func WithTracer(tracer trace.Tracer) Option {
	return Option(func(opts *options) {
		opts.tracer = tracer
	})
}

// WithAuth requires every request to carry token, either as the auth
// query parameter or as a Bearer or Firebase Authorization header.
func WithAuth(token string) Option {
	return Option(func(opts *options) {
		opts.authToken = token
	})
}

// WithKeepAlive sets the keep-alive interval of event streams.
func WithKeepAlive(d time.Duration) Option {
	return Option(func(opts *options) {
		opts.keepAlive = d
	})
}

// Server answers Realtime Database REST requests from a [Store].
type Server struct {
	store     *Store
	app       *app
	logger    *slog.Logger
	authToken string
	keepAlive time.Duration

	mu      sync.Mutex
	revoked chan struct{}
	done    chan struct{}
	closed  bool
}

// New returns a Server over an empty store.
func New(optFns ...Option) *Server {
	var opts options
	for _, opt := range optFns {
		opt(&opts)
	}
	if opts.logger == nil {
		opts.logger = slog.Default()
	}
	if opts.tracer == nil {
		opts.tracer = noop.NewTracerProvider().Tracer("no-op tracer")
	}
	if opts.keepAlive <= 0 {
		opts.keepAlive = KeepAlive
	}

	s := Server{
		store:     NewStore(),
		logger:    opts.logger,
		authToken: opts.authToken,
		keepAlive: opts.keepAlive,
		revoked:   make(chan struct{}),
		done:      make(chan struct{}),
	}

	s.app = newApp(opts.logger, opts.tracer, Logger(opts.logger), Errors(opts.logger), Panics())
	s.app.handle(http.MethodGet, s.authorized(s.get))
	s.app.handle(http.MethodPut, s.authorized(s.put))
	s.app.handle(http.MethodPost, s.authorized(s.post))
	s.app.handle(http.MethodPatch, s.authorized(s.patch))
	s.app.handle(http.MethodDelete, s.authorized(s.delete))

	return &s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.app.ServeHTTP(w, r)
}

// Store returns the data behind the server.
func (s *Server) Store() *Store {
	return s.store
}

// RevokeAuth sends auth_revoked to every open stream and ends them.
func (s *Server) RevokeAuth() {
	s.mu.Lock()
	defer s.mu.Unlock()

	close(s.revoked)
	s.revoked = make(chan struct{})
}

// Close ends all open streams. Streams opened afterwards end at once.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.done)
	}
}

func (s *Server) authorized(handler Handler) Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		if s.authToken == "" {
			return handler(ctx, w, r)
		}

		token := r.URL.Query().Get("auth")
		if token == "" {
			authz := r.Header.Get("Authorization")
			for _, scheme := range []string{"Bearer ", "Firebase "} {
				if t, ok := strings.CutPrefix(authz, scheme); ok {
					token = t
				}
			}
		}
		if token != s.authToken {
			return &StatusError{Code: http.StatusUnauthorized, Message: "Permission denied"}
		}

		return handler(ctx, w, r)
	}
}

func (s *Server) get(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		return s.stream(ctx, w, r)
	}

	body, tag := s.store.Get(r.URL.Path)
	if wantETag(r) {
		w.Header().Set("ETag", tag)
	}

	return respond(ctx, w, r, http.StatusOK, body)
}

func (s *Server) put(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}

	tag, err := s.store.Put(r.URL.Path, data, r.Header.Get("If-Match"))
	if err != nil {
		return s.writeErr(ctx, w, r, err)
	}
	if wantETag(r) {
		w.Header().Set("ETag", tag)
	}

	body, _ := s.store.Get(r.URL.Path)
	return respond(ctx, w, r, http.StatusOK, body)
}

func (s *Server) post(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}

	name, err := s.store.Push(r.URL.Path, data)
	if err != nil {
		return s.writeErr(ctx, w, r, err)
	}

	return respond(ctx, w, r, http.StatusOK, fmt.Appendf(nil, `{"name":%q}`, name))
}

func (s *Server) patch(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}

	if err := s.store.Patch(r.URL.Path, data); err != nil {
		return s.writeErr(ctx, w, r, err)
	}

	return respond(ctx, w, r, http.StatusOK, data)
}

func (s *Server) delete(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if err := s.store.Delete(r.URL.Path, r.Header.Get("If-Match")); err != nil {
		return s.writeErr(ctx, w, r, err)
	}
	if wantETag(r) {
		w.Header().Set("ETag", NullETag)
	}

	return respond(ctx, w, r, http.StatusOK, []byte("null"))
}

// writeErr maps store errors to responses. A failed condition answers
// 412 with the current value and its ETag.
func (s *Server) writeErr(ctx context.Context, w http.ResponseWriter, r *http.Request, err error) error {
	switch {
	case errors.Is(err, ErrETagMismatch):
		body, tag := s.store.Get(r.URL.Path)
		w.Header().Set("ETag", tag)
		return respond(ctx, w, r, http.StatusPreconditionFailed, body)

	case errors.Is(err, ErrNotObject):
		return &StatusError{Code: http.StatusBadRequest, Message: ErrNotObject.Error()}

	case errors.Is(err, ErrInvalidData):
		return &StatusError{Code: http.StatusBadRequest, Message: ErrInvalidData.Error()}
	}

	return err
}

// stream serves an event stream of the location: the current value as
// a put, then every change, with keep-alive frames in between.
func (s *Server) stream(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return errors.New("response writer does not support flushing")
	}

	events, cancel := s.store.Watch(r.URL.Path)
	defer cancel()

	s.mu.Lock()
	revoked, done := s.revoked, s.done
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	SetStatusCode(ctx, http.StatusOK)
	w.WriteHeader(http.StatusOK)

	body, _ := s.store.Get(r.URL.Path)
	if err := writeEvent(w, "put", fmt.Sprintf(`{"path":"/","data":%s}`, body)); err != nil {
		return err
	}
	flusher.Flush()

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		var err error
		select {
		case <-ctx.Done():
			return nil
		case <-done:
			return nil
		case <-revoked:
			err = writeEvent(w, "auth_revoked", `"credential is no longer valid"`)
			flusher.Flush()
			return err
		case ev := <-events:
			err = writeEvent(w, ev.Type, fmt.Sprintf(`{"path":%q,"data":%s}`, ev.Path, ev.Data))
		case <-ticker.C:
			err = writeEvent(w, "keep-alive", "null")
		}
		if err != nil {
			return err
		}
		flusher.Flush()
	}
}

func writeEvent(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func wantETag(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("X-Firebase-ETag"), "true")
}

// respond writes body as JSON. print=silent answers 204 with no body.
func respond(ctx context.Context, w http.ResponseWriter, r *http.Request, statusCode int, body []byte) error {
	if statusCode == http.StatusOK && r.URL.Query().Get("print") == "silent" {
		SetStatusCode(ctx, http.StatusNoContent)
		w.WriteHeader(http.StatusNoContent)
		return nil
	}

	SetStatusCode(ctx, statusCode)

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(statusCode)

	_, err := w.Write(body)
	return err
}

// respondJSON answers with data encoded as JSON.
func respondJSON(ctx context.Context, w http.ResponseWriter, statusCode int, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	SetStatusCode(ctx, statusCode)

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(jsonData)))
	w.WriteHeader(statusCode)

	if _, err = w.Write(jsonData); err != nil {
		return err
	}

	return nil
}
