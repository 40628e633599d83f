package e2e_test

import (
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/adamwoolhether/fbclient/client"
	"github.com/adamwoolhether/fbclient/client/conn"
	"github.com/adamwoolhether/fbclient/client/request"
	"github.com/adamwoolhether/fbclient/client/result"
	"github.com/adamwoolhether/fbclient/internal/rtdbtest"
)

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

func testLogger(t *testing.T) *slog.Logger {
	return slog.New(slog.NewTextHandler(t.Output(), &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// newDatabase starts a fake database and returns it with its host:port.
func newDatabase(t *testing.T, opts ...rtdbtest.Option) (*rtdbtest.Server, string) {
	t.Helper()

	fake := rtdbtest.New(append([]rtdbtest.Option{rtdbtest.WithLogger(testLogger(t))}, opts...)...)
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	t.Cleanup(fake.Close)

	return fake, srv.Listener.Addr().String()
}

func newClient(t *testing.T, opts ...client.Option) *client.Client {
	t.Helper()

	c, err := client.New(append([]client.Option{
		client.WithSocket(conn.NewNetSocket(nil, time.Second)),
		client.WithLogger(testLogger(t)),
		client.WithUserAgent("fbclient-e2e"),
	}, opts...)...)
	if err != nil {
		t.Fatalf("building client: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	return c
}

func processUntil(t *testing.T, c *client.Client, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		c.Process()
		time.Sleep(time.Millisecond)
	}
}

type staticToken string

func (s staticToken) Token() (string, request.AuthType, bool) {
	return string(s), request.AuthIDToken, true
}

// -------------------------------------------------------------------------
// Tests
// -------------------------------------------------------------------------

func TestGet(t *testing.T) {
	fake, addr := newDatabase(t)
	if _, err := fake.Store().Put("/test", []byte(`{"name":"null"}`), ""); err != nil {
		t.Fatalf("seed: %v", err)
	}
	c := newClient(t)

	res, err := c.Send(t.Context(), client.Request{Method: client.MethodGet, URL: addr, Path: "/test.json"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if got := res.Payload(); got != `{"name":"null"}` {
		t.Errorf("exp %s, got %s", `{"name":"null"}`, got)
	}
	if res.ETag() == "" {
		t.Error("expected an ETag")
	}

	res, err = c.Send(t.Context(), client.Request{Method: client.MethodGet, URL: addr, Path: "/missing.json"})
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if got := res.Payload(); got != "null" {
		t.Errorf("exp null, got %s", got)
	}
}

func TestWrite(t *testing.T) {
	fake, addr := newDatabase(t)
	c := newClient(t)

	put, err := c.Send(t.Context(), client.Request{Method: client.MethodPut, URL: addr, Path: "/users/1.json", Payload: `{"name":"ada"}`})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if got := put.Payload(); got != `{"name":"ada"}` {
		t.Errorf("exp echoed value, got %s", got)
	}

	if _, err := c.Send(t.Context(), client.Request{Method: client.MethodPatch, URL: addr, Path: "/users/1.json", Payload: `{"age":36}`}); err != nil {
		t.Fatalf("patch: %v", err)
	}

	push, err := c.Send(t.Context(), client.Request{Method: client.MethodPost, URL: addr, Path: "/log.json", Payload: `"hello"`})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if push.RTDB().Name() == "" {
		t.Error("expected push name")
	}

	got, _ := fake.Store().Get("/users/1")
	if exp := `{"age":36,"name":"ada"}`; string(got) != exp {
		t.Errorf("exp %s, got %s", exp, got)
	}

	if _, err := c.Send(t.Context(), client.Request{Method: client.MethodDelete, URL: addr, Path: "/users.json"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got, _ := fake.Store().Get("/users"); string(got) != "null" {
		t.Errorf("exp deleted, got %s", got)
	}
}

func TestConditionalWrite(t *testing.T) {
	_, addr := newDatabase(t)
	c := newClient(t)

	if _, err := c.Send(t.Context(), client.Request{Method: client.MethodPut, URL: addr, Path: "/counter.json", Payload: `1`}); err != nil {
		t.Fatalf("put: %v", err)
	}

	_, err := c.Send(t.Context(), client.Request{Method: client.MethodPut, URL: addr, Path: "/counter.json", Payload: `2`, ETag: "stale"})

	var resErr *result.Error
	if !errors.As(err, &resErr) {
		t.Fatalf("exp *result.Error, got %v", err)
	}
	if resErr.Code != http.StatusPreconditionFailed {
		t.Errorf("exp code %d, got %d", http.StatusPreconditionFailed, resErr.Code)
	}
	if !errors.Is(err, client.ErrProtocol) {
		t.Errorf("exp protocol error, got %v", err)
	}
}

func TestAuth(t *testing.T) {
	_, addr := newDatabase(t, rtdbtest.WithAuth("secret"))

	anon := newClient(t)
	_, err := anon.Send(t.Context(), client.Request{Method: client.MethodGet, URL: addr, Path: "/a.json"})
	if !errors.Is(err, client.ErrProtocol) {
		t.Fatalf("exp protocol error, got %v", err)
	}

	authed := newClient(t, client.WithTokenProvider(staticToken("secret")))
	res, err := authed.Send(t.Context(), client.Request{Method: client.MethodGet, URL: addr, Path: "/a.json"})
	if err != nil {
		t.Fatalf("authorized get: %v", err)
	}
	if got := res.Payload(); got != "null" {
		t.Errorf("exp null, got %s", got)
	}
}

type streamEvent struct {
	Event string
	Path  string
	Data  string
}

func TestStream(t *testing.T) {
	fake, addr := newDatabase(t)
	if _, err := fake.Store().Put("/room", []byte(`{"title":"lobby"}`), ""); err != nil {
		t.Fatalf("seed: %v", err)
	}
	c := newClient(t)

	var events []streamEvent
	_, err := c.Send(t.Context(), client.Request{
		Method: client.MethodGet,
		URL:    addr,
		Path:   "/room.json",
		SSE:    true,
		Callback: func(r *result.AsyncResult) {
			rt := r.RTDB()
			if rt.Event() == "put" || rt.Event() == "patch" {
				events = append(events, streamEvent{rt.Event(), rt.DataPath(), rt.Data()})
			}
		},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	processUntil(t, c, func() bool { return len(events) == 1 })

	writer := newClient(t)
	if _, err := writer.Send(t.Context(), client.Request{Method: client.MethodPatch, URL: addr, Path: "/room.json", Payload: `{"open":true}`}); err != nil {
		t.Fatalf("patch: %v", err)
	}

	processUntil(t, c, func() bool { return len(events) == 2 })

	exp := []streamEvent{
		{Event: "put", Path: "/", Data: `{"title":"lobby"}`},
		{Event: "patch", Path: "/", Data: `{"open":true}`},
	}
	if diff := cmp.Diff(exp, events); diff != "" {
		t.Errorf("events mismatch (-exp +got)\n%s", diff)
	}
}
