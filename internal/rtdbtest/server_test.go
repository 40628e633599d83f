package rtdbtest_test

import (
	"bufio"
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/adamwoolhether/fbclient/internal/rtdbtest"
)

func newServer(t *testing.T, opts ...rtdbtest.Option) (*rtdbtest.Server, *httptest.Server) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(t.Output(), &slog.HandlerOptions{Level: slog.LevelDebug}))
	fake := rtdbtest.New(append([]rtdbtest.Option{rtdbtest.WithLogger(logger)}, opts...)...)
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	t.Cleanup(fake.Close)

	return fake, srv
}

func do(t *testing.T, method, url, body string, header http.Header) (*http.Response, string) {
	t.Helper()

	req, err := http.NewRequestWithContext(t.Context(), method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, string(b)
}

func TestServer_CRUD(t *testing.T) {
	_, srv := newServer(t)

	tests := []struct {
		name    string
		method  string
		path    string
		body    string
		expCode int
		expBody string
	}{
		{"put", http.MethodPut, "/users/1.json", `{"name":"ada"}`, http.StatusOK, `{"name":"ada"}`},
		{"get", http.MethodGet, "/users/1/name.json", "", http.StatusOK, `"ada"`},
		{"patch", http.MethodPatch, "/users/1.json", `{"age":36}`, http.StatusOK, `{"age":36}`},
		{"get merged", http.MethodGet, "/users.json", "", http.StatusOK, `{"1":{"age":36,"name":"ada"}}`},
		{"delete", http.MethodDelete, "/users/1.json", "", http.StatusOK, `null`},
		{"get deleted", http.MethodGet, "/users.json", "", http.StatusOK, `null`},
		{"bad json", http.MethodPut, "/x.json", `{"a":`, http.StatusBadRequest, `{"error":"invalid data; couldn't parse JSON object, array, or value"}`},
		{"patch non object", http.MethodPatch, "/x.json", `3`, http.StatusBadRequest, `{"error":"invalid data; couldn't parse JSON object"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, got := do(t, tt.method, srv.URL+tt.path, tt.body, nil)
			if resp.StatusCode != tt.expCode {
				t.Errorf("exp status %d, got %d", tt.expCode, resp.StatusCode)
			}
			if got != tt.expBody {
				t.Errorf("exp body %s, got %s", tt.expBody, got)
			}
		})
	}
}

func TestServer_Push(t *testing.T) {
	fake, srv := newServer(t)

	_, got := do(t, http.MethodPost, srv.URL+"/messages.json", `{"text":"hi"}`, nil)
	if !strings.HasPrefix(got, `{"name":"-`) {
		t.Fatalf("exp push name, got %s", got)
	}

	all, _ := fake.Store().Get("/messages")
	if !bytes.Contains(all, []byte(`{"text":"hi"}`)) {
		t.Errorf("exp pushed value stored, got %s", all)
	}
}

func TestServer_ETag(t *testing.T) {
	_, srv := newServer(t)
	etagHeader := http.Header{"X-Firebase-Etag": {"true"}}

	resp, _ := do(t, http.MethodPut, srv.URL+"/counter.json", `1`, etagHeader)
	tag := resp.Header.Get("ETag")
	if tag == "" {
		t.Fatal("expected ETag header")
	}

	resp, got := do(t, http.MethodPut, srv.URL+"/counter.json", `2`, http.Header{"If-Match": {"stale"}})
	if resp.StatusCode != http.StatusPreconditionFailed {
		t.Errorf("exp status %d, got %d", http.StatusPreconditionFailed, resp.StatusCode)
	}
	if got != "1" {
		t.Errorf("exp current value in body, got %s", got)
	}
	if resp.Header.Get("ETag") != tag {
		t.Errorf("exp current ETag %s, got %s", tag, resp.Header.Get("ETag"))
	}

	resp, _ = do(t, http.MethodPut, srv.URL+"/counter.json", `2`, http.Header{"If-Match": {tag}})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("exp status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	resp, _ = do(t, http.MethodGet, srv.URL+"/nothing.json", "", etagHeader)
	if got := resp.Header.Get("ETag"); got != rtdbtest.NullETag {
		t.Errorf("exp %s, got %s", rtdbtest.NullETag, got)
	}
}

func TestServer_PrintSilent(t *testing.T) {
	_, srv := newServer(t)

	resp, got := do(t, http.MethodPut, srv.URL+"/a.json?print=silent", `true`, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("exp status %d, got %d", http.StatusNoContent, resp.StatusCode)
	}
	if got != "" {
		t.Errorf("exp empty body, got %s", got)
	}
}

func TestServer_Auth(t *testing.T) {
	_, srv := newServer(t, rtdbtest.WithAuth("secret"))

	tests := []struct {
		name    string
		url     string
		header  http.Header
		expCode int
	}{
		{"missing", "/a.json", nil, http.StatusUnauthorized},
		{"wrong", "/a.json?auth=nope", nil, http.StatusUnauthorized},
		{"query", "/a.json?auth=secret", nil, http.StatusOK},
		{"bearer", "/a.json", http.Header{"Authorization": {"Bearer secret"}}, http.StatusOK},
		{"firebase", "/a.json", http.Header{"Authorization": {"Firebase secret"}}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := do(t, http.MethodGet, srv.URL+tt.url, "", tt.header)
			if resp.StatusCode != tt.expCode {
				t.Errorf("exp status %d, got %d", tt.expCode, resp.StatusCode)
			}
		})
	}
}

type frame struct {
	Event string
	Data  string
}

func readFrames(t *testing.T, r *bufio.Reader, n int) []frame {
	t.Helper()

	var frames []frame
	var cur frame
	for len(frames) < n {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			frames = append(frames, cur)
			cur = frame{}
		case strings.HasPrefix(line, "event: "):
			cur.Event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.Data = strings.TrimPrefix(line, "data: ")
		}
	}
	return frames
}

func openStream(t *testing.T, url string) *bufio.Reader {
	t.Helper()

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("exp event stream, got %q", got)
	}
	return bufio.NewReader(resp.Body)
}

func TestServer_Stream(t *testing.T) {
	fake, srv := newServer(t, rtdbtest.WithKeepAlive(200*time.Millisecond))
	if _, err := fake.Store().Put("/room", []byte(`{"title":"lobby"}`), ""); err != nil {
		t.Fatalf("seed: %v", err)
	}

	r := openStream(t, srv.URL+"/room.json")

	got := readFrames(t, r, 1)
	if _, err := fake.Store().Put("/room/title", []byte(`"hall"`), ""); err != nil {
		t.Fatalf("put: %v", err)
	}
	got = append(got, readFrames(t, r, 1)...)
	got = append(got, readFrames(t, r, 1)...)

	exp := []frame{
		{"put", `{"path":"/","data":{"title":"lobby"}}`},
		{"put", `{"path":"/title","data":"hall"}`},
		{"keep-alive", "null"},
	}
	if diff := cmp.Diff(exp, got); diff != "" {
		t.Errorf("frames mismatch (-exp +got):\n%s", diff)
	}
}

func TestServer_RevokeAuth(t *testing.T) {
	fake, srv := newServer(t)

	r := openStream(t, srv.URL+"/room.json")
	readFrames(t, r, 1)

	fake.RevokeAuth()

	got := readFrames(t, r, 1)
	exp := []frame{{"auth_revoked", `"credential is no longer valid"`}}
	if diff := cmp.Diff(exp, got); diff != "" {
		t.Errorf("frames mismatch (-exp +got):\n%s", diff)
	}
}
