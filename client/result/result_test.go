package result

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestProgress_Visibility(t *testing.T) {
	const total = 1000

	steps := []struct {
		transferred int
		exp         bool
	}{
		{0, true},     // 0%
		{5, false},    // still 0%
		{10, false},   // 1%, below the 2 point step
		{20, true},    // 2%
		{30, false},   // 3%
		{40, true},    // 4%
		{41, false},   // 4%
		{500, true},   // 50%
		{505, false},  // 50%
		{515, false},  // 51%
		{990, true},   // 99%
		{1000, true},  // 100%
		{1000, false}, // repeated 100%
	}

	r := New()
	for _, s := range steps {
		if got := r.UpdateUpload(s.transferred, total); got != s.exp {
			t.Errorf("transferred %d: exp %v, got %v", s.transferred, s.exp, got)
		}
	}

	if p := r.UploadInfo().Percent(); p != 100 {
		t.Errorf("exp final percent 100, got %d", p)
	}
}

func TestProgress_EdgeTriggered(t *testing.T) {
	r := New()

	if r.DownloadProgress() {
		t.Fatal("no progress recorded yet")
	}

	r.UpdateDownload(50, 100)
	if !r.DownloadProgress() {
		t.Fatal("exp milestone to be visible")
	}
	if r.DownloadProgress() {
		t.Error("milestone must be consumed by the first read")
	}
}

func TestAsyncResult_PayloadRead(t *testing.T) {
	r := New()
	r.SetPayload(`{"name":"null"}`)

	if got := r.Available(); got != 15 {
		t.Errorf("exp 15 available, got %d", got)
	}
	if got := r.Payload(); got != `{"name":"null"}` {
		t.Errorf("unexpected payload %q", got)
	}
	if got := r.Available(); got != 0 {
		t.Errorf("payload must be marked read, got %d available", got)
	}
	if !strings.HasPrefix(r.UID(), "task_") {
		t.Errorf("unexpected uid %q", r.UID())
	}
}

func TestAsyncResult_Flush(t *testing.T) {
	internal := New()
	external := New()
	uid := external.UID()

	if internal.Flush(external) {
		t.Fatal("nothing changed, flush must be a no-op")
	}

	internal.SetETag("abc")
	internal.SetPayload("hello")
	if !internal.Flush(external) {
		t.Fatal("exp flush after new payload")
	}
	if internal.Flush(external) {
		t.Error("change must be consumed by the first flush")
	}

	if got := external.Payload(); got != "hello" {
		t.Errorf("exp payload copied, got %q", got)
	}
	if got := external.ETag(); got != "abc" {
		t.Errorf("exp etag copied, got %q", got)
	}
	if external.UID() != uid {
		t.Error("flush must not replace the destination uid")
	}

	internal.SetError(NewError(CodeTCPReceiveTimeout))
	internal.Flush(external)
	if !external.IsError() {
		t.Fatal("exp error copied")
	}
	if !errors.Is(external.LastError(), ErrTCP) {
		t.Errorf("exp tcp category, got %v", external.LastError())
	}

	internal.SetError(nil)
	internal.Flush(external)
	if external.IsError() {
		t.Error("error must clear after a successful request")
	}
}

func TestError_Messages(t *testing.T) {
	testCases := []struct {
		name   string
		err    *Error
		expMsg string
		expCat error
	}{
		{"tcp send", NewError(CodeTCPSendFailed), "TCP send failed", ErrTCP},
		{"file open", NewError(CodeFileOpen), "error opening file", ErrResource},
		{"ota end", NewError(CodeOTAEndFailed), "firmware end failed", ErrResource},
		{"unauthenticated", NewError(CodeUnauthenticated), "unauthenticate", ErrAuth},
		{"stream timeout", NewError(CodeStreamTimeout), "stream connection timed out", ErrApplication},
		{"cancelled", NewError(CodeOperationCancelled), "operation was cancelled", ErrApplication},
		{"412", HTTPError(412, "ignored"), "precondition failed (ETag does not match)", ErrProtocol},
		{"401", HTTPError(401, ""), "unauthorized", ErrProtocol},
		{"404 payload", HTTPError(404, `{"error":"not found"}`), `{"error":"not found"}`, ErrProtocol},
		{"500 empty", HTTPError(500, ""), "HTTP Status 500", ErrProtocol},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err.Message != tc.expMsg {
				t.Errorf("exp message %q, got %q", tc.expMsg, tc.err.Message)
			}
			if !errors.Is(tc.err, tc.expCat) {
				t.Errorf("exp category %v, got %v", tc.expCat, tc.err.Err)
			}
		})
	}
}

func TestRTDB_ParseSSE(t *testing.T) {
	now := time.Unix(100, 0)
	clock := func() time.Time { return now }

	testCases := []struct {
		name      string
		frame     string
		expEvent  string
		expPath   string
		expData   string
		expKind   Kind
		expIdleOK bool
	}{
		{
			name:      "put object",
			frame:     "event: put\ndata: {\"path\":\"/a\",\"data\":{\"b\":1}}\n\n",
			expEvent:  "put",
			expPath:   "/a",
			expData:   `{"b":1}`,
			expKind:   KindObject,
			expIdleOK: true,
		},
		{
			name:      "patch scalar",
			frame:     "event: patch\r\ndata: {\"path\":\"/n\",\"data\":42}\r\n\r\n",
			expEvent:  "patch",
			expPath:   "/n",
			expData:   "42",
			expKind:   KindInt,
			expIdleOK: true,
		},
		{
			name:      "keep alive",
			frame:     "event: keep-alive\ndata: null\n\n",
			expEvent:  "keep-alive",
			expData:   "null",
			expKind:   KindNull,
			expIdleOK: true,
		},
		{
			name:     "auth revoked expires idle window",
			frame:    "event: auth_revoked\ndata: \"credential is no longer valid\"\n\n",
			expEvent: "auth_revoked",
			expData:  `"credential is no longer valid"`,
			expKind:  KindString,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := New()
			r.SetClock(clock)
			r.SetPayload(tc.frame)
			r.ParseSSE(40 * time.Second)

			rt := r.RTDB()
			got := []string{rt.Event(), rt.DataPath(), rt.Data()}
			exp := []string{tc.expEvent, tc.expPath, tc.expData}
			if diff := cmp.Diff(exp, got); diff != "" {
				t.Errorf("frame mismatch (-exp +got):\n%s", diff)
			}
			if rt.Value().Kind() != tc.expKind {
				t.Errorf("exp kind %v, got %v", tc.expKind, rt.Value().Kind())
			}
			if rt.EventTimeout() == tc.expIdleOK {
				t.Errorf("exp event timeout %v, got %v", !tc.expIdleOK, rt.EventTimeout())
			}
		})
	}
}

func TestRTDB_ParseName(t *testing.T) {
	r := New()
	r.SetPayload(`{"name":"-Nabc123"}`)
	r.ParseName()

	if got := r.RTDB().Name(); got != "-Nabc123" {
		t.Errorf("exp node name, got %q", got)
	}
}

func TestParseValue(t *testing.T) {
	testCases := []struct {
		in      string
		expKind Kind
		expStr  string
	}{
		{"", KindUndefined, ""},
		{"null", KindNull, "null"},
		{"true", KindBool, "true"},
		{"-12", KindInt, "-12"},
		{"1.5", KindFloat, "1.5"},
		{`"hi"`, KindString, "hi"},
		{`{"a":1}`, KindObject, `{"a":1}`},
		{`[1,2]`, KindArray, `[1,2]`},
	}

	for _, tc := range testCases {
		t.Run(tc.expKind.String(), func(t *testing.T) {
			v := ParseValue(tc.in)
			if v.Kind() != tc.expKind {
				t.Errorf("exp kind %v, got %v", tc.expKind, v.Kind())
			}
			if v.String() != tc.expStr {
				t.Errorf("exp string %q, got %q", tc.expStr, v.String())
			}
		})
	}
}
