package result

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/adamwoolhether/fbclient/client/timer"
)

// ResumeStatus tracks a stream that is being re-established after a
// timeout, a cancel or an auth revocation.
type ResumeStatus int

const (
	ResumeUndefined ResumeStatus = iota
	ResumeResuming
	ResumeFinished
)

// RTDB is the Realtime Database view of a result: the fields of the last
// server-sent event, or the node name returned by a push.
type RTDB struct {
	stream   bool
	event    string
	data     string
	dataPath string
	name     string
	nullETag bool
	resume   ResumeStatus
	idle     timer.Timer
}

// IsStream reports whether the last payload was a server-sent event.
func (r RTDB) IsStream() bool { return r.stream }

// Event returns the event type of the last frame (put, patch, keep-alive, cancel, auth_revoked).
func (r RTDB) Event() string { return r.event }

// Data returns the JSON data of the last frame.
func (r RTDB) Data() string { return r.data }

// DataPath returns the path the last frame applies to.
func (r RTDB) DataPath() string { return r.dataPath }

// Name returns the node name created by a push.
func (r RTDB) Name() string { return r.name }

// NullETag reports whether the request asked for the ETag of a null node.
func (r RTDB) NullETag() bool { return r.nullETag }

// Value returns the frame data as a typed value.
func (r RTDB) Value() Value { return ParseValue(r.data) }

// EventTimeout reports whether the stream went idle past its window.
func (r RTDB) EventTimeout() bool {
	return r.stream && r.idle.Expired()
}

// ResumeStatus returns the stream resume state.
func (r RTDB) ResumeStatus() ResumeStatus { return r.resume }

func (r *RTDB) clear() {
	r.stream = false
	r.event = ""
	r.data = ""
	r.dataPath = ""
	r.resume = ResumeUndefined
}

// parse extracts the event, path and data of one SSE frame. Cancel and
// auth_revoked frames expire the idle timer at once so the stream is
// resumed on the next pass.
func (r *RTDB) parse(frame string, idle time.Duration) {
	r.clear()

	var dataLine string
	var haveEvent, haveData bool
	for line := range strings.SplitSeq(frame, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case strings.HasPrefix(line, "event:"):
			r.event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			haveEvent = true
		case strings.HasPrefix(line, "data:"):
			dataLine = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			haveData = true
		}
	}

	if haveEvent {
		r.stream = true
		if r.event == "cancel" || r.event == "auth_revoked" {
			idle = 0
		}
		r.idle.Feed(idle)
	}

	if !haveData {
		return
	}
	if dataLine == "null" {
		r.data = dataLine
		return
	}

	var body struct {
		Path string          `json:"path"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal([]byte(dataLine), &body); err == nil && body.Data != nil {
		r.dataPath = body.Path
		r.data = string(body.Data)
		return
	}
	r.data = dataLine
}

func (r *RTDB) parseName(payload string) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal([]byte(payload), &body); err == nil && body.Name != "" {
		r.name = body.Name
	}
}
