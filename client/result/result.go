package result

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adamwoolhether/fbclient/client/timer"
)

// Callback receives a result whenever it carries new data, a new error
// or a progress milestone.
type Callback func(*AsyncResult)

// AsyncResult is the caller-visible outcome of one task. It is safe to
// poll from a goroutine other than the one driving the client.
type AsyncResult struct {
	mu          sync.Mutex
	uid         string
	payload     string
	unread      bool
	etag        string
	path        string
	err         *Error
	errChanged  bool
	upload      Progress
	download    Progress
	downloadURL string
	ota         bool
	rtdb        RTDB
	changed     bool
}

// New returns an empty result with a fresh task UID.
func New() *AsyncResult {
	return &AsyncResult{uid: NewUID()}
}

// NewUID returns a task identifier.
func NewUID() string {
	return "task_" + uuid.NewString()
}

// UID returns the task identifier.
func (r *AsyncResult) UID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.uid
}

// Available returns the payload length while the payload is unread and
// zero afterwards.
func (r *AsyncResult) Available() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unread {
		return len(r.payload)
	}
	return 0
}

// Payload returns the response payload and marks it read.
func (r *AsyncResult) Payload() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unread = false
	return r.payload
}

// Len returns the payload length regardless of read state.
func (r *AsyncResult) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payload)
}

// ETag returns the ETag of the last response.
func (r *AsyncResult) ETag() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.etag
}

// Path returns the resource path of the request.
func (r *AsyncResult) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

// IsError reports whether the task recorded an error.
func (r *AsyncResult) IsError() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err != nil && r.err.Code != 0 && r.err.Code != 200
}

// LastError returns the recorded error or nil.
func (r *AsyncResult) LastError() *Error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// UploadProgress reports, once per milestone, whether upload progress
// became visible.
func (r *AsyncResult) UploadProgress() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.upload.take()
}

// DownloadProgress reports, once per milestone, whether download
// progress became visible.
func (r *AsyncResult) DownloadProgress() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.download.take()
}

// UploadInfo returns the upload counters.
func (r *AsyncResult) UploadInfo() Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.upload
}

// DownloadInfo returns the download counters.
func (r *AsyncResult) DownloadInfo() Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.download
}

// DownloadURL returns the URL of an uploaded object when the server
// reported one.
func (r *AsyncResult) DownloadURL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.downloadURL
}

// IsOTA reports whether the download fed a firmware updater.
func (r *AsyncResult) IsOTA() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ota
}

// RTDB returns the Realtime Database view of the result.
func (r *AsyncResult) RTDB() RTDB {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rtdb
}

// IsResult reports whether anything is waiting to be consumed.
func (r *AsyncResult) IsResult() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unread || r.err != nil || r.upload.pending || r.download.pending
}

// Clear drops all state except the UID and the stream clock.
func (r *AsyncResult) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payload = ""
	r.unread = false
	r.etag = ""
	r.path = ""
	r.err = nil
	r.errChanged = false
	r.upload = Progress{}
	r.download = Progress{}
	r.downloadURL = ""
	r.ota = false
	r.rtdb.clear()
	r.rtdb.name = ""
	r.rtdb.nullETag = false
	r.rtdb.idle.Stop()
	r.changed = false
}

// The setters below are driven by the client while it processes a task.

// SetUID replaces the task identifier. An empty uid generates a new one.
func (r *AsyncResult) SetUID(uid string) {
	if uid == "" {
		uid = NewUID()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uid = uid
}

// SetClock replaces the clock used by the stream idle timer.
func (r *AsyncResult) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rtdb.idle = *timer.New(now)
}

// SetPayload stores a new payload and marks it unread.
func (r *AsyncResult) SetPayload(payload string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if payload == "" {
		return
	}
	r.payload = payload
	r.unread = true
	r.changed = true
}

func (r *AsyncResult) SetETag(etag string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.etag = etag
}

func (r *AsyncResult) SetPath(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.path = path
}

func (r *AsyncResult) SetDownloadURL(u string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.downloadURL = u
}

func (r *AsyncResult) SetOTA(ota bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ota = ota
}

func (r *AsyncResult) SetNullETag(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rtdb.nullETag = v
}

// SetError records err. A nil err clears the recorded error.
func (r *AsyncResult) SetError(err *Error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		if r.err != nil {
			r.err = nil
			r.errChanged = true
		}
		return
	}
	r.err = err
	r.errChanged = true
	r.changed = true
}

// UpdateUpload records upload progress and reports a new milestone.
func (r *AsyncResult) UpdateUpload(transferred, total int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upload.update(transferred, total) {
		r.changed = true
		return true
	}
	return false
}

// UpdateDownload records download progress and reports a new milestone.
func (r *AsyncResult) UpdateDownload(transferred, total int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.download.update(transferred, total) {
		r.changed = true
		return true
	}
	return false
}

// ResetProgress zeroes both transfer counters.
func (r *AsyncResult) ResetProgress() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upload = Progress{}
	r.download = Progress{}
}

// ParseSSE parses one event stream frame held in the payload.
func (r *AsyncResult) ParseSSE(idle time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rtdb.parse(r.payload, idle)
}

// ParseName extracts the node name from a push response payload.
func (r *AsyncResult) ParseName() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rtdb.parseName(r.payload)
}

// FeedStream marks the result as a stream and restarts its idle window.
func (r *AsyncResult) FeedStream(idle time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rtdb.stream = true
	r.rtdb.idle.Feed(idle)
}

// ClearStream drops the stream fields of the last frame.
func (r *AsyncResult) ClearStream() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rtdb.clear()
	r.rtdb.idle.Stop()
}

func (r *AsyncResult) SetResumeStatus(s ResumeStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rtdb.resume = s
}

// Flush reports whether the result changed since the last Flush and, if
// so, copies its observable state into dst. A nil or identical dst only
// consumes the change.
func (r *AsyncResult) Flush(dst *AsyncResult) bool {
	r.mu.Lock()
	if !r.changed && !r.errChanged {
		r.mu.Unlock()
		return false
	}
	r.changed = false
	r.errChanged = false
	if dst == nil || dst == r {
		r.mu.Unlock()
		return true
	}

	uid, payload, unread := r.uid, r.payload, r.unread
	etag, path, err := r.etag, r.path, r.err
	downloadURL, ota, rtdb := r.downloadURL, r.ota, r.rtdb
	upload, download := r.upload, r.download
	r.unread = false
	r.upload.pending = false
	r.download.pending = false
	r.mu.Unlock()

	dst.mu.Lock()
	defer dst.mu.Unlock()
	if unread {
		dst.payload = payload
		dst.unread = true
	}
	dst.etag = etag
	dst.path = path
	dst.err = err
	dst.downloadURL = downloadURL
	dst.ota = ota
	if upload.pending {
		dst.upload = upload
	}
	if download.pending {
		dst.download = download
	}
	dst.rtdb = rtdb
	if dst.uid == "" {
		dst.uid = uid
	}
	return true
}
