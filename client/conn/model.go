package conn

import (
	"errors"
	"io"
	"time"
)

// Return is the outcome of one non-blocking step.
type Return int

const (
	Undefined Return = -2
	Failure   Return = -1
	Continue  Return = 0
	Complete  Return = 1
	Retry     Return = 2
)

func (r Return) String() string {
	switch r {
	case Failure:
		return "failure"
	case Continue:
		return "continue"
	case Complete:
		return "complete"
	case Retry:
		return "retry"
	}
	return "undefined"
}

const (
	// ConnectTimeout bounds an asynchronous transport connect.
	ConnectTimeout = 30 * time.Second
	// NetworkTimeout bounds one network bring-up attempt.
	NetworkTimeout = 10 * time.Second
	// StrobeTime is how long each reset pin level is held.
	StrobeTime = 200 * time.Millisecond
)

var (
	ErrNoTransport   = errors.New("no socket or transport assigned")
	ErrNotConnected  = errors.New("not connected")
	ErrConnectFailed = errors.New("connect failed")
)

// Socket is a blocking stream socket. Available reports how many bytes
// Read can return without blocking.
type Socket interface {
	io.Reader
	io.Writer
	Connect(host string, port int) error
	Connected() bool
	Available() int
	Stop()
}

// AsyncTransport is a callback driven transport. Connect only requests a
// connection; Status reports when it is up. Send returns the number of
// bytes the transport accepted and Receive copies received bytes into p.
type AsyncTransport struct {
	Connect func(host string, port int)
	Status  func() bool
	Send    func(p []byte) int
	Receive func(p []byte) int
	Stop    func()
}

func (a *AsyncTransport) valid() bool {
	return a != nil && a.Connect != nil && a.Status != nil && a.Send != nil && a.Receive != nil && a.Stop != nil
}
