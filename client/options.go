package client

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/fbclient/client/conn"
	"github.com/adamwoolhether/fbclient/client/throttle"
)

// Option is a functional option for configuring a [Client] via [New].
type Option func(*options) error
type options struct {
	socket           conn.Socket
	transport        *conn.AsyncTransport
	logger           *slog.Logger
	tracer           trace.Tracer
	queueLimit       int
	sendTimeout      *time.Duration
	readTimeout      *time.Duration
	sessionTimeout   time.Duration
	sseTimeout       *time.Duration
	reconnectTimeout *time.Duration
	throttle         *throttle.Config
	network          conn.Network
	owner            *conn.Owner
	tokens           TokenProvider
	now              func() time.Time
	pollInterval     time.Duration
	sseFilters       string
	userAgent        string
}

// WithSocket sets the blocking socket the client connects through.
func WithSocket(sock conn.Socket) Option {
	return func(o *options) error {
		if sock == nil {
			return errors.New("socket must not be nil")
		}
		o.socket = sock
		return nil
	}
}

// WithAsyncTransport sets a callback driven transport instead of a socket.
func WithAsyncTransport(t conn.AsyncTransport) Option {
	return func(o *options) error {
		o.transport = &t
		return nil
	}
}

// WithLogger sets the logger. [slog.Default] is used otherwise.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		o.logger = logger
		return nil
	}
}

// WithTracer injects the tracer used for per-task spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) error {
		if tracer == nil {
			return errors.New("tracer must not be nil")
		}
		o.tracer = tracer
		return nil
	}
}

// WithQueueLimit caps the number of queued async tasks.
func WithQueueLimit(n int) Option {
	return func(o *options) error {
		if n <= 0 {
			return errors.New("queue limit must be greater than zero")
		}
		o.queueLimit = n
		return nil
	}
}

// WithSendTimeout bounds the time a request may take to be written. The
// window restarts on every accepted write.
func WithSendTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return errors.New("send timeout must be greater than zero")
		}
		o.sendTimeout = &d
		return nil
	}
}

// WithReadTimeout bounds the time a response may stay silent.
func WithReadTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return errors.New("read timeout must be greater than zero")
		}
		o.readTimeout = &d
		return nil
	}
}

// WithSessionTimeout forces a reconnect once a connection is older than
// d. Zero disables it.
func WithSessionTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d != 0 && d < MinSessionTimeout {
			return fmt.Errorf("session timeout must be zero or at least %s", MinSessionTimeout)
		}
		o.sessionTimeout = d
		return nil
	}
}

// WithSSETimeout sets the idle window of event streams.
func WithSSETimeout(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return errors.New("sse timeout must be greater than zero")
		}
		o.sseTimeout = &d
		return nil
	}
}

// WithReconnectTimeout sets the minimum spacing of auth and stream reconnects.
func WithReconnectTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d < 0 {
			return errors.New("reconnect timeout must not be negative")
		}
		o.reconnectTimeout = &d
		return nil
	}
}

// WithThrottle limits how often new tasks start, with the given requests
// per second and burst capacity.
func WithThrottle(rps, burst int) Option {
	return func(o *options) error {
		if rps <= 0 || burst <= 0 {
			return fmt.Errorf("rps[%d] and burst[%d] %w", rps, burst, throttle.ErrMustNotBeZero)
		}
		o.throttle = &throttle.Config{RPS: rps, Burst: burst}
		return nil
	}
}

// WithNetwork brings n up before connecting. Clients sharing the medium
// pass the same owner so only one of them drives the bring-up. A nil
// owner disables arbitration.
func WithNetwork(n conn.Network, owner *conn.Owner) Option {
	return func(o *options) error {
		if n == nil {
			return errors.New("network must not be nil")
		}
		o.network = n
		o.owner = owner
		return nil
	}
}

// WithTokenProvider sets the source of Authorization tokens.
func WithTokenProvider(p TokenProvider) Option {
	return func(o *options) error {
		if p == nil {
			return errors.New("token provider must not be nil")
		}
		o.tokens = p
		return nil
	}
}

// WithClock replaces the clock behind every timeout.
func WithClock(now func() time.Time) Option {
	return func(o *options) error {
		if now == nil {
			return errors.New("clock must not be nil")
		}
		o.now = now
		return nil
	}
}

// WithPollInterval sets how often blocking sends and [Client.Run] poll.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return errors.New("poll interval must be greater than zero")
		}
		o.pollInterval = d
		return nil
	}
}

// WithSSEFilters limits the stream events delivered to results, as a
// comma separated list of get, put, patch, keep-alive, cancel and
// auth_revoked.
func WithSSEFilters(filter string) Option {
	return func(o *options) error {
		o.sseFilters = filter
		return nil
	}
}

// WithUserAgent adds a User-Agent header to all outgoing requests.
func WithUserAgent(header string) Option {
	return func(o *options) error {
		o.userAgent = header
		return nil
	}
}
