package rtdbtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"
)

// Logger logs the start and end of every request.
func Logger(log *slog.Logger) Middleware {
	m := func(handler Handler) Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			v := GetValues(ctx)

			path := r.URL.Path
			if r.URL.RawQuery != "" {
				path = fmt.Sprintf("%s?%s", path, r.URL.RawQuery)
			}

			log.Debug("request started", "method", r.Method, "path", path, "trace_id", v.TraceID)

			err := handler(ctx, w, r)

			log.Debug("request completed", "method", r.Method, "path", path, "trace_id", v.TraceID, "statusCode", v.StatusCode, "since", time.Since(v.Now).String())

			return err
		}

		return h
	}

	return m
}

// Errors turns a handler error into a Firebase style error body. Errors
// that are not a *StatusError become a 500.
func Errors(log *slog.Logger) Middleware {
	m := func(handler Handler) Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			err := handler(ctx, w, r)
			if err == nil {
				return nil
			}

			statusErr, ok := errors.AsType[*StatusError](err)
			if !ok {
				log.Error("internal error", "trace_id", GetValues(ctx).TraceID, "error", err)
				statusErr = &StatusError{Code: http.StatusInternalServerError, Message: http.StatusText(http.StatusInternalServerError)}
			}

			return respondJSON(ctx, w, statusErr.Code, map[string]string{"error": statusErr.Message})
		}

		return h
	}

	return m
}

// Panics recovers from panics if they occur.
func Panics() Middleware {
	m := func(handler Handler) Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					trace := debug.Stack()
					err = fmt.Errorf("PANIC [%v] TRACE[%s]", rec, string(trace))
				}
			}()

			return handler(ctx, w, r)
		}
		return h
	}
	return m
}
