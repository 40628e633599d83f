// Command fbfake serves an in-memory Realtime Database over plain HTTP
// for trying clients locally:
//
//	fbfake -addr :9000 -seed data.json
//	fbstream -url localhost:9000 -path /.json -insecure
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adamwoolhether/fbclient/config"
	"github.com/adamwoolhether/fbclient/internal/rtdbtest"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stderr, nil); err != nil {
		fmt.Fprintln(os.Stderr, "fbfake:", err)
		os.Exit(1)
	}
}

// run serves until ctx ends, then shuts down gracefully. ready, when
// set, receives the bound address once the server accepts connections.
func run(ctx context.Context, args []string, stderr io.Writer, ready func(addr string)) error {
	fs := flag.NewFlagSet("fbfake", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", ":9000", "address to listen on")
	seed := fs.String("seed", "", "JSON file loaded as the database root")
	token := fs.String("auth", "", "token every request must carry")
	keepAlive := fs.Duration("keepalive", rtdbtest.KeepAlive, "interval between stream keep-alive frames")
	shutdownTimeout := fs.Duration("shutdown-timeout", 20*time.Second, "time allowed for in-flight requests on shutdown")
	logLevel := fs.String("log-level", "info", "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: config.ParseLogLevel(*logLevel)}))

	opts := []rtdbtest.Option{rtdbtest.WithLogger(logger), rtdbtest.WithKeepAlive(*keepAlive)}
	if *token != "" {
		opts = append(opts, rtdbtest.WithAuth(*token))
	}
	db := rtdbtest.New(opts...)

	if *seed != "" {
		data, err := os.ReadFile(*seed)
		if err != nil {
			return fmt.Errorf("reading seed file: %w", err)
		}
		if _, err := db.Store().Put("/", data, ""); err != nil {
			return fmt.Errorf("loading seed file: %w", err)
		}
	}

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	srv := &http.Server{
		Handler:     db,
		ReadTimeout: 5 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	serverErrs := make(chan error, 1)
	go func() {
		logger.Info("server started", "addr", ln.Addr().String())
		serverErrs <- srv.Serve(ln)
	}()
	if ready != nil {
		ready(ln.Addr().String())
	}

	select {
	case err := <-serverErrs:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), *shutdownTimeout)
		defer cancel()

		db.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			srv.Close()
			return fmt.Errorf("server didn't stop gracefully: %w", err)
		}

		logger.Info("shutdown complete")
		return nil
	}
}
