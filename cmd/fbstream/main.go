// Command fbstream subscribes to a Realtime Database location and prints
// every stream event until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/adamwoolhether/fbclient"
	"github.com/adamwoolhether/fbclient/client"
	"github.com/adamwoolhether/fbclient/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "fbstream:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("fbstream", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to a YAML config file")
	url := fs.String("url", "", "database host, overrides database.url")
	path := fs.String("path", "", "location to stream, overrides database.path")
	insecure := fs.Bool("insecure", false, "dial plain TCP instead of TLS")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return err
		}
	}
	if *url != "" {
		cfg.Database.URL = *url
	}
	if *path != "" {
		cfg.Database.Path = *path
	}
	if *insecure {
		cfg.Client.Insecure = true
	}

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: config.ParseLogLevel(cfg.LogLevel)}))

	c, err := fbclient.NewFromConfig(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	req := cfg.StreamRequest()
	req.Callback = func(r *client.AsyncResult) {
		if r.IsError() {
			logger.Warn("stream error", "error", r.LastError())
			return
		}
		rt := r.RTDB()
		if rt.IsStream() && rt.Event() != "" {
			fmt.Fprintf(stdout, "%s %s %s\n", rt.Event(), rt.DataPath(), rt.Data())
		}
	}

	if _, err := c.Send(ctx, req); err != nil {
		return fmt.Errorf("opening stream: %w", err)
	}
	logger.Info("streaming", "url", cfg.Database.URL, "path", cfg.Database.Path)

	g := client.NewGroup(0)
	g.Run(ctx, c)

	return g.Wait()
}
