// Package fbclient exposes client builders.
package fbclient

import (
	"crypto/tls"
	"fmt"
	"log/slog"

	"github.com/adamwoolhether/fbclient/client"
	"github.com/adamwoolhether/fbclient/client/conn"
	"github.com/adamwoolhether/fbclient/config"
)

// NewClient instantiates a new *client.Client with the provided options.
// If no socket is given, a TLS socket with the default dial timeout is
// used.
func NewClient(opts ...client.Option) (*client.Client, error) {
	sock := conn.NewNetSocket(&tls.Config{MinVersion: tls.VersionTLS12}, 0)
	return client.New(append([]client.Option{client.WithSocket(sock)}, opts...)...)
}

// NewFromConfig validates cfg and builds a client from it. Extra opts
// are applied after the configured ones.
func NewFromConfig(cfg *config.Config, logger *slog.Logger, opts ...client.Option) (*client.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c, err := client.New(append(cfg.Options(logger), opts...)...)
	if err != nil {
		return nil, fmt.Errorf("building client: %w", err)
	}

	return c, nil
}
