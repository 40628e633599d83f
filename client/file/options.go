package file

import (
	"errors"
	"hash"
)

// Option configures the [OS] opener.
//
// WithChecksum verifies every committed write against the hex-encoded
// expected digest. h is reset on each open.
//
// WithProgress logs write progress at most once per second.
//
// WithExpectedSize fails the commit when the written byte count differs.
type Option func(*options) error

type options struct {
	checksum     *checksumVerifier
	progress     bool
	expectedSize int64
}

func WithChecksum(h hash.Hash, expected string) Option {
	return func(opts *options) error {
		if h == nil {
			return errors.New("hash must not be nil")
		}

		if expected == "" {
			return errors.New("expected checksum must not be empty")
		}

		opts.checksum = &checksumVerifier{hash: h, expected: expected}
		return nil
	}
}

func WithProgress() Option {
	return func(opts *options) error {
		opts.progress = true
		return nil
	}
}

func WithExpectedSize(n int64) Option {
	return func(opts *options) error {
		if n < 0 {
			return errors.New("expected size must not be negative")
		}
		opts.expectedSize = n
		return nil
	}
}
