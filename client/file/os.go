package file

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// OS returns an [Opener] backed by the local file system. Files opened
// for writing stream to a temp file in the destination directory that is
// renamed over the destination on Close.
func OS(logger *slog.Logger, optFns ...Option) (Opener, error) {
	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying option: %w", err)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return func(name string, mode Mode) (File, error) {
		switch mode {
		case ModeRead:
			f, err := openRead(name)
			if err != nil {
				return nil, err
			}
			return f, nil
		case ModeWrite:
			f, err := openWrite(name, logger, opts)
			if err != nil {
				return nil, err
			}
			return f, nil
		case ModeAppend:
			f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
			if err != nil {
				return nil, fmt.Errorf("opening %s for append: %w", name, err)
			}
			return &readFile{f: f}, nil
		case ModeRemove:
			if err := os.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("removing %s: %w", name, err)
			}
			return nil, nil
		}
		return nil, fmt.Errorf("unsupported file %s", mode)
	}, nil
}

// readFile is a plain *os.File with a cached size.
type readFile struct {
	f    *os.File
	size int64
}

func openRead(name string) (*readFile, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", name, err)
	}
	return &readFile{f: f, size: info.Size()}, nil
}

func (r *readFile) Read(p []byte) (int, error)  { return r.f.Read(p) }
func (r *readFile) Write(p []byte) (int, error) { return r.f.Write(p) }
func (r *readFile) Close() error                { return r.f.Close() }
func (r *readFile) Size() int64                 { return r.size }

func (r *readFile) Seek(off int64, whence int) (int64, error) { return r.f.Seek(off, whence) }

// tempFile collects writes in a temp file and commits on Close.
type tempFile struct {
	tmp      *os.File
	dest     string
	w        io.Writer
	written  int64
	logger   *slog.Logger
	checksum *checksumVerifier
	expected int64
	closed   bool
}

func openWrite(name string, logger *slog.Logger, opts options) (*tempFile, error) {
	tmp, err := os.CreateTemp(filepath.Dir(name), ".fbclient-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}

	tf := &tempFile{
		tmp:      tmp,
		dest:     name,
		logger:   logger,
		checksum: opts.checksum,
		expected: opts.expectedSize,
	}

	var w io.Writer = tmp
	if opts.checksum != nil {
		opts.checksum.reset()
		w = io.MultiWriter(w, opts.checksum)
	}
	if opts.progress {
		w = &progressWriter{w: w, logger: logger, name: name, startTime: time.Now()}
	}
	tf.w = w

	return tf, nil
}

func (t *tempFile) Read([]byte) (int, error) { return 0, io.EOF }

func (t *tempFile) Write(p []byte) (int, error) {
	if t.closed {
		return 0, ErrClosed
	}
	n, err := t.w.Write(p)
	t.written += int64(n)
	return n, err
}

func (t *tempFile) Size() int64 { return t.written }

// Close verifies and commits the written content. A failed commit
// removes the temp file.
func (t *tempFile) Close() error {
	if t.closed {
		return ErrClosed
	}
	t.closed = true

	if err := t.commit(); err != nil {
		if err := t.tmp.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			t.logger.Error("closing temp file", "error", err)
		}
		if err := os.Remove(t.tmp.Name()); err != nil {
			t.logger.Error("failed to remove temp file", "error", err)
		}
		return err
	}

	return nil
}

func (t *tempFile) commit() error {
	if t.expected > 0 && t.written != t.expected {
		return &Error{
			Err:    ErrSizeMismatch,
			Detail: fmt.Sprintf("expected %d bytes, got %d", t.expected, t.written),
		}
	}

	if err := t.checksum.Verify(t.dest); err != nil {
		return err
	}

	if err := t.tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := t.tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(t.tmp.Name(), t.dest); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	return nil
}

// Abort discards the written content.
func (t *tempFile) Abort() error {
	if t.closed {
		return ErrClosed
	}
	t.closed = true

	if err := t.tmp.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		t.logger.Error("closing temp file", "error", err)
	}
	if err := os.Remove(t.tmp.Name()); err != nil {
		return fmt.Errorf("removing temp file: %w", err)
	}

	return nil
}
