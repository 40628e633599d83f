package conn

import (
	"bytes"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"time"
)

// NetSocket is a [Socket] over a TCP connection, optionally wrapped in
// TLS. A background goroutine drains the connection into a buffer so
// Available never blocks.
type NetSocket struct {
	tlsConfig   *tls.Config
	dialTimeout time.Duration

	mu   sync.Mutex
	conn net.Conn
	buf  bytes.Buffer
	err  error
	done chan struct{}
}

// NewNetSocket returns a NetSocket. A nil tlsConfig dials plain TCP.
func NewNetSocket(tlsConfig *tls.Config, dialTimeout time.Duration) *NetSocket {
	if dialTimeout <= 0 {
		dialTimeout = ConnectTimeout
	}
	return &NetSocket{tlsConfig: tlsConfig, dialTimeout: dialTimeout}
}

func (s *NetSocket) Connect(host string, port int) error {
	s.Stop()

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := &net.Dialer{Timeout: s.dialTimeout}

	var (
		c   net.Conn
		err error
	)
	if s.tlsConfig != nil {
		cfg := s.tlsConfig.Clone()
		if cfg.ServerName == "" {
			cfg.ServerName = host
		}
		c, err = tls.DialWithDialer(dialer, "tcp", addr, cfg)
	} else {
		c, err = dialer.Dial("tcp", addr)
	}
	if err != nil {
		return errors.Join(ErrConnectFailed, err)
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.conn = c
	s.err = nil
	s.buf.Reset()
	s.done = done
	s.mu.Unlock()

	go s.receive(c, done)
	return nil
}

func (s *NetSocket) receive(c net.Conn, done chan struct{}) {
	defer close(done)

	chunk := make([]byte, 4096)
	for {
		n, err := c.Read(chunk)
		s.mu.Lock()
		if s.conn != c {
			s.mu.Unlock()
			return
		}
		s.buf.Write(chunk[:n])
		if err != nil {
			s.err = err
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
	}
}

// Connected reports whether the connection is open and the peer has not
// closed it.
func (s *NetSocket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil && s.err == nil
}

func (s *NetSocket) Available() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Len()
}

func (s *NetSocket) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf.Len() == 0 {
		if s.err != nil {
			return 0, io.EOF
		}
		return 0, nil
	}
	return s.buf.Read(p)
}

func (s *NetSocket) Write(p []byte) (int, error) {
	s.mu.Lock()
	c := s.conn
	s.mu.Unlock()
	if c == nil {
		return 0, ErrNotConnected
	}
	return c.Write(p)
}

// Stop closes the connection and waits for the reader to exit.
func (s *NetSocket) Stop() {
	s.mu.Lock()
	c, done := s.conn, s.done
	s.conn = nil
	s.done = nil
	s.buf.Reset()
	s.err = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	c.Close()
	if done != nil {
		<-done
	}
}
