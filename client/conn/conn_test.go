package conn

import (
	"bytes"
	"errors"
	"io"
	"net"
	"strconv"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type probeSocket struct {
	probes    int
	up        bool
	failDial  bool
	in        bytes.Buffer
	out       bytes.Buffer
	stopCalls int
}

func (s *probeSocket) Connect(string, int) error {
	if s.failDial {
		return ErrConnectFailed
	}
	s.up = true
	return nil
}

func (s *probeSocket) Connected() bool {
	s.probes++
	return s.up
}

func (s *probeSocket) Available() int              { return s.in.Len() }
func (s *probeSocket) Read(p []byte) (int, error)  { return s.in.Read(p) }
func (s *probeSocket) Write(p []byte) (int, error) { return s.out.Write(p) }
func (s *probeSocket) Stop()                       { s.stopCalls++; s.up = false }

func TestHandler_NoProbeBeforeConnect(t *testing.T) {
	sock := &probeSocket{}
	h := New(sock, nil, nil)

	for range 3 {
		if h.IsConnected() {
			t.Fatal("exp disconnected before connect")
		}
	}
	if sock.probes != 0 {
		t.Fatalf("exp no probes before first connect, got %d", sock.probes)
	}

	if ret := h.Connect("db.example.com", 443); ret != Complete {
		t.Fatalf("exp complete, got %s", ret)
	}
	if h.Host != "db.example.com" || h.Port != 443 {
		t.Errorf("exp peer cached, got %s", h.Addr())
	}
	if !h.IsConnected() || sock.probes == 0 {
		t.Errorf("exp probe after connect, probes %d", sock.probes)
	}

	h.Stop()
	if h.IsConnected() || h.Host != "" || sock.stopCalls != 1 {
		t.Errorf("exp reset after stop, host %q stops %d", h.Host, sock.stopCalls)
	}
}

func TestHandler_ConnectFailure(t *testing.T) {
	h := New(&probeSocket{failDial: true}, nil, nil)
	if ret := h.Connect("h", 1); ret != Failure {
		t.Errorf("exp failure, got %s", ret)
	}
	if h.IsConnected() {
		t.Error("exp disconnected")
	}

	var empty Handler
	if ret := empty.Connect("h", 1); ret != Failure {
		t.Errorf("exp failure without transport, got %s", ret)
	}
}

func TestHandler_AsyncTransport(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	var (
		requested bool
		up        bool
		sent      bytes.Buffer
		inbox     = []byte("HTTP/1.1 200 OK\r\n")
	)
	tr := AsyncTransport{
		Connect: func(string, int) { requested = true },
		Status:  func() bool { return up },
		Send: func(p []byte) int {
			n := min(len(p), 4)
			sent.Write(p[:n])
			return n
		},
		Receive: func(p []byte) int {
			n := copy(p, inbox)
			inbox = inbox[n:]
			return n
		},
		Stop: func() { up = false },
	}

	h, err := NewAsync(tr, nil, clock.now)
	if err != nil {
		t.Fatal(err)
	}

	if ret := h.Connect("h", 443); ret != Continue || !requested {
		t.Fatalf("exp continue after connect request, got %s", ret)
	}
	clock.advance(time.Second)
	up = true
	if ret := h.Connect("h", 443); ret != Complete {
		t.Fatalf("exp complete once status is up, got %s", ret)
	}

	if n, _ := h.Write([]byte("GET / HTTP/1.1")); n != 4 {
		t.Errorf("exp transport to accept 4 bytes, got %d", n)
	}

	var got bytes.Buffer
	buf := make([]byte, 5)
	for h.Available() > 0 {
		n, _ := h.Read(buf)
		got.Write(buf[:n])
	}
	if got.String() != "HTTP/1.1 200 OK\r\n" {
		t.Errorf("exp status line back, got %q", got.String())
	}
}

func TestHandler_AsyncConnectTimeout(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	tr := AsyncTransport{
		Connect: func(string, int) {},
		Status:  func() bool { return false },
		Send:    func(p []byte) int { return 0 },
		Receive: func(p []byte) int { return 0 },
		Stop:    func() {},
	}
	h, err := NewAsync(tr, nil, clock.now)
	if err != nil {
		t.Fatal(err)
	}

	h.Connect("h", 443)
	clock.advance(ConnectTimeout)
	if ret := h.Connect("h", 443); ret != Failure {
		t.Errorf("exp failure after timeout, got %s", ret)
	}

	if _, err := NewAsync(AsyncTransport{}, nil, nil); !errors.Is(err, ErrNoTransport) {
		t.Errorf("exp ErrNoTransport for incomplete transport, got %v", err)
	}
}

func TestWiFiNetwork_Rotation(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	var joined []string
	up := false

	w := NewWiFiNetwork(
		[]AccessPoint{{SSID: "home"}, {SSID: "office"}},
		func(ap AccessPoint) { joined = append(joined, ap.SSID) },
		func() {},
		func() bool { return up },
		clock.now,
	)

	if ret := w.Poll(); ret != Continue {
		t.Fatalf("exp continue, got %s", ret)
	}
	clock.advance(NetworkTimeout)
	if ret := w.Poll(); ret != Continue {
		t.Fatalf("exp continue after first timeout, got %s", ret)
	}
	if ret := w.Poll(); ret != Continue || w.Current().SSID != "office" {
		t.Fatalf("exp second access point, got %s on %q", ret, w.Current().SSID)
	}
	clock.advance(NetworkTimeout)
	if ret := w.Poll(); ret != Failure {
		t.Fatalf("exp failure after every access point timed out, got %s", ret)
	}

	up = true
	if ret := w.Poll(); ret != Complete {
		t.Fatalf("exp complete, got %s", ret)
	}
	if len(joined) != 2 || joined[0] != "home" || joined[1] != "office" {
		t.Errorf("unexpected join order %v", joined)
	}
}

func TestEthernetNetwork_Strobe(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	var levels []bool
	began := false

	e := NewEthernetNetwork(
		func(high bool) { levels = append(levels, high) },
		func() { began = true },
		func() bool { return began },
		clock.now,
	)

	e.Poll()
	e.Poll()
	if len(levels) != 1 || levels[0] {
		t.Fatalf("exp reset held low, got %v", levels)
	}
	clock.advance(StrobeTime)
	e.Poll()
	clock.advance(StrobeTime)
	e.Poll()
	if ret := e.Poll(); ret != Continue {
		t.Fatalf("exp continue while starting, got %s", ret)
	}
	if len(levels) != 2 || !levels[1] {
		t.Errorf("exp reset released high, got %v", levels)
	}
	if ret := e.Poll(); ret != Complete {
		t.Errorf("exp complete after begin, got %s", ret)
	}
}

type fakeModem struct {
	network, gprs bool
	apn           string
}

func (m *fakeModem) Init(string) error      { return nil }
func (m *fakeModem) NetworkConnected() bool { return m.network }
func (m *fakeModem) GPRSConnected() bool    { return m.gprs }
func (m *fakeModem) ConnectGPRS(apn, _, _ string) error {
	m.apn = apn
	m.gprs = true
	return nil
}

func TestGSMNetwork_Sequence(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	m := &fakeModem{}
	g := NewGSMNetwork(m, "", "internet", "", "", clock.now)

	if ret := g.Poll(); ret != Continue {
		t.Fatalf("exp continue after init, got %s", ret)
	}
	if ret := g.Poll(); ret != Continue || m.gprs {
		t.Fatalf("exp waiting for registration, got %s", ret)
	}
	m.network = true
	g.Poll()
	if m.apn != "internet" {
		t.Errorf("exp GPRS attach with apn, got %q", m.apn)
	}
	if ret := g.Poll(); ret != Complete {
		t.Errorf("exp complete, got %s", ret)
	}

	m.network, m.gprs = false, false
	g.Reset()
	g.Poll()
	clock.advance(NetworkTimeout)
	if ret := g.Poll(); ret != Failure {
		t.Errorf("exp failure on registration timeout, got %s", ret)
	}
}

func TestOwner(t *testing.T) {
	var o Owner
	a, b := NewOwnerID(), NewOwnerID()

	if !o.Acquire(a) || !o.Acquire(a) {
		t.Fatal("exp holder to acquire repeatedly")
	}
	if o.Acquire(b) {
		t.Fatal("exp second client rejected")
	}
	o.Release(b)
	if o.Holder() != a {
		t.Fatal("release by non holder must not free the token")
	}
	o.Release(a)
	if !o.Acquire(b) {
		t.Error("exp token free after release")
	}

	var nilOwner *Owner
	if !nilOwner.Acquire(a) {
		t.Error("nil owner never arbitrates")
	}
}

func TestNetSocket_RoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		buf := make([]byte, 5)
		if _, err := io.ReadFull(c, buf); err != nil {
			return
		}
		c.Write(append([]byte("echo:"), buf...))
	}()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)

	s := NewNetSocket(nil, time.Second)
	if err := s.Connect(host, port); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer s.Stop()

	if _, err := s.Write([]byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	var got bytes.Buffer
	buf := make([]byte, 64)
	for got.Len() < 10 && time.Now().Before(deadline) {
		if s.Available() == 0 {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		n, _ := s.Read(buf)
		got.Write(buf[:n])
	}
	if got.String() != "echo:hello" {
		t.Errorf("exp %q, got %q", "echo:hello", got.String())
	}

	for s.Connected() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s.Connected() {
		t.Error("exp disconnected after peer close")
	}
}
