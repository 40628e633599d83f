package conn

import (
	"time"

	"github.com/adamwoolhether/fbclient/client/timer"
)

// Network brings up the medium a socket runs over. Poll advances the
// bring-up one step: Complete once the medium is up, Continue while in
// progress and Failure when an attempt timed out. A failed network
// starts over on the next Poll.
type Network interface {
	Poll() Return
	Up() bool
	Reset()
}

// GenericNetwork drives a medium through two callbacks.
type GenericNetwork struct {
	Connect func()
	Status  func() bool
	Timeout time.Duration

	timer   timer.Timer
	pending bool
}

// NewGenericNetwork returns a GenericNetwork reading time from now.
func NewGenericNetwork(connect func(), status func() bool, now func() time.Time) *GenericNetwork {
	return &GenericNetwork{Connect: connect, Status: status, Timeout: NetworkTimeout, timer: *timer.New(now)}
}

func (g *GenericNetwork) Up() bool { return g.Status != nil && g.Status() }

func (g *GenericNetwork) Poll() Return {
	if g.Up() {
		g.pending = false
		return Complete
	}
	if !g.pending {
		if g.Connect != nil {
			g.Connect()
		}
		g.pending = true
		g.timer.Feed(g.Timeout)
		return Continue
	}
	if g.timer.Expired() {
		g.pending = false
		return Failure
	}
	return Continue
}

func (g *GenericNetwork) Reset() {
	g.pending = false
	g.timer.Stop()
}

// AccessPoint is one WiFi network a [WiFiNetwork] may join.
type AccessPoint struct {
	SSID     string
	Password string
}

// WiFiNetwork joins one of several access points, moving to the next
// one each time an attempt times out.
type WiFiNetwork struct {
	APs        []AccessPoint
	Begin      func(ap AccessPoint)
	Disconnect func()
	Status     func() bool
	Timeout    time.Duration

	timer   timer.Timer
	index   int
	tried   int
	pending bool
}

// NewWiFiNetwork returns a WiFiNetwork reading time from now.
func NewWiFiNetwork(aps []AccessPoint, begin func(AccessPoint), disconnect func(), status func() bool, now func() time.Time) *WiFiNetwork {
	return &WiFiNetwork{
		APs:        aps,
		Begin:      begin,
		Disconnect: disconnect,
		Status:     status,
		Timeout:    NetworkTimeout,
		timer:      *timer.New(now),
	}
}

func (w *WiFiNetwork) Up() bool { return w.Status != nil && w.Status() }

// Current returns the access point of the running or last attempt.
func (w *WiFiNetwork) Current() AccessPoint {
	if len(w.APs) == 0 {
		return AccessPoint{}
	}
	return w.APs[w.index]
}

func (w *WiFiNetwork) Poll() Return {
	if w.Up() {
		w.pending = false
		w.tried = 0
		return Complete
	}
	if len(w.APs) == 0 || w.Begin == nil {
		return Failure
	}

	if !w.pending {
		w.Begin(w.APs[w.index])
		w.pending = true
		w.timer.Feed(w.Timeout)
		return Continue
	}
	if !w.timer.Expired() {
		return Continue
	}

	if w.Disconnect != nil {
		w.Disconnect()
	}
	w.pending = false
	w.index = (w.index + 1) % len(w.APs)
	w.tried++
	if w.tried >= len(w.APs) {
		w.tried = 0
		return Failure
	}
	return Continue
}

func (w *WiFiNetwork) Reset() {
	w.pending = false
	w.tried = 0
	w.timer.Stop()
}

type ethState int

const (
	ethIdle ethState = iota
	ethResetLow
	ethResetHigh
	ethBegin
	ethWaits
)

// EthernetNetwork strobes the module reset pin low then high before
// starting the interface. Without a ResetPin the strobe is skipped.
type EthernetNetwork struct {
	ResetPin func(high bool)
	Begin    func()
	Status   func() bool
	Strobe   time.Duration
	Timeout  time.Duration

	timer timer.Timer
	state ethState
}

// NewEthernetNetwork returns an EthernetNetwork reading time from now.
func NewEthernetNetwork(resetPin func(bool), begin func(), status func() bool, now func() time.Time) *EthernetNetwork {
	return &EthernetNetwork{
		ResetPin: resetPin,
		Begin:    begin,
		Status:   status,
		Strobe:   StrobeTime,
		Timeout:  NetworkTimeout,
		timer:    *timer.New(now),
	}
}

func (e *EthernetNetwork) Up() bool { return e.Status != nil && e.Status() }

func (e *EthernetNetwork) Poll() Return {
	if e.Up() {
		e.state = ethIdle
		return Complete
	}

	switch e.state {
	case ethIdle:
		if e.ResetPin == nil {
			e.state = ethBegin
			return Continue
		}
		e.ResetPin(false)
		e.timer.Feed(e.Strobe)
		e.state = ethResetLow

	case ethResetLow:
		if e.timer.Expired() {
			e.ResetPin(true)
			e.timer.Feed(e.Strobe)
			e.state = ethResetHigh
		}

	case ethResetHigh:
		if e.timer.Expired() {
			e.state = ethBegin
		}

	case ethBegin:
		if e.Begin != nil {
			e.Begin()
		}
		e.timer.Feed(e.Timeout)
		e.state = ethWaits

	case ethWaits:
		if e.timer.Expired() {
			e.state = ethIdle
			return Failure
		}
	}
	return Continue
}

func (e *EthernetNetwork) Reset() {
	e.state = ethIdle
	e.timer.Stop()
}

// Modem is a cellular modem driven by [GSMNetwork]. Every method must
// return without blocking.
type Modem interface {
	Init(pin string) error
	NetworkConnected() bool
	ConnectGPRS(apn, user, password string) error
	GPRSConnected() bool
}

type gsmState int

const (
	gsmIdle gsmState = iota
	gsmWaitsNetwork
	gsmWaitsGPRS
)

// GSMNetwork registers the modem on the cellular network, then attaches
// the GPRS data session.
type GSMNetwork struct {
	Modem    Modem
	PIN      string
	APN      string
	User     string
	Password string
	Timeout  time.Duration

	timer timer.Timer
	state gsmState
}

// NewGSMNetwork returns a GSMNetwork reading time from now.
func NewGSMNetwork(m Modem, pin, apn, user, password string, now func() time.Time) *GSMNetwork {
	return &GSMNetwork{
		Modem:    m,
		PIN:      pin,
		APN:      apn,
		User:     user,
		Password: password,
		Timeout:  NetworkTimeout,
		timer:    *timer.New(now),
	}
}

func (g *GSMNetwork) Up() bool {
	return g.Modem != nil && g.Modem.NetworkConnected() && g.Modem.GPRSConnected()
}

func (g *GSMNetwork) Poll() Return {
	if g.Modem == nil {
		return Failure
	}
	if g.Up() {
		g.state = gsmIdle
		return Complete
	}

	switch g.state {
	case gsmIdle:
		if err := g.Modem.Init(g.PIN); err != nil {
			return Failure
		}
		g.timer.Feed(g.Timeout)
		g.state = gsmWaitsNetwork

	case gsmWaitsNetwork:
		if g.Modem.NetworkConnected() {
			if err := g.Modem.ConnectGPRS(g.APN, g.User, g.Password); err != nil {
				g.state = gsmIdle
				return Failure
			}
			g.timer.Feed(g.Timeout)
			g.state = gsmWaitsGPRS
			return Continue
		}
		if g.timer.Expired() {
			g.state = gsmIdle
			return Failure
		}

	case gsmWaitsGPRS:
		if g.timer.Expired() {
			g.state = gsmIdle
			return Failure
		}
	}
	return Continue
}

func (g *GSMNetwork) Reset() {
	g.state = gsmIdle
	g.timer.Stop()
}
