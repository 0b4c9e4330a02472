package obd

import (
	"errors"
	"testing"
	"time"
)

func TestHandshakeSuccess(t *testing.T) {
	l := newFakeLine(0x55, 0x08, 0x08, 0xCC)
	l.queue(response([]byte{0x01, 0x00}, 0xBE, 0x1F, 0xA8, 0x13)...)

	c := testClient(l)
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect() err = %v", err)
	}

	if got := c.State(); got != Ready {
		t.Errorf("state = %s, want ready", got)
	}
	if kb := c.KeyBytes(); kb != [2]byte{0x08, 0x08} {
		t.Errorf("key bytes = %02X %02X, want 08 08", kb[0], kb[1])
	}
	// The key acknowledgment is the complement of key byte 2.
	if len(l.writes) == 0 || l.writes[0] != 0xF7 {
		t.Fatalf("first write = % X, want F7 first", l.writes)
	}
	if got := c.SupportedPIDs(); got != (PIDMask{0xBE, 0x1F, 0xA8, 0x13}) {
		t.Errorf("supported PIDs = %s", got)
	}
	if len(l.bauds) != 1 || l.bauds[0] != OperatingBaud {
		t.Errorf("reconfigured bauds = %v, want [%d]", l.bauds, OperatingBaud)
	}
}

func TestHandshakeBadSync(t *testing.T) {
	l := newFakeLine(0x7F, 0x08, 0x08)

	c := testClient(l)
	err := c.Connect()
	if !errors.Is(err, ErrHandshake) {
		t.Fatalf("Connect() err = %v, want handshake failure", err)
	}
	if got := c.State(); got != Faulted {
		t.Errorf("state = %s, want faulted", got)
	}
	// A wrong sync byte must abort before the key-byte exchange.
	if len(l.rx) != 2 {
		t.Errorf("%d bytes left unread, want 2 (key bytes untouched)", len(l.rx))
	}
	if len(l.writes) != 0 {
		t.Errorf("wrote % X after failed sync, want nothing", l.writes)
	}
}

func TestHandshakeBadFinalAck(t *testing.T) {
	l := newFakeLine(0x55, 0x08, 0x08, 0x55)

	c := testClient(l)
	err := c.Connect()
	if !errors.Is(err, ErrHandshake) {
		t.Fatalf("Connect() err = %v, want handshake failure", err)
	}
	if got := c.State(); got != Faulted {
		t.Errorf("state = %s, want faulted", got)
	}
}

func TestHandshakeSyncTimeout(t *testing.T) {
	l := newFakeLine()

	c := testClient(l)
	err := c.Connect()
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Connect() err = %v, want timeout", err)
	}
	if got := c.State(); got != Faulted {
		t.Errorf("state = %s, want faulted", got)
	}
}

func TestHandshakeSupportedPIDFailureIsNotFatal(t *testing.T) {
	// Handshake succeeds but the PID 00 response never arrives.
	l := newFakeLine(0x55, 0x08, 0x08, 0xCC)

	c := testClient(l)
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect() err = %v", err)
	}
	if got := c.State(); got != Ready {
		t.Errorf("state = %s, want ready", got)
	}
	if got := c.SupportedPIDs(); got != (PIDMask{}) {
		t.Errorf("supported PIDs = %s, want zero mask", got)
	}
}

func TestKeepAliveExpiry(t *testing.T) {
	l := newFakeLine(0x55, 0x08, 0x08, 0xCC)
	l.queue(response([]byte{0x01, 0x00}, 0xBE, 0x1F, 0xA8, 0x13)...)

	clk := time.Unix(1000, 0)
	c := testClient(l)
	c.now = func() time.Time { return clk }
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect() err = %v", err)
	}
	l.reset()

	clk = clk.Add(keepAliveLimit + time.Second)

	_, err := c.Poll()
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("Poll() err = %v, want session expired", err)
	}
	if got := c.State(); got != Faulted {
		t.Errorf("state = %s, want faulted", got)
	}
	// Expiry must be reported before any byte goes out.
	if len(l.writes) != 0 {
		t.Errorf("wrote % X after expiry, want nothing", l.writes)
	}
}

func TestCloseReturnsToDisconnected(t *testing.T) {
	l := newFakeLine()
	c := readyClient(t, l)

	if err := c.Close(); err != nil {
		t.Fatalf("Close() err = %v", err)
	}
	if got := c.State(); got != Disconnected {
		t.Errorf("state = %s, want disconnected", got)
	}
	if !l.closed {
		t.Error("line not closed")
	}
	if _, err := c.Poll(); !errors.Is(err, ErrNotReady) {
		t.Errorf("Poll() after Close err = %v, want not ready", err)
	}
}

func TestSessionStateString(t *testing.T) {
	states := map[SessionState]string{
		Disconnected:    "disconnected",
		Initializing:    "initializing",
		Ready:           "ready",
		Faulted:         "faulted",
		SessionState(9): "unknown",
	}
	for s, want := range states {
		if got := s.String(); got != want {
			t.Errorf("SessionState(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
