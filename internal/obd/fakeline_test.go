package obd

import (
	"testing"
	"time"
)

// fakeLine is a scripted half-duplex K-line. Written bytes are echoed
// back ahead of any queued inbound bytes, the way the real shared line
// behaves. An exhausted queue reads as a timeout.
type fakeLine struct {
	levels []bool
	holds  []time.Duration
	bauds  []int

	writes  []byte
	echoes  []byte       // pending echo bytes, read before rx
	rx      []byte       // scripted inbound bytes
	echoFor map[int]byte // override the echo of the Nth write (0-based)

	drains int
	closed bool
}

func newFakeLine(rx ...byte) *fakeLine {
	return &fakeLine{rx: rx, echoFor: map[int]byte{}}
}

func (l *fakeLine) queue(b ...byte) { l.rx = append(l.rx, b...) }

// reset clears the write and echo records, keeping any scripted rx.
func (l *fakeLine) reset() {
	l.writes = nil
	l.echoes = nil
	l.echoFor = map[int]byte{}
}

func (l *fakeLine) SetTX(level bool, d time.Duration) error {
	l.levels = append(l.levels, level)
	l.holds = append(l.holds, d)
	return nil
}

func (l *fakeLine) Reconfigure(baud int) error {
	l.bauds = append(l.bauds, baud)
	return nil
}

func (l *fakeLine) WriteByte(b byte) error {
	n := len(l.writes)
	l.writes = append(l.writes, b)
	if echo, ok := l.echoFor[n]; ok {
		l.echoes = append(l.echoes, echo)
	} else {
		l.echoes = append(l.echoes, b)
	}
	return nil
}

func (l *fakeLine) ReadByte(timeout time.Duration) (byte, error) {
	if len(l.echoes) > 0 {
		b := l.echoes[0]
		l.echoes = l.echoes[1:]
		return b, nil
	}
	if len(l.rx) > 0 {
		b := l.rx[0]
		l.rx = l.rx[1:]
		return b, nil
	}
	return 0, ErrTimeout
}

func (l *fakeLine) Drain() error {
	l.drains++
	return nil
}

func (l *fakeLine) Close() error {
	l.closed = true
	return nil
}

// testClient wires an ISO9141 to the fake line with sleeps elided.
func testClient(l *fakeLine) *ISO9141 {
	c := NewISO9141(Config{PortPath: "fake"})
	c.openLine = func(string) (Line, error) { return l, nil }
	c.sleep = func(time.Duration) {}
	return c
}

// response builds a valid response frame for the given command echo and
// result bytes.
func response(cmd []byte, result ...byte) []byte {
	resp := []byte{byte(dataLenOffset + len(cmd) + len(result)), destAddr, srcAddr}
	resp = append(resp, cmd...)
	resp = append(resp, result...)
	return append(resp, checksum(resp))
}

// readyClient runs a full successful handshake against the fake line and
// clears the fake's records so tests see only their own traffic.
func readyClient(t *testing.T, l *fakeLine) *ISO9141 {
	t.Helper()
	l.queue(0x55, 0x08, 0x08, 0xCC)
	l.queue(response([]byte{0x01, 0x00}, 0xBE, 0x1F, 0xA8, 0x13)...)

	c := testClient(l)
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect() err = %v", err)
	}
	l.reset()
	return c
}
