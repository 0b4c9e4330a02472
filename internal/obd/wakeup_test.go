package obd

import (
	"testing"
	"time"
)

func TestSendWakeupBitPattern(t *testing.T) {
	l := newFakeLine()
	c := testClient(l)
	c.line = l

	if err := c.sendWakeup(); err != nil {
		t.Fatalf("sendWakeup() err = %v", err)
	}

	// 0x33 LSB first framed by one start and one stop bit:
	// start(0) 1 1 0 0 1 1 0 0 stop(1)
	want := []bool{false, true, true, false, false, true, true, false, false, true}
	if len(l.levels) != len(want) {
		t.Fatalf("drove %d line levels, want %d", len(l.levels), len(want))
	}
	for n, level := range want {
		if l.levels[n] != level {
			t.Errorf("bit %d level = %v, want %v", n, l.levels[n], level)
		}
	}
	for n, d := range l.holds {
		if d != 200*time.Millisecond {
			t.Errorf("bit %d held %v, want 200ms", n, d)
		}
	}
}
