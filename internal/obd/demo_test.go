package obd

import (
	"errors"
	"testing"
)

func TestDemoLifecycle(t *testing.T) {
	d := NewDemo()

	if _, err := d.Poll(); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Poll() before Connect err = %v, want not ready", err)
	}

	if err := d.Connect(); err != nil {
		t.Fatalf("Connect() err = %v", err)
	}
	if got := d.State(); got != Ready {
		t.Fatalf("state = %s, want ready", got)
	}

	snap, err := d.Poll()
	if err != nil {
		t.Fatalf("Poll() err = %v", err)
	}
	for name, r := range map[string]Reading{
		"load": snap.Load, "coolant": snap.Coolant, "rpm": snap.RPM, "speed": snap.Speed,
	} {
		if r.Quality != QualityGood {
			t.Errorf("%s quality = %s, want good", name, r.Quality)
		}
	}
	if snap.Load.Value < 0 || snap.Load.Value > 99 {
		t.Errorf("load = %v, outside [0,99]", snap.Load.Value)
	}
	if snap.RPM.Value < 500 || snap.RPM.Value > 8000 {
		t.Errorf("rpm = %v, implausible", snap.RPM.Value)
	}
	if !snap.SupportedPIDs.Supported(0x0C) {
		t.Error("demo mask should report PID 0C supported")
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close() err = %v", err)
	}
	if got := d.State(); got != Disconnected {
		t.Errorf("state after Close = %s, want disconnected", got)
	}
}
