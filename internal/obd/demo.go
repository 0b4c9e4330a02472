package obd

import (
	"math"
	"math/rand"
	"sync"
)

// Demo generates simulated engine data for development and testing.
type Demo struct {
	mu    sync.Mutex
	state SessionState
	t     float64 // virtual time accumulator
}

func NewDemo() *Demo {
	return &Demo{state: Disconnected}
}

func (d *Demo) Name() string { return "Demo (Simulated)" }

func (d *Demo) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = Ready
	return nil
}

func (d *Demo) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = Disconnected
	return nil
}

func (d *Demo) State() SessionState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Demo) Poll() (*Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != Ready {
		return nil, ErrNotReady
	}

	d.t += 0.5

	// RPM cycles between idle and revving, with a little jitter.
	rpm := 850.0 + 4000.0*math.Pow(math.Sin(d.t*0.03), 2) + rand.Float64()*50

	throttle := (rpm - 850) / (5000 - 850)
	speed := math.Round(throttle * 160)
	load := math.Floor(20 + throttle*70 + rand.Float64()*5)
	if load > 99 {
		load = 99
	}

	// Coolant warms toward operating temperature over the first minutes.
	coolant := math.Min(88, 20+d.t*0.2) + rand.Float64()*2

	return &Snapshot{
		Load:    Reading{Value: load, Quality: QualityGood},
		Coolant: Reading{Value: math.Round(coolant), Quality: QualityGood},
		RPM:     Reading{Value: math.Floor(rpm), Quality: QualityGood},
		Speed:   Reading{Value: speed, Quality: QualityGood},

		// Bitmask a 1996 Accord-era ECU typically reports.
		SupportedPIDs: PIDMask{0xBE, 0x1F, 0xA8, 0x13},
	}, nil
}
