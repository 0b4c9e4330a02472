package obd

import (
	"encoding/json"
	"fmt"
)

// Quality tags a reading so consumers can tell a fresh decode from a
// reused previous value or a failed request. The display layer must be
// able to show "no data" rather than silently repeating stale numbers.
type Quality string

const (
	QualityGood    Quality = "good"
	QualityStale   Quality = "stale"
	QualityInvalid Quality = "invalid"
)

// Reading is one decoded physical value plus its quality tag.
type Reading struct {
	Value   float64 `json:"value"`
	Quality Quality `json:"quality"`
}

// PIDMask is the Service-1 PID 00 result: a 32-bit bitmask, MSB first,
// over PIDs 0x01..0x20. Read once after the handshake and immutable for
// the lifetime of the session.
type PIDMask [4]byte

// Supported reports whether the 1-based Service-1 PID p is implemented
// by the vehicle.
func (m PIDMask) Supported(p byte) bool {
	if p < 1 || p > 32 {
		return false
	}
	idx := int(p - 1)
	return m[idx/8]&(1<<uint(7-idx%8)) != 0
}

func (m PIDMask) String() string {
	return fmt.Sprintf("%02X %02X %02X %02X", m[0], m[1], m[2], m[3])
}

func (m PIDMask) MarshalJSON() ([]byte, error) {
	return json.Marshal(fmt.Sprintf("%02X%02X%02X%02X", m[0], m[1], m[2], m[3]))
}

// Snapshot is one poll cycle's worth of decoded readings, handed as an
// immutable value from the protocol engine to the display layer.
type Snapshot struct {
	Load    Reading `json:"load"`    // percent
	Coolant Reading `json:"coolant"` // °C
	RPM     Reading `json:"rpm"`
	Speed   Reading `json:"speed"` // km/h

	SupportedPIDs PIDMask `json:"supportedPids"`
}

// Staled returns a copy with every good reading downgraded to stale.
// Used by the display layer when a poll cycle fails and the previous
// values are rebroadcast.
func (s Snapshot) Staled() Snapshot {
	for _, r := range []*Reading{&s.Load, &s.Coolant, &s.RPM, &s.Speed} {
		if r.Quality == QualityGood {
			r.Quality = QualityStale
		}
	}
	return s
}
