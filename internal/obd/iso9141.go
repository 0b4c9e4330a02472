package obd

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// Timing contract of ISO 9141-2 slow init and Service-1 requests.
const (
	// OperatingBaud is the K-line rate after the 5-baud wake byte.
	OperatingBaud = 10400

	wakeIdleHold  = 2600 * time.Millisecond // ECU reset window before init
	wakeBitPeriod = 200 * time.Millisecond  // one bit at 5 baud

	handshakePause  = 40 * time.Millisecond // W4 pauses around the key ack
	interByteGap    = 10 * time.Millisecond // spacing between request bytes
	interRequestGap = 65 * time.Millisecond // spacing between exchanges

	// keepAliveLimit is the vehicle-imposed ceiling between the end of
	// one response and the start of the next request. Past it the
	// vehicle closes the session.
	keepAliveLimit = 5000 * time.Millisecond

	syncByte    = 0x55
	wakeAddress = 0x33
	finalAck    = 0xCC // complement of the wake address

	defaultReadTimeout = 2 * time.Second
)

// Config holds connection configuration for the ISO 9141-2 provider.
type Config struct {
	PortPath      string `yaml:"port_path" json:"portPath"`
	ReadTimeoutMs int    `yaml:"read_timeout_ms" json:"readTimeoutMs"`

	// StrictChecksum enables verification of the trailing response
	// checksum byte. Off by default: period scan tools read and discard
	// it, and some ECUs are reported to sum slightly different byte
	// ranges.
	StrictChecksum bool `yaml:"strict_checksum" json:"strictChecksum"`
}

// ISO9141 speaks the ISO 9141-2 K-Line protocol to a vehicle over a
// half-duplex serial line. The serial line is a single shared resource:
// exactly one request/response exchange may be in flight, so every
// operation takes the mutex for its full duration.
type ISO9141 struct {
	portPath    string
	readTimeout time.Duration
	strict      bool

	mu           sync.Mutex
	line         Line
	state        SessionState
	keyBytes     [2]byte
	lastExchange time.Time
	supported    PIDMask

	// Seams for tests; production uses the real implementations.
	openLine func(string) (Line, error)
	sleep    func(time.Duration)
	now      func() time.Time
}

// NewISO9141 creates a new K-line provider. No I/O happens until
// Connect.
func NewISO9141(cfg Config) *ISO9141 {
	timeout := time.Duration(cfg.ReadTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultReadTimeout
	}
	return &ISO9141{
		portPath:    cfg.PortPath,
		readTimeout: timeout,
		strict:      cfg.StrictChecksum,
		state:       Disconnected,
		openLine:    OpenLine,
		sleep:       time.Sleep,
		now:         time.Now,
	}
}

func (i *ISO9141) Name() string { return "ISO 9141-2 K-Line" }

// State returns the current session state.
func (i *ISO9141) State() SessionState {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// KeyBytes returns the two key bytes received during the last handshake.
// Diagnostic only; the protocol variant they select does not change
// behavior here.
func (i *ISO9141) KeyBytes() [2]byte {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.keyBytes
}

// SupportedPIDs returns the Service-1 PID bitmask read after the
// handshake.
func (i *ISO9141) SupportedPIDs() PIDMask {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.supported
}

// Connect opens the serial line and runs the full slow-init handshake.
// On success the session is Ready and the supported-PID bitmask has been
// fetched. On failure the session is Faulted; the caller decides when to
// retry the whole sequence.
func (i *ISO9141) Connect() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.line == nil {
		line, err := i.openLine(i.portPath)
		if err != nil {
			i.state = Faulted
			return err
		}
		i.line = line
	}

	log.Printf("[obd] starting slow init on %s", i.portPath)
	i.state = Initializing

	if err := i.handshake(); err != nil {
		i.state = Faulted
		return err
	}

	i.state = Ready
	i.lastExchange = i.now()
	log.Printf("[obd] session ready on %s", i.portPath)

	// The bitmask is read once per session, right after init. A failure
	// here is not fatal: the mask stays zero and individual PID reads
	// still work.
	i.sleep(interRequestGap)
	res, err := i.sendCommand(pidSupported)
	if err != nil {
		log.Printf("[obd] supported-PID read failed: %v", err)
	} else {
		copy(i.supported[:], res)
		log.Printf("[obd] supported PIDs 01-20: %s", i.supported)
	}

	return nil
}

// Close shuts the serial line and returns the session to Disconnected.
func (i *ISO9141) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.state = Disconnected
	i.supported = PIDMask{}
	if i.line != nil {
		err := i.line.Close()
		i.line = nil
		return err
	}
	return nil
}

// Poll runs one full read cycle over the live-data PIDs, pausing
// interRequestGap before each exchange. A failed request marks its
// reading invalid and the cycle continues; an expired session aborts the
// cycle so the caller can re-run the handshake.
func (i *ISO9141) Poll() (*Snapshot, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.state != Ready {
		return nil, fmt.Errorf("obd: poll in state %s: %w", i.state, ErrNotReady)
	}

	snap := &Snapshot{SupportedPIDs: i.supported}
	cycle := []struct {
		p      pid
		decode func([]byte) float64
		out    *Reading
	}{
		{pidLoad, decodeLoad, &snap.Load},
		{pidCoolant, decodeCoolant, &snap.Coolant},
		{pidRPM, decodeRPM, &snap.RPM},
		{pidSpeed, decodeSpeed, &snap.Speed},
	}

	for _, c := range cycle {
		i.sleep(interRequestGap)
		res, err := i.sendCommand(c.p)
		if err != nil {
			if errors.Is(err, ErrSessionExpired) || errors.Is(err, ErrNotReady) {
				return nil, err
			}
			log.Printf("[obd] %s: %v", c.p.name, err)
			c.out.Quality = QualityInvalid
			continue
		}
		*c.out = Reading{Value: c.decode(res), Quality: QualityGood}
	}

	return snap, nil
}
