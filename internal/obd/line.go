package obd

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// Line is the small capability surface the protocol engine needs from the
// physical K-line. Keeping it narrow lets the engine run against a
// scripted line in tests without real hardware.
type Line interface {
	// SetTX drives the transmit line to the given level and holds it for
	// d. Used only for the 5-baud wake byte, which the UART itself
	// cannot clock out.
	SetTX(level bool, d time.Duration) error

	// Reconfigure sets the port to baud, 8 data bits, no parity, one
	// stop bit.
	Reconfigure(baud int) error

	// WriteByte emits one byte and waits until it has left the output
	// buffer.
	WriteByte(b byte) error

	// ReadByte blocks until one byte arrives or the timeout elapses, in
	// which case it returns ErrTimeout.
	ReadByte(timeout time.Duration) (byte, error)

	// Drain discards anything pending in the receive buffer.
	Drain() error

	Close() error
}

// serialLine implements Line on a real serial port.
type serialLine struct {
	port serial.Port
}

// OpenLine opens the serial device at the ISO 9141-2 operating rate.
func OpenLine(path string) (Line, error) {
	mode := &serial.Mode{
		BaudRate: OperatingBaud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("obd: failed to open %s: %w", path, err)
	}
	return &serialLine{port: port}, nil
}

// SetTX holds the line low via a break condition, or idle-high by simply
// letting the configured duration elapse. Driving slow-init bits as break
// pulses is the standard way to clock 5 baud out of a UART that bottoms
// out orders of magnitude faster.
func (l *serialLine) SetTX(level bool, d time.Duration) error {
	if level {
		time.Sleep(d)
		return nil
	}
	return l.port.Break(d)
}

func (l *serialLine) Reconfigure(baud int) error {
	return l.port.SetMode(&serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
}

func (l *serialLine) WriteByte(b byte) error {
	if _, err := l.port.Write([]byte{b}); err != nil {
		return err
	}
	return l.port.Drain()
}

func (l *serialLine) ReadByte(timeout time.Duration) (byte, error) {
	if err := l.port.SetReadTimeout(timeout); err != nil {
		return 0, err
	}
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 1)
	for {
		n, err := l.port.Read(buf)
		if err != nil {
			return 0, err
		}
		if n > 0 {
			return buf[0], nil
		}
		if !time.Now().Before(deadline) {
			return 0, ErrTimeout
		}
	}
}

func (l *serialLine) Drain() error {
	return l.port.ResetInputBuffer()
}

func (l *serialLine) Close() error {
	return l.port.Close()
}
