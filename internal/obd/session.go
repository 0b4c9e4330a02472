package obd

import (
	"fmt"
	"log"
)

// SessionState is the connection lifecycle of an ISO 9141-2 session.
// Faulted and Disconnected both require a full re-run of the slow-init
// handshake to reach Ready again; there is no partial recovery.
type SessionState int

const (
	Disconnected SessionState = iota
	Initializing
	Ready
	Faulted
)

func (s SessionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case Faulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// handshake runs the ISO 9141-2 slow-init sequence. Caller holds i.mu
// and has already set the state to Initializing.
//
//  1. Hold the line idle-high for wakeIdleHold so the ECU resets its
//     listening state.
//  2. Clock the address byte 0x33 onto the line at 5 baud.
//  3. Switch the UART to 10.4 kbit/s 8N1 and expect the 0x55 sync byte.
//  4. Receive the two key bytes (08 08 or 94 94 for ISO 9141-2; the
//     variant does not change behavior here).
//  5. After ~40 ms, transmit the complement of key byte 2 and consume
//     our own echo off the shared line.
//  6. After another ~40 ms, expect the vehicle's ack: the complement of
//     the address byte, 0xCC.
//
// Any unexpected byte aborts the whole sequence; the caller decides
// whether to retry from step 1.
func (i *ISO9141) handshake() error {
	i.sleep(wakeIdleHold)

	if err := i.sendWakeup(); err != nil {
		return fmt.Errorf("obd: wakeup: %w", err)
	}

	if err := i.line.Reconfigure(OperatingBaud); err != nil {
		return fmt.Errorf("obd: reconfigure: %w", err)
	}
	i.line.Drain()

	sync, err := i.line.ReadByte(i.readTimeout)
	if err != nil {
		return fmt.Errorf("obd: sync byte: %w", err)
	}
	if sync != syncByte {
		return fmt.Errorf("obd: unexpected sync byte 0x%02X, want 0x%02X: %w", sync, syncByte, ErrHandshake)
	}

	key1, err := i.line.ReadByte(i.readTimeout)
	if err != nil {
		return fmt.Errorf("obd: key byte 1: %w", err)
	}
	key2, err := i.line.ReadByte(i.readTimeout)
	if err != nil {
		return fmt.Errorf("obd: key byte 2: %w", err)
	}
	i.keyBytes = [2]byte{key1, key2}
	log.Printf("[obd] sync OK, key bytes %02X %02X", key1, key2)

	i.sleep(handshakePause)

	ack := ^key2
	if err := i.line.WriteByte(ack); err != nil {
		return fmt.Errorf("obd: key ack: %w", err)
	}
	echo, err := i.line.ReadByte(i.readTimeout)
	if err != nil {
		return fmt.Errorf("obd: key ack echo: %w", err)
	}
	if echo != ack {
		return fmt.Errorf("obd: key ack sent 0x%02X, line echoed 0x%02X: %w", ack, echo, ErrHandshake)
	}

	i.sleep(handshakePause)

	fin, err := i.line.ReadByte(i.readTimeout)
	if err != nil {
		return fmt.Errorf("obd: final ack: %w", err)
	}
	if fin != finalAck {
		return fmt.Errorf("obd: unexpected final ack 0x%02X, want 0x%02X: %w", fin, finalAck, ErrHandshake)
	}

	return nil
}
