package obd

import "errors"

// Error kinds surfaced by the protocol engine. All are returned to the
// immediate caller; none are fatal. Recovery from a handshake failure or
// an expired session is always a full re-run of the slow-init sequence.
var (
	// ErrHandshake is an unexpected sync, key or acknowledgment byte
	// during the 5-baud slow-init sequence.
	ErrHandshake = errors.New("handshake failure")

	// ErrEchoMismatch means a transmitted request byte was not echoed
	// back unchanged by the K-line.
	ErrEchoMismatch = errors.New("echo mismatch")

	// ErrFrameLength means the response declared a data length that does
	// not match the expected result size for the request.
	ErrFrameLength = errors.New("frame length mismatch")

	// ErrAddressMismatch means the response destination or source byte
	// differs from the fixed ISO 9141-2 addressing constants.
	ErrAddressMismatch = errors.New("address mismatch")

	// ErrCommandEcho means the response's echoed command bytes differ
	// from the request.
	ErrCommandEcho = errors.New("command echo mismatch")

	// ErrChecksum means the trailing response checksum did not match the
	// recomputed additive sum. Only reported in strict-checksum mode.
	ErrChecksum = errors.New("response checksum mismatch")

	// ErrSessionExpired means more than the keep-alive ceiling elapsed
	// since the last successful exchange; the vehicle has closed the
	// session and a full re-handshake is required.
	ErrSessionExpired = errors.New("session expired")

	// ErrNotReady means a request was attempted outside the Ready state.
	ErrNotReady = errors.New("session not ready")

	// ErrTimeout means no byte arrived within the bounded read wait.
	ErrTimeout = errors.New("read timeout")
)
