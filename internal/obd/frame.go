package obd

import "fmt"

// encodeRequest builds the wire form of a Service-1 request: length byte
// (0x66 + command length), destination, source, command bytes, then the
// additive checksum of everything before it.
func encodeRequest(cmd []byte) []byte {
	req := make([]byte, 0, len(cmd)+4)
	req = append(req, byte(cmdLenOffset+len(cmd)), destAddr, srcAddr)
	req = append(req, cmd...)
	return append(req, checksum(req))
}

// checksum is the one-byte additive sum used by ISO 9141-2 framing.
func checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return sum
}

// sendCommand transmits one request frame and returns the raw result
// bytes of the validated response. Caller holds i.mu.
//
// Each transmitted byte is confirmed against its echo off the shared
// half-duplex line; a mismatch aborts the exchange with no byte-level
// retry. Validation failures leave the session state untouched; only a
// keep-alive violation faults the session.
func (i *ISO9141) sendCommand(p pid) ([]byte, error) {
	if i.state != Ready {
		return nil, fmt.Errorf("obd: send in state %s: %w", i.state, ErrNotReady)
	}
	if idle := i.now().Sub(i.lastExchange); idle > keepAliveLimit {
		i.state = Faulted
		return nil, fmt.Errorf("obd: %v idle exceeds keep-alive ceiling: %w", idle, ErrSessionExpired)
	}

	req := encodeRequest(p.cmd[:])
	for n, b := range req {
		if n > 0 {
			i.sleep(interByteGap)
		}
		if err := i.writeEchoed(b); err != nil {
			return nil, err
		}
	}

	// Response: [0x42+datalen] [dest] [src] [cmd echo...] [result...] [checksum]
	lenByte, err := i.line.ReadByte(i.readTimeout)
	if err != nil {
		return nil, fmt.Errorf("obd: response length: %w", err)
	}
	dataLen := int(lenByte) - dataLenOffset
	if dataLen-len(p.cmd) != p.resultLen {
		return nil, fmt.Errorf("obd: response data length %d for %d command bytes, want %d result bytes: %w",
			dataLen, len(p.cmd), p.resultLen, ErrFrameLength)
	}

	dest, err := i.line.ReadByte(i.readTimeout)
	if err != nil {
		return nil, fmt.Errorf("obd: response destination: %w", err)
	}
	if dest != destAddr {
		return nil, fmt.Errorf("obd: response destination 0x%02X, want 0x%02X: %w", dest, destAddr, ErrAddressMismatch)
	}
	src, err := i.line.ReadByte(i.readTimeout)
	if err != nil {
		return nil, fmt.Errorf("obd: response source: %w", err)
	}
	if src != srcAddr {
		return nil, fmt.Errorf("obd: response source 0x%02X, want 0x%02X: %w", src, srcAddr, ErrAddressMismatch)
	}

	sum := lenByte + dest + src
	for n, want := range p.cmd {
		got, err := i.line.ReadByte(i.readTimeout)
		if err != nil {
			return nil, fmt.Errorf("obd: command echo byte %d: %w", n, err)
		}
		if got != want {
			return nil, fmt.Errorf("obd: command echo byte %d is 0x%02X, want 0x%02X: %w", n, got, want, ErrCommandEcho)
		}
		sum += got
	}

	result := make([]byte, p.resultLen)
	for n := range result {
		b, err := i.line.ReadByte(i.readTimeout)
		if err != nil {
			return nil, fmt.Errorf("obd: result byte %d: %w", n, err)
		}
		result[n] = b
		sum += b
	}

	trailer, err := i.line.ReadByte(i.readTimeout)
	if err != nil {
		return nil, fmt.Errorf("obd: response checksum: %w", err)
	}
	if i.strict && trailer != sum {
		return nil, fmt.Errorf("obd: response checksum 0x%02X, computed 0x%02X: %w", trailer, sum, ErrChecksum)
	}

	i.lastExchange = i.now()
	return result, nil
}

// writeEchoed sends one byte and requires the line to echo it back
// unchanged, the K-line's per-byte flow control.
func (i *ISO9141) writeEchoed(b byte) error {
	if err := i.line.WriteByte(b); err != nil {
		return fmt.Errorf("obd: write 0x%02X: %w", b, err)
	}
	echo, err := i.line.ReadByte(i.readTimeout)
	if err != nil {
		return fmt.Errorf("obd: echo of 0x%02X: %w", b, err)
	}
	if echo != b {
		return fmt.Errorf("obd: sent 0x%02X, line echoed 0x%02X: %w", b, echo, ErrEchoMismatch)
	}
	return nil
}
