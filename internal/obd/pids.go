package obd

// Framing constants fixed by ISO 9141-2.
const (
	cmdLenOffset  = 0x66 // request length byte = 0x66 + number of command bytes
	dataLenOffset = 0x42 // response length byte = 0x42 + data length
	destAddr      = 0x6A
	srcAddr       = 0xF1
)

// pid describes one Service-1 parameter request: the service/PID byte
// pair and the result size the vehicle returns for it.
type pid struct {
	name      string
	cmd       [2]byte
	resultLen int
}

var (
	pidSupported = pid{"supported-pids", [2]byte{0x01, 0x00}, 4}
	pidLoad      = pid{"engine-load", [2]byte{0x01, 0x04}, 1}
	pidCoolant   = pid{"coolant-temp", [2]byte{0x01, 0x05}, 1}
	pidRPM       = pid{"engine-rpm", [2]byte{0x01, 0x0C}, 2}
	pidSpeed     = pid{"vehicle-speed", [2]byte{0x01, 0x0D}, 1}
)

// Decode formulas for the Service-1 result bytes. Integer arithmetic on
// purpose: load and RPM truncate toward zero.

func decodeLoad(r []byte) float64 { return float64(int(r[0]) * 100 / 255) }

func decodeCoolant(r []byte) float64 { return float64(int(r[0]) - 40) }

func decodeRPM(r []byte) float64 { return float64((int(r[0])*256 + int(r[1])) / 4) }

func decodeSpeed(r []byte) float64 { return float64(r[0]) }
