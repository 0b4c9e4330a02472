package obd

// sendWakeup clocks the address byte 0x33 onto the K-line at 5 baud: one
// start bit (low), eight data bits LSB first, one stop bit (high), each
// held for wakeBitPeriod. The UART cannot run this slow, so the line is
// driven directly. There is no feedback channel; the vehicle's response
// arrives only after the UART is back at the operating rate.
func (i *ISO9141) sendWakeup() error {
	if err := i.line.SetTX(false, wakeBitPeriod); err != nil {
		return err
	}
	for bit := 0; bit < 8; bit++ {
		level := wakeAddress&(1<<uint(bit)) != 0
		if err := i.line.SetTX(level, wakeBitPeriod); err != nil {
			return err
		}
	}
	return i.line.SetTX(true, wakeBitPeriod)
}
