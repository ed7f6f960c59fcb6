// Package serial implements the half-duplex UART framing and CRC
// layer the ASIC driver family builds on (C1): blocking send, timed
// exact-length receive, unconditional flush, baud reprogramming,
// preamble alignment recovery, and chip enumeration.
package serial

import (
	"time"
)

// Preamble is the 2-byte big-endian marker every BM13xx response
// frame begins with.
const Preamble = 0xAA55

// Port is the half-duplex transport the ASIC driver family sends
// frames over and reads responses from. Implementations: UARTPort
// (a real 8N1 serial line), USBPort (direct USB bulk transfer,
// bypassing a kernel serial driver, grounded on the teacher's
// usb_device.go), and TracedPort (an eBPF-observing decorator over
// either, grounded on the teacher's eBPF_driver.go).
type Port interface {
	// Send writes data in full or returns an error; it blocks until
	// the write completes or the deadline implied by the
	// implementation's configured write timeout elapses.
	Send(data []byte) error

	// Receive reads exactly len(buf) bytes within timeout, or returns
	// an error. A short read, a timeout, and a UART error are all
	// fatal for the transaction per spec — callers must Flush after
	// any error.
	Receive(buf []byte, timeout time.Duration) error

	// Flush discards any buffered, unread RX bytes.
	Flush()

	// SetBaud reprograms the host-side UART baud rate.
	SetBaud(baud int) error

	// Close releases the underlying transport.
	Close() error
}
