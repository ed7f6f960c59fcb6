//go:build linux

// UARTPort is the native serial transport: a real /dev/ttyACMx or
// /dev/ttySx line configured 8N1 via termios, no intermediate USB
// bridge. The teacher's device package never talks to a bare UART
// directly (it only has the USB and kernel-module device strategies),
// so this is built fresh atop golang.org/x/sys/unix termios — the
// standard ecosystem way to drive raw serial lines on Linux, already
// a dependency of the teacher's gopsutil chain.
package serial

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// UARTPort drives a single half-duplex 8N1 serial line.
type UARTPort struct {
	f    *os.File
	fd   int
	baud int
}

var baudConstants = map[int]uint32{
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	921600:  unix.B921600,
	1000000: unix.B1000000,
	1500000: unix.B1500000,
}

// OpenUARTPort opens and configures path as an 8N1 line at baud.
func OpenUARTPort(path string, baud int) (*UARTPort, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", path, err)
	}

	p := &UARTPort{f: f, fd: int(f.Fd())}
	if err := p.configure(baud); err != nil {
		f.Close()
		return nil, err
	}
	return p, nil
}

func (p *UARTPort) configure(baud int) error {
	rate, ok := baudConstants[baud]
	if !ok {
		return fmt.Errorf("serial: unsupported baud %d", baud)
	}

	t, err := unix.IoctlGetTermios(p.fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("serial: get termios: %w", err)
	}

	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 0
	t.Ispeed = rate
	t.Ospeed = rate

	if err := unix.IoctlSetTermios(p.fd, unix.TCSETS, t); err != nil {
		return fmt.Errorf("serial: set termios: %w", err)
	}
	p.baud = baud
	return nil
}

func (p *UARTPort) Send(data []byte) error {
	_, err := p.f.Write(data)
	if err != nil {
		return fmt.Errorf("serial: uart write: %w", err)
	}
	return nil
}

// Receive reads exactly len(buf) bytes or returns an error once
// timeout elapses, matching spec §4.1's "exact length or fail"
// contract.
func (p *UARTPort) Receive(buf []byte, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	p.f.SetReadDeadline(deadline)

	total := 0
	for total < len(buf) {
		n, err := p.f.Read(buf[total:])
		total += n
		if err != nil {
			return fmt.Errorf("serial: uart read: %w", err)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("serial: uart read timeout after %d/%d bytes", total, len(buf))
		}
	}
	return nil
}

func (p *UARTPort) Flush() {
	unix.IoctlSetInt(p.fd, unix.TCFLSH, unix.TCIFLUSH)
}

func (p *UARTPort) SetBaud(baud int) error {
	return p.configure(baud)
}

func (p *UARTPort) Close() error {
	return p.f.Close()
}
