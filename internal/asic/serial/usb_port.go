//go:build !mips && !mipsle

// USB-based ASIC transport, adapted from the teacher's usb_device.go:
// the same VID/PID open, bulk-endpoint claim, and read/write shape,
// generalized behind the Port interface so it can stand in for a real
// UART when the board exposes its ASIC chain over a USB bridge rather
// than a bare serial line.
package serial

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gousb"
)

// Bitaxe boards built around a USB-UART bridge rather than a native
// serial line enumerate under this VID/PID pair.
const (
	usbVendorID  = 0x4254
	usbProductID = 0x4153

	usbEndpointOut = 0x01
	usbEndpointIn  = 0x81
)

// USBPort is a Port backed by direct USB bulk transfer, bypassing any
// kernel serial driver.
type USBPort struct {
	ctx    *gousb.Context
	device *gousb.Device
	config *gousb.Config
	intf   *gousb.Interface
	epOut  *gousb.OutEndpoint
	epIn   *gousb.InEndpoint
}

// OpenUSBPort opens the ASIC chain's USB bridge.
func OpenUSBPort() (*USBPort, error) {
	ctx := gousb.NewContext()

	device, err := ctx.OpenDeviceWithVIDPID(usbVendorID, usbProductID)
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("serial: open usb device: %w", err)
	}
	if device == nil {
		ctx.Close()
		return nil, fmt.Errorf("serial: usb device not found (VID:0x%04x PID:0x%04x)", usbVendorID, usbProductID)
	}

	config, err := device.Config(1)
	if err != nil {
		device.Close()
		ctx.Close()
		return nil, fmt.Errorf("serial: usb config: %w", err)
	}

	intf, err := config.Interface(0, 0)
	if err != nil {
		config.Close()
		device.Close()
		ctx.Close()
		return nil, fmt.Errorf("serial: claim usb interface: %w", err)
	}

	epOut, err := intf.OutEndpoint(usbEndpointOut)
	if err != nil {
		intf.Close()
		config.Close()
		device.Close()
		ctx.Close()
		return nil, fmt.Errorf("serial: open out endpoint: %w", err)
	}

	epIn, err := intf.InEndpoint(usbEndpointIn)
	if err != nil {
		intf.Close()
		config.Close()
		device.Close()
		ctx.Close()
		return nil, fmt.Errorf("serial: open in endpoint: %w", err)
	}

	return &USBPort{ctx: ctx, device: device, config: config, intf: intf, epOut: epOut, epIn: epIn}, nil
}

func (p *USBPort) Send(data []byte) error {
	if _, err := p.epOut.Write(data); err != nil {
		return fmt.Errorf("serial: usb write: %w", err)
	}
	return nil
}

func (p *USBPort) Receive(buf []byte, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	n, err := p.epIn.ReadContext(ctx, buf)
	if err != nil {
		return fmt.Errorf("serial: usb read: %w", err)
	}
	if n != len(buf) {
		return fmt.Errorf("serial: short usb read: got %d want %d", n, len(buf))
	}
	return nil
}

// Flush is a no-op on USB bulk transfer: there is no hardware FIFO to
// drain, every ReadContext call either returns what is queued or
// times out.
func (p *USBPort) Flush() {}

// SetBaud has no meaning over a raw USB bulk pipe; the bridge chip
// itself is configured once at enumeration.
func (p *USBPort) SetBaud(baud int) error { return nil }

func (p *USBPort) Close() error {
	if p.intf != nil {
		p.intf.Close()
	}
	if p.config != nil {
		p.config.Close()
	}
	if p.device != nil {
		p.device.Close()
	}
	if p.ctx != nil {
		p.ctx.Close()
	}
	return nil
}
