//go:build linux

// TracedPort wraps a Port with an eBPF ring-buffer diagnostic feed,
// generalized from the teacher's eBPF_driver.go (same
// rlimit.RemoveMemlock / ringbuf.Reader construction, here consuming
// whatever a caller-supplied collection produces instead of the
// teacher's XDP-on-USB-interface construction, which has no analogue
// for a point-to-point serial line). Frame timing events land in the
// ring buffer from a loaded eBPF program the embedder is responsible
// for attaching (tracepoint on the UART driver, uprobe on the USB
// bridge, or similar) — this type only owns consuming it.
package serial

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/ringbuf"
	"github.com/cilium/ebpf/rlimit"
)

// FrameEvent is one decoded diagnostic record: a timestamped
// send/receive boundary crossing, the counterpart of the teacher's
// NonceEvent but carrying a direction and byte count instead of a
// single nonce field.
type FrameEvent struct {
	TimestampNS uint64
	Bytes       uint32
	Direction   uint8 // 0 = send, 1 = receive
}

// TracedPort decorates a Port, consuming frame-boundary events from an
// eBPF ring buffer map for offline diagnostics while passing every
// Send/Receive/Flush/SetBaud/Close call through unmodified.
type TracedPort struct {
	Port
	reader *ringbuf.Reader
}

// NewTracedPort wraps port, reading frame events from eventsMap. The
// caller owns loading and attaching the eBPF program that populates
// eventsMap; NewTracedPort only removes the memlock rlimit (required
// once per process before any map can be created) and opens the
// reader.
func NewTracedPort(port Port, eventsMap *ebpf.Map) (*TracedPort, error) {
	if err := rlimit.RemoveMemlock(); err != nil {
		return nil, fmt.Errorf("serial: remove memlock rlimit: %w", err)
	}

	reader, err := ringbuf.NewReader(eventsMap)
	if err != nil {
		return nil, fmt.Errorf("serial: open ringbuf reader: %w", err)
	}

	return &TracedPort{Port: port, reader: reader}, nil
}

// NextEvent blocks until a diagnostic event arrives or the reader is
// closed.
func (t *TracedPort) NextEvent() (FrameEvent, error) {
	record, err := t.reader.Read()
	if err != nil {
		return FrameEvent{}, fmt.Errorf("serial: read ringbuf: %w", err)
	}

	var ev FrameEvent
	if len(record.RawSample) < 13 {
		return FrameEvent{}, fmt.Errorf("serial: short ringbuf record: %d bytes", len(record.RawSample))
	}
	ev.TimestampNS = binary.LittleEndian.Uint64(record.RawSample[0:8])
	ev.Bytes = binary.LittleEndian.Uint32(record.RawSample[8:12])
	ev.Direction = record.RawSample[12]
	return ev, nil
}

// Close stops the ring buffer reader, then the wrapped Port.
func (t *TracedPort) Close() error {
	t.reader.Close()
	return t.Port.Close()
}

// timeNowNS is broken out for tests that need a deterministic clock.
var timeNowNS = func() uint64 { return uint64(time.Now().UnixNano()) }
