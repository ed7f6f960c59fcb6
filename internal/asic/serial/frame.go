package serial

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/btcsuite/btclog"

	"github.com/axeforge/bitaxe-core/internal/logging"
)

// alignmentTimeout bounds how long ReceiveWork waits for the extra
// bytes needed to recover from a misaligned preamble before giving up
// on the frame entirely.
const alignmentTimeout = 10 * time.Millisecond

// FindPreambleOffset returns the byte offset of the first 0xAA55
// marker in buf, or -1 if none is present.
func FindPreambleOffset(buf []byte) int {
	for i := 0; i+1 < len(buf); i++ {
		if binary.BigEndian.Uint16(buf[i:i+2]) == Preamble {
			return i
		}
	}
	return -1
}

// ReceiveWork reads exactly len(buf) bytes from port, recovers
// preamble alignment if the marker is found at a nonzero offset, and
// verifies the CRC5 of bytes [2:]. On any failure the port is flushed
// and an error returned — per spec §4.1/§4.2, the caller treats this
// as "no result this cycle", not a retry.
func ReceiveWork(port Port, buf []byte, log func(format string, args ...interface{})) error {
	if err := port.Receive(buf, 10*time.Second); err != nil {
		port.Flush()
		return fmt.Errorf("serial: receive: %w", err)
	}

	offset := FindPreambleOffset(buf)
	if offset == -1 {
		port.Flush()
		return fmt.Errorf("serial: preamble not found")
	}

	if offset > 0 {
		if log != nil {
			log("non-zero preamble offset %d, attempting alignment recovery", offset)
		}
		reserve := make([]byte, offset)
		if err := port.Receive(reserve, alignmentTimeout); err != nil {
			port.Flush()
			return fmt.Errorf("serial: alignment recovery: %w", err)
		}
		copy(buf, buf[offset:])
		copy(buf[len(buf)-offset:], reserve)
	}

	if CRC5(buf[2:]) != 0 {
		port.Flush()
		return fmt.Errorf("serial: CRC5 check failed")
	}

	return nil
}

// CountChips repeatedly reads fixed-length CHIP_ID response frames
// until a read comes back empty, validating preamble, chip-id field,
// and CRC5 on each; mismatches are logged as warnings rather than
// treated as fatal, per spec §4.1.
func CountChips(port Port, responseLen int, expectedChipID uint16, lg logging.Category, loggers *logging.Loggers) int {
	buf := make([]byte, responseLen)
	count := 0

	for {
		err := port.Receive(buf, time.Second)
		if err != nil {
			break
		}

		if binary.BigEndian.Uint16(buf[0:2]) != Preamble {
			loggers.Message(lg, btclog.LevelWarn, "chip_id preamble mismatch: %x", buf[:4])
			continue
		}
		gotID := binary.BigEndian.Uint16(buf[2:4])
		if gotID != expectedChipID {
			loggers.Message(lg, btclog.LevelWarn, "chip_id mismatch: want 0x%04x got 0x%04x", expectedChipID, gotID)
			continue
		}
		if CRC5(buf[2:]) != 0 {
			loggers.Message(lg, btclog.LevelWarn, "chip_id CRC5 failed: %x", buf)
			continue
		}

		count++
	}

	return count
}
