package asic

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/stretchr/testify/require"

	"github.com/axeforge/bitaxe-core/internal/asic/serial"
	"github.com/axeforge/bitaxe-core/internal/job"
	"github.com/axeforge/bitaxe-core/internal/logging"
)

// fakePort is a minimal in-memory serial.Port: Sends are recorded,
// Receives are served from a canned queue so each driver's Init /
// SendWork / ProcessWork can be exercised without real hardware.
type fakePort struct {
	sent    [][]byte
	reads   [][]byte
	flushed int
}

func (f *fakePort) Send(data []byte) error {
	f.sent = append(f.sent, append([]byte{}, data...))
	return nil
}

func (f *fakePort) Receive(buf []byte, _ time.Duration) error {
	if len(f.reads) == 0 {
		return fmtError("fakePort: no more canned reads")
	}
	next := f.reads[0]
	f.reads = f.reads[1:]
	if len(next) != len(buf) {
		return fmtError("fakePort: canned read length mismatch")
	}
	copy(buf, next)
	return nil
}

func (f *fakePort) Flush()            { f.flushed++ }
func (f *fakePort) SetBaud(int) error { return nil }
func (f *fakePort) Close() error      { return nil }

type fmtError string

func (e fmtError) Error() string { return string(e) }

func newTestLoggers() *logging.Loggers {
	return logging.New(&bytes.Buffer{}, btclog.LevelOff)
}

// validRxNonceFrame builds a 16-byte response frame with a trailing
// CRC5 byte chosen, by exhaustive search over all 256 byte values, so
// that serial.CRC5(frame[2:]) == 0 — the same check ReceiveWork
// performs on real hardware responses.
func validRxNonceFrame(t *testing.T, jobID uint8, nonce uint32, chipAddr, smallCore uint8) []byte {
	t.Helper()
	frame := make([]byte, rxNonceFrameLen)
	binary.BigEndian.PutUint16(frame[0:2], serial.Preamble)
	frame[2] = dataTypeRxNonce
	frame[3] = jobID
	binary.LittleEndian.PutUint32(frame[4:8], nonce)
	frame[8] = chipAddr
	frame[9] = smallCore
	binary.BigEndian.PutUint32(frame[11:15], 0x20000000)

	for check := 0; check < 256; check++ {
		frame[15] = byte(check)
		if serial.CRC5(frame[2:]) == 0 {
			return frame
		}
	}
	t.Fatal("no CRC5-valid check byte found for fixture")
	return nil
}

func TestBM1366SendWorkStoresInActiveJobs(t *testing.T) {
	table := job.NewTable()
	port := &fakePort{}
	d := NewBM1366Driver(port, newTestLoggers(), table)

	j := &job.BmJob{NTime: 1, NBits: 2}
	require.NoError(t, d.SendWork(j))

	got, ok := table.Lookup(0)
	require.True(t, ok)
	require.Same(t, j, got)
	require.Len(t, port.sent, 1)
}

func TestBM1397SetFrequencyAlwaysFalse(t *testing.T) {
	d := NewBM1397Driver(&fakePort{}, newTestLoggers(), job.NewTable())
	d.freqMHz = 400
	require.False(t, d.SetFrequency(500))
}

func TestBM1366SetFrequencyStepsTowardTarget(t *testing.T) {
	port := &fakePort{}
	d := NewBM1366Driver(port, newTestLoggers(), job.NewTable())
	d.freqMHz = 400
	d.chainLen = 1

	ok := d.SetFrequency(425)
	require.True(t, ok)
	require.Equal(t, 425.0, d.freqMHz)
	require.Greater(t, len(port.sent), 1, "stepping should issue more than one config frame")
}

func TestProcessWorkParsesRxNonce(t *testing.T) {
	frame := validRxNonceFrame(t, 0x2A, 0xDEADBEEF, 3, 7)

	port := &fakePort{reads: [][]byte{frame}}
	d := NewBM1368Driver(port, newTestLoggers(), job.NewTable())

	result, ok, err := d.ProcessWork()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint8(0x2A), result.JobID)
	require.Equal(t, uint32(0xDEADBEEF), result.Nonce)
	require.Equal(t, uint8(3), result.ChipAddress)
	require.Equal(t, uint8(7), result.SmallCoreID)
}

func TestProcessWorkReturnsNotOkOnCRCFailure(t *testing.T) {
	frame := validRxNonceFrame(t, 1, 1, 1, 1)
	frame[15] ^= 0xFF // corrupt the check byte

	port := &fakePort{reads: [][]byte{frame}}
	d := NewBM1370Driver(port, newTestLoggers(), job.NewTable())

	_, ok, err := d.ProcessWork()
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 1, port.flushed)
}
