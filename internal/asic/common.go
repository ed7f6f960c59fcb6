package asic

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/axeforge/bitaxe-core/internal/asic/serial"
	"github.com/axeforge/bitaxe-core/internal/job"
)

// Bitmain protocol tokens, carried over from the teacher's
// controller.go (TokenTxConfig/TokenTxTask/TokenRxStatus), which in
// turn ground in the chips' own documented wire protocol.
const (
	tokenTxConfig = 0x51
	tokenTxTask   = 0x52
	tokenRxStatus = 0x53

	dataTypeRxStatus = 0xA1
	dataTypeRxNonce  = 0xA2
)

// buildTxTaskFrame assembles a TxTask command frame carrying one
// BmJob's midstate and tail data, generalizing the teacher's
// BuildTxTaskFromHeader (which built this frame directly from an
// 80-byte block header) to build it from the already-precomputed
// BmJob fields instead.
func buildTxTaskFrame(j *job.BmJob, workID uint8) []byte {
	const taskSize = 45 // work_id(1) + midstate(32) + tail(12)

	packet := make([]byte, 4+1+taskSize+2)
	packet[0] = tokenTxTask
	packet[1] = 0x00
	binary.LittleEndian.PutUint16(packet[2:4], 46)

	packet[4] = 0x01 // work_num
	packet[5] = workID
	copy(packet[6:38], j.Midstate[0][:])

	tail := make([]byte, 12)
	binary.BigEndian.PutUint32(tail[0:4], uint32(j.MerkleRoot[28])<<24|uint32(j.MerkleRoot[29])<<16|uint32(j.MerkleRoot[30])<<8|uint32(j.MerkleRoot[31]))
	binary.BigEndian.PutUint32(tail[4:8], j.NTime)
	binary.BigEndian.PutUint32(tail[8:12], j.NBits)
	copy(packet[38:50], tail)

	crc := serial.CRC16(packet[:50])
	binary.LittleEndian.PutUint16(packet[50:52], crc)
	return packet
}

// rxNonceFrameLen is the fixed length of a process_work response
// frame: 2-byte preamble, data_type, job_id, 4-byte nonce, chip
// address, small-core id, 1 reserved byte, 4-byte rolled version,
// 1-byte CRC5.
const rxNonceFrameLen = 16

// parseRxNonce decodes an RxNonce (0xA2) response frame into a
// TaskResult, generalizing the teacher's ParseRxNonce to the
// preamble-framed layout spec §4.1 requires of every BM13xx response.
func parseRxNonce(data []byte) (job.TaskResult, bool) {
	if len(data) < rxNonceFrameLen || data[2] != dataTypeRxNonce {
		return job.TaskResult{}, false
	}

	return job.TaskResult{
		JobID:       data[3],
		Nonce:       binary.LittleEndian.Uint32(data[4:8]),
		ChipAddress: data[8],
		SmallCoreID: data[9],
		Version:     binary.BigEndian.Uint32(data[11:15]),
	}, true
}

// buildTxConfigFrame assembles a TxConfig command configuring chain
// length, ASIC count, and initial PLL frequency divider, generalizing
// the teacher's buildTxConfigPacket to a parameterized chain/asic
// count and frequency rather than the teacher's hardcoded S3 values.
func buildTxConfigFrame(chainNum, asicNum uint8, freqDivider uint16) []byte {
	packet := make([]byte, 28)
	packet[0] = tokenTxConfig
	packet[1] = 0x00
	packet[2] = 22
	packet[3] = 0

	packet[4] = 0x1E
	packet[5] = 0x00
	packet[6] = 0x0C
	packet[7] = 0x00
	packet[8] = chainNum
	packet[9] = asicNum
	packet[10] = 0x60
	packet[11] = 0x0C
	binary.LittleEndian.PutUint16(packet[12:14], freqDivider)
	packet[14] = 0x82
	packet[15] = 0x09

	crc := serial.CRC16(packet[:26])
	packet[26] = byte(crc & 0xFF)
	packet[27] = byte(crc >> 8)
	return packet
}

// buildRxStatusFrame assembles the RxStatus query command, used both
// for initial chain probing and post-config verification.
func buildRxStatusFrame() []byte {
	packet := make([]byte, 16)
	packet[0] = tokenRxStatus
	packet[1] = 0x00
	packet[2] = 10
	packet[3] = 0

	crc := serial.CRC16(packet[:14])
	packet[14] = byte(crc & 0xFF)
	packet[15] = byte(crc >> 8)
	return packet
}

// stepFrequency walks the PLL from current toward target in steps no
// larger than maxStepMHz, applying each intermediate value via apply
// and waiting settle between steps, per spec §4.2's "transitions the
// PLL by stepping toward the target" requirement. Returns false (and
// leaves the last successfully applied frequency in place) if apply
// fails partway through.
func stepFrequency(current, target, maxStepMHz float64, settle time.Duration, apply func(freqMHz float64) error) bool {
	if maxStepMHz <= 0 {
		return false
	}

	step := maxStepMHz
	if target < current {
		step = -maxStepMHz
	}

	freq := current
	for {
		remaining := target - freq
		if (step > 0 && remaining <= step) || (step < 0 && remaining >= step) {
			if err := apply(target); err != nil {
				return false
			}
			return true
		}
		freq += step
		if err := apply(freq); err != nil {
			return false
		}
		time.Sleep(settle)
	}
}

func errShortFrame(got, want int) error {
	return fmt.Errorf("asic: short frame: got %d want %d", got, want)
}
