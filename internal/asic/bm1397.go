package asic

import (
	"fmt"
	"time"

	"github.com/btcsuite/btclog"

	"github.com/axeforge/bitaxe-core/internal/asic/serial"
	"github.com/axeforge/bitaxe-core/internal/job"
	"github.com/axeforge/bitaxe-core/internal/logging"
)

const (
	bm1397ChipID  = 0x1397
	bm1397MaxBaud = 3_000_000

	// bm1397CoreCount and bm1397NonceSpaceLog parameterize the
	// expected-job-interval computation: a 32-bit nonce space swept
	// across bm1397CoreCount small cores at freqMHz cycles/s.
	bm1397CoreCount     = 672
	bm1397NonceSpaceLog = 32
)

// BM1397Driver drives a BM1397 chain (the original Bitaxe/Max
// generation). It has no hardware version-rolling support and no PLL
// frequency stepper — per spec §4.2/§9, SetFrequency always returns
// false and is logged once.
type BM1397Driver struct {
	common
	freqMHz        float64
	workID         uint8
	loggedNoStepper bool
}

func NewBM1397Driver(port serial.Port, loggers *logging.Loggers, activeJobs *job.Table) *BM1397Driver {
	return &BM1397Driver{common: newCommon(port, loggers, activeJobs)}
}

func (d *BM1397Driver) Init(freqMHz float64, asicCount int, difficulty uint32) (int, error) {
	d.chainLen = asicCount
	d.chipAddrs = make([]uint8, 0, asicCount)
	for i := 0; i < asicCount; i++ {
		d.chipAddrs = append(d.chipAddrs, uint8(i*2))
	}

	if err := d.port.Send(buildTxConfigFrame(uint8(asicCount), uint8(asicCount), uint16(freqMHz))); err != nil {
		return 0, fmt.Errorf("bm1397: send txconfig: %w", err)
	}
	time.Sleep(1 * time.Second)

	if err := d.port.Send(buildRxStatusFrame()); err != nil {
		return 0, fmt.Errorf("bm1397: send rxstatus: %w", err)
	}

	chips := serial.CountChips(d.port, 11, bm1397ChipID, logging.CategoryASIC, d.loggers)
	if chips != asicCount {
		d.loggers.Message(logging.CategoryASIC, btclog.LevelWarn,
			"bm1397: %d chip(s) detected on chain, expected %d", chips, asicCount)
	}

	d.freqMHz = freqMHz
	return chips, nil
}

func (d *BM1397Driver) SetMaxBaud() int {
	d.baud = bm1397MaxBaud
	return d.baud
}

func (d *BM1397Driver) SendWork(j *job.BmJob) error {
	j.JobID = uint32(d.workID)
	frame := buildTxTaskFrame(j, d.workID)
	d.activeJobs.Store(j)
	d.workID++
	if d.workID > 0x7F {
		d.workID = 0
	}
	if err := d.port.Send(frame); err != nil {
		return fmt.Errorf("bm1397: send work: %w", err)
	}
	return nil
}

func (d *BM1397Driver) ProcessWork() (job.TaskResult, bool, error) {
	buf := make([]byte, rxNonceFrameLen)
	if err := serial.ReceiveWork(d.port, buf, func(format string, args ...interface{}) {
		d.loggers.Message(logging.CategoryASIC, btclog.LevelDebug, format, args...)
	}); err != nil {
		return job.TaskResult{}, false, nil
	}
	result, ok := parseRxNonce(buf)
	return result, ok, nil
}

// SetVersionMask is a no-op: BM1397 has no hardware version-rolling
// support.
func (d *BM1397Driver) SetVersionMask(mask uint32) {}

// SetFrequency always returns false and logs once: BM1397 has no PLL
// stepper implementation, per spec §4.2/§9.
func (d *BM1397Driver) SetFrequency(targetMHz float64) bool {
	if !d.loggedNoStepper {
		d.loggers.Message(logging.CategoryASIC, btclog.LevelWarn,
			"bm1397: frequency transition requested but no stepper is implemented for this family")
		d.loggedNoStepper = true
	}
	return false
}

// ExpectedJobInterval estimates how long this chain takes to sweep
// its nonce space at the current frequency and core count, per spec
// §4.4's "BM1397 computed from nonce space, frequency, core count".
func (d *BM1397Driver) ExpectedJobInterval(asicCount int) time.Duration {
	if d.freqMHz <= 0 || asicCount <= 0 {
		return 2 * time.Second
	}
	cyclesPerSecond := d.freqMHz * 1e6
	totalCores := float64(bm1397CoreCount * asicCount)
	nonceSpace := float64(uint64(1) << bm1397NonceSpaceLog)
	noncesPerCore := nonceSpace / totalCores
	seconds := noncesPerCore / cyclesPerSecond
	interval := time.Duration(seconds * float64(time.Second))
	if interval <= 0 {
		return 2 * time.Second
	}
	return interval
}
