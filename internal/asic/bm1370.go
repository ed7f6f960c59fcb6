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
	bm1370ChipID          = 0x1370
	bm1370MaxBaud         = 12_500_000
	bm1370MaxFreqStepMHz  = 6.25
	bm1370PLLSettleTime   = 1 * time.Millisecond
	bm1370ExpectedJobTime = 500 * time.Millisecond
)

// BM1370Driver drives a BM1370 chain (the Bitaxe Gamma'/latest
// generation), the fastest-cycling family and so the one with the
// tightest job-builder dequeue budget.
type BM1370Driver struct {
	common
	freqMHz     float64
	versionMask uint32
	workID      uint8
}

func NewBM1370Driver(port serial.Port, loggers *logging.Loggers, activeJobs *job.Table) *BM1370Driver {
	return &BM1370Driver{common: newCommon(port, loggers, activeJobs)}
}

func (d *BM1370Driver) Init(freqMHz float64, asicCount int, difficulty uint32) (int, error) {
	d.chainLen = asicCount
	d.chipAddrs = make([]uint8, 0, asicCount)
	for i := 0; i < asicCount; i++ {
		d.chipAddrs = append(d.chipAddrs, uint8(i*2))
	}

	if err := d.port.Send(buildTxConfigFrame(uint8(asicCount), uint8(asicCount), uint16(freqMHz))); err != nil {
		return 0, fmt.Errorf("bm1370: send txconfig: %w", err)
	}
	time.Sleep(1 * time.Second)

	if err := d.port.Send(buildRxStatusFrame()); err != nil {
		return 0, fmt.Errorf("bm1370: send rxstatus: %w", err)
	}

	chips := serial.CountChips(d.port, 11, bm1370ChipID, logging.CategoryASIC, d.loggers)
	if chips != asicCount {
		d.loggers.Message(logging.CategoryASIC, btclog.LevelWarn,
			"bm1370: %d chip(s) detected on chain, expected %d", chips, asicCount)
	}

	d.freqMHz = freqMHz
	return chips, nil
}

func (d *BM1370Driver) SetMaxBaud() int {
	d.baud = bm1370MaxBaud
	return d.baud
}

func (d *BM1370Driver) SendWork(j *job.BmJob) error {
	j.JobID = uint32(d.workID)
	frame := buildTxTaskFrame(j, d.workID)
	d.activeJobs.Store(j)
	d.workID++
	if d.workID > 0x7F {
		d.workID = 0
	}
	if err := d.port.Send(frame); err != nil {
		return fmt.Errorf("bm1370: send work: %w", err)
	}
	return nil
}

func (d *BM1370Driver) ProcessWork() (job.TaskResult, bool, error) {
	buf := make([]byte, rxNonceFrameLen)
	if err := serial.ReceiveWork(d.port, buf, func(format string, args ...interface{}) {
		d.loggers.Message(logging.CategoryASIC, btclog.LevelDebug, format, args...)
	}); err != nil {
		return job.TaskResult{}, false, nil
	}
	result, ok := parseRxNonce(buf)
	return result, ok, nil
}

func (d *BM1370Driver) SetVersionMask(mask uint32) {
	d.versionMask = mask
}

func (d *BM1370Driver) SetFrequency(targetMHz float64) bool {
	ok := stepFrequency(d.freqMHz, targetMHz, bm1370MaxFreqStepMHz, bm1370PLLSettleTime, func(freq float64) error {
		return d.port.Send(buildTxConfigFrame(uint8(d.chainLen), uint8(d.chainLen), uint16(freq)))
	})
	if ok {
		d.freqMHz = targetMHz
	}
	return ok
}

func (d *BM1370Driver) ExpectedJobInterval(asicCount int) time.Duration {
	return bm1370ExpectedJobTime
}
