// Package asic implements the polymorphic driver family (C3) for the
// four Bitmain-style SHA-256 chip variants: BM1397, BM1366, BM1368,
// BM1370. Each shares the same operational contract — init, baud
// negotiation, work send/receive, version-mask programming, and
// staged PLL frequency transitions — generalized from the teacher's
// controller.go job-frame construction and the shared bit-serial
// framing in internal/asic/serial.
package asic

import (
	"time"

	"github.com/axeforge/bitaxe-core/internal/asic/serial"
	"github.com/axeforge/bitaxe-core/internal/job"
	"github.com/axeforge/bitaxe-core/internal/logging"
)

// Driver is the operational contract every chip family implements.
type Driver interface {
	// Init computes sequential per-chip addresses locally, sends the
	// chain a TxConfig frame (chain length, ASIC count, initial
	// frequency) and an RxStatus query, and counts the chips that
	// answer with a CHIP_ID frame. Returns the number of chips that
	// answered. No address-assignment, baud, tick-register or
	// difficulty-mask frames are sent; difficulty is not used.
	Init(freqMHz float64, asicCount int, difficulty uint32) (chipsDetected int, err error)

	// SetMaxBaud records and returns this family's maximum supported
	// host-side baud. It sends nothing to the chain; the chain's UART
	// divider is not reprogrammed.
	SetMaxBaud() int

	// SendWork writes a job frame to the chain and stores j in
	// activeJobs indexed by job_id & 0x7F.
	SendWork(j *job.BmJob) error

	// ProcessWork reads one result frame, or returns ok=false if
	// nothing was ready (timeout, not an error).
	ProcessWork() (result job.TaskResult, ok bool, err error)

	// SetVersionMask records the version-rolling mask in the driver;
	// no frame is sent to the chain. A no-op for BM1397.
	SetVersionMask(mask uint32)

	// SetFrequency steps the PLL toward targetMHz, returning false if
	// the family has no frequency stepper (BM1397) or the transition
	// could not be completed.
	SetFrequency(targetMHz float64) bool

	// ExpectedJobInterval is this family's per-job ASIC service time,
	// used by the job builder to size its dequeue timeout (spec
	// §4.4: "BM1366 ~= 2000ms, BM1370 ~= 500ms").
	ExpectedJobInterval(asicCount int) time.Duration
}

// common holds the fields shared by every family implementation: the
// transport, the chain's logger, its chip count, and the ActiveJobs
// table it stores sent work into.
type common struct {
	port       serial.Port
	loggers    *logging.Loggers
	chainLen   int
	chipAddrs  []uint8
	activeJobs *job.Table
	baud       int
}

func newCommon(port serial.Port, loggers *logging.Loggers, activeJobs *job.Table) common {
	return common{port: port, loggers: loggers, activeJobs: activeJobs}
}
