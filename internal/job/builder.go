package job

import (
	"context"
	"sync"
	"time"

	"github.com/btcsuite/btclog"

	"github.com/axeforge/bitaxe-core/internal/logging"
	"github.com/axeforge/bitaxe-core/internal/queue"
)

// Driver is the subset of asic.Driver the builder needs. Declared
// locally (rather than imported) because internal/asic already
// imports internal/job for BmJob/TaskResult/Table — this interface is
// satisfied structurally, no import cycle required.
type Driver interface {
	SendWork(j *BmJob) error
	SetVersionMask(mask uint32)
	ExpectedJobInterval(asicCount int) time.Duration
}

// Builder is the job-builder task (C7): it drains pool notifications
// from a work queue, turns each into a BmJob, and hands it to the
// ASIC driver, rolling extranonce_2 (V1) or ntime (V2) on every
// repeat send against an unchanged notification until a fresh one
// arrives or clean_jobs forces a reset, per spec §4.4.
type Builder struct {
	driver    Driver
	asicCount int
	loggers   *logging.Loggers

	mu          sync.Mutex // guards difficulty/versionMask
	difficulty  float64
	versionMask uint32
}

// NewBuilder constructs a job builder over driver, sized for asicCount
// chips (used to compute the per-send timeout from the driver's
// ExpectedJobInterval).
func NewBuilder(driver Driver, asicCount int, loggers *logging.Loggers) *Builder {
	return &Builder{driver: driver, asicCount: asicCount, loggers: loggers}
}

// SetDifficulty updates the pool difficulty jobs are built against,
// taking effect on the next job sent (spec's set_difficulty message
// arrives independently of mining.notify).
func (b *Builder) SetDifficulty(d float64) {
	b.mu.Lock()
	b.difficulty = d
	b.mu.Unlock()
}

// SetVersionMask updates the version-rolling mask new jobs are built
// with and pushes it down to the ASIC driver.
func (b *Builder) SetVersionMask(mask uint32) {
	b.mu.Lock()
	b.versionMask = mask
	b.mu.Unlock()
	b.driver.SetVersionMask(mask)
}

func (b *Builder) snapshot() (difficulty float64, versionMask uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.difficulty, b.versionMask
}

// Run drains notifications from queue until ctx is canceled. A fresh
// clean notification is built and sent at once; a fresh non-clean one
// is adopted without sending. Each time the driver's expected job
// interval elapses with no new notification, one more BmJob is built
// and sent against the held notification (rolling extranonce_2/ntime),
// matching original_source/main/tasks/create_jobs_task.c's loop shape.
func (b *Builder) Run(ctx context.Context, notifications *queue.Queue[any]) {
	var current any
	var extranonce2 *Extranonce2Counter
	var ntimeOffset uint32
	timeout := b.driver.ExpectedJobInterval(b.asicCount)

	for {
		if ctx.Err() != nil {
			return
		}

		// Bounded by timeout, so ctx cancellation is observed again at
		// the top of the loop within one job interval; no need to race
		// this against ctx.Done() in a separate goroutine.
		next, ok := notifications.DequeueTimeout(timeout)
		if ok {
			current = next
			// create_jobs_task.c resets extranonce_2/sv2_ntime_offset on
			// every freshly dequeued notification, before checking
			// clean_jobs — not only on a clean one.
			extranonce2 = nil
			ntimeOffset = 0
			if !isClean(next) {
				// clean_jobs=false: adopt the notification but don't send
				// yet, matching create_jobs_task.c's "continue" on a
				// non-clean update.
				continue
			}
		} else if current == nil {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		difficulty, versionMask := b.snapshot()

		j, err := b.buildAndSend(current, difficulty, versionMask, &extranonce2, &ntimeOffset)
		if err != nil {
			b.loggers.Message(logging.CategoryMining, btclog.LevelError, "job builder: %v", err)
		} else if j != nil {
			b.loggers.Message(logging.CategoryMining, btclog.LevelDebug,
				"sent job %s (extranonce2=%s ntime=%d)", j.PoolJobID, j.Extranonce2, j.NTime)
		}

		timeout = b.driver.ExpectedJobInterval(b.asicCount)
	}
}

func (b *Builder) buildAndSend(current any, difficulty float64, versionMask uint32, extranonce2 **Extranonce2Counter, ntimeOffset *uint32) (*BmJob, error) {
	switch n := current.(type) {
	case *V1Notification:
		notif := *n
		notif.PoolDifficulty = difficulty
		if *extranonce2 == nil {
			*extranonce2 = NewExtranonce2Counter(notif.Extranonce2Size * 2)
		}
		j, err := BuildV1Job(&notif, (*extranonce2).Next(), versionMask)
		if err != nil {
			return nil, err
		}
		return j, b.driver.SendWork(j)

	case *V2Notification:
		notif := *n
		notif.PoolDifficulty = difficulty
		j, err := BuildV2Job(&notif, *ntimeOffset, versionMask)
		if err != nil {
			return nil, err
		}
		*ntimeOffset = *ntimeOffset + 1
		return j, b.driver.SendWork(j)

	default:
		return nil, nil
	}
}

func isClean(n any) bool {
	switch v := n.(type) {
	case *V1Notification:
		return v.CleanJobs
	case *V2Notification:
		return v.CleanJobs
	default:
		return true
	}
}
