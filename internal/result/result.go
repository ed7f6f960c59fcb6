// Package result implements the ASIC result task (C8): it drains
// parsed nonces from the driver, validates them against the live job
// table, scores them, and submits shares meeting pool difficulty back
// through whichever pool client is currently active.
package result

import (
	"time"

	"github.com/btcsuite/btclog"

	"github.com/axeforge/bitaxe-core/internal/config"
	"github.com/axeforge/bitaxe-core/internal/job"
	"github.com/axeforge/bitaxe-core/internal/logging"
	"github.com/axeforge/bitaxe-core/pkg/mining"
)

// Driver is the subset of asic.Driver the result task needs, declared
// locally to avoid internal/asic <-> internal/result import cycles
// the same way internal/job.Driver does.
type Driver interface {
	ProcessWork() (job.TaskResult, bool, error)
}

// Share is what the result task hands to whichever pool client is
// active. V1 formats these fields as ASCII hex for mining.submit; V2
// packs them into SubmitSharesStandard's 6×u32 payload (spec §3/§4.6).
type Share struct {
	PoolJobID   string
	Extranonce2 string
	NTime       uint32
	Nonce       uint32
	Version     uint32
}

// Submitter is implemented by the active pool client.
type Submitter interface {
	SubmitShare(s Share) error
}

// Task is the result task's state: the active-jobs table it reads,
// the submitter it reports through, and the best-difficulty/clock-sync
// bookkeeping spec §4.5 describes.
type Task struct {
	driver    Driver
	table     *job.Table
	submitter Submitter
	loggers   *logging.Loggers
	store     config.Store
	clock     ClockSetter

	bestSession float64
	lastSyncAt  time.Time
}

// NewTask builds a result task. store persists the all-time best
// difficulty across restarts (spec §6 NVS key bestDiff); clock may be
// nil to disable the hourly settimeofday sync.
func NewTask(driver Driver, table *job.Table, submitter Submitter, loggers *logging.Loggers, store config.Store, clock ClockSetter) *Task {
	return &Task{driver: driver, table: table, submitter: submitter, loggers: loggers, store: store, clock: clock}
}

// BestSessionDifficulty returns the highest result difficulty seen
// since the process started.
func (t *Task) BestSessionDifficulty() float64 { return t.bestSession }

// BestAllTimeDifficulty returns the persisted best-ever result
// difficulty (spec's bestDiff NVS key), 0 if never set.
func (t *Task) BestAllTimeDifficulty() float64 {
	return float64(t.store.GetU64(config.KeyBestDifficulty, 0))
}

// RunOnce processes exactly one ASIC result, per spec §4.5's five
// numbered steps. Returns false when the driver had nothing ready
// (the caller should loop back around without delay, mirroring
// ASIC_result_task.c's bare `continue`).
func (t *Task) RunOnce() bool {
	res, ok, err := t.driver.ProcessWork()
	if err != nil {
		t.loggers.Message(logging.CategoryMining, btclog.LevelWarn, "result task: process_work: %v", err)
		return false
	}
	if !ok {
		return false
	}

	activeJob, found := t.table.Lookup(res.JobID)
	if !found {
		t.loggers.Message(logging.CategoryMining, btclog.LevelWarn, "invalid job nonce found, 0x%02X", res.JobID)
		return true
	}

	diff := testNonceValue(activeJob, res.Nonce, res.Version)
	t.loggers.Message(logging.CategoryMining, btclog.LevelInfo,
		"ID: %s, ver: %08X nonce %08X diff %.1f of %.1f.", activeJob.PoolJobID, res.Version, res.Nonce, diff, activeJob.Difficulty)

	t.trackBest(diff, activeJob)
	t.maybeSyncClock(activeJob.NTime)

	if diff < activeJob.Difficulty {
		return true
	}

	share := Share{
		PoolJobID:   activeJob.PoolJobID,
		Extranonce2: activeJob.Extranonce2,
		NTime:       activeJob.NTime,
		Nonce:       res.Nonce,
		Version:     res.Version ^ activeJob.Version,
	}
	if err := t.submitter.SubmitShare(share); err != nil {
		t.loggers.Message(logging.CategoryMining, btclog.LevelWarn, "submit share: %v", err)
	}
	return true
}

// Run calls RunOnce forever until stop is closed.
func (t *Task) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		t.RunOnce()
	}
}

// trackBest updates the session-best and persisted all-time-best
// result difficulty, and flags a block solution when the result
// difficulty reaches the network difficulty implied by the job's
// nBits (spec §4.5 step 3).
func (t *Task) trackBest(diff float64, activeJob *job.BmJob) {
	if diff > t.bestSession {
		t.bestSession = diff
	}

	networkDiff := mining.NetworkDifficulty(activeJob.NBits)
	if networkDiff > 0 && diff >= networkDiff {
		t.loggers.Message(logging.CategoryMining, btclog.LevelInfo, "FOUND BLOCK!!! %.1f >= %.1f", diff, networkDiff)
	}

	best := t.BestAllTimeDifficulty()
	if diff <= best {
		return
	}
	if err := t.store.SetU64(config.KeyBestDifficulty, uint64(diff)); err != nil {
		t.loggers.Message(logging.CategoryMining, btclog.LevelWarn, "persist best difficulty: %v", err)
	}
}

// testNonceValue rebuilds the 80-byte block header around the job's
// stored prev-hash/merkle-root, the chip-reported rolled version and
// nonce, double-SHA-256s it, and converts the digest to a difficulty
// value, per spec §4.5 step 2.
func testNonceValue(j *job.BmJob, nonce, rolledVersion uint32) float64 {
	header := rebuildHeader(j, rolledVersion, nonce)
	return mining.Difficulty(mining.DoubleSHA256(header))
}
