// Package job implements BmJob (C7's unit of work handed to the ASIC
// driver) and the ActiveJobs correlation table, plus the job-builder
// task that turns pool notifications into BmJobs.
package job

import (
	"sync"

	"github.com/axeforge/bitaxe-core/pkg/mining"
)

// MaxMidstates is the most version-rolling midstates a single BmJob
// carries (BM1366/1368/1370 compute four rolled versions per job;
// BM1397 uses only the first).
const MaxMidstates = 4

// BmJob is the work handed to the ASIC driver, precomputed from either
// a Stratum V1 MiningJob or a Stratum V2 Sv2Job.
type BmJob struct {
	JobID        uint32
	NumMidstates int
	Midstate     [MaxMidstates]mining.InternalHash
	MerkleRoot   mining.InternalHash // byte-reversed tail, as handed to the chip
	PrevHash     mining.InternalHash // byte-reversed
	Version      uint32
	NTime        uint32
	NBits        uint32
	Difficulty   float64
	VersionMask  uint32

	// Extranonce2 is the hex-encoded per-attempt nonce rolled for V1
	// jobs; empty for V2 jobs, which roll ntime instead.
	Extranonce2 string

	// PoolJobID is the pool's own job identifier (the V1 mining.notify
	// job_id string, or the V2 job_id rendered as decimal), carried
	// alongside JobID — the small integer JobID is only the chip
	// addressing slot (job_id & 0x7F) and is reassigned on every
	// SendWork; PoolJobID is what the result task submits back.
	PoolJobID string
}

// TaskResult is what process_work parses out of an ASIC response
// frame: chip address, rolled version, found nonce, small-core id,
// and the job id it was working on.
type TaskResult struct {
	ChipAddress uint8
	Version     uint32
	Nonce       uint32
	SmallCoreID uint8
	JobID       uint8
}

// slotCount matches the low-7-bits job-id addressing space
// (job_id & 0x7F).
const slotCount = 128

// slot is one arena entry: a job pointer, a generation number taken
// from a table-wide counter bumped on every Store, and a valid flag
// standing in for the original `valid_jobs` bitmap bit. Lookup tests
// only the valid flag; the generation is recorded but not compared,
// so a lookup returns whichever job currently occupies the slot.
type slot struct {
	job        *BmJob
	generation uint32
	valid      bool
}

// Table is the ActiveJobs table: fixed 128 slots addressed by
// job_id & 0x7F, written by the job builder and read by the result
// task under a single mutex.
type Table struct {
	mu    sync.Mutex
	slots [slotCount]slot
	next  uint32
}

// NewTable builds an empty ActiveJobs table.
func NewTable() *Table {
	return &Table{}
}

// Store places j into its job_id & 0x7F slot, replacing any previous
// occupant, and stamps the slot with a new generation number. A later
// Lookup of that slot returns j, also for an in-flight ASIC result
// that was produced for the job j replaced.
func (t *Table) Store(j *BmJob) {
	idx := j.JobID & (slotCount - 1)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.next++
	t.slots[idx] = slot{job: j, generation: t.next, valid: true}
}

// Lookup returns the job stored at chipJobID & 0x7F, or false if that
// slot is empty (the equivalent of the bitmap's valid_jobs check). It
// does not compare generations: if the slot was overwritten since the
// ASIC received its work, the newer job is returned.
func (t *Table) Lookup(chipJobID uint8) (*BmJob, bool) {
	idx := uint32(chipJobID) & (slotCount - 1)

	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.slots[idx]
	if !s.valid {
		return nil, false
	}
	return s.job, true
}

// Clear empties every slot, so every Lookup misses until the next
// Store into that slot.
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.slots {
		t.slots[i] = slot{}
	}
}
