// Package hashrate implements the hashrate monitor task (C9): a 5 s
// ASIC register poll that turns raw counter/instantaneous readings
// into a sanity-checked GH/s figure per chip, then blends those into
// smoothly-transitioning 1m/10m/1h rolling averages (spec §4.8).
package hashrate

import (
	"math"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
)

const (
	// PollPeriod is the fixed register-read interval (spec §4.8).
	PollPeriod = 5 * time.Second
	// Warmup is how long the monitor waits after start before polling
	// (spec §4.8).
	Warmup = 4 * time.Second

	minSaneGHs = 0.001
	maxSaneGHs = 3000

	longWindowBit = 1 << 31
	instantScale  = 1 << 24
)

// domain is the per-ASIC per-chip measurement state spec §4.8
// describes: first-read flag, last counter value/timestamp, and the
// last accepted hashrate.
type domain struct {
	firstReadDone   bool
	lastCounter     uint32
	lastTimestampUs int64
	lastGHs         float64
}

// Monitor is the hashrate monitor (C9). It is safe for concurrent use;
// the poll loop (one goroutine) calls UpdateInstantaneous/UpdateCounter
// and Sample, while any number of readers call Snapshot.
type Monitor struct {
	mu      sync.Mutex
	domains []domain

	oneMin  *rollingAverage
	tenMin  *rollingAverage
	oneHour *rollingAverage

	started time.Time
}

// NewMonitor builds a Monitor for a chain of asicCount chips.
func NewMonitor(asicCount int) *Monitor {
	return &Monitor{
		domains: make([]domain, asicCount),
		oneMin:  newRollingAverage(12, PollPeriod.Seconds()),
		tenMin:  newRollingAverage(10, 60),
		oneHour: newRollingAverage(6, 600),
		started: time.Now(),
	}
}

// Ready reports whether the warm-up period has elapsed.
func (m *Monitor) Ready() bool {
	return time.Since(m.started) >= Warmup
}

// UpdateInstantaneous applies the instantaneous-register path (spec
// §4.8): bit 31 is a long-window flag, the low 31 bits scaled by 2²⁴
// give hashes/sec. Values outside the sane GH/s range are rejected and
// the previously accepted value is returned unchanged.
func (m *Monitor) UpdateInstantaneous(asicIndex int, raw uint32) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := &m.domains[asicIndex]

	hashesPerSec := float64(raw&^uint32(longWindowBit)) * instantScale
	ghs := hashesPerSec / 1e9
	if ghs < minSaneGHs || ghs > maxSaneGHs {
		return d.lastGHs
	}
	d.lastGHs = ghs
	d.firstReadDone = true
	return ghs
}

// UpdateCounter applies the counter-register path (spec §4.8): the
// first read only seeds lastCounter/lastTimestampUs; subsequent reads
// compute delta_counter*2³²/delta_us, treating the 32-bit counter as
// wrapping mod 2³². The same sanity range applies.
func (m *Monitor) UpdateCounter(asicIndex int, raw uint32, timestampUs int64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := &m.domains[asicIndex]

	if !d.firstReadDone {
		d.lastCounter = raw
		d.lastTimestampUs = timestampUs
		d.firstReadDone = true
		return d.lastGHs
	}

	deltaCounter := raw - d.lastCounter // uint32 subtraction wraps mod 2^32
	deltaUs := timestampUs - d.lastTimestampUs
	d.lastCounter = raw
	d.lastTimestampUs = timestampUs
	if deltaUs <= 0 {
		return d.lastGHs
	}

	hashesPerSec := float64(deltaCounter) * 4294967296 / float64(deltaUs)
	ghs := hashesPerSec / 1e9
	if ghs < minSaneGHs || ghs > maxSaneGHs {
		return d.lastGHs
	}
	d.lastGHs = ghs
	return ghs
}

// Sample folds the chain's current total hashrate into the rolling
// averages; the caller invokes this once per PollPeriod tick. dt is
// the wall-clock time since the previous Sample call.
func (m *Monitor) Sample(dt time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total float64
	for _, d := range m.domains {
		total += d.lastGHs
	}
	seconds := dt.Seconds()
	m.oneMin.Add(total, seconds)
	m.tenMin.Add(total, seconds)
	m.oneHour.Add(total, seconds)
}

// Snapshot is the published rolling-average view (spec §4.8's
// hashrate_1m/10m/1h).
type Snapshot struct {
	Hashrate1m  float64
	Hashrate10m float64
	Hashrate1h  float64
	FreeHeap    uint64 // bench-host proxy via gopsutil when no real ESP32 telemetry is wired
}

// Snapshot returns the current blended averages plus the bench-host
// free-heap proxy (spec §6's "free-heap bytes" statistics field).
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	s := Snapshot{
		Hashrate1m:  nanToZero(m.oneMin.Blended()),
		Hashrate10m: nanToZero(m.tenMin.Blended()),
		Hashrate1h:  nanToZero(m.oneHour.Blended()),
	}
	m.mu.Unlock()

	if vm, err := mem.VirtualMemory(); err == nil {
		s.FreeHeap = vm.Free
	}
	return s
}

// CurrentGHs is the "current effective hashrate" spec §1 says the
// monitor exposes back to the control loop (here: the power/thermal
// controller's autotune step) — the 1-minute blended average, which
// reacts quickly enough to follow a just-applied frequency/voltage
// change without the jitter of an unblended instantaneous reading.
func (m *Monitor) CurrentGHs() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return nanToZero(m.oneMin.Blended())
}

func nanToZero(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}
