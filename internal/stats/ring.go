// Package stats implements the statistics ring buffer (spec §4.10,
// C11): a fixed-720-record circular buffer of timestamped telemetry
// samples for external consumers (web API, display). Ported from
// original_source/main/tasks/statistics_task.c's linked-node ring,
// reimplemented as arena indices per spec §9's redesign note — the
// original's pointer-chasing ring is unsafe to express directly in Go
// without unsafe.Pointer, but the arena-index form preserves the same
// externally observable behavior, including the one-writer/many-reader
// race the original explicitly tolerates (see Read).
package stats

import "sync"

// Capacity is the ring's fixed record count (~1h at a 5s sample rate).
const Capacity = 720

// Record is one sample (spec §3's StatisticsRing record: "timestamp
// (us), hashrate, chip temperature, VR temperature, power, voltage,
// current, measured core voltage, fan %, fan RPM, Wi-Fi RSSI,
// free-heap bytes").
type Record struct {
	TimestampUs         int64
	HashrateGHs         float64
	ChipTempC           float64
	VRTempC             float64
	PowerW              float64
	VoltageMV           float64
	CurrentMA           float64
	CoreVoltageActualMV float64
	FanPercent          float64
	FanRPM              float64
	WifiRSSI            float64
	FreeHeapBytes       float64
}

// Ring is the fixed-capacity circular buffer. Build one with NewRing
// (the zero value reports Start() == 0, not -1, while empty); the backing array is allocated lazily on the first AddSample
// call (spec §4.10: "Lazy allocation on first sample") and freed by
// Destroy (spec: "de-allocation when sampling period is set to zero").
type Ring struct {
	mu    sync.Mutex
	buf   []Record
	start int // index of oldest record, -1 if empty
	end   int // index of newest record, -1 if no buffer allocated
}

// NewRing returns an empty, unallocated ring.
func NewRing() *Ring {
	return &Ring{start: -1, end: -1}
}

// AddSample writes rec at end, advances end (wrapping), and advances
// start to follow it once the ring is full — mirroring addStatisticData's
// "end = end->next; if (start == end) start = start->next" sequence,
// including writing the new data into the same slot start is vacating.
func (r *Ring) AddSample(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.buf == nil {
		r.buf = make([]Record, Capacity)
		r.start = -1
		r.end = Capacity - 1
	}

	r.end = (r.end + 1) % Capacity
	switch {
	case r.start == r.end:
		r.start = (r.start + 1) % Capacity
	case r.start == -1:
		r.start = r.end
	}
	r.buf[r.end] = rec
}

// Read copies the record at node and reports the next node to walk
// to, mirroring statisticData: next is the empty/"no next" state
// (ok=false on the second return) exactly when node == end, even
// though a concurrent AddSample between two Read calls may have moved
// end further along the ring. Preserve this: per spec §9's explicit
// design note, a caller that keeps walking a stale node during
// concurrent writes may observe shifted data, and the original
// accepts that trade-off rather than synchronizing a whole walk.
func (r *Ring) Read(node int) (rec Record, next int, hasNext bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.buf == nil || node < 0 || node >= Capacity {
		return Record{}, -1, false
	}
	rec = r.buf[node]
	if node == r.end {
		return rec, -1, false
	}
	return rec, (node + 1) % Capacity, true
}

// Start returns the current oldest-record index, or -1 if the ring is
// empty. Consumers walk from here via Read, tolerating hasNext=false
// to mean the walk has caught up to the writer.
func (r *Ring) Start() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.start
}

// Destroy frees the backing array. The next AddSample reallocates it
// from scratch, matching removeStatisticsBuffer/createStatisticsBuffer's
// paired lifecycle around the sampling-frequency-zero case.
func (r *Ring) Destroy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = nil
	r.start = -1
	r.end = -1
}
