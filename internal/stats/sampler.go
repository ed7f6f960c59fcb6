package stats

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/axeforge/bitaxe-core/internal/config"
)

const pollPeriod = 5 * time.Second

// HashrateSource is the blended-average reading the sampler records
// (spec §4.10's "hashrate" field); internal/hashrate.Monitor satisfies
// this via its CurrentGHs method.
type HashrateSource interface {
	CurrentGHs() float64
}

// PowerSource is the power/thermal controller's current-readings
// record; internal/world adapts the power controller's state to it.
type PowerSource interface {
	Snapshot() PowerSnapshot
}

// PowerSnapshot mirrors the subset of internal/power.State the
// sampler needs, kept as its own type so this package does not import
// internal/power just to read eight fields.
type PowerSnapshot struct {
	ChipTempAvgC  float64
	VRTempC       float64
	PowerW        float64
	RailVoltageMV int32
	RailCurrentMA int32
	CoreVoltageMV uint16
	FanPercent    float64
	FanRPM        uint32
}

// WifiRSSISource optionally reports current Wi-Fi signal strength;
// when absent the sampler records -90 dBm, matching
// statistics_task.c's wifiRSSI default before a failed RSSI read.
type WifiRSSISource interface {
	CurrentRSSI() (int8, error)
}

const defaultRSSI = -90

// Sampler is the 5-second statistics task (spec §4.10, §5's priority-3
// "Statistics sampler" task).
type Sampler struct {
	ring     *Ring
	store    config.Store
	hashrate HashrateSource
	power    PowerSource
	wifi     WifiRSSISource

	lastSampleUs int64
}

// NewSampler wires a sampler. wifi may be nil on boards/builds with no
// Wi-Fi telemetry.
func NewSampler(ring *Ring, store config.Store, hashrate HashrateSource, power PowerSource, wifi WifiRSSISource) *Sampler {
	return &Sampler{ring: ring, store: store, hashrate: hashrate, power: power, wifi: wifi}
}

// Run drives the sampler until ctx is cancelled. Each tick re-reads
// the configured sampling frequency: zero destroys the ring (spec:
// "de-allocation when sampling period is set to zero") and skips
// sampling; a non-zero value gates whether enough time has elapsed
// since the last recorded sample, matching statistics_task.c's
// half-poll-period early-fire tolerance.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(pollPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(time.Now())
		}
	}
}

func (s *Sampler) tick(now time.Time) {
	freqSecs := s.store.GetU16(config.KeyStatsSampleSecs, 0)
	if freqSecs == 0 {
		s.ring.Destroy()
		return
	}

	freqUs := int64(freqSecs) * 1_000_000
	nowUs := now.UnixMicro()
	waitingUntil := s.lastSampleUs + freqUs - int64(pollPeriod/2/time.Microsecond)
	if nowUs <= waitingUntil {
		return
	}

	rec := Record{TimestampUs: nowUs}
	if s.hashrate != nil {
		rec.HashrateGHs = s.hashrate.CurrentGHs()
	}
	if s.power != nil {
		p := s.power.Snapshot()
		rec.ChipTempC = p.ChipTempAvgC
		rec.VRTempC = p.VRTempC
		rec.PowerW = p.PowerW
		rec.VoltageMV = float64(p.RailVoltageMV)
		rec.CurrentMA = float64(p.RailCurrentMA)
		rec.CoreVoltageActualMV = float64(p.CoreVoltageMV)
		rec.FanPercent = p.FanPercent
		rec.FanRPM = float64(p.FanRPM)
	}
	rec.WifiRSSI = defaultRSSI
	if s.wifi != nil {
		if rssi, err := s.wifi.CurrentRSSI(); err == nil {
			rec.WifiRSSI = float64(rssi)
		}
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		rec.FreeHeapBytes = float64(vm.Free)
	}

	s.ring.AddSample(rec)
	s.lastSampleUs = nowUs
}
