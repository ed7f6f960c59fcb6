// Package world assembles every component into one daemon-lifetime
// struct, replacing the original firmware's GlobalState singleton
// (spec §9's "thread-global singletons" redesign note) with a value
// constructed once at startup and threaded by reference into every
// goroutine, instead of package-level singletons.
package world

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btclog"

	"github.com/axeforge/bitaxe-core/internal/asic"
	"github.com/axeforge/bitaxe-core/internal/asic/serial"
	"github.com/axeforge/bitaxe-core/internal/config"
	"github.com/axeforge/bitaxe-core/internal/hashrate"
	"github.com/axeforge/bitaxe-core/internal/job"
	"github.com/axeforge/bitaxe-core/internal/logging"
	"github.com/axeforge/bitaxe-core/internal/power"
	"github.com/axeforge/bitaxe-core/internal/power/autotune"
	"github.com/axeforge/bitaxe-core/internal/queue"
	"github.com/axeforge/bitaxe-core/internal/result"
	"github.com/axeforge/bitaxe-core/internal/stats"
	v1 "github.com/axeforge/bitaxe-core/internal/stratum/v1"
	v2 "github.com/axeforge/bitaxe-core/internal/stratum/v2"
)

// ChipFamily selects which asic.Driver implementation a board uses.
type ChipFamily int

const (
	ChipBM1397 ChipFamily = iota
	ChipBM1366
	ChipBM1368
	ChipBM1370
)

// StratumVersion selects the pool protocol wire.
type StratumVersion int

const (
	StratumV1 StratumVersion = iota
	StratumV2
)

// BoardConfig is a board's static hardware identity — the things
// fixed by which PCB and chip family is soldered down, as opposed to
// the tunable values in config.Store. Mirrors the original's
// compile-time device_config.h table.
type BoardConfig struct {
	Chip        ChipFamily
	DeviceModel autotune.DeviceModel
	AsicCount   int
	Stratum     StratumVersion

	MinFreqMHz, MaxFreqMHz     uint16
	MinVoltageMV, MaxVoltageMV uint16
	MaxPowerW                  float64
}

func (b BoardConfig) smallCoreCount() int {
	switch b.Chip {
	case ChipBM1366:
		return power.SmallCoreCountBM1366
	case ChipBM1368:
		return power.SmallCoreCountBM1368
	case ChipBM1370:
		return power.SmallCoreCountBM1370
	default:
		return power.SmallCoreCountBM1397
	}
}

// World holds every long-lived component and the queues/tables they
// share, the Go equivalent of spec §0's World struct.
type World struct {
	Config config.Store
	Log    *logging.Loggers

	Serial     serial.Port
	Driver     asic.Driver
	ActiveJobs *job.Table
	StratumQ   *queue.Queue[any]

	Builder *job.Builder
	PoolV1  *v1.Client
	PoolV2  *v2.Client
	Result  *result.Task

	Power    *power.Controller
	Hashrate *hashrate.Monitor
	Stats    *stats.Ring
	Sampler  *stats.Sampler

	board  BoardConfig
	stopCh chan struct{}
}

// Collaborators bundles the hardware/OS seams New needs beyond the
// static board identity and runtime config, so tests and bench
// builds can substitute fakes without New growing an ever-longer
// parameter list.
type Collaborators struct {
	Rail     power.RailSensor
	Thermal  power.ThermalSensor
	Fan      power.FanController
	PMIC     power.PMIC
	AsicRail power.AsicRail
	Reboot   v1.RebootFunc

	PrimaryPool  v1.PoolConfig
	FallbackPool v1.PoolConfig
	PrimaryV2    v2.PoolConfig
}

// New wires every component against an already-open serial port,
// without starting any goroutines (see Run).
func New(board BoardConfig, port serial.Port, store config.Store, loggers *logging.Loggers, collab Collaborators) (*World, error) {
	w := &World{
		Config:     store,
		Log:        loggers,
		Serial:     port,
		ActiveJobs: job.NewTable(),
		board:      board,
		stopCh:     make(chan struct{}),
	}

	switch board.Chip {
	case ChipBM1366:
		w.Driver = asic.NewBM1366Driver(port, loggers, w.ActiveJobs)
	case ChipBM1368:
		w.Driver = asic.NewBM1368Driver(port, loggers, w.ActiveJobs)
	case ChipBM1370:
		w.Driver = asic.NewBM1370Driver(port, loggers, w.ActiveJobs)
	default:
		w.Driver = asic.NewBM1397Driver(port, loggers, w.ActiveJobs)
	}

	w.StratumQ = queue.New[any](12, nil)
	w.Builder = job.NewBuilder(w.Driver, board.AsicCount, loggers)

	switch board.Stratum {
	case StratumV2:
		w.PoolV2 = v2.NewClient(collab.PrimaryV2, collab.FallbackPool, func(fallbackPool v1.PoolConfig, notifications *queue.Queue[any]) {
			loggers.Message(logging.CategoryNetwork, btclog.LevelWarn, "sv2 pool exhausted retries, falling back to sv1 against %s", fallbackPool.URL)
			w.PoolV1 = v1.NewClient(fallbackPool, v1.PoolConfig{}, notifications, w.Builder, loggers, collab.Reboot)
			w.PoolV1.Run(w.stopCh)
		}, w.StratumQ, w.Builder, loggers)
	default:
		w.PoolV1 = v1.NewClient(collab.PrimaryPool, collab.FallbackPool, w.StratumQ, w.Builder, loggers, collab.Reboot)
	}

	w.Result = result.NewTask(w.Driver, w.ActiveJobs, w.submitter(), loggers, store, nil)

	w.Hashrate = hashrate.NewMonitor(board.AsicCount)

	pw := power.NewController(power.Config{
		AsicCount:      board.AsicCount,
		SmallCoreCount: board.smallCoreCount(),
		DeviceModel:    board.DeviceModel,
		Limits: power.Limits{
			MinFreqMHz: board.MinFreqMHz, MaxFreqMHz: board.MaxFreqMHz,
			MinVoltageMV: board.MinVoltageMV, MaxVoltageMV: board.MaxVoltageMV,
			MaxPowerW: board.MaxPowerW,
		},
	}, store, loggers, collab.Rail, collab.Thermal, collab.Fan, collab.PMIC, collab.AsicRail, w.Driver, w.Hashrate)
	w.Power = pw

	w.Stats = stats.NewRing()
	w.Sampler = stats.NewSampler(w.Stats, store, w.Hashrate, statsPowerSource{pw}, nil)

	return w, nil
}

// PowerState, HashrateSnapshot, and BestDifficulties satisfy
// diag.Source so the daemon's diagnostic socket can read World's
// telemetry without this package importing internal/diag.
func (w *World) PowerState() *power.State                { return w.Power.State() }
func (w *World) HashrateSnapshot() hashrate.Snapshot      { return w.Hashrate.Snapshot() }
func (w *World) BestDifficulties() (session, allTime float64) {
	return w.Result.BestSessionDifficulty(), w.Result.BestAllTimeDifficulty()
}

func (w *World) submitter() result.Submitter {
	if w.PoolV2 != nil {
		return w.PoolV2
	}
	return w.PoolV1
}

// statsPowerSource adapts *power.Controller's State snapshot to
// stats.PowerSource without internal/stats importing internal/power.
type statsPowerSource struct{ c *power.Controller }

func (s statsPowerSource) Snapshot() stats.PowerSnapshot {
	p := s.c.State().Snapshot()
	return stats.PowerSnapshot{
		ChipTempAvgC:  p.ChipTempAvgC,
		VRTempC:       p.VRTempC,
		PowerW:        p.PowerW,
		RailVoltageMV: p.RailVoltageMV,
		RailCurrentMA: p.RailCurrentMA,
		CoreVoltageMV: p.CoreVoltageMV,
		FanPercent:    p.FanPercent,
		FanRPM:        p.FanRPM,
	}
}

// Run starts every task goroutine and blocks until ctx is cancelled,
// per spec §0: "Tasks (goroutines) are started from cmd/bitaxed/main.go
// and communicate only through World's fields."
func (w *World) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		close(w.stopCh)
	}()

	go w.Builder.Run(ctx, w.StratumQ)
	go w.Result.Run(w.stopCh)

	if w.PoolV1 != nil {
		go w.PoolV1.Run(w.stopCh)
	}
	if w.PoolV2 != nil {
		go w.PoolV2.Run(w.stopCh)
	}

	go w.Sampler.Run(ctx)
	go w.runHashrateLoop(ctx)

	if err := w.Power.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("world: power controller exited: %w", err)
	}
	return ctx.Err()
}

// runHashrateLoop periodically folds the chain's per-domain hashrate
// into the monitor's rolling averages (spec §4.8's polling cadence).
func (w *World) runHashrateLoop(ctx context.Context) {
	ticker := time.NewTicker(hashrate.PollPeriod)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			w.Hashrate.Sample(now.Sub(last))
			last = now
		}
	}
}
