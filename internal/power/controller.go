// Package power implements the power/thermal controller task (spec
// §4.9, C10): a 2-second loop that reads rail and thermal telemetry,
// checks and recovers from overheat conditions, drives the fan curve,
// commits voltage/frequency set-points, and optionally autotunes
// toward a target chip temperature. Grounded on
// original_source/main/tasks/power_management_task.c, with the pure
// decision logic factored into internal/power/overheat and
// internal/power/autotune the way internal/result/clock.go keeps
// hardware access behind a narrow interface seam.
package power

import (
	"context"
	"time"

	"github.com/btcsuite/btclog"

	"github.com/axeforge/bitaxe-core/internal/asic"
	"github.com/axeforge/bitaxe-core/internal/config"
	"github.com/axeforge/bitaxe-core/internal/logging"
	"github.com/axeforge/bitaxe-core/internal/power/autotune"
	"github.com/axeforge/bitaxe-core/internal/power/overheat"
)

const tickPeriod = 2 * time.Second

// HashrateSource reports the monitor's current blended hashrate
// (GH/s) for the autotune decision's hashrate-vs-target comparison.
type HashrateSource interface {
	CurrentGHs() float64
}

// Limits bounds every set-point the controller may commit, per device
// model (spec §4.9's min/max voltage, min/max frequency, max power).
type Limits = autotune.Limits

// Config is the per-device wiring the controller needs beyond its
// runtime collaborators.
type Config struct {
	AsicCount      int
	SmallCoreCount int
	DeviceModel    autotune.DeviceModel
	Limits         Limits
}

// Controller owns the power/thermal task loop.
type Controller struct {
	cfg     Config
	store   config.Store
	loggers *logging.Loggers

	rail     RailSensor
	thermal  ThermalSensor
	fan      FanController
	pmic     PMIC
	asicRail AsicRail
	driver   asic.Driver
	hashrate HashrateSource

	autotuneState *autotune.State
	state         *State

	startedAt          time.Time
	lastAppliedFreqMHz uint16
	lastAppliedVoltMV  uint16
}

// NewController wires a controller from its hardware/collaborator
// seams. Any of rail/thermal/fan/pmic/asicRail/hashrate may be nil in
// a bench build lacking that board feature; the corresponding step is
// skipped.
func NewController(cfg Config, store config.Store, loggers *logging.Loggers, rail RailSensor, thermal ThermalSensor, fan FanController, pmic PMIC, asicRail AsicRail, driver asic.Driver, hashrate HashrateSource) *Controller {
	return &Controller{
		cfg:           cfg,
		store:         store,
		loggers:       loggers,
		rail:          rail,
		thermal:       thermal,
		fan:           fan,
		pmic:          pmic,
		asicRail:      asicRail,
		driver:        driver,
		hashrate:      hashrate,
		autotuneState: autotune.NewState(),
		state:         &State{},
		startedAt:     time.Time{},
	}
}

// State returns the shared current-readings record consumers can poll.
func (c *Controller) State() *State { return c.state }

// Run drives the 2-second tick loop until ctx is cancelled or a hard
// overheat event tears the task down (spec §4.9 step 3: "hard:
// delete task, no delay/reboot").
func (c *Controller) Run(ctx context.Context) error {
	c.startedAt = time.Now()
	ticker := time.NewTicker(tickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			stop, err := c.tick(ctx)
			if err != nil {
				c.loggers.Message(logging.CategoryPower, btclog.LevelError, "power tick failed: %v", err)
			}
			if stop {
				return nil
			}
		}
	}
}

// tick runs one pass of spec §4.9's six numbered steps. stop=true
// means a hard overheat event occurred and the task should exit.
func (c *Controller) tick(ctx context.Context) (stop bool, err error) {
	reading := c.readSensors()
	c.publish(reading)

	freqMHz := c.store.GetU16(config.KeyFrequencyMHz, 0)
	voltMV := c.store.GetU16(config.KeyCoreVoltageMV, 0)

	decision := overheat.Check(overheat.Input{
		ChipTempC:    reading.chipTempC,
		VRTempC:      reading.vrTempC,
		FrequencyMHz: freqMHz,
		VoltageMV:    voltMV,
	}, c.store.GetU16(config.KeyOverheatLifetime, 0))

	if decision.ShouldTrigger {
		ops := overheat.HardwareOps{
			SetFanSpeed: func(pct float64) {
				if c.fan != nil {
					_ = c.fan.SetFanSpeedPercent(pct)
				}
			},
			DisableAsicRail: func() {
				if c.asicRail != nil {
					_ = c.asicRail.Disable()
				}
			},
			Reboot: func() {
				c.loggers.Message(logging.CategoryPower, btclog.LevelCritical, "rebooting after overheat recovery")
			},
			TaskDeleted: func() {},
		}
		overheat.ExecuteRecovery(ctx, decision, c.store, c.loggers, ops)
		return decision.Severity == overheat.SeverityHard, nil
	}

	c.controlFan(reading.chipTempC)
	c.commitSetpoints(freqMHz, voltMV)
	c.runAutotune(reading, freqMHz, voltMV)

	return false, nil
}

type sensorReading struct {
	chipTempC float64
	vrTempC   float64
	fanRPM    uint32
	voltageMV int32
	currentMA int32
	powerW    float64
}

func (c *Controller) readSensors() sensorReading {
	var r sensorReading
	if c.thermal != nil {
		if t, err := c.thermal.ChipTempC(); err == nil {
			r.chipTempC = t
		}
		if t, err := c.thermal.VRTempC(); err == nil {
			r.vrTempC = t
		}
		if rpm, err := c.thermal.FanRPM(); err == nil {
			r.fanRPM = rpm
		}
	}
	if c.rail != nil {
		if v, a, w, err := c.rail.ReadRail(); err == nil {
			r.voltageMV, r.currentMA, r.powerW = v, a, w
		}
	}
	return r
}

func (c *Controller) publish(r sensorReading) {
	c.state.update(func(s *State) {
		s.ChipTempsC[0] = r.chipTempC
		s.ChipTempAvgC = r.chipTempC
		s.VRTempC = r.vrTempC
		s.FanRPM = r.fanRPM
		s.RailVoltageMV = r.voltageMV
		s.RailCurrentMA = r.currentMA
		s.PowerW = r.powerW
		s.CoreVoltageMV = c.lastAppliedVoltMV
		s.FrequencyMHz = float64(c.lastAppliedFreqMHz)
	})
}

// controlFan is spec §4.9 step 4: auto-fan linear ramp, or a fixed
// configured percentage when auto-fan is off.
func (c *Controller) controlFan(chipTempC float64) {
	if c.fan == nil {
		return
	}
	var pct float64
	if c.store.GetU16(config.KeyAutoFanSpeed, 0) != 0 {
		minFan := float64(c.store.GetU16(config.KeyMinFanSpeedPct, defaultMinFan))
		pct = FanSpeedPercent(chipTempC, minFan)
	} else {
		pct = float64(c.store.GetU16(config.KeyFanSpeedPct, uint16(defaultMinFan)))
	}
	_ = c.fan.SetFanSpeedPercent(pct)
	c.state.update(func(s *State) { s.FanPercent = pct })
}

// commitSetpoints is spec §4.9 step 5: push voltage/frequency to the
// PMIC/ASIC driver, but only when they changed since last applied.
func (c *Controller) commitSetpoints(freqMHz, voltMV uint16) {
	if voltMV != c.lastAppliedVoltMV && c.pmic != nil {
		if err := c.pmic.SetVoltageMV(voltMV); err == nil {
			c.lastAppliedVoltMV = voltMV
		}
	}
	if freqMHz != c.lastAppliedFreqMHz && c.driver != nil {
		if c.driver.SetFrequency(float64(freqMHz)) {
			c.lastAppliedFreqMHz = freqMHz
		}
	}
}

// runAutotune is spec §4.9 step 6: it only acts once autotune is
// enabled. The 900s warmup is left to Decide(), which skips a step
// during warmup only while the chip is below its target temperature.
func (c *Controller) runAutotune(r sensorReading, freqMHz, voltMV uint16) {
	if c.store.GetU16(config.KeyAutotune, 0) == 0 {
		return
	}

	var currentGHs float64
	if c.hashrate != nil {
		currentGHs = c.hashrate.CurrentGHs()
	}
	targetGHs := targetHashrate(float64(freqMHz), c.cfg.SmallCoreCount, c.cfg.AsicCount)
	targetTempC := float64(c.store.GetU16(config.KeyTargetTempC, 60))
	uptimeS := uint32(time.Since(c.startedAt).Seconds())
	tickMs := uint32(time.Since(c.startedAt).Milliseconds())

	d := autotune.Decide(autotune.Input{
		ChipTempC:        r.chipTempC,
		CurrentHashrate:  currentGHs,
		TargetHashrate:   targetGHs,
		CurrentFreqMHz:   freqMHz,
		CurrentVoltageMV: voltMV,
		CurrentPowerW:    r.powerW,
		UptimeSeconds:    uptimeS,
	}, c.cfg.Limits, targetTempC, c.autotuneState.LowHashrateCount(), c.autotuneState.MsSinceLastAdjust(tickMs))

	if d.SkipInvalid || d.SkipWarmup || d.SkipTiming {
		return
	}

	if d.ShouldResetPreset {
		c.autotuneState.ResetLowHashrate()
		if p, ok := autotune.FindPreset(c.cfg.DeviceModel, c.store.GetString(config.KeyAutotunePreset, "balanced")); ok {
			_ = autotune.ApplyPreset(c.store, p)
		}
		return
	}

	if !d.ShouldAdjust {
		return
	}

	if d.NewFreqMHz != 0 {
		_ = c.store.SetU16(config.KeyFrequencyMHz, d.NewFreqMHz)
	}
	if d.NewVoltageMV != 0 {
		_ = c.store.SetU16(config.KeyCoreVoltageMV, d.NewVoltageMV)
	}
	c.autotuneState.UpdateLastAdjustTime(tickMs)

	if targetGHs > 0 && currentGHs/targetGHs < 0.8 {
		c.autotuneState.IncrementLowHashrate()
	} else {
		c.autotuneState.ResetLowHashrate()
	}
}

// targetHashrate is pm_calc_target_hashrate.
func targetHashrate(freqMHz float64, smallCores, asicCount int) float64 {
	return freqMHz * float64(smallCores*asicCount) / 1000.0
}
