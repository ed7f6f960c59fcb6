// Package autotune implements the closed-loop frequency/voltage
// autotuner decision function (spec §4.9 step 6), ported from
// original_source/main/power_management/power_management_calc.c's
// pm_calc_autotune, plus the mutex-guarded State handle replacing its
// file-static last_adjust_tick_ms/consecutive_low_hashrate variables
// (original_source/main/power_management/autotune_state.c).
package autotune

const (
	invalidTempSentinel = 255
	warmupSeconds       = 900
	lowTempIntervalMs   = 300000
	highTempIntervalMs  = 500
	highTempThresholdC  = 68.0
	maxLowHashrateTries = 3

	tempBandC           = 2.0
	lowHashratePercent  = 80.0 // below this fraction of target, bump voltage
	voltageBumpMV       = 10
	freqStepUp          = 1.02
	voltageStepUp       = 1.002
	freqStepDown        = 0.98
	voltageStepDown     = 0.998
)

// Input is a snapshot of the readings the decision function consumes
// (spec §4.9's autotune inputs; target hashrate is computed by the
// caller as frequency*small_cores*asic_count/1000, not derived here).
type Input struct {
	ChipTempC       float64
	CurrentHashrate float64
	TargetHashrate  float64
	CurrentFreqMHz  uint16
	CurrentVoltageMV uint16
	CurrentPowerW   float64
	UptimeSeconds   uint32
}

// Limits bounds every proposed set-point (spec §4.9).
type Limits struct {
	MinFreqMHz    uint16
	MaxFreqMHz    uint16
	MinVoltageMV  uint16
	MaxVoltageMV  uint16
	MaxPowerW     float64
}

// Decision is the pure function's output; the caller applies it.
type Decision struct {
	ShouldAdjust     bool
	NewFreqMHz       uint16 // 0 = no change
	NewVoltageMV     uint16 // 0 = no change
	ShouldResetPreset bool

	SkipInvalid bool
	SkipWarmup  bool
	SkipTiming  bool
}

// RequiredIntervalMs is pm_get_autotune_interval_ms: elevated chip
// temperatures shorten the autotune cadence so it reacts faster.
func RequiredIntervalMs(chipTempC float64) uint32 {
	if chipTempC < highTempThresholdC {
		return lowTempIntervalMs
	}
	return highTempIntervalMs
}

// Decide is pm_calc_autotune (spec §4.9 step 6, testable properties
// S8/S9, scenario S6). Skip reasons are mutually exclusive and
// checked in order: invalid, warmup, timing.
func Decide(in Input, limits Limits, targetTempC float64, consecutiveLowHashrate uint8, msSinceLastAdjust uint32) Decision {
	if uint8(in.ChipTempC) == invalidTempSentinel || in.CurrentHashrate <= 0 {
		return Decision{SkipInvalid: true}
	}
	if in.UptimeSeconds < warmupSeconds && in.ChipTempC < targetTempC {
		return Decision{SkipWarmup: true}
	}
	if msSinceLastAdjust < RequiredIntervalMs(in.ChipTempC) {
		return Decision{SkipTiming: true}
	}
	if consecutiveLowHashrate >= maxLowHashrateTries {
		return Decision{ShouldResetPreset: true}
	}

	tempDiff := in.ChipTempC - targetTempC

	switch {
	case tempDiff >= -tempBandC && tempDiff <= tempBandC:
		return decideInBand(in, limits)
	case tempDiff < -tempBandC:
		return decideBelowTarget(in, limits)
	default:
		return decideAboveTarget(in, limits)
	}
}

func decideInBand(in Input, limits Limits) Decision {
	if in.TargetHashrate <= 0 {
		return Decision{}
	}
	diffPercent := (in.CurrentHashrate - in.TargetHashrate) / in.TargetHashrate * 100
	if diffPercent >= -(100 - lowHashratePercent) {
		return Decision{}
	}

	newVoltage := in.CurrentVoltageMV + voltageBumpMV
	if newVoltage > limits.MaxVoltageMV {
		return Decision{}
	}
	return Decision{ShouldAdjust: true, NewVoltageMV: newVoltage}
}

func decideBelowTarget(in Input, limits Limits) Decision {
	var d Decision
	if in.CurrentFreqMHz < limits.MaxFreqMHz && in.CurrentPowerW < limits.MaxPowerW {
		newFreq := clampU16(uint16(float64(in.CurrentFreqMHz)*freqStepUp), limits.MinFreqMHz, limits.MaxFreqMHz)
		if newFreq != in.CurrentFreqMHz {
			d.NewFreqMHz = newFreq
			d.ShouldAdjust = true
		}
	}
	if in.CurrentVoltageMV < limits.MaxVoltageMV && in.CurrentPowerW < limits.MaxPowerW {
		newVoltage := clampU16(uint16(float64(in.CurrentVoltageMV)*voltageStepUp), limits.MinVoltageMV, limits.MaxVoltageMV)
		if newVoltage != in.CurrentVoltageMV {
			d.NewVoltageMV = newVoltage
			d.ShouldAdjust = true
		}
	}
	return d
}

func decideAboveTarget(in Input, limits Limits) Decision {
	var d Decision
	newFreq := clampU16(uint16(float64(in.CurrentFreqMHz)*freqStepDown), limits.MinFreqMHz, limits.MaxFreqMHz)
	if newFreq != in.CurrentFreqMHz {
		d.NewFreqMHz = newFreq
		d.ShouldAdjust = true
	}
	newVoltage := clampU16(uint16(float64(in.CurrentVoltageMV)*voltageStepDown), limits.MinVoltageMV, limits.MaxVoltageMV)
	if newVoltage != in.CurrentVoltageMV {
		d.NewVoltageMV = newVoltage
		d.ShouldAdjust = true
	}
	return d
}

func clampU16(v, lo, hi uint16) uint16 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
