package power

// Fan-curve constants, ported from pm_calc_fan_speed_percent_ex
// (original_source/main/power_management/power_management_calc.c).
const (
	minFanTempC    = 45.0
	throttleTempC  = 75.0
	defaultMinFan  = 35.0
)

// FanSpeedPercent is the auto-fan linear ramp (spec §4.9 step 4,
// testable property S6: "non-decreasing in temperature; equals
// min_fan_speed for T<=45; equals 100 for T>=75; continuous at the
// endpoints"). minFanSpeed is the configured floor (KeyMinFanSpeedPct,
// defaultMinFan if unset).
func FanSpeedPercent(chipTempC, minFanSpeed float64) float64 {
	if chipTempC <= minFanTempC {
		return minFanSpeed
	}
	if chipTempC >= throttleTempC {
		return 100
	}
	span := throttleTempC - minFanTempC
	frac := (chipTempC - minFanTempC) / span
	return minFanSpeed + frac*(100-minFanSpeed)
}
