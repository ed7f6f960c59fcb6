package autotune

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func stdLimits() Limits {
	return Limits{MinFreqMHz: 300, MaxFreqMHz: 800, MinVoltageMV: 1000, MaxVoltageMV: 1400, MaxPowerW: 25}
}

func TestDecideSkipInvalidOnSentinelTemp(t *testing.T) {
	d := Decide(Input{ChipTempC: 255, CurrentHashrate: 500}, stdLimits(), 60, 0, 1_000_000)
	require.True(t, d.SkipInvalid)
	require.False(t, d.SkipWarmup)
	require.False(t, d.SkipTiming)
	require.False(t, d.ShouldAdjust)
}

func TestDecideSkipInvalidOnZeroHashrate(t *testing.T) {
	d := Decide(Input{ChipTempC: 50, CurrentHashrate: 0}, stdLimits(), 60, 0, 1_000_000)
	require.True(t, d.SkipInvalid)
}

func TestDecideSkipWarmupBeforeUptimeWithColdChip(t *testing.T) {
	d := Decide(Input{ChipTempC: 40, CurrentHashrate: 100, UptimeSeconds: 100}, stdLimits(), 60, 0, 1_000_000)
	require.True(t, d.SkipWarmup)
}

func TestDecideSkipTimingWhenIntervalNotElapsed(t *testing.T) {
	d := Decide(Input{ChipTempC: 60, CurrentHashrate: 500, UptimeSeconds: 100000}, stdLimits(), 60, 0, 100000)
	require.True(t, d.SkipTiming)
}

func TestDecideExactlyOneSkipFlagSet(t *testing.T) {
	cases := []Decision{
		Decide(Input{ChipTempC: 255, CurrentHashrate: 500}, stdLimits(), 60, 0, 1_000_000),
		Decide(Input{ChipTempC: 40, CurrentHashrate: 100, UptimeSeconds: 100}, stdLimits(), 60, 0, 1_000_000),
		Decide(Input{ChipTempC: 60, CurrentHashrate: 500, UptimeSeconds: 100000}, stdLimits(), 60, 0, 100000),
	}
	for _, d := range cases {
		count := 0
		for _, b := range []bool{d.SkipInvalid, d.SkipWarmup, d.SkipTiming} {
			if b {
				count++
			}
		}
		require.Equal(t, 1, count)
	}
}

func TestDecideResetsPresetOnConsecutiveLowHashrate(t *testing.T) {
	d := Decide(Input{ChipTempC: 60, CurrentHashrate: 500, UptimeSeconds: 100000}, stdLimits(), 60, 3, 400000)
	require.True(t, d.ShouldResetPreset)
	require.False(t, d.ShouldAdjust)
}

func TestScenarioS6UnderTarget(t *testing.T) {
	in := Input{
		ChipTempC: 54, CurrentHashrate: 500, TargetHashrate: 500,
		CurrentFreqMHz: 500, CurrentVoltageMV: 1200, CurrentPowerW: 15,
		UptimeSeconds: 100000,
	}
	d := Decide(in, stdLimits(), 60, 0, 400000)
	require.True(t, d.ShouldAdjust)
	require.Equal(t, uint16(510), d.NewFreqMHz)
	require.Equal(t, uint16(1202), d.NewVoltageMV)
}

func TestScenarioS6OverTarget(t *testing.T) {
	in := Input{
		ChipTempC: 66, CurrentHashrate: 500, TargetHashrate: 500,
		CurrentFreqMHz: 500, CurrentVoltageMV: 1200, CurrentPowerW: 15,
		UptimeSeconds: 100000,
	}
	d := Decide(in, stdLimits(), 60, 0, 400000)
	require.True(t, d.ShouldAdjust)
	require.Equal(t, uint16(490), d.NewFreqMHz)
	require.Equal(t, uint16(1197), d.NewVoltageMV)
}

func TestDecideAdjustmentSignsAgreeWithTemperatureDirection(t *testing.T) {
	below := Decide(Input{
		ChipTempC: 57, CurrentHashrate: 500, TargetHashrate: 500,
		CurrentFreqMHz: 500, CurrentVoltageMV: 1200, CurrentPowerW: 15, UptimeSeconds: 100000,
	}, stdLimits(), 60, 0, 400000)
	require.Less(t, uint16(500), below.NewFreqMHz, "below target should propose a higher frequency")

	above := Decide(Input{
		ChipTempC: 63, CurrentHashrate: 500, TargetHashrate: 500,
		CurrentFreqMHz: 500, CurrentVoltageMV: 1200, CurrentPowerW: 15, UptimeSeconds: 100000,
	}, stdLimits(), 60, 0, 400000)
	require.Greater(t, uint16(500), above.NewFreqMHz, "above target should propose a lower frequency")
}

func TestDecideInBandBumpsVoltageOnLowHashrate(t *testing.T) {
	in := Input{
		ChipTempC: 61, CurrentHashrate: 300, TargetHashrate: 500, // 60% of target, below the 80% floor
		CurrentFreqMHz: 500, CurrentVoltageMV: 1200, CurrentPowerW: 15, UptimeSeconds: 100000,
	}
	d := Decide(in, stdLimits(), 60, 0, 400000)
	require.True(t, d.ShouldAdjust)
	require.Equal(t, uint16(1210), d.NewVoltageMV)
	require.Equal(t, uint16(0), d.NewFreqMHz)
}

func TestDecideInBandNoAdjustWhenHashrateNearTarget(t *testing.T) {
	in := Input{
		ChipTempC: 61, CurrentHashrate: 490, TargetHashrate: 500,
		CurrentFreqMHz: 500, CurrentVoltageMV: 1200, CurrentPowerW: 15, UptimeSeconds: 100000,
	}
	d := Decide(in, stdLimits(), 60, 0, 400000)
	require.False(t, d.ShouldAdjust)
}

func TestDecideClampsAtFrequencyLimit(t *testing.T) {
	in := Input{
		ChipTempC: 50, CurrentHashrate: 500, TargetHashrate: 500,
		CurrentFreqMHz: 790, CurrentVoltageMV: 1200, CurrentPowerW: 15, UptimeSeconds: 100000,
	}
	d := Decide(in, stdLimits(), 60, 0, 400000)
	require.LessOrEqual(t, d.NewFreqMHz, stdLimits().MaxFreqMHz)
}

func TestRequiredIntervalMsShortensWhenHot(t *testing.T) {
	require.Equal(t, uint32(300000), RequiredIntervalMs(50))
	require.Equal(t, uint32(500), RequiredIntervalMs(70))
}
