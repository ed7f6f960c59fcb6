package autotune

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/axeforge/bitaxe-core/internal/config"
)

func TestFindPresetLooksUpByDeviceAndName(t *testing.T) {
	p, ok := FindPreset(DeviceGamma, "turbo")
	require.True(t, ok)
	require.Equal(t, uint16(1160), p.VoltageMV)
	require.Equal(t, uint16(600), p.FrequencyMHz)
	require.Equal(t, uint16(95), p.FanPercent)
}

func TestFindPresetUnknownNameFails(t *testing.T) {
	_, ok := FindPreset(DeviceMax, "ludicrous")
	require.False(t, ok)
}

func TestApplyPresetWritesFanFirstThenSettlesToPresetFan(t *testing.T) {
	store := config.NewMemStore()
	p, ok := FindPreset(DeviceMax, "balanced")
	require.True(t, ok)

	require.NoError(t, ApplyPreset(store, p))
	require.Equal(t, uint16(1200), store.GetU16(config.KeyCoreVoltageMV, 0))
	require.Equal(t, uint16(550), store.GetU16(config.KeyFrequencyMHz, 0))
	require.Equal(t, uint16(65), store.GetU16(config.KeyFanSpeedPct, 0))
	require.Equal(t, "balanced", store.GetString(config.KeyAutotunePreset, ""))
	require.Equal(t, uint16(0), store.GetU16(config.KeyAutoFanSpeed, 1))
}
