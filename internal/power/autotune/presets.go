package autotune

import (
	"fmt"

	"github.com/axeforge/bitaxe-core/internal/config"
)

// DeviceModel selects which preset table applies, mirroring the four
// bitaxe board families (original_source/main/tasks/power_management_task.c).
type DeviceModel int

const (
	DeviceMax DeviceModel = iota
	DeviceUltra
	DeviceSupra
	DeviceGamma
)

// Preset is one named (voltage, frequency, fan) operating point (spec
// §4.9: "three named presets per device model ... (voltage_mV,
// frequency_MHz, fan_%)").
type Preset struct {
	Name         string
	VoltageMV    uint16
	FrequencyMHz uint16
	FanPercent   uint16
}

var presetTables = map[DeviceModel][]Preset{
	DeviceMax: {
		{"quiet", 1100, 450, 50},
		{"balanced", 1200, 550, 65},
		{"turbo", 1400, 750, 100},
	},
	DeviceUltra: {
		{"quiet", 1130, 420, 25},
		{"balanced", 1190, 490, 35},
		{"turbo", 1250, 625, 95},
	},
	DeviceSupra: {
		{"quiet", 1100, 425, 25},
		{"balanced", 1200, 575, 35},
		{"turbo", 1350, 750, 95},
	},
	DeviceGamma: {
		{"quiet", 1000, 400, 25},
		{"balanced", 1090, 490, 35},
		{"turbo", 1160, 600, 95},
	},
}

// FindPreset looks up a named preset for a device model. Returns
// ok=false if the model or name is unknown (spec §9 open question:
// the original never validates the NVS preset-name string, so a
// caller that stored something invalid silently keeps its last-applied
// values — callers of FindPreset must replicate that by checking ok).
func FindPreset(model DeviceModel, name string) (Preset, bool) {
	for _, p := range presetTables[model] {
		if p.Name == name {
			return p, true
		}
	}
	return Preset{}, false
}

// ApplyPreset writes a preset's values to the config store, raising
// fan to 100% first for safety and clearing auto-fan, per spec §4.9's
// "Applying a preset ... raises fan to 100% first for safety, and
// clears auto-fan."
func ApplyPreset(store config.Store, p Preset) error {
	if err := store.SetU16(config.KeyFanSpeedPct, 100); err != nil {
		return fmt.Errorf("autotune: raise fan before preset: %w", err)
	}
	if err := store.SetU16(config.KeyCoreVoltageMV, p.VoltageMV); err != nil {
		return err
	}
	if err := store.SetU16(config.KeyFrequencyMHz, p.FrequencyMHz); err != nil {
		return err
	}
	if err := store.SetU16(config.KeyFanSpeedPct, p.FanPercent); err != nil {
		return err
	}
	if err := store.SetString(config.KeyAutotunePreset, p.Name); err != nil {
		return err
	}
	return store.SetU16(config.KeyAutoFanSpeed, 0)
}
