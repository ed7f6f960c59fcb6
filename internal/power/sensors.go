package power

// RailSensor reads the ASIC rail's electrical telemetry. Two concrete
// shapes exist in the field (spec §4.9 step 1): an INA260 shunt
// monitor on the 5V input, or a TPS546 buck regulator reporting its
// own output rail directly; both are modeled behind this one
// interface so the controller doesn't switch on board variant itself.
type RailSensor interface {
	// ReadRail returns rail voltage (mV), current (mA), and power (W).
	ReadRail() (voltageMV, currentMA int32, powerW float64, err error)
}

// ThermalSensor reads chip and voltage-regulator temperatures and fan
// RPM. EMC2101 (single fan/temp channel) and EMC2103 (dual) are both
// modeled behind this interface; TPS546-equipped boards additionally
// report their own regulator temperature directly from the PMIC.
type ThermalSensor interface {
	ChipTempC() (float64, error)
	VRTempC() (float64, error) // 0, nil if the board has no VR sensor
	FanRPM() (uint32, error)
}

// FanController drives the PWM fan output.
type FanController interface {
	SetFanSpeedPercent(percent float64) error
}

// PMIC commits a core-voltage set-point to the regulator (VCORE on
// Gamma/Supra/Ultra boards, or the shared rail on Max boards).
type PMIC interface {
	SetVoltageMV(mv uint16) error
}

// AsicRail disables/enables ASIC power for overheat recovery,
// mirroring the GPIO-strap-vs-set_vcore(0) split in
// original_source/main/power_management/overheat.c's disable_asic_power.
type AsicRail interface {
	Disable() error
}
