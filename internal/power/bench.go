package power

// NullSensors backs every hardware seam in this package with inert
// defaults: zero-valued readings, no-op actuation. It exists for bench
// and development builds that run the core against a board with no
// I2C rail/thermal telemetry wired up, the same role the original
// firmware's own "no such sensor" early-return branches play for
// VR-sensor-less boards (ThermalSensor.VRTempC's doc comment in sensors.go).
// No suitable third-party I2C device library exists anywhere in the
// reference corpus this module was grounded on (none of the example
// repos talk to INA260/TPS546/EMC210x parts), so wiring real telemetry
// is left to a board-specific implementation of these five interfaces
// rather than attempted here on top of the standard library.
type NullSensors struct{}

func (NullSensors) ReadRail() (voltageMV, currentMA int32, powerW float64, err error) {
	return 0, 0, 0, nil
}

func (NullSensors) ChipTempC() (float64, error) { return 0, nil }
func (NullSensors) VRTempC() (float64, error)    { return 0, nil }
func (NullSensors) FanRPM() (uint32, error)      { return 0, nil }

func (NullSensors) SetFanSpeedPercent(percent float64) error { return nil }

func (NullSensors) SetVoltageMV(mv uint16) error { return nil }

func (NullSensors) Disable() error { return nil }
