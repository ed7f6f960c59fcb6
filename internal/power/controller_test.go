package power

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/stretchr/testify/require"

	"github.com/axeforge/bitaxe-core/internal/asic"
	"github.com/axeforge/bitaxe-core/internal/config"
	"github.com/axeforge/bitaxe-core/internal/job"
	"github.com/axeforge/bitaxe-core/internal/logging"
)

type fakeRail struct {
	voltageMV, currentMA int32
	powerW               float64
}

func (f *fakeRail) ReadRail() (int32, int32, float64, error) {
	return f.voltageMV, f.currentMA, f.powerW, nil
}

type fakeThermal struct {
	chipTempC, vrTempC float64
	fanRPM             uint32
}

func (f *fakeThermal) ChipTempC() (float64, error) { return f.chipTempC, nil }
func (f *fakeThermal) VRTempC() (float64, error)   { return f.vrTempC, nil }
func (f *fakeThermal) FanRPM() (uint32, error)      { return f.fanRPM, nil }

type fakeFan struct{ lastPercent float64 }

func (f *fakeFan) SetFanSpeedPercent(pct float64) error { f.lastPercent = pct; return nil }

type fakePMIC struct{ lastMV uint16 }

func (f *fakePMIC) SetVoltageMV(mv uint16) error { f.lastMV = mv; return nil }

type fakeAsicRail struct{ disabled bool }

func (f *fakeAsicRail) Disable() error { f.disabled = true; return nil }

type fakeDriver struct{ lastFreqMHz float64 }

func (d *fakeDriver) Init(float64, int, uint32) (int, error)         { return 0, nil }
func (d *fakeDriver) SetMaxBaud() int                                { return 0 }
func (d *fakeDriver) SendWork(*job.BmJob) error                      { return nil }
func (d *fakeDriver) ProcessWork() (job.TaskResult, bool, error)     { return job.TaskResult{}, false, nil }
func (d *fakeDriver) SetVersionMask(uint32)                          {}
func (d *fakeDriver) SetFrequency(targetMHz float64) bool            { d.lastFreqMHz = targetMHz; return true }
func (d *fakeDriver) ExpectedJobInterval(int) time.Duration          { return time.Second }

var _ asic.Driver = (*fakeDriver)(nil)

type fakeHashrate struct{ ghs float64 }

func (f *fakeHashrate) CurrentGHs() float64 { return f.ghs }

func newTestController(store config.Store, thermal *fakeThermal, rail *fakeRail, fan *fakeFan, pmic *fakePMIC, asicRail *fakeAsicRail, driver *fakeDriver, hr *fakeHashrate) *Controller {
	loggers := logging.New(&bytes.Buffer{}, btclog.LevelOff)
	cfg := Config{
		AsicCount:      1,
		SmallCoreCount: SmallCoreCountBM1366,
		DeviceModel:    0,
		Limits:         Limits{MinFreqMHz: 300, MaxFreqMHz: 800, MinVoltageMV: 1000, MaxVoltageMV: 1400, MaxPowerW: 25},
	}
	return NewController(cfg, store, loggers, rail, thermal, fan, pmic, asicRail, driver, hr)
}

func TestTickCommitsChangedSetpointsOnly(t *testing.T) {
	store := config.NewMemStore()
	_ = store.SetU16(config.KeyFrequencyMHz, 500)
	_ = store.SetU16(config.KeyCoreVoltageMV, 1200)
	_ = store.SetU16(config.KeyFanSpeedPct, 60)

	thermal := &fakeThermal{chipTempC: 55}
	rail := &fakeRail{voltageMV: 1200, currentMA: 5000, powerW: 15}
	fan := &fakeFan{}
	pmic := &fakePMIC{}
	driver := &fakeDriver{}
	c := newTestController(store, thermal, rail, fan, pmic, &fakeAsicRail{}, driver, &fakeHashrate{})

	stop, err := c.tick(context.Background())
	require.NoError(t, err)
	require.False(t, stop)
	require.Equal(t, uint16(1200), pmic.lastMV)
	require.Equal(t, 500.0, driver.lastFreqMHz)
	require.Equal(t, 60.0, fan.lastPercent)

	pmic.lastMV = 0
	driver.lastFreqMHz = 0
	_, err = c.tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint16(0), pmic.lastMV, "unchanged voltage should not be recommitted")
	require.Equal(t, 0.0, driver.lastFreqMHz, "unchanged frequency should not be recommitted")
}

func TestTickAutoFanFollowsCurve(t *testing.T) {
	store := config.NewMemStore()
	_ = store.SetU16(config.KeyAutoFanSpeed, 1)
	_ = store.SetU16(config.KeyMinFanSpeedPct, 35)

	thermal := &fakeThermal{chipTempC: 60}
	fan := &fakeFan{}
	c := newTestController(store, thermal, &fakeRail{}, fan, &fakePMIC{}, &fakeAsicRail{}, &fakeDriver{}, &fakeHashrate{})

	_, err := c.tick(context.Background())
	require.NoError(t, err)
	require.InDelta(t, FanSpeedPercent(60, 35), fan.lastPercent, 1e-9)
}

func TestTickHardOverheatStopsLoopAndDisablesRail(t *testing.T) {
	store := config.NewMemStore()
	_ = store.SetU16(config.KeyOverheatLifetime, 2) // (2+1)%3==0 -> hard
	_ = store.SetU16(config.KeyFrequencyMHz, 500)
	_ = store.SetU16(config.KeyCoreVoltageMV, 1200)

	thermal := &fakeThermal{chipTempC: 80}
	rail := &fakeAsicRail{}
	c := newTestController(store, thermal, &fakeRail{}, &fakeFan{}, &fakePMIC{}, rail, &fakeDriver{}, &fakeHashrate{})

	stop, err := c.tick(context.Background())
	require.NoError(t, err)
	require.True(t, stop)
	require.True(t, rail.disabled)
	require.Equal(t, uint16(1), store.GetU16(config.KeyOverheatMode, 0))
	require.Equal(t, uint16(overheatSafeVoltageForTest), store.GetU16(config.KeyCoreVoltageMV, 0))
}

func TestTickSoftOverheatWaitsThenClearsMode(t *testing.T) {
	store := config.NewMemStore()
	_ = store.SetU16(config.KeyOverheatLifetime, 0) // (0+1)%3==1 -> soft
	_ = store.SetU16(config.KeyFrequencyMHz, 500)
	_ = store.SetU16(config.KeyCoreVoltageMV, 1200)

	thermal := &fakeThermal{chipTempC: 80}
	c := newTestController(store, thermal, &fakeRail{}, &fakeFan{}, &fakePMIC{}, &fakeAsicRail{}, &fakeDriver{}, &fakeHashrate{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // skip the 5-minute cooldown wait
	stop, err := c.tick(ctx)
	require.NoError(t, err)
	require.False(t, stop, "soft recovery does not delete the task")
	require.Equal(t, uint16(0), store.GetU16(config.KeyOverheatMode, 0), "soft recovery clears overheat mode once the wait ends")
}

func TestTargetHashrateMatchesCalcFormula(t *testing.T) {
	require.InDelta(t, 500*894*1/1000.0, targetHashrate(500, 894, 1), 1e-9)
}

const overheatSafeVoltageForTest = 1000
