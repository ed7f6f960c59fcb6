package world

import (
	"bytes"
	"testing"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/stretchr/testify/require"

	"github.com/axeforge/bitaxe-core/internal/config"
	"github.com/axeforge/bitaxe-core/internal/logging"
	"github.com/axeforge/bitaxe-core/internal/power/autotune"
	v1 "github.com/axeforge/bitaxe-core/internal/stratum/v1"
)

// fakePort is a no-op serial.Port sufficient to construct drivers
// without touching real hardware.
type fakePort struct{}

func (fakePort) Send([]byte) error               { return nil }
func (fakePort) Receive([]byte, time.Duration) error { return errTimeout{} }
func (fakePort) Flush()                          {}
func (fakePort) SetBaud(int) error               { return nil }
func (fakePort) Close() error                    { return nil }

type errTimeout struct{}

func (errTimeout) Error() string { return "fakePort: no data" }

func testBoard(chip ChipFamily, stratum StratumVersion) BoardConfig {
	return BoardConfig{
		Chip: chip, DeviceModel: autotune.DeviceMax,
		AsicCount: 1, Stratum: stratum,
		MinFreqMHz: 300, MaxFreqMHz: 800, MinVoltageMV: 1000, MaxVoltageMV: 1400, MaxPowerW: 25,
	}
}

func testLoggers() *logging.Loggers {
	return logging.New(&bytes.Buffer{}, btclog.LevelOff)
}

func TestNewWiresV1StratumByDefault(t *testing.T) {
	store := config.NewMemStore()
	w, err := New(testBoard(ChipBM1397, StratumV1), fakePort{}, store, testLoggers(), Collaborators{
		PrimaryPool: v1.PoolConfig{URL: "pool.example", Port: 3333},
	})
	require.NoError(t, err)
	require.NotNil(t, w.PoolV1)
	require.Nil(t, w.PoolV2)
	require.NotNil(t, w.Driver)
	require.NotNil(t, w.Result)
	require.NotNil(t, w.Power)
	require.NotNil(t, w.Stats)
	require.NotNil(t, w.Sampler)
}

func TestNewWiresV2StratumWhenSelected(t *testing.T) {
	store := config.NewMemStore()
	w, err := New(testBoard(ChipBM1370, StratumV2), fakePort{}, store, testLoggers(), Collaborators{})
	require.NoError(t, err)
	require.Nil(t, w.PoolV1)
	require.NotNil(t, w.PoolV2)
}

func TestDriverSelectionMatchesChipFamily(t *testing.T) {
	store := config.NewMemStore()
	for _, chip := range []ChipFamily{ChipBM1397, ChipBM1366, ChipBM1368, ChipBM1370} {
		w, err := New(testBoard(chip, StratumV1), fakePort{}, store, testLoggers(), Collaborators{})
		require.NoError(t, err)
		require.NotNil(t, w.Driver)
	}
}

func TestStatsPowerSourceAdaptsControllerState(t *testing.T) {
	store := config.NewMemStore()
	w, err := New(testBoard(ChipBM1366, StratumV1), fakePort{}, store, testLoggers(), Collaborators{})
	require.NoError(t, err)

	src := statsPowerSource{w.Power}
	snap := src.Snapshot()
	require.Equal(t, 0.0, snap.ChipTempAvgC) // nothing published yet
}
