package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/axeforge/bitaxe-core/internal/config"
)

type fakeHashrate struct{ ghs float64 }

func (f fakeHashrate) CurrentGHs() float64 { return f.ghs }

type fakePower struct{ snap PowerSnapshot }

func (f fakePower) Snapshot() PowerSnapshot { return f.snap }

type fakeWifi struct {
	rssi int8
	err  error
}

func (f fakeWifi) CurrentRSSI() (int8, error) { return f.rssi, f.err }

func TestSamplerTickDestroysRingWhenFrequencyZero(t *testing.T) {
	ring := NewRing()
	ring.AddSample(Record{TimestampUs: 1}) // force allocation
	store := config.NewMemStore()
	s := NewSampler(ring, store, fakeHashrate{}, fakePower{}, nil)

	s.tick(time.Now())
	require.Equal(t, -1, ring.Start(), "zero frequency should destroy the ring")
}

func TestSamplerTickRecordsFieldsFromCollaborators(t *testing.T) {
	ring := NewRing()
	store := config.NewMemStore()
	_ = store.SetU16(config.KeyStatsSampleSecs, 5)

	s := NewSampler(ring, store, fakeHashrate{ghs: 500}, fakePower{snap: PowerSnapshot{
		ChipTempAvgC: 58, VRTempC: 40, PowerW: 15, RailVoltageMV: 5000, RailCurrentMA: 3000,
		CoreVoltageMV: 1200, FanPercent: 60, FanRPM: 4000,
	}}, fakeWifi{rssi: -55})

	s.tick(time.Now())
	start := ring.Start()
	require.GreaterOrEqual(t, start, 0)
	rec, _, _ := ring.Read(start)

	require.Equal(t, 500.0, rec.HashrateGHs)
	require.Equal(t, 58.0, rec.ChipTempC)
	require.Equal(t, 40.0, rec.VRTempC)
	require.Equal(t, 15.0, rec.PowerW)
	require.Equal(t, 5000.0, rec.VoltageMV)
	require.Equal(t, 3000.0, rec.CurrentMA)
	require.Equal(t, 1200.0, rec.CoreVoltageActualMV)
	require.Equal(t, 60.0, rec.FanPercent)
	require.Equal(t, 4000.0, rec.FanRPM)
	require.Equal(t, -55.0, rec.WifiRSSI)
}

func TestSamplerDefaultsRSSIWhenSourceAbsent(t *testing.T) {
	ring := NewRing()
	store := config.NewMemStore()
	_ = store.SetU16(config.KeyStatsSampleSecs, 5)
	s := NewSampler(ring, store, fakeHashrate{}, fakePower{}, nil)

	s.tick(time.Now())
	rec, _, _ := ring.Read(ring.Start())
	require.Equal(t, float64(defaultRSSI), rec.WifiRSSI)
}

func TestSamplerSkipsSampleBeforeIntervalElapses(t *testing.T) {
	ring := NewRing()
	store := config.NewMemStore()
	_ = store.SetU16(config.KeyStatsSampleSecs, 60)
	s := NewSampler(ring, store, fakeHashrate{}, fakePower{}, nil)

	now := time.Now()
	s.tick(now)
	firstStart := ring.Start()

	s.tick(now.Add(time.Second))
	rec, _, hasNext := ring.Read(firstStart)
	require.False(t, hasNext, "second tick should not have written a new sample yet")
	_ = rec
}
