package hashrate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestUpdateInstantaneousRejectsOutOfRangeAndKeepsPrevious(t *testing.T) {
	m := NewMonitor(1)

	accepted := m.UpdateInstantaneous(0, 50) // (50 * 2^24) / 1e9 GH/s, in range
	require.InDelta(t, float64(50<<24)/1e9, accepted, 1e-9)

	// Zero raw value underflows the sane minimum and should be rejected.
	rejected := m.UpdateInstantaneous(0, 0)
	require.Equal(t, accepted, rejected)
}

func TestUpdateInstantaneousIgnoresLongWindowBit(t *testing.T) {
	m := NewMonitor(1)
	withoutBit := m.UpdateInstantaneous(0, 50)

	m2 := NewMonitor(1)
	withBit := m2.UpdateInstantaneous(0, 50|longWindowBit)

	require.InDelta(t, withoutBit, withBit, 1e-9)
}

func TestUpdateCounterFirstReadOnlySeedsBaseline(t *testing.T) {
	m := NewMonitor(1)
	got := m.UpdateCounter(0, 1000, 1_000_000)
	require.Equal(t, 0.0, got, "first read must not publish a rate")
}

func TestUpdateCounterRejectsZeroDelta(t *testing.T) {
	m := NewMonitor(1)
	m.UpdateCounter(0, 0, 0)

	got := m.UpdateCounter(0, 0, 1_000_000)
	require.Equal(t, 0.0, got, "zero delta yields zero rate, rejected as out of range")
}

func TestUpdateCounterHandlesWraparound(t *testing.T) {
	m := NewMonitor(1)
	var before uint32 = 0xFFFFFFF0
	var after uint32 = 0x10
	m.UpdateCounter(0, before, 0)
	got := m.UpdateCounter(0, after, 1000) // wraps past 2^32

	expectedDelta := after - before // wrapping subtraction at runtime
	expectedGHs := float64(expectedDelta) * 4294967296 / 1000 / 1e9
	if expectedGHs < minSaneGHs || expectedGHs > maxSaneGHs {
		require.Equal(t, 0.0, got)
	} else {
		require.InDelta(t, expectedGHs, got, 1e-6)
	}
}

func TestUpdateCounterRejectsOutOfRangeAndKeepsPrevious(t *testing.T) {
	m := NewMonitor(1)
	m.UpdateCounter(0, 0, 0)
	accepted := m.UpdateCounter(0, 100_000, 1000) // a sane in-range step

	// A counter jump this large over a microsecond is far outside the
	// sane GH/s range and must be rejected.
	rejected := m.UpdateCounter(0, 0xFFFFFFFF, 1001)
	require.Equal(t, accepted, rejected)
}

func TestUpdateInstantaneousSanityRangeProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		raw := rapid.Uint32().Draw(rt, "raw")
		m := NewMonitor(1)
		m.domains[0].lastGHs = 1.0

		got := m.UpdateInstantaneous(0, raw)
		hashesPerSec := float64(raw &^ uint32(longWindowBit)) * instantScale
		ghs := hashesPerSec / 1e9
		if ghs < minSaneGHs || ghs > maxSaneGHs {
			require.Equal(rt, 1.0, got, "out-of-range reading must retain the previous value")
		} else {
			require.InDelta(rt, ghs, got, 1e-6)
		}
	})
}

func TestRollingAverageBlendedIgnoresEmptySlots(t *testing.T) {
	r := newRollingAverage(4, 10)
	require.True(t, math.IsNaN(r.Blended()) || r.Blended() == 0)
}

func TestRollingAverageBlendsAcrossSlotBoundary(t *testing.T) {
	r := newRollingAverage(3, 10)
	r.Add(100, 5) // half-fill the first slot
	first := r.Blended()
	require.InDelta(t, 100, first, 1e-9)

	r.Add(100, 5) // completes slot 0 exactly at the boundary
	r.Add(200, 1) // one second into slot 1
	got := r.Blended()
	require.Greater(t, got, 100.0)
	require.Less(t, got, 200.0)
}

func TestRollingAverageAveragesMultipleSamplesPerSlot(t *testing.T) {
	r := newRollingAverage(2, 100)
	r.Add(10, 1)
	r.Add(30, 1)
	require.InDelta(t, 20, r.Blended(), 1e-9)
}
