package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemStoreDefaults(t *testing.T) {
	s := NewMemStore()
	require.Equal(t, uint16(42), s.GetU16("missing", 42))
	require.NoError(t, s.SetU16(KeyFanSpeedPct, 75))
	require.Equal(t, uint16(75), s.GetU16(KeyFanSpeedPct, 0))
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.yaml")

	fs, err := LoadFileStore(path)
	require.NoError(t, err)
	require.NoError(t, fs.SetString(KeyPoolURL, "stratum+tcp://pool.example:3333"))
	require.NoError(t, fs.SetI32(KeyFrequencyMHz, 500))

	reloaded, err := LoadFileStore(path)
	require.NoError(t, err)
	require.Equal(t, "stratum+tcp://pool.example:3333", reloaded.GetString(KeyPoolURL, ""))
	require.Equal(t, int32(500), reloaded.GetI32(KeyFrequencyMHz, 0))
}
