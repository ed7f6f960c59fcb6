package job

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/axeforge/bitaxe-core/pkg/mining"
)

func TestScatterBitsDistributesIntoMaskPositions(t *testing.T) {
	mask := uint32(0b10110)
	got := scatterBits(0b101, mask)
	require.Equal(t, uint32(0), got&^mask, "scatterBits must only set bits present in mask")
}

func TestRollVersionsProducesDistinctValuesWhenMaskNonZero(t *testing.T) {
	base := uint32(0x20000000)
	mask := uint32(0x1fffe000)
	versions := RollVersions(base, mask, MaxMidstates)
	require.Len(t, versions, MaxMidstates)

	seen := make(map[uint32]bool)
	for _, v := range versions {
		require.Equal(t, base&^mask, v&^mask, "unmasked bits must be preserved")
		seen[v] = true
	}
	require.Len(t, seen, MaxMidstates, "rolled versions should be pairwise distinct")
}

func TestRollVersionsReturnsBaseRepeatedWhenMaskZero(t *testing.T) {
	versions := RollVersions(0x20000000, 0, MaxMidstates)
	for _, v := range versions {
		require.Equal(t, uint32(0x20000000), v)
	}
}

func TestBuildV1JobComputesMerkleAndMidstate(t *testing.T) {
	n := &V1Notification{
		JobID:           "1",
		PrevHash:        mining.DisplayHash{1, 2, 3},
		CoinbasePrefix:  []byte{0x01, 0x02},
		CoinbaseSuffix:  []byte{0x03, 0x04},
		MerkleBranch:    nil,
		Version:         0x20000000,
		NBits:           0x1d00ffff,
		NTime:           0x5f000000,
		CleanJobs:       true,
		PoolDifficulty:  1000,
		Extranonce1:     []byte{0xaa, 0xbb},
		Extranonce2Size: 4,
	}

	j, err := BuildV1Job(n, "00000001", 0)
	require.NoError(t, err)
	require.Equal(t, 1, j.NumMidstates)
	require.Equal(t, "00000001", j.Extranonce2)
	require.Equal(t, "1", j.PoolJobID)
	require.NotEqual(t, mining.InternalHash{}, j.Midstate[0])
}

func TestBuildV1JobWithVersionRollingComputesFourMidstates(t *testing.T) {
	n := &V1Notification{
		JobID:           "2",
		CoinbasePrefix:  []byte{0x01},
		CoinbaseSuffix:  []byte{0x02},
		Version:         0x20000000,
		Extranonce2Size: 4,
		PoolDifficulty:  1,
	}

	j, err := BuildV1Job(n, "00000000", 0x1fffe000)
	require.NoError(t, err)
	require.Equal(t, MaxMidstates, j.NumMidstates)

	seen := make(map[mining.InternalHash]bool)
	for i := 0; i < j.NumMidstates; i++ {
		seen[j.Midstate[i]] = true
	}
	require.Len(t, seen, MaxMidstates, "each rolled version should yield a distinct midstate")
}

func TestBuildV2JobReusesMidstatesAcrossNtimeOffsets(t *testing.T) {
	n := &V2Notification{
		JobID:          7,
		Version:        0x20000000,
		NBits:          0x1d00ffff,
		NTime:          100,
		PoolDifficulty: 500,
	}

	j1, err := BuildV2Job(n, 0, 0)
	require.NoError(t, err)
	j2, err := BuildV2Job(n, 5, 0)
	require.NoError(t, err)

	require.Equal(t, j1.Midstate, j2.Midstate, "midstate must not depend on ntime")
	require.Equal(t, uint32(100), j1.NTime)
	require.Equal(t, uint32(105), j2.NTime)
	require.Equal(t, "7", j1.PoolJobID)
}
