package v2

import (
	"bytes"
	"testing"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/stretchr/testify/require"

	"github.com/axeforge/bitaxe-core/internal/job"
	"github.com/axeforge/bitaxe-core/internal/logging"
	"github.com/axeforge/bitaxe-core/internal/queue"
	"github.com/axeforge/bitaxe-core/internal/result"
	"github.com/axeforge/bitaxe-core/pkg/mining"
)

type noopDriver struct{}

func (noopDriver) SendWork(j *job.BmJob) error                     { return nil }
func (noopDriver) SetVersionMask(mask uint32)                      {}
func (noopDriver) ExpectedJobInterval(asicCount int) time.Duration { return time.Second }

func testLoggers() *logging.Loggers {
	return logging.New(&bytes.Buffer{}, btclog.LevelOff)
}

func newTestClient() *Client {
	notifications := queue.New[any](16, nil)
	builder := job.NewBuilder(noopDriver{}, 1, testLoggers())
	return NewClient(PoolConfig{}, PoolConfig{}, nil, notifications, builder, testLoggers())
}

func TestImmediateJobDroppedWithoutPrevHash(t *testing.T) {
	c := newTestClient()
	c.handleNewMiningJob(NewMiningJob{JobID: 1, HasMinNTime: true, MinNTime: 100})

	_, ok := c.notifications.DequeueTimeout(50 * time.Millisecond)
	require.False(t, ok, "immediate job should be dropped with no prior SetNewPrevHash")
}

func TestImmediateJobEnqueuedAfterPrevHash(t *testing.T) {
	c := newTestClient()
	c.handleSetNewPrevHash(SetNewPrevHash{JobID: 0, NBits: 0x1d00ffff, MinNTime: 1700000000})
	c.handleNewMiningJob(NewMiningJob{JobID: 1, HasMinNTime: true, MinNTime: 1700000001, Version: 0x20000000})

	item, ok := c.notifications.DequeueTimeout(time.Second)
	require.True(t, ok)
	n, isV2 := item.(*job.V2Notification)
	require.True(t, isV2)
	require.Equal(t, uint32(1), n.JobID)
	require.False(t, n.CleanJobs)
}

func TestFutureJobReleasedOnMatchingPrevHash(t *testing.T) {
	c := newTestClient()
	var root mining.InternalHash
	root[0] = 0x42
	c.handleNewMiningJob(NewMiningJob{JobID: 5, HasMinNTime: false, Version: 0x20000000, MerkleRoot: root})

	c.handleSetNewPrevHash(SetNewPrevHash{JobID: 5, NBits: 0x1d00ffff, MinNTime: 1700000005})

	item, ok := c.notifications.DequeueTimeout(time.Second)
	require.True(t, ok)
	n, isV2 := item.(*job.V2Notification)
	require.True(t, isV2)
	require.Equal(t, uint32(5), n.JobID)
	require.Equal(t, root, n.MerkleRoot)
	require.True(t, n.CleanJobs)
}

func TestFutureJobRingClearsNonMatchingEntries(t *testing.T) {
	c := newTestClient()
	c.handleNewMiningJob(NewMiningJob{JobID: 5})
	c.handleNewMiningJob(NewMiningJob{JobID: 13}) // collides with 5 in an 8-slot ring (5 and 13 both % 8 == 5)

	require.NotNil(t, c.pending[5])
	require.Equal(t, uint32(13), c.pending[5].JobID, "newer job displaces the older one on a ring collision")

	c.handleSetNewPrevHash(SetNewPrevHash{JobID: 99})
	for i := range c.pending {
		require.Nil(t, c.pending[i], "ring is cleared once a new prev_hash supersedes every pending future job")
	}
}

func TestTargetToDifficultyBelowOneAtMaxTarget(t *testing.T) {
	var maxTarget [32]byte
	for i := range maxTarget {
		maxTarget[i] = 0xFF
	}
	d := targetToDifficulty(maxTarget)
	require.Greater(t, d, 0.0)
	require.Less(t, d, 1.0)
}

func TestTargetToDifficultyAtDiff1TargetIsOne(t *testing.T) {
	be := mining.Diff1Target.Bytes()
	var padded [32]byte
	copy(padded[32-len(be):], be)
	var le [32]byte
	for i := range padded {
		le[i] = padded[31-i]
	}
	d := targetToDifficulty(le)
	require.InDelta(t, 1.0, d, 1e-9)
}

func TestSubmitShareFailsWithoutConnection(t *testing.T) {
	c := newTestClient()
	err := c.SubmitShare(result.Share{
		PoolJobID: "7",
		Nonce:     0x12345678,
		NTime:     1700000000,
		Version:   0x20000000,
	})
	require.Error(t, err)
}
