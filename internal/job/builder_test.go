package job

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/axeforge/bitaxe-core/internal/logging"
	"github.com/axeforge/bitaxe-core/internal/queue"
	"github.com/btcsuite/btclog"
)

type fakeDriver struct {
	sent        []*BmJob
	versionMask uint32
	interval    time.Duration
}

func (d *fakeDriver) SendWork(j *BmJob) error {
	d.sent = append(d.sent, j)
	return nil
}
func (d *fakeDriver) SetVersionMask(mask uint32)               { d.versionMask = mask }
func (d *fakeDriver) ExpectedJobInterval(int) time.Duration { return d.interval }

func testLoggers() *logging.Loggers {
	return logging.New(discardWriter{}, btclog.LevelOff)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestBuilderSendsJobOnFreshCleanNotification(t *testing.T) {
	driver := &fakeDriver{interval: 20 * time.Millisecond}
	b := NewBuilder(driver, 1, testLoggers())

	q := queue.New[any](4, nil)
	n := &V1Notification{
		JobID:           "a",
		CoinbasePrefix:  []byte{1},
		CoinbaseSuffix:  []byte{2},
		Extranonce2Size: 4,
		CleanJobs:       true,
		PoolDifficulty:  10,
	}
	require.NoError(t, q.Enqueue(n))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	b.Run(ctx, q)

	require.NotEmpty(t, driver.sent)
	require.Equal(t, "a", driver.sent[0].PoolJobID)
}

func TestBuilderRollsExtranonce2AcrossRepeatedSends(t *testing.T) {
	driver := &fakeDriver{interval: 5 * time.Millisecond}
	b := NewBuilder(driver, 1, testLoggers())

	q := queue.New[any](4, nil)
	n := &V1Notification{
		JobID:           "a",
		CoinbasePrefix:  []byte{1},
		CoinbaseSuffix:  []byte{2},
		Extranonce2Size: 4,
		CleanJobs:       true,
		PoolDifficulty:  10,
	}
	require.NoError(t, q.Enqueue(n))

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	b.Run(ctx, q)

	require.Greater(t, len(driver.sent), 1, "with no further notifications the builder should keep resending against the held job")
	seen := make(map[string]bool)
	for _, j := range driver.sent {
		seen[j.Extranonce2] = true
	}
	require.Greater(t, len(seen), 1, "extranonce_2 must roll between repeated sends")
}

func TestIsCleanReflectsEachNotificationType(t *testing.T) {
	require.True(t, isClean(&V1Notification{CleanJobs: true}))
	require.False(t, isClean(&V1Notification{CleanJobs: false}))
	require.True(t, isClean(&V2Notification{CleanJobs: true}))
	require.False(t, isClean(&V2Notification{CleanJobs: false}))
}
