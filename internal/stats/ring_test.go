package stats

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRingStartsEmpty(t *testing.T) {
	r := NewRing()
	require.Equal(t, -1, r.Start())
	_, _, ok := r.Read(0)
	require.False(t, ok)
}

func TestRingFirstSampleSetsStartAndEnd(t *testing.T) {
	r := NewRing()
	r.AddSample(Record{TimestampUs: 1})
	start := r.Start()
	require.GreaterOrEqual(t, start, 0)

	rec, _, hasNext := r.Read(start)
	require.False(t, hasNext, "single sample: start == end, no next")
	require.Equal(t, int64(1), rec.TimestampUs)
}

func TestRingWalkVisitsSamplesInOrder(t *testing.T) {
	r := NewRing()
	for i := int64(1); i <= 5; i++ {
		r.AddSample(Record{TimestampUs: i})
	}

	var got []int64
	node := r.Start()
	for {
		rec, next, hasNext := r.Read(node)
		got = append(got, rec.TimestampUs)
		if !hasNext {
			break
		}
		node = next
	}
	require.Equal(t, []int64{1, 2, 3, 4, 5}, got)
}

func TestRingWrapsAndDropsOldestOnceFull(t *testing.T) {
	r := NewRing()
	for i := int64(1); i <= Capacity+3; i++ {
		r.AddSample(Record{TimestampUs: i})
	}

	var got []int64
	node := r.Start()
	for {
		rec, next, hasNext := r.Read(node)
		got = append(got, rec.TimestampUs)
		if !hasNext {
			break
		}
		node = next
	}
	require.Len(t, got, Capacity)
	require.Equal(t, int64(4), got[0], "oldest 3 samples should have been overwritten")
	require.Equal(t, int64(Capacity+3), got[len(got)-1])
}

func TestRingDestroyThenReallocate(t *testing.T) {
	r := NewRing()
	r.AddSample(Record{TimestampUs: 1})
	r.Destroy()
	require.Equal(t, -1, r.Start())
	_, _, ok := r.Read(0)
	require.False(t, ok)

	r.AddSample(Record{TimestampUs: 42})
	start := r.Start()
	rec, _, _ := r.Read(start)
	require.Equal(t, int64(42), rec.TimestampUs)
}

func TestRingReadOfEndReportsNoNextEvenMidWalk(t *testing.T) {
	r := NewRing()
	for i := int64(1); i <= 3; i++ {
		r.AddSample(Record{TimestampUs: i})
	}
	_, _, hasNext := r.Read(r.end)
	require.False(t, hasNext, "reading the current end node always reports no next")
}
