package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/btcsuite/btclog"
	"github.com/stretchr/testify/require"
)

func TestEventReachesSinkRegardlessOfLevel(t *testing.T) {
	var buf bytes.Buffer
	loggers := New(&buf, btclog.LevelError) // serial sink only accepts error+

	sink := NewRingSink(10)
	loggers.AddSink(sink)

	loggers.Event(CategoryPower, btclog.LevelInfo, "fan ramped", map[string]int{"pct": 60})

	records := sink.Snapshot()
	require.Len(t, records, 1)
	require.Equal(t, CategoryPower, records[0].Category)
	require.True(t, strings.Contains(records[0].Line, "fan ramped"))
}

func TestSetLevelIsPerCategory(t *testing.T) {
	var buf bytes.Buffer
	loggers := New(&buf, btclog.LevelWarn)
	loggers.SetLevel(CategoryASIC, btclog.LevelTrace)

	require.Equal(t, btclog.LevelTrace, loggers.For(CategoryASIC).Level())
	require.Equal(t, btclog.LevelWarn, loggers.For(CategoryMining).Level())
}

func TestRingSinkBounded(t *testing.T) {
	sink := NewRingSink(3)
	for i := 0; i < 5; i++ {
		sink.Write(CategorySystem, btclog.LevelInfo, "event")
	}
	require.Len(t, sink.Snapshot(), 3)
}
