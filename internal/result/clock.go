package result

import (
	"time"

	"github.com/btcsuite/btclog"

	"github.com/axeforge/bitaxe-core/internal/logging"
)

// ClockSetter sets the system wall clock, the collaborator behind
// spec §4.5's "call settimeofday" clock-sync step. Pass nil to
// NewTask to disable syncing entirely (e.g. in tests or on platforms
// where nothing should touch the system clock).
type ClockSetter interface {
	SetSystemTime(t time.Time) error
}

// nowFunc is overridable in tests; production code always calls
// time.Now.
var nowFunc = time.Now

// maybeSyncClock applies spec §4.5's clock-sync rule: at most once an
// hour, and only if the block's nTime is ahead of the system clock.
func (t *Task) maybeSyncClock(nTime uint32) {
	if t.clock == nil {
		return
	}
	now := nowFunc()
	if !t.lastSyncAt.IsZero() && now.Sub(t.lastSyncAt) < time.Hour {
		return
	}

	candidate := time.Unix(int64(nTime), 0)
	if !candidate.After(now) {
		return
	}

	if err := t.clock.SetSystemTime(candidate); err != nil {
		t.loggers.Message(logging.CategoryMining, btclog.LevelWarn, "clock sync failed: %v", err)
		return
	}
	t.lastSyncAt = now
}
