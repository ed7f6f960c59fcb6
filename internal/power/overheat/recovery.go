package overheat

import (
	"context"
	"time"

	"github.com/btcsuite/btclog"

	"github.com/axeforge/bitaxe-core/internal/config"
	"github.com/axeforge/bitaxe-core/internal/logging"
)

const (
	softCooldown   = 5 * time.Minute
	recoveryTick   = time.Second
	safeFanPercent = 100
)

// HardwareOps is the recovery side-effect seam (spec §4.9 step 3),
// ported from overheat.c's overheat_hw_ops_t: every action a recovery
// performs against hardware that isn't already modeled elsewhere.
type HardwareOps struct {
	SetFanSpeed     func(percent float64)
	DisableAsicRail func()
	Reboot          func()
	// TaskDeleted is called on a hard event just before ExecuteRecovery
	// returns. It does not stop anything by itself: the controller
	// passes a no-op and ends its loop through tick's stop result.
	TaskDeleted func()
}

// ExecuteRecovery runs spec §4.9 step 3 given a triggered Decision: it
// sets the fan to 100%, disables the ASIC rail, persists the safe
// set-points and overheat_mode=1, logs a power:critical event, then
// either waits out the soft cooldown and reboots or tears the task
// down immediately for a hard event. Returns the new lifetime count.
//
// ctx lets a soft recovery's 5-minute wait be cancelled (process
// shutdown); a cancelled wait ends early, and overheat_mode is still
// cleared and Reboot still called afterwards.
func ExecuteRecovery(ctx context.Context, d Decision, store config.Store, loggers *logging.Loggers, ops HardwareOps) uint16 {
	count := store.GetU16(config.KeyOverheatLifetime, 0) + 1
	store.SetU16(config.KeyOverheatLifetime, count)

	if ops.SetFanSpeed != nil {
		ops.SetFanSpeed(safeFanPercent)
	}
	if ops.DisableAsicRail != nil {
		ops.DisableAsicRail()
	}

	store.SetU16(config.KeyCoreVoltageMV, SafeVoltageMV)
	store.SetU16(config.KeyFrequencyMHz, SafeFrequencyMHz)
	store.SetU16(config.KeyFanSpeedPct, safeFanPercent)
	store.SetU16(config.KeyAutoFanSpeed, 0)
	store.SetU16(config.KeyOverheatMode, 1)

	loggers.Event(logging.CategoryPower, btclog.LevelCritical, "overheat mode activated", map[string]any{
		"overheatCount": count,
		"type":          typeString(d.Type),
		"severity":      severityString(d.Severity),
	})

	if d.Severity == SeverityHard {
		if ops.TaskDeleted != nil {
			ops.TaskDeleted()
		}
		return count
	}

	waitOutSoftCooldown(ctx)

	store.SetU16(config.KeyOverheatMode, 0)
	loggers.Event(logging.CategoryPower, btclog.LevelInfo, "overheat recovery completed, restarting", nil)
	if ops.Reboot != nil {
		ops.Reboot()
	}
	return count
}

func waitOutSoftCooldown(ctx context.Context) {
	deadline := time.Now().Add(softCooldown)
	ticker := time.NewTicker(recoveryTick)
	defer ticker.Stop()
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func typeString(t Type) string {
	switch t {
	case TypeChip:
		return "ASIC"
	case TypeVR:
		return "VR"
	case TypeBoth:
		return "ASIC+VR"
	default:
		return "none"
	}
}

func severityString(s Severity) string {
	switch s {
	case SeverityHard:
		return "hard"
	case SeveritySoft:
		return "soft"
	default:
		return "none"
	}
}
