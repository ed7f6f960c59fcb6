//go:build linux

package result

import (
	"time"

	"golang.org/x/sys/unix"
)

// SystemClock is the production ClockSetter, calling settimeofday
// directly the way the original firmware does.
type SystemClock struct{}

func (SystemClock) SetSystemTime(t time.Time) error {
	tv := unix.NsecToTimeval(t.UnixNano())
	return unix.Settimeofday(&tv)
}
