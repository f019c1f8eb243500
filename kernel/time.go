package kernel

import (
	"context"

	"github.com/reglet-dev/pseudokernel/internal/abi"
)

// sysClockGettime fills a timespec from the configured clock for every
// clock id. A null timespec is accepted.
func (k *Kernel) sysClockGettime(ctx context.Context, a Args) (int32, error) {
	if a.Ptr(1) == 0 {
		return 0, nil
	}
	now := k.cfg.clock.Now()
	ts := abi.Timespec{
		Sec:  int32(now.Unix()),       //nolint:gosec // G115: 32-bit time_t
		Nsec: int32(now.Nanosecond()), //nolint:gosec // G115: below 1e9
	}
	if k.cfg.trace {
		k.log.DebugContext(ctx, "clock_gettime", "clock", a[0], "sec", ts.Sec, "nsec", ts.Nsec)
	}
	return 0, k.mem.Pack(a.Ptr(1), &ts)
}

// sysClockGetres reports nanosecond resolution.
func (k *Kernel) sysClockGetres(_ context.Context, a Args) (int32, error) {
	if a.Ptr(1) == 0 {
		return 0, nil
	}
	return 0, k.mem.Pack(a.Ptr(1), &abi.Timespec{Nsec: 1})
}
