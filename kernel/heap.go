package kernel

import (
	"context"
	"fmt"
	"math"

	kerrors "github.com/reglet-dev/pseudokernel/domain/errors"
	"github.com/reglet-dev/pseudokernel/internal/abi"
)

// Break returns the current program break.
func (k *Kernel) Break() uint32 {
	return k.brk
}

// Sbrk moves the program break by increment and returns the new break.
// Zero queries. A positive increment inside the backed memory only moves
// the cursor; past it, memory grows by whole pages first. Shrinking is
// refused with ErrInvalidArgument. On any failure the break is unchanged.
func (k *Kernel) Sbrk(ctx context.Context, increment int32) (uint32, error) {
	if increment == 0 {
		return k.brk, nil
	}
	if increment < 0 {
		return k.brk, fmt.Errorf("brk shrink by %d: %w", -int64(increment), kerrors.ErrInvalidArgument)
	}

	target := uint64(k.brk) + uint64(increment)
	if target > math.MaxUint32 {
		return k.brk, fmt.Errorf("brk to %d: %w", target, kerrors.ErrNoMemory)
	}

	if size := uint64(k.mem.Size()); target > size {
		missing := target - size
		pages := (missing + abi.PageSize - 1) / abi.PageSize
		prev, err := k.mem.Grow(uint32(pages)) //nolint:gosec // G115: bounded by target check
		if err != nil {
			return k.brk, fmt.Errorf("brk grow by %d pages: %w", pages, kerrors.ErrNoMemory)
		}
		if k.cfg.trace {
			k.log.DebugContext(ctx, "grew heap", "pages", pages, "from_pages", prev, "size", k.mem.Size())
		}
	}

	k.brk = uint32(target)
	return k.brk, nil
}

// sysBrk refuses a break the int32 result cannot carry, since the guest
// would read it as an errno.
func (k *Kernel) sysBrk(ctx context.Context, a Args) (int32, error) {
	if target := int64(k.brk) + int64(a[0]); a[0] > 0 && target > math.MaxInt32 {
		return 0, fmt.Errorf("brk to %d: %w", target, kerrors.ErrNoMemory)
	}
	brk, err := k.Sbrk(ctx, a[0])
	if err != nil {
		return 0, err
	}
	return int32(brk), nil //nolint:gosec // G115: checked against MaxInt32 above
}
