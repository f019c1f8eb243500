package kernel

import (
	"context"
	"fmt"

	kerrors "github.com/reglet-dev/pseudokernel/domain/errors"
	"github.com/reglet-dev/pseudokernel/internal/abi"
)

// Signal numbers the emulation cares about.
const (
	SIGABRT int32 = 6
	maxSig  int32 = 64
)

func (k *Kernel) sysExit(ctx context.Context, a Args) (int32, error) {
	if k.cfg.trace {
		k.log.DebugContext(ctx, "exit", "code", a[0])
	}
	return 0, &kerrors.TerminateError{Code: a[0]}
}

func (k *Kernel) sysTkill(ctx context.Context, a Args) (int32, error) {
	return k.kill(ctx, a[0], a[1])
}

func (k *Kernel) sysTgkill(ctx context.Context, a Args) (int32, error) {
	if a[0] != k.cfg.pid {
		return 0, fmt.Errorf("tgkill tgid %d: %w", a[0], kerrors.ErrNoSuchThread)
	}
	return k.kill(ctx, a[1], a[2])
}

// kill only ever delivers SIGABRT to the one thread, which terminates the
// guest. Anything else is refused.
func (k *Kernel) kill(ctx context.Context, tid, sig int32) (int32, error) {
	if tid != k.cfg.tid {
		k.log.ErrorContext(ctx, "kill with wrong tid", "tid", tid, "signal", sig)
		return 0, fmt.Errorf("kill tid %d: %w", tid, kerrors.ErrNoSuchThread)
	}
	if sig != SIGABRT {
		k.log.ErrorContext(ctx, "kill with unsupported signal", "tid", tid, "signal", sig)
		return 0, fmt.Errorf("kill signal %d: %w", sig, kerrors.ErrInvalidArgument)
	}
	k.log.ErrorContext(ctx, "guest raised SIGABRT", "tid", tid)
	return 0, &kerrors.TerminateError{Code: kerrors.AbortExitCode, Abort: true}
}

// Sigaction stores act for sig and copies the previous action to oact.
// Either pointer may be zero. Actions are opaque bytes; nothing is ever
// delivered.
func (k *Kernel) Sigaction(sig int32, act, oact uint32) error {
	if sig < 1 || sig > maxSig {
		return fmt.Errorf("sigaction signal %d: %w", sig, kerrors.ErrInvalidArgument)
	}

	var next []byte
	if act != 0 {
		b, err := k.mem.ReadBytes(act, abi.SigactionSize)
		if err != nil {
			return err
		}
		next = b
	}

	if oact != 0 {
		prev := k.signals[sig]
		if err := k.mem.WriteBytes(oact, prev[:]); err != nil {
			return err
		}
	}

	if next != nil {
		var rec [abi.SigactionSize]byte
		copy(rec[:], next)
		k.signals[sig] = rec
	}
	return nil
}

// sysRtSigaction is rt_sigaction(sig, act, oact, sigsetsize).
func (k *Kernel) sysRtSigaction(ctx context.Context, a Args) (int32, error) {
	if a[3] != abi.SigsetSize {
		k.log.WarnContext(ctx, "sigaction with unexpected mask length", "mask_len", a[3], "want", abi.SigsetSize)
	}
	return 0, k.Sigaction(a[0], a.Ptr(1), a.Ptr(2))
}
