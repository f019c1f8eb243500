package kernel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	kerrors "github.com/reglet-dev/pseudokernel/domain/errors"
	"github.com/reglet-dev/pseudokernel/domain/ports"
	"github.com/reglet-dev/pseudokernel/internal/abi"
	"github.com/reglet-dev/pseudokernel/vfs"
)

// Kernel is the emulation context of one guest instance. It is not safe for
// concurrent use; the guest calls back into it synchronously.
type Kernel struct {
	cfg   kernelConfig
	log   *slog.Logger
	mem   *abi.Accessor
	files *vfs.Table

	brk     uint32
	out     map[ports.Stream][]byte
	signals map[int32][abi.SigactionSize]byte
	tls     map[int32]int32
	nextKey int32

	// halted holds the Terminate signal once the guest asked to stop.
	halted *kerrors.TerminateError
}

// New returns a kernel with no memory attached.
func New(opts ...Option) *Kernel {
	cfg := defaultKernelConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.sink == nil {
		cfg.sink = ports.LineSinkFunc(func(stream ports.Stream, line string) error {
			logger.Info(line, "stream", stream.String())
			return nil
		})
	}

	return &Kernel{
		cfg:     cfg,
		log:     logger,
		mem:     abi.NewAccessor(),
		files:   vfs.NewTable(cfg.files, vfs.WithReadAdvance(cfg.readAdvance)),
		out:     make(map[ports.Stream][]byte),
		signals: make(map[int32][abi.SigactionSize]byte),
		tls:     make(map[int32]int32),
	}
}

// Attach binds the instance memory. The program break starts at the
// memory's current end.
func (k *Kernel) Attach(mem abi.Memory) {
	k.mem.Attach(mem)
	k.brk = k.mem.Size()
}

// Memory returns the accessor over guest memory.
func (k *Kernel) Memory() *abi.Accessor {
	return k.mem
}

// Files returns the descriptor table.
func (k *Kernel) Files() *vfs.Table {
	return k.files
}

// Logger returns the diagnostics logger.
func (k *Kernel) Logger() *slog.Logger {
	return k.log
}

// PID returns the emulated process id.
func (k *Kernel) PID() int32 {
	return k.cfg.pid
}

// TID returns the emulated thread id.
func (k *Kernel) TID() int32 {
	return k.cfg.tid
}

// Tracing reports whether per-call diagnostics are on.
func (k *Kernel) Tracing() bool {
	return k.cfg.trace
}

// Halted returns the Terminate signal raised earlier, or nil.
func (k *Kernel) Halted() error {
	if k.halted == nil {
		return nil
	}
	return k.halted
}

// Enter is called at the start of every host function. It refreshes the
// memory view, since the guest may have grown memory on its own since the
// last call, and reports a pending termination.
func (k *Kernel) Enter() error {
	if k.halted != nil {
		return k.halted
	}
	k.mem.Sync()
	return nil
}

// Dispatch routes one __syscallN call. Missing handlers yield -1.
// Recoverable errors become negative errno values. The returned error is
// only ever a Signal.
func (k *Kernel) Dispatch(ctx context.Context, nr int32, args ...int32) (int32, error) {
	if err := k.Enter(); err != nil {
		return 0, err
	}

	var a Args
	copy(a[:], args)

	if k.cfg.trace {
		k.log.DebugContext(ctx, "syscall", "name", SyscallName(nr), "nr", nr, "args", args)
	}

	sc, ok := syscalls[nr]
	if !ok {
		k.log.WarnContext(ctx, "unimplemented syscall", "name", SyscallName(nr), "nr", nr, "args", args)
		return -1, nil
	}

	ret, err := sc(k, ctx, a)
	if err == nil {
		return ret, nil
	}
	if kerrors.IsSignal(err) {
		var term *kerrors.TerminateError
		if errors.As(err, &term) {
			k.halted = term
		}
		return 0, err
	}

	errno := kerrors.Errno(err)
	if errors.Is(err, kerrors.ErrOutOfBounds) {
		k.log.ErrorContext(ctx, "syscall touched memory out of bounds",
			"name", SyscallName(nr), "nr", nr, "error", err)
	} else if k.cfg.trace {
		k.log.DebugContext(ctx, "syscall failed", "name", SyscallName(nr), "errno", errno, "error", err)
	}
	return errno, nil
}

// Args are the six syscall arguments after the number. Missing trailing
// arguments are zero.
type Args [6]int32

// Ptr reinterprets argument i as a guest address.
func (a Args) Ptr(i int) uint32 {
	return uint32(a[i]) //nolint:gosec // G115: wasm32 addresses are the raw bits
}

// U32 reinterprets argument i as unsigned.
func (a Args) U32(i int) uint32 {
	return uint32(a[i]) //nolint:gosec // G115: reinterpretation is intended
}

func (k *Kernel) readPath(ptr uint32) (string, error) {
	p, err := k.mem.ReadString(ptr, -1)
	if err != nil {
		return "", fmt.Errorf("path argument: %w", err)
	}
	return p, nil
}
