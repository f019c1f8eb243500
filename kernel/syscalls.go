package kernel

import (
	"context"
	"strconv"

	"github.com/lunixbochs/ghostrace/ghost/sys/num"
)

// i386 syscall numbers with a handler.
const (
	sysExit         int32 = 1
	sysRead         int32 = 3
	sysWrite        int32 = 4
	sysOpen         int32 = 5
	sysClose        int32 = 6
	sysGetpid       int32 = 20
	sysBrk          int32 = 45
	sysIoctl        int32 = 54
	sysGetrlimit    int32 = 76
	sysReadlink     int32 = 85
	sysStat         int32 = 106
	sysLstat        int32 = 107
	sysFstat        int32 = 108
	sysLlseek       int32 = 140
	sysWritev       int32 = 146
	sysRtSigaction  int32 = 174
	sysRtSigprocmsk int32 = 175
	sysGetcwd       int32 = 183
	sysUgetrlimit   int32 = 191
	sysStat64       int32 = 195
	sysLstat64      int32 = 196
	sysFstat64      int32 = 197
	sysGettid       int32 = 224
	sysTkill        int32 = 238
	sysExitGroup    int32 = 252
	sysClockGettime int32 = 265
	sysClockGetres  int32 = 266
	sysTgkill       int32 = 270
	sysOpenat       int32 = 295
	sysPrlimit64    int32 = 340
	sysMembarrier   int32 = 375
)

// handler takes the kernel first so method expressions fit the table.
type handler func(k *Kernel, ctx context.Context, a Args) (int32, error)

// syscalls is the static dispatch table. Every number not listed here
// answers -1.
var syscalls = map[int32]handler{
	sysExit:         (*Kernel).sysExit,
	sysExitGroup:    (*Kernel).sysExit,
	sysRead:         (*Kernel).sysRead,
	sysWrite:        (*Kernel).sysWrite,
	sysOpen:         (*Kernel).sysOpen,
	sysOpenat:       (*Kernel).sysOpenat,
	sysClose:        (*Kernel).sysClose,
	sysGetpid:       func(k *Kernel, _ context.Context, _ Args) (int32, error) { return k.cfg.pid, nil },
	sysGettid:       func(k *Kernel, _ context.Context, _ Args) (int32, error) { return k.cfg.tid, nil },
	sysBrk:          (*Kernel).sysBrk,
	sysIoctl:        noop,
	sysGetrlimit:    noop,
	sysUgetrlimit:   noop,
	sysRtSigprocmsk: noop,
	sysPrlimit64:    noop,
	sysMembarrier:   noop,
	sysReadlink:     (*Kernel).sysReadlink,
	sysStat:         (*Kernel).sysStat,
	sysLstat:        (*Kernel).sysStat,
	sysStat64:       (*Kernel).sysStat,
	sysLstat64:      (*Kernel).sysStat,
	sysFstat:        (*Kernel).sysFstat,
	sysFstat64:      (*Kernel).sysFstat,
	sysLlseek:       (*Kernel).sysLlseek,
	sysWritev:       (*Kernel).sysWritev,
	sysRtSigaction:  (*Kernel).sysRtSigaction,
	sysGetcwd:       (*Kernel).sysGetcwd,
	sysTkill:        (*Kernel).sysTkill,
	sysTgkill:       (*Kernel).sysTgkill,
	sysClockGettime: (*Kernel).sysClockGettime,
	sysClockGetres:  (*Kernel).sysClockGetres,
}

func noop(*Kernel, context.Context, Args) (int32, error) {
	return 0, nil
}

// Handled reports whether nr has a handler.
func Handled(nr int32) bool {
	_, ok := syscalls[nr]
	return ok
}

// SyscallName returns the i386 Linux name of nr, or the number itself.
func SyscallName(nr int32) string {
	if name, ok := num.Linux_x86[int(nr)]; ok {
		return name
	}
	return strconv.Itoa(int(nr))
}
