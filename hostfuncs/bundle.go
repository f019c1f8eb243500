package hostfuncs

import (
	"context"

	"github.com/reglet-dev/pseudokernel/kernel"
)

// Bundle is a pre-configured set of related entries.
type Bundle interface {
	Entries() []Entry
}

// staticBundle implements Bundle with a fixed set of entries.
type staticBundle struct {
	entries []Entry
}

func (b *staticBundle) Entries() []Entry {
	return b.entries
}

// syscallEntry routes __syscallN to the kernel dispatcher. The first
// argument is the syscall number.
func syscallEntry(name string) Entry {
	return Special(name, func(ctx context.Context, k *kernel.Kernel, args []uint64) (uint64, error) {
		nr := ArgI32(args, 0)
		rest := make([]int32, 0, 6)
		for i := 1; i < len(args) && i <= 6; i++ {
			rest = append(rest, ArgI32(args, i))
		}
		ret, err := k.Dispatch(ctx, nr, rest...)
		return EncodeI32(ret), err
	})
}

// SyscallBundle returns the raw syscall entry points of a musl guest:
// __syscall0 through __syscall6 and the cancellable __syscall_cp.
func SyscallBundle() Bundle {
	return &staticBundle{
		entries: []Entry{
			syscallEntry("__syscall0"),
			syscallEntry("__syscall1"),
			syscallEntry("__syscall2"),
			syscallEntry("__syscall3"),
			syscallEntry("__syscall4"),
			syscallEntry("__syscall5"),
			syscallEntry("__syscall6"),
			syscallEntry("__syscall_cp"),
		},
	}
}

// ThreadingBundle returns the pthread and semaphore functions a
// single-threaded guest calls but never depends on.
func ThreadingBundle() Bundle {
	names := []string{
		"pthread_mutexattr_init",
		"pthread_mutexattr_settype",
		"pthread_mutexattr_destroy",
		"pthread_mutex_init",
		"pthread_mutex_lock",
		"pthread_mutex_unlock",
		"pthread_condattr_init",
		"pthread_condattr_setclock",
		"pthread_condattr_destroy",
		"pthread_cond_init",
		"pthread_sigmask",
		"_pthread_cleanup_push",
		"_pthread_cleanup_pop",
		"pthread_self",
		"sem_init",
		"sem_wait",
		"sem_post",
	}
	entries := make([]Entry, len(names))
	for i, name := range names {
		entries[i] = NoOp(name, 0)
	}
	return &staticBundle{entries: entries}
}

// TLSBundle returns thread-specific storage backed by the kernel's table.
func TLSBundle() Bundle {
	return &staticBundle{
		entries: []Entry{
			Special("pthread_key_create", func(_ context.Context, k *kernel.Kernel, args []uint64) (uint64, error) {
				return EncodeI32(k.KeyCreate(uint32(ArgI32(args, 0)))), nil //nolint:gosec // G115: guest address
			}),
			Special("pthread_getspecific", func(_ context.Context, k *kernel.Kernel, args []uint64) (uint64, error) {
				return EncodeI32(k.GetSpecific(ArgI32(args, 0))), nil
			}),
			Special("pthread_setspecific", func(_ context.Context, k *kernel.Kernel, args []uint64) (uint64, error) {
				return EncodeI32(k.SetSpecific(ArgI32(args, 0), ArgI32(args, 1))), nil
			}),
		},
	}
}

// LocaleBundle returns musl's locale data symbols. Both point at address 0,
// which the guest treats as the C locale.
func LocaleBundle() Bundle {
	return &staticBundle{
		entries: []Entry{
			Global("__c_locale", 0),
			Global("__c_dot_utf8_locale", 0),
		},
	}
}

// UnimplementedBundle marks names that must stop the guest when called.
func UnimplementedBundle(names ...string) Bundle {
	entries := make([]Entry, len(names))
	for i, name := range names {
		entries[i] = Unimplemented(name)
	}
	return &staticBundle{entries: entries}
}

// baselineUnimplemented lists libc entry points a single-process sandbox
// never emulates. Guests built against full musl import them even when the
// code path is cold.
var baselineUnimplemented = []string{
	// process control
	"fork", "vfork", "execve", "execv", "execvp", "waitpid", "wait4",
	"system", "popen", "pclose", "posix_spawn", "posix_spawnp",
	// networking
	"socket", "socketpair", "connect", "bind", "listen", "accept",
	"send", "sendto", "recv", "recvfrom", "shutdown", "setsockopt",
	"getsockopt", "getaddrinfo", "freeaddrinfo", "gethostbyname",
	// locale
	"setlocale", "newlocale", "freelocale", "uselocale", "duplocale",
	// floating-point environment
	"fegetround", "fesetround", "feclearexcept", "feraiseexcept", "fetestexcept",
}

// BaselineUnimplemented returns the names DefaultBundles registers as
// Unimplemented.
func BaselineUnimplemented() []string {
	return append([]string(nil), baselineUnimplemented...)
}

// compositeBundle combines multiple bundles into one.
type compositeBundle struct {
	bundles []Bundle
}

func (b *compositeBundle) Entries() []Entry {
	var result []Entry
	for _, bundle := range b.bundles {
		result = append(result, bundle.Entries()...)
	}
	return result
}

// DefaultBundles returns every built-in entry: syscalls, threading no-ops,
// thread-local storage, locale globals and the baseline Unimplemented set.
func DefaultBundles() Bundle {
	return &compositeBundle{
		bundles: []Bundle{
			SyscallBundle(),
			ThreadingBundle(),
			TLSBundle(),
			LocaleBundle(),
			UnimplementedBundle(baselineUnimplemented...),
		},
	}
}

// WithBundle registers all entries from a bundle.
func WithBundle(bundle Bundle) RegistryOption {
	return func(b *registryBuilder) {
		for _, e := range bundle.Entries() {
			if err := b.addEntry(e); err != nil {
				b.errors = append(b.errors, err)
			}
		}
	}
}
