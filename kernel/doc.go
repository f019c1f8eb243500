// Package kernel emulates the slice of a Linux i386 kernel that a musl guest
// running in wasm32 reaches through its __syscallN imports.
//
// A Kernel is the emulation context of one guest instance. It owns the
// memory accessor, the descriptor table, the program break, the output
// buffers, the signal action table and the thread-local storage map. Nothing
// is process-wide, so independent instances never observe each other.
//
// Handlers report recoverable failures as errors from domain/errors and
// Dispatch turns them into negative errno results. Terminate and
// NotImplemented signals are returned untouched so the engine adapter can
// unwind the guest.
package kernel
