// Package wazero links a guest module against a hostfuncs.Registry in a
// wazero runtime.
//
// A guest compiled for musl imports its host surface from a module named
// "env". Link reads the guest's own import declarations, so every host
// function is registered with exactly the signature the guest expects, and
// instantiates two modules:
//
//   - a host module holding one Go function per imported name, and
//   - a small generated wasm module named "env" that re-exports those
//     functions and defines the registry's globals and, when the guest
//     imports one, its linear memory.
//
// wazero host modules cannot define globals or memories, which is why the
// link module exists.
//
// # Basic Usage
//
//	registry, err := hostfuncs.NewRegistry(
//	    hostfuncs.WithBundle(hostfuncs.DefaultBundles()),
//	)
//	if err != nil {
//	    return err
//	}
//
//	compiled, err := runtime.CompileModule(ctx, guestBytes)
//	if err != nil {
//	    return err
//	}
//
//	k := kernel.New()
//	binding, err := wazero.Link(ctx, runtime, compiled, registry, k,
//	    wazero.WithAutoStub(true),
//	)
//
// Host functions unwind the guest by panicking with the Signal they
// received. wazero wraps the panic value with %w, so callers classify the
// error returned from the guest call with errors.As.
package wazero
