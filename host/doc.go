// Package host runs guests against the pseudo-kernel.
//
// It owns the wazero runtime, loads run manifests, links each guest against
// the import registry, invokes the entry point and classifies how the
// invocation ended: a normal return, exit, abort, or a call into a feature
// that is never emulated.
package host
