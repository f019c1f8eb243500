// Package hostfuncs builds the import surface a guest links against.
//
// Every name the guest may import from "env" is an Entry of one of four
// kinds: Unimplemented stubs that stop the guest loudly, NoOp functions that
// return a fixed value, Special functions with real emulation behind them,
// and Global data symbols. A Registry is assembled once from bundles and
// options and never changes afterwards.
//
// Nothing here depends on a WASM engine. Arguments arrive as the engine's
// raw uint64 stack values and results leave the same way; the wazero
// adapter does the binding.
package hostfuncs
