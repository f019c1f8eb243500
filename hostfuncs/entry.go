package hostfuncs

import (
	"context"
	"fmt"

	kerrors "github.com/reglet-dev/pseudokernel/domain/errors"
	"github.com/reglet-dev/pseudokernel/kernel"
)

// Handler implements a callable import. args are the raw engine values in
// declaration order; i32 arguments occupy the low 32 bits. The result is
// ignored for imports declared without one. A non-nil error is either a
// Signal, which unwinds the guest, or a host failure.
type Handler func(ctx context.Context, k *kernel.Kernel, args []uint64) (uint64, error)

// Kind tags an Entry.
type Kind int

// Entry kinds.
const (
	KindUnimplemented Kind = iota
	KindNoOp
	KindSpecial
	KindGlobal
)

func (k Kind) String() string {
	switch k {
	case KindUnimplemented:
		return "unimplemented"
	case KindNoOp:
		return "noop"
	case KindSpecial:
		return "special"
	case KindGlobal:
		return "global"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Entry is one named import.
type Entry struct {
	Name string
	Kind Kind

	// Value is the result of a NoOp or the content of a Global.
	Value int32

	// Handler is set for KindSpecial only.
	Handler Handler
}

// Unimplemented names an import that is deliberately never emulated.
func Unimplemented(name string) Entry {
	return Entry{Name: name, Kind: KindUnimplemented}
}

// NoOp names an import that returns value and changes nothing.
func NoOp(name string, value int32) Entry {
	return Entry{Name: name, Kind: KindNoOp, Value: value}
}

// Special names an import backed by h.
func Special(name string, h Handler) Entry {
	return Entry{Name: name, Kind: KindSpecial, Handler: h}
}

// Global names an immutable i32 data symbol.
func Global(name string, value int32) Entry {
	return Entry{Name: name, Kind: KindGlobal, Value: value}
}

// Callable reports whether the entry is a function.
func (e Entry) Callable() bool {
	return e.Kind != KindGlobal
}

// handler returns the unwrapped behavior of a callable entry.
func (e Entry) handler() Handler {
	switch e.Kind {
	case KindNoOp:
		v := EncodeI32(e.Value)
		return func(context.Context, *kernel.Kernel, []uint64) (uint64, error) {
			return v, nil
		}
	case KindSpecial:
		return e.Handler
	default:
		name := e.Name
		return func(ctx context.Context, k *kernel.Kernel, _ []uint64) (uint64, error) {
			k.Logger().ErrorContext(ctx, "not yet implemented", "function", name)
			return 0, &kerrors.NotImplementedError{Name: name}
		}
	}
}

func (e Entry) validate() error {
	if e.Name == "" {
		return fmt.Errorf("entry name cannot be empty")
	}
	if e.Kind == KindSpecial && e.Handler == nil {
		return fmt.Errorf("special entry %q has no handler", e.Name)
	}
	return nil
}

// ArgI32 returns argument i as a signed i32, or 0 when the import declares
// fewer arguments.
func ArgI32(args []uint64, i int) int32 {
	if i >= len(args) {
		return 0
	}
	return int32(uint32(args[i])) //nolint:gosec // G115: low 32 bits hold the i32
}

// EncodeI32 packs an i32 result the way engines expect it on the stack.
func EncodeI32(v int32) uint64 {
	return uint64(uint32(v)) //nolint:gosec // G115: reinterpretation is intended
}
