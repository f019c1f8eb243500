package hostfuncs

import (
	"context"
	"fmt"
	"log/slog"

	kerrors "github.com/reglet-dev/pseudokernel/domain/errors"
	"github.com/reglet-dev/pseudokernel/kernel"
)

// Middleware is a function that wraps a Handler to add cross-cutting behavior.
// Middleware executes in FIFO order (first registered wraps first, onion model).
//
// Example usage:
//
//	countingMiddleware := func(next Handler) Handler {
//	    return func(ctx context.Context, k *kernel.Kernel, args []uint64) (uint64, error) {
//	        calls++
//	        return next(ctx, k, args)
//	    }
//	}
type Middleware func(next Handler) Handler

// RegistryOption is a functional option for configuring a Registry.
type RegistryOption func(*registryBuilder)

// PanicError is returned when a handler panicked with something other than
// an error carrying a Signal.
type PanicError struct {
	Function string
	Value    any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("host function %s panicked: %v", e.Function, e.Value)
}

// PanicRecoveryMiddleware returns a middleware that turns a handler panic
// into an error instead of crashing the host. Signals raised by panic are
// returned as they are.
func PanicRecoveryMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, k *kernel.Kernel, args []uint64) (ret uint64, err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if e, ok := r.(error); ok && kerrors.IsSignal(e) {
					ret, err = 0, e
					return
				}
				ret, err = 0, &PanicError{Function: functionName(ctx), Value: r}
			}()
			return next(ctx, k, args)
		}
	}
}

// LoggingMiddleware returns a middleware that logs every invocation at
// debug level and failures at warn level. Signals are expected control
// flow and are logged at debug level too.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, k *kernel.Kernel, args []uint64) (uint64, error) {
			name := functionName(ctx)
			logger.DebugContext(ctx, "invoking host function", "function", name)
			ret, err := next(ctx, k, args)
			switch {
			case err == nil:
			case kerrors.IsSignal(err):
				logger.DebugContext(ctx, "host function raised signal", "function", name, "signal", err)
			default:
				logger.WarnContext(ctx, "host function failed", "function", name, "error", err)
			}
			return ret, err
		}
	}
}

// TraceMiddleware logs special-case calls with their arguments when the
// kernel has tracing enabled.
func TraceMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, k *kernel.Kernel, args []uint64) (uint64, error) {
			hc, ok := ctx.(HostContext)
			if !ok || !k.Tracing() || hc.EntryKind() != KindSpecial {
				return next(ctx, k, args)
			}
			ret, err := next(ctx, k, args)
			k.Logger().DebugContext(ctx, "special",
				"function", hc.FunctionName(), "args", args, "result", int32(uint32(ret))) //nolint:gosec // G115: i32 result
			return ret, err
		}
	}
}

func functionName(ctx context.Context) string {
	if hc, ok := ctx.(HostContext); ok {
		return hc.FunctionName()
	}
	return "unknown"
}
