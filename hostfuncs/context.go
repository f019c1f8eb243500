package hostfuncs

import (
	"context"
)

// HostContext wraps a standard context.Context with the name and kind of the
// import being invoked, so middleware can tell calls apart.
type HostContext interface {
	context.Context

	// FunctionName returns the name of the import being invoked.
	FunctionName() string

	// EntryKind returns the kind of the invoked entry.
	EntryKind() Kind
}

type hostContext struct {
	context.Context
	funcName string
	kind     Kind
}

// NewHostContext creates a new HostContext wrapping the given context.
func NewHostContext(ctx context.Context, funcName string, kind Kind) HostContext {
	return &hostContext{
		Context:  ctx,
		funcName: funcName,
		kind:     kind,
	}
}

func (c *hostContext) FunctionName() string {
	return c.funcName
}

func (c *hostContext) EntryKind() Kind {
	return c.kind
}

// HostContextFrom extracts a HostContext from a context.Context.
// If the context is already a HostContext, it is returned directly.
// Otherwise, a new HostContext is created wrapping the given context.
func HostContextFrom(ctx context.Context, funcName string, kind Kind) HostContext {
	if hc, ok := ctx.(HostContext); ok {
		return hc
	}
	return NewHostContext(ctx, funcName, kind)
}
