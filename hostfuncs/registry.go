package hostfuncs

import (
	"context"
	"fmt"
	"sort"

	"github.com/reglet-dev/pseudokernel/kernel"
)

// Registry is an immutable table of import entries.
// Once created via NewRegistry, entries cannot be added or removed.
// This ensures lock-free lookups during execution.
type Registry struct {
	entries    map[string]Entry
	handlers   map[string]Handler
	names      []string // sorted for consistent iteration
	middleware []Middleware
}

// registryBuilder accumulates configuration during registry construction.
type registryBuilder struct {
	entries    map[string]Entry
	middleware []Middleware
	errors     []error
}

// NewRegistry creates an immutable Registry with the given options.
// Returns an error if any name is empty or registered twice.
//
// Example usage:
//
//	registry, err := NewRegistry(
//	    WithMiddleware(PanicRecoveryMiddleware()),
//	    WithBundle(DefaultBundles()),
//	    WithUnimplemented("dlopen"),
//	)
func NewRegistry(opts ...RegistryOption) (*Registry, error) {
	b := &registryBuilder{
		entries: make(map[string]Entry),
	}

	for _, opt := range opts {
		opt(b)
	}

	if len(b.errors) > 0 {
		return nil, b.errors[0] // Return first error
	}

	names := make([]string, 0, len(b.entries))
	for name := range b.entries {
		names = append(names, name)
	}
	sort.Strings(names)

	r := &Registry{
		entries:    b.entries,
		handlers:   make(map[string]Handler, len(b.entries)),
		names:      names,
		middleware: b.middleware,
	}
	for name, e := range b.entries {
		if e.Callable() {
			r.handlers[name] = r.wrap(e.handler())
		}
	}
	return r, nil
}

// wrap applies middleware in reverse order so the first one wraps outermost.
func (r *Registry) wrap(h Handler) Handler {
	for i := len(r.middleware) - 1; i >= 0; i-- {
		h = r.middleware[i](h)
	}
	return h
}

// Lookup returns the entry registered under name.
func (r *Registry) Lookup(name string) (Entry, bool) {
	e, ok := r.entries[name]
	return e, ok
}

// Has returns true if an entry with the given name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.entries[name]
	return ok
}

// Names returns a sorted list of all registered names.
func (r *Registry) Names() []string {
	result := make([]string, len(r.names))
	copy(result, r.names)
	return result
}

// Globals returns the Global entries in name order.
func (r *Registry) Globals() []Entry {
	var out []Entry
	for _, name := range r.names {
		if e := r.entries[name]; e.Kind == KindGlobal {
			out = append(out, e)
		}
	}
	return out
}

// Handler returns the middleware-wrapped handler for a callable entry.
func (r *Registry) Handler(name string) (Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// Stub returns an Unimplemented handler for a name the registry does not
// know, wrapped with the same middleware as registered entries.
func (r *Registry) Stub(name string) Handler {
	return r.wrap(Unimplemented(name).handler())
}

// Invoke calls the import registered under name. It refreshes the kernel's
// memory view first and refuses to run anything once the guest terminated.
func (r *Registry) Invoke(ctx context.Context, k *kernel.Kernel, name string, args []uint64) (uint64, error) {
	e, ok := r.entries[name]
	if !ok {
		return 0, fmt.Errorf("no import named %q", name)
	}
	h, ok := r.handlers[name]
	if !ok {
		return 0, fmt.Errorf("import %q is a %s, not a function", name, e.Kind)
	}
	return Call(ctx, k, name, e.Kind, h, args)
}

// Call runs h as the import name. Adapters that resolve handlers once at
// link time use it on every call.
func Call(ctx context.Context, k *kernel.Kernel, name string, kind Kind, h Handler, args []uint64) (uint64, error) {
	if err := k.Enter(); err != nil {
		return 0, err
	}
	return h(HostContextFrom(ctx, name, kind), k, args)
}

// addEntry registers an entry. Returns an error if the name is empty or
// already registered.
func (b *registryBuilder) addEntry(e Entry) error {
	if e.Name == "" {
		return fmt.Errorf("handler name cannot be empty")
	}
	if _, exists := b.entries[e.Name]; exists {
		return fmt.Errorf("duplicate handler name: %q", e.Name)
	}
	if err := e.validate(); err != nil {
		return err
	}
	b.entries[e.Name] = e
	return nil
}

// WithEntry registers individual entries.
func WithEntry(entries ...Entry) RegistryOption {
	return func(b *registryBuilder) {
		for _, e := range entries {
			if err := b.addEntry(e); err != nil {
				b.errors = append(b.errors, err)
			}
		}
	}
}

// WithUnimplemented registers names that stop the guest when called.
func WithUnimplemented(names ...string) RegistryOption {
	return WithBundle(UnimplementedBundle(names...))
}

// WithMiddleware adds middleware to the registry.
// Middleware executes in FIFO order (first added wraps first).
func WithMiddleware(mw ...Middleware) RegistryOption {
	return func(b *registryBuilder) {
		b.middleware = append(b.middleware, mw...)
	}
}
