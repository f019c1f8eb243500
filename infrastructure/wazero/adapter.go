package wazero

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	kerrors "github.com/reglet-dev/pseudokernel/domain/errors"
	"github.com/reglet-dev/pseudokernel/hostfuncs"
	"github.com/reglet-dev/pseudokernel/internal/wasmbin"
	"github.com/reglet-dev/pseudokernel/kernel"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// AdapterConfig holds configuration for the wazero adapter.
type AdapterConfig struct {
	// ModuleName is the host module name (default: "pseudokernel_host").
	ModuleName string

	// LinkModule is the module name the guest imports from (default: "env").
	LinkModule string

	// AutoStub turns guest imports the registry does not know into
	// unimplemented stubs instead of failing the link.
	AutoStub bool

	// CustomHandlers take precedence over registry entries of the same name.
	CustomHandlers []CustomHandler

	// Logger receives link diagnostics (default: slog.Default()).
	Logger *slog.Logger
}

// CustomHandler is a raw wazero function exposed to the guest. Its
// signature must match the guest's import declaration.
type CustomHandler struct {
	// Name is the exported function name.
	Name string

	// Handler is the wazero GoModuleFunc implementation.
	Handler api.GoModuleFunc

	// ParamTypes are the WASM parameter types.
	ParamTypes []api.ValueType

	// ResultTypes are the WASM result types.
	ResultTypes []api.ValueType
}

// AdapterOption configures the adapter.
type AdapterOption func(*AdapterConfig)

// WithModuleName sets the host module name (default: "pseudokernel_host").
func WithModuleName(name string) AdapterOption {
	return func(c *AdapterConfig) {
		c.ModuleName = name
	}
}

// WithLinkModule sets the module name guest imports are resolved from.
func WithLinkModule(name string) AdapterOption {
	return func(c *AdapterConfig) {
		c.LinkModule = name
	}
}

// WithAutoStub enables or disables stubbing of unknown imports.
func WithAutoStub(enabled bool) AdapterOption {
	return func(c *AdapterConfig) {
		c.AutoStub = enabled
	}
}

// WithCustomHandler adds a custom wazero handler.
func WithCustomHandler(h CustomHandler) AdapterOption {
	return func(c *AdapterConfig) {
		c.CustomHandlers = append(c.CustomHandlers, h)
	}
}

// WithLogger sets the logger for link diagnostics.
func WithLogger(logger *slog.Logger) AdapterOption {
	return func(c *AdapterConfig) {
		c.Logger = logger
	}
}

// defaultAdapterConfig returns the default adapter configuration.
func defaultAdapterConfig() AdapterConfig {
	return AdapterConfig{
		ModuleName: "pseudokernel_host",
		LinkModule: "env",
		Logger:     slog.Default(),
	}
}

// Binding is the result of a successful Link.
type Binding struct {
	// Host is the instantiated host function module.
	Host api.Module

	// Env is the instantiated link module.
	Env api.Module

	// Memory is the memory defined by the link module, or nil when the
	// guest defines its own.
	Memory api.Memory

	// Stubbed lists imports that were auto-stubbed, in name order.
	Stubbed []string
}

// importedFunc is one function the guest imports from the link module.
type importedFunc struct {
	name    string
	params  []api.ValueType
	results []api.ValueType
}

// Link registers every function the guest imports from the link module,
// then instantiates the link module. The kernel is attached to the link
// module's memory when the guest imports its memory; otherwise the caller
// attaches the guest's exported memory after instantiating it.
func Link(ctx context.Context, runtime wazero.Runtime, guest wazero.CompiledModule,
	registry *hostfuncs.Registry, k *kernel.Kernel, opts ...AdapterOption,
) (*Binding, error) {
	cfg := defaultAdapterConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	funcs, err := guestImports(guest, cfg.LinkModule)
	if err != nil {
		return nil, err
	}

	custom := make(map[string]CustomHandler, len(cfg.CustomHandlers))
	for _, ch := range cfg.CustomHandlers {
		custom[ch.Name] = ch
	}

	binding := &Binding{}
	var missing []string
	builder := runtime.NewHostModuleBuilder(cfg.ModuleName)

	for _, f := range funcs {
		if ch, ok := custom[f.name]; ok {
			builder.NewFunctionBuilder().
				WithGoModuleFunction(ch.Handler, ch.ParamTypes, ch.ResultTypes).
				Export(f.name)
			continue
		}

		var (
			h    hostfuncs.Handler
			kind hostfuncs.Kind
		)
		entry, ok := registry.Lookup(f.name)
		switch {
		case ok && !entry.Callable():
			return nil, fmt.Errorf("import %q is a global, guest declares it as a function", f.name)
		case ok:
			h, _ = registry.Handler(f.name)
			kind = entry.Kind
		case cfg.AutoStub:
			h = registry.Stub(f.name)
			kind = hostfuncs.KindUnimplemented
			binding.Stubbed = append(binding.Stubbed, f.name)
		default:
			missing = append(missing, f.name)
			continue
		}

		builder.NewFunctionBuilder().
			WithGoModuleFunction(hostFunction(k, f, kind, h), f.params, f.results).
			WithName(f.name).
			Export(f.name)
	}

	if len(missing) > 0 {
		return nil, &kerrors.LinkError{Module: cfg.LinkModule, Missing: missing}
	}
	if len(binding.Stubbed) > 0 {
		cfg.Logger.WarnContext(ctx, "wazero: auto-stubbed unknown imports", "count", len(binding.Stubbed), "names", binding.Stubbed)
	}

	host, err := builder.Instantiate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate host module: %w", err)
	}
	binding.Host = host

	link, memName := buildLinkModule(cfg.ModuleName, funcs, registry.Globals(), guest, cfg.LinkModule)
	linkBin, err := link.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to build link module: %w", err)
	}
	env, err := runtime.InstantiateWithConfig(ctx, linkBin, wazero.NewModuleConfig().WithName(cfg.LinkModule))
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate link module: %w", err)
	}
	binding.Env = env

	if memName != "" {
		binding.Memory = env.ExportedMemory(memName)
		k.Attach(binding.Memory)
	}
	return binding, nil
}

// hostFunction adapts a registry handler to wazero's stack calling
// convention. Any error, Signal or not, unwinds the guest by panic.
func hostFunction(k *kernel.Kernel, f importedFunc, kind hostfuncs.Kind, h hostfuncs.Handler) api.GoModuleFunc {
	nParams := len(f.params)
	hasResult := len(f.results) > 0
	name := f.name
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		if !k.Memory().Attached() {
			if mem := mod.Memory(); mem != nil {
				k.Attach(mem)
			}
		}
		ret, err := hostfuncs.Call(ctx, k, name, kind, h, stack[:nParams])
		if err != nil {
			panic(err)
		}
		if hasResult {
			stack[0] = ret
		}
	}
}

// guestImports lists the functions the guest imports from module, sorted
// and deduplicated by name.
func guestImports(guest wazero.CompiledModule, module string) ([]importedFunc, error) {
	seen := make(map[string]importedFunc)
	for _, def := range guest.ImportedFunctions() {
		mod, name, ok := def.Import()
		if !ok || mod != module {
			continue
		}
		f := importedFunc{name: name, params: def.ParamTypes(), results: def.ResultTypes()}
		if prev, dup := seen[name]; dup {
			if !sameTypes(prev.params, f.params) || !sameTypes(prev.results, f.results) {
				return nil, fmt.Errorf("import %q declared with conflicting signatures", name)
			}
			continue
		}
		seen[name] = f
	}

	funcs := make([]importedFunc, 0, len(seen))
	for _, f := range seen {
		funcs = append(funcs, f)
	}
	sort.Slice(funcs, func(i, j int) bool { return funcs[i].name < funcs[j].name })
	return funcs, nil
}

func sameTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// buildLinkModule generates the module the guest links against. Globals are
// always exported because wazero does not report imported globals.
func buildLinkModule(hostModule string, funcs []importedFunc, globals []hostfuncs.Entry,
	guest wazero.CompiledModule, linkModule string,
) (*wasmbin.Module, string) {
	link := &wasmbin.Module{}
	for _, f := range funcs {
		idx := link.ImportFunc(hostModule, f.name, wasmbin.FuncType{
			Params:  valTypes(f.params),
			Results: valTypes(f.results),
		})
		link.AddExport(f.name, wasmbin.ExternFunc, idx)
	}

	for _, g := range globals {
		idx := link.AddGlobal(wasmbin.GlobalType{Val: wasmbin.I32}, int64(g.Value))
		link.AddExport(g.Name, wasmbin.ExternGlobal, idx)
	}

	var memName string
	for _, def := range guest.ImportedMemories() {
		mod, name, ok := def.Import()
		if !ok || mod != linkModule {
			continue
		}
		limits := wasmbin.Limits{Min: def.Min()}
		if maxPages, ok := def.Max(); ok {
			limits.Max, limits.HasMax = maxPages, true
		}
		idx := link.AddMemory(limits)
		link.AddExport(name, wasmbin.ExternMemory, idx)
		memName = name
		break
	}
	return link, memName
}

func valTypes(in []api.ValueType) []wasmbin.ValType {
	out := make([]wasmbin.ValType, len(in))
	for i, t := range in {
		out[i] = wasmbin.ValType(t)
	}
	return out
}
