package host

import (
	"context"
	"errors"
	"fmt"

	"github.com/reglet-dev/pseudokernel/domain/entities"
	kerrors "github.com/reglet-dev/pseudokernel/domain/errors"
	"github.com/reglet-dev/pseudokernel/hostfuncs"
	adapter "github.com/reglet-dev/pseudokernel/infrastructure/wazero"
	"github.com/reglet-dev/pseudokernel/kernel"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// fallbackEntry is tried when the guest does not export "main".
const fallbackEntry = "_start"

// Executor runs guests. Every run gets a fresh runtime and kernel, so runs
// are independent; compiled code is shared through a compilation cache.
type Executor struct {
	config executorConfig
	cache  wazero.CompilationCache
}

// NewExecutor creates a new executor with the given options.
func NewExecutor(_ context.Context, opts ...Option) (*Executor, error) {
	cfg := defaultExecutorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	// Default registry if not provided
	if cfg.registry == nil {
		reg, err := newDefaultRegistry(cfg, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create default registry: %w", err)
		}
		cfg.registry = reg
	}

	return &Executor{
		config: cfg,
		cache:  wazero.NewCompilationCache(),
	}, nil
}

func newDefaultRegistry(cfg executorConfig, extra []string) (*hostfuncs.Registry, error) {
	return hostfuncs.NewRegistry(
		hostfuncs.WithMiddleware(
			hostfuncs.PanicRecoveryMiddleware(),
			hostfuncs.LoggingMiddleware(cfg.logger),
			hostfuncs.TraceMiddleware(),
		),
		hostfuncs.WithBundle(hostfuncs.DefaultBundles()),
		hostfuncs.WithUnimplemented(dedupe(append(append([]string{}, cfg.unimplemented...), extra...))...),
	)
}

// dedupe drops repeated names and those DefaultBundles already marks
// Unimplemented, so manifests may list them without a conflict.
func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	for _, n := range hostfuncs.BaselineUnimplemented() {
		seen[n] = true
	}
	out := names[:0]
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// Close releases resources held by the executor.
func (e *Executor) Close(ctx context.Context) error {
	return e.cache.Close(ctx)
}

// run is the per-invocation configuration derived from executor defaults
// and, for RunManifest, the manifest.
type run struct {
	registry   *hostfuncs.Registry
	kernelOpts []kernel.Option
	entry      string
	autoStub   bool
}

// Run instantiates the guest and invokes its entry point once.
func (e *Executor) Run(ctx context.Context, guest []byte, opts ...kernel.Option) (entities.Outcome, error) {
	return e.run(ctx, guest, run{
		registry:   e.config.registry,
		kernelOpts: opts,
		entry:      e.config.entry,
		autoStub:   e.config.autoStub,
	})
}

// RunManifest runs a loaded plan. Manifest settings override executor
// defaults.
func (e *Executor) RunManifest(ctx context.Context, plan *Plan) (entities.Outcome, error) {
	m := plan.Manifest
	r := run{
		registry: e.config.registry,
		entry:    e.config.entry,
		autoStub: e.config.autoStub || m.AutoStub,
		kernelOpts: []kernel.Option{
			kernel.WithFileSet(plan.Files),
			kernel.WithTrace(m.Trace),
		},
	}
	if m.Entry != "" {
		r.entry = m.Entry
	}
	if m.PID != 0 {
		r.kernelOpts = append(r.kernelOpts, kernel.WithPID(m.PID))
	}
	if m.TID != 0 {
		r.kernelOpts = append(r.kernelOpts, kernel.WithTID(m.TID))
	}
	if m.ReadAdvance != nil {
		r.kernelOpts = append(r.kernelOpts, kernel.WithReadAdvance(*m.ReadAdvance))
	}
	if len(m.Unimplemented) > 0 {
		reg, err := newDefaultRegistry(e.config, m.Unimplemented)
		if err != nil {
			return entities.Outcome{}, fmt.Errorf("failed to create registry: %w", err)
		}
		r.registry = reg
	}
	return e.run(ctx, plan.Guest, r)
}

func (e *Executor) run(ctx context.Context, guest []byte, r run) (entities.Outcome, error) {
	log := e.config.logger

	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCompilationCache(e.cache))
	defer rt.Close(ctx)

	compiled, err := rt.CompileModule(ctx, guest)
	if err != nil {
		return entities.Outcome{}, fmt.Errorf("failed to compile guest: %w", err)
	}

	kopts := []kernel.Option{kernel.WithLogger(log)}
	if e.config.sink != nil {
		kopts = append(kopts, kernel.WithSink(e.config.sink))
	}
	kopts = append(kopts, e.config.kernelOpts...)
	k := kernel.New(append(kopts, r.kernelOpts...)...)

	if _, err := adapter.Link(ctx, rt, compiled, r.registry, k,
		adapter.WithAutoStub(r.autoStub),
		adapter.WithLogger(log),
	); err != nil {
		return entities.Outcome{}, err
	}

	// Start functions run during instantiation; _start is invoked
	// explicitly like any other entry point.
	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("guest").WithStartFunctions())
	if err != nil {
		return e.finish(ctx, k, nil, fmt.Errorf("failed to instantiate guest: %w", err))
	}

	if !k.Memory().Attached() {
		mem := mod.ExportedMemory("memory")
		if mem == nil {
			return entities.Outcome{}, fmt.Errorf("guest neither imports nor exports a memory")
		}
		k.Attach(mem)
	}

	fn, err := entryPoint(mod, r.entry)
	if err != nil {
		return entities.Outcome{}, err
	}

	log.DebugContext(ctx, "invoking guest", "entry", fn.Definition().ExportNames())
	params := make([]uint64, len(fn.Definition().ParamTypes()))
	results, err := fn.Call(ctx, params...)
	return e.finish(ctx, k, results, err)
}

// finish flushes pending output and classifies the invocation.
func (e *Executor) finish(ctx context.Context, k *kernel.Kernel, results []uint64, err error) (entities.Outcome, error) {
	k.FlushOutput(ctx)

	outcome, cerr := Classify(results, err)
	if cerr != nil {
		return outcome, cerr
	}
	attrs := []any{"outcome", outcome.String(), "exit_code", outcome.ExitCode()}
	if err != nil {
		attrs = append(attrs, "cause", kerrors.ToErrorDetail(err))
	}
	if outcome.Kind == entities.OutcomeNotImplemented {
		e.config.logger.WarnContext(ctx, "guest stopped on missing feature", append(attrs, "feature", outcome.Feature)...)
		return outcome, nil
	}
	e.config.logger.InfoContext(ctx, "guest finished", attrs...)
	return outcome, nil
}

func entryPoint(mod api.Module, name string) (api.Function, error) {
	if fn := mod.ExportedFunction(name); fn != nil {
		return fn, nil
	}
	if name == "main" {
		if fn := mod.ExportedFunction(fallbackEntry); fn != nil {
			return fn, nil
		}
	}
	return nil, fmt.Errorf("export %q not found", name)
}

// Classify turns the result of a guest call into an Outcome. Signals raised
// by host functions arrive wrapped by the engine and are found with
// errors.As; any other error is returned as a host error.
func Classify(results []uint64, err error) (entities.Outcome, error) {
	if err == nil {
		var code int32
		if len(results) > 0 {
			code = api.DecodeI32(results[0])
		}
		return entities.Outcome{Kind: entities.OutcomeReturned, Code: code}, nil
	}

	var term *kerrors.TerminateError
	if errors.As(err, &term) {
		if term.Abort {
			return entities.Outcome{Kind: entities.OutcomeAbort, Code: kerrors.AbortExitCode}, nil
		}
		return entities.Outcome{Kind: entities.OutcomeExit, Code: term.Code}, nil
	}

	var ni *kerrors.NotImplementedError
	if errors.As(err, &ni) {
		return entities.Outcome{
			Kind:    entities.OutcomeNotImplemented,
			Code:    entities.NotImplementedExitCode,
			Feature: ni.Name,
		}, nil
	}

	return entities.Outcome{}, err
}
