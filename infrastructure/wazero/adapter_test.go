package wazero

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	kerrors "github.com/reglet-dev/pseudokernel/domain/errors"
	"github.com/reglet-dev/pseudokernel/domain/ports"
	"github.com/reglet-dev/pseudokernel/hostfuncs"
	"github.com/reglet-dev/pseudokernel/internal/wasmbin"
	"github.com/reglet-dev/pseudokernel/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

var (
	i32x1  = []wasmbin.ValType{wasmbin.I32}
	i32x2  = []wasmbin.ValType{wasmbin.I32, wasmbin.I32}
	i32x4  = []wasmbin.ValType{wasmbin.I32, wasmbin.I32, wasmbin.I32, wasmbin.I32}
	retI32 = wasmbin.FuncType{Results: i32x1}
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type lines []string

func (l *lines) WriteLine(_ ports.Stream, text string) error {
	*l = append(*l, text)
	return nil
}

type env struct {
	rt  wazero.Runtime
	k   *kernel.Kernel
	out *lines
	reg *hostfuncs.Registry
}

func newEnv(t *testing.T, opts ...hostfuncs.RegistryOption) *env {
	t.Helper()
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	t.Cleanup(func() { _ = rt.Close(ctx) })

	out := &lines{}
	reg, err := hostfuncs.NewRegistry(append([]hostfuncs.RegistryOption{
		hostfuncs.WithBundle(hostfuncs.DefaultBundles()),
	}, opts...)...)
	require.NoError(t, err)

	return &env{
		rt:  rt,
		k:   kernel.New(kernel.WithLogger(quietLogger()), kernel.WithSink(out)),
		out: out,
		reg: reg,
	}
}

// instantiate links and instantiates guest, attaching its exported memory
// when the link module did not provide one.
func (e *env) instantiate(t *testing.T, guest *wasmbin.Module, opts ...AdapterOption) (api.Module, *Binding) {
	t.Helper()
	ctx := context.Background()
	compiled, err := e.rt.CompileModule(ctx, guest.MustEncode())
	require.NoError(t, err)

	opts = append([]AdapterOption{WithLogger(quietLogger())}, opts...)
	binding, err := Link(ctx, e.rt, compiled, e.reg, e.k, opts...)
	require.NoError(t, err)

	mod, err := e.rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("guest"))
	require.NoError(t, err)
	if binding.Memory == nil {
		e.k.Attach(mod.ExportedMemory("memory"))
	}
	return mod, binding
}

func TestDefaultAdapterConfig(t *testing.T) {
	cfg := defaultAdapterConfig()
	assert.Equal(t, "pseudokernel_host", cfg.ModuleName)
	assert.Equal(t, "env", cfg.LinkModule)
	assert.False(t, cfg.AutoStub)
	assert.NotNil(t, cfg.Logger)
}

func TestAdapterOptions(t *testing.T) {
	cfg := defaultAdapterConfig()
	for _, opt := range []AdapterOption{
		WithModuleName("custom_host"),
		WithLinkModule("libc"),
		WithAutoStub(true),
		WithCustomHandler(CustomHandler{Name: "a"}),
		WithCustomHandler(CustomHandler{Name: "b"}),
	} {
		opt(&cfg)
	}
	assert.Equal(t, "custom_host", cfg.ModuleName)
	assert.Equal(t, "libc", cfg.LinkModule)
	assert.True(t, cfg.AutoStub)
	require.Len(t, cfg.CustomHandlers, 2)
	assert.Equal(t, "b", cfg.CustomHandlers[1].Name)
}

func TestLink_SyscallWritesLine(t *testing.T) {
	e := newEnv(t)

	var guest wasmbin.Module
	sc3 := guest.ImportFunc("env", "__syscall3", wasmbin.FuncType{Params: i32x4, Results: i32x1})
	mem := guest.AddMemory(wasmbin.Limits{Min: 1})
	guest.AddData(16, []byte("hi\n"))
	main := guest.AddFunc(retI32, nil,
		wasmbin.Code{}.I32Const(4).I32Const(1).I32Const(16).I32Const(3).Call(sc3))
	guest.AddExport("memory", wasmbin.ExternMemory, mem)
	guest.AddExport("main", wasmbin.ExternFunc, main)

	mod, binding := e.instantiate(t, &guest)
	assert.Nil(t, binding.Memory)
	assert.Empty(t, binding.Stubbed)

	res, err := mod.ExportedFunction("main").Call(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), res[0])
	assert.Equal(t, lines{"hi"}, *e.out)
}

func TestLink_ExitUnwindsGuest(t *testing.T) {
	e := newEnv(t)
	calls := 0
	e.reg, _ = hostfuncs.NewRegistry(
		hostfuncs.WithBundle(hostfuncs.SyscallBundle()),
		hostfuncs.WithEntry(hostfuncs.Special("probe", func(context.Context, *kernel.Kernel, []uint64) (uint64, error) {
			calls++
			return 0, nil
		})),
	)

	var guest wasmbin.Module
	sc1 := guest.ImportFunc("env", "__syscall1", wasmbin.FuncType{Params: i32x2, Results: i32x1})
	probe := guest.ImportFunc("env", "probe", wasmbin.FuncType{})
	mem := guest.AddMemory(wasmbin.Limits{Min: 1})
	main := guest.AddFunc(retI32, nil,
		wasmbin.Code{}.I32Const(1).I32Const(7).Call(sc1).Drop().Call(probe).I32Const(0))
	guest.AddExport("memory", wasmbin.ExternMemory, mem)
	guest.AddExport("main", wasmbin.ExternFunc, main)

	mod, _ := e.instantiate(t, &guest)
	_, err := mod.ExportedFunction("main").Call(context.Background())
	require.Error(t, err)

	var term *kerrors.TerminateError
	require.True(t, errors.As(err, &term), "got %v", err)
	assert.Equal(t, int32(7), term.Code)
	assert.Zero(t, calls, "code after exit never runs")
}

func TestLink_MissingImport(t *testing.T) {
	e := newEnv(t)

	var guest wasmbin.Module
	guest.ImportFunc("env", "dlopen", wasmbin.FuncType{Params: i32x2, Results: i32x1})
	guest.ImportFunc("env", "getpwnam", wasmbin.FuncType{Params: i32x1, Results: i32x1})
	guest.ImportFunc("env", "sem_post", wasmbin.FuncType{Params: i32x1, Results: i32x1})
	guest.ImportFunc("env", "socket", wasmbin.FuncType{Params: i32x2, Results: i32x1})

	compiled, err := e.rt.CompileModule(context.Background(), guest.MustEncode())
	require.NoError(t, err)

	_, err = Link(context.Background(), e.rt, compiled, e.reg, e.k, WithLogger(quietLogger()))
	var linkErr *kerrors.LinkError
	require.ErrorAs(t, err, &linkErr)
	assert.Equal(t, "env", linkErr.Module)
	assert.Equal(t, []string{"dlopen", "getpwnam"}, linkErr.Missing)
}

func TestLink_AutoStub(t *testing.T) {
	e := newEnv(t)

	var guest wasmbin.Module
	dlopen := guest.ImportFunc("env", "dlopen", wasmbin.FuncType{Results: i32x1})
	mem := guest.AddMemory(wasmbin.Limits{Min: 1})
	main := guest.AddFunc(retI32, nil, wasmbin.Code{}.Call(dlopen))
	guest.AddExport("memory", wasmbin.ExternMemory, mem)
	guest.AddExport("main", wasmbin.ExternFunc, main)

	mod, binding := e.instantiate(t, &guest, WithAutoStub(true))
	assert.Equal(t, []string{"dlopen"}, binding.Stubbed)

	_, err := mod.ExportedFunction("main").Call(context.Background())
	var ni *kerrors.NotImplementedError
	require.ErrorAs(t, err, &ni)
	assert.Equal(t, "dlopen", ni.Name)
}

func TestLink_ImportedMemory(t *testing.T) {
	e := newEnv(t)

	var guest wasmbin.Module
	guest.ImportMemory("env", "memory", wasmbin.Limits{Min: 2, Max: 8, HasMax: true})
	sc1 := guest.ImportFunc("env", "__syscall1", wasmbin.FuncType{Params: i32x2, Results: i32x1})
	main := guest.AddFunc(retI32, nil, wasmbin.Code{}.I32Const(45).I32Const(0).Call(sc1))
	guest.AddExport("main", wasmbin.ExternFunc, main)

	mod, binding := e.instantiate(t, &guest)
	require.NotNil(t, binding.Memory)
	assert.Equal(t, uint32(2*65536), e.k.Memory().Size())

	res, err := mod.ExportedFunction("main").Call(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2*65536), res[0], "brk(0) reports the end of the imported memory")

	maxPages, ok := binding.Memory.Definition().Max()
	require.True(t, ok)
	assert.Equal(t, uint32(8), maxPages)
}

func TestLink_Globals(t *testing.T) {
	e := newEnv(t, hostfuncs.WithEntry(hostfuncs.Global("answer", 42)))

	var guest wasmbin.Module
	answer := guest.ImportGlobal("env", "answer", wasmbin.GlobalType{Val: wasmbin.I32})
	locale := guest.ImportGlobal("env", "__c_locale", wasmbin.GlobalType{Val: wasmbin.I32})
	mem := guest.AddMemory(wasmbin.Limits{Min: 1})
	main := guest.AddFunc(retI32, nil, wasmbin.Code{}.GlobalGet(answer))
	loc := guest.AddFunc(retI32, nil, wasmbin.Code{}.GlobalGet(locale))
	guest.AddExport("memory", wasmbin.ExternMemory, mem)
	guest.AddExport("main", wasmbin.ExternFunc, main)
	guest.AddExport("locale", wasmbin.ExternFunc, loc)

	mod, binding := e.instantiate(t, &guest)

	res, err := mod.ExportedFunction("main").Call(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), res[0])

	res, err = mod.ExportedFunction("locale").Call(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res[0])

	assert.NotNil(t, binding.Env.ExportedGlobal("__c_dot_utf8_locale"))
}

func TestLink_GlobalImportedAsFunction(t *testing.T) {
	e := newEnv(t)

	var guest wasmbin.Module
	guest.ImportFunc("env", "__c_locale", wasmbin.FuncType{Results: i32x1})
	compiled, err := e.rt.CompileModule(context.Background(), guest.MustEncode())
	require.NoError(t, err)

	_, err = Link(context.Background(), e.rt, compiled, e.reg, e.k)
	assert.ErrorContains(t, err, "is a global")
}

func TestLink_CustomHandler(t *testing.T) {
	e := newEnv(t)

	var guest wasmbin.Module
	double := guest.ImportFunc("env", "double", wasmbin.FuncType{Params: i32x1, Results: i32x1})
	mem := guest.AddMemory(wasmbin.Limits{Min: 1})
	main := guest.AddFunc(retI32, nil, wasmbin.Code{}.I32Const(21).Call(double))
	guest.AddExport("memory", wasmbin.ExternMemory, mem)
	guest.AddExport("main", wasmbin.ExternFunc, main)

	mod, _ := e.instantiate(t, &guest, WithCustomHandler(CustomHandler{
		Name: "double",
		Handler: api.GoModuleFunc(func(_ context.Context, _ api.Module, stack []uint64) {
			stack[0] = api.EncodeI32(api.DecodeI32(stack[0]) * 2)
		}),
		ParamTypes:  []api.ValueType{api.ValueTypeI32},
		ResultTypes: []api.ValueType{api.ValueTypeI32},
	}))

	res, err := mod.ExportedFunction("main").Call(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), res[0])
}

func TestLink_TLSAcrossCalls(t *testing.T) {
	e := newEnv(t)

	var guest wasmbin.Module
	create := guest.ImportFunc("env", "pthread_key_create", wasmbin.FuncType{Params: i32x2, Results: i32x1})
	set := guest.ImportFunc("env", "pthread_setspecific", wasmbin.FuncType{Params: i32x2, Results: i32x1})
	get := guest.ImportFunc("env", "pthread_getspecific", wasmbin.FuncType{Params: i32x1, Results: i32x1})
	mem := guest.AddMemory(wasmbin.Limits{Min: 1})
	body := wasmbin.Code{}.
		I32Const(64).I32Const(0).Call(create).Drop().
		I32Const(64).I32Load(0).I32Const(99).Call(set).Drop().
		I32Const(64).I32Load(0).Call(get)
	main := guest.AddFunc(retI32, nil, body)
	guest.AddExport("memory", wasmbin.ExternMemory, mem)
	guest.AddExport("main", wasmbin.ExternFunc, main)

	mod, _ := e.instantiate(t, &guest)
	res, err := mod.ExportedFunction("main").Call(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(99), res[0])
}
