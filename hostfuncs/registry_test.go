package hostfuncs

import (
	"context"
	"io"
	"log/slog"
	"testing"

	kerrors "github.com/reglet-dev/pseudokernel/domain/errors"
	"github.com/reglet-dev/pseudokernel/domain/ports"
	"github.com/reglet-dev/pseudokernel/internal/abi/abitest"
	"github.com/reglet-dev/pseudokernel/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type lines []string

func (l *lines) WriteLine(_ ports.Stream, text string) error {
	*l = append(*l, text)
	return nil
}

func newKernel(t *testing.T, opts ...kernel.Option) (*kernel.Kernel, *abitest.Memory, *lines) {
	t.Helper()
	out := &lines{}
	base := []kernel.Option{kernel.WithLogger(quietLogger()), kernel.WithSink(out)}
	k := kernel.New(append(base, opts...)...)
	mem := abitest.NewMemory(1, 4)
	k.Attach(mem)
	return k, mem, out
}

func TestNewRegistry_Empty(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)
	require.NotNil(t, reg)
	assert.Empty(t, reg.Names())
	assert.Empty(t, reg.Globals())
}

func TestNewRegistry_Errors(t *testing.T) {
	tests := []struct {
		name string
		opts []RegistryOption
		want string
	}{
		{
			name: "duplicate",
			opts: []RegistryOption{WithEntry(NoOp("sem_init", 0)), WithEntry(Unimplemented("sem_init"))},
			want: "duplicate handler name",
		},
		{
			name: "duplicate across bundles",
			opts: []RegistryOption{WithBundle(ThreadingBundle()), WithUnimplemented("pthread_self")},
			want: `"pthread_self"`,
		},
		{
			name: "empty name",
			opts: []RegistryOption{WithEntry(Global("", 1))},
			want: "cannot be empty",
		},
		{
			name: "special without handler",
			opts: []RegistryOption{WithEntry(Entry{Name: "x", Kind: KindSpecial})},
			want: "has no handler",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.opts...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRegistry_LookupAndNames(t *testing.T) {
	reg, err := NewRegistry(
		WithEntry(NoOp("b_noop", 3), Global("a_global", 9)),
		WithUnimplemented("c_missing"),
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"a_global", "b_noop", "c_missing"}, reg.Names())
	assert.True(t, reg.Has("b_noop"))
	assert.False(t, reg.Has("nope"))

	e, ok := reg.Lookup("a_global")
	require.True(t, ok)
	assert.Equal(t, KindGlobal, e.Kind)
	assert.Equal(t, int32(9), e.Value)

	_, ok = reg.Handler("a_global")
	assert.False(t, ok, "globals are not callable")
	_, ok = reg.Handler("b_noop")
	assert.True(t, ok)

	globals := reg.Globals()
	require.Len(t, globals, 1)
	assert.Equal(t, "a_global", globals[0].Name)

	names := reg.Names()
	names[0] = "mutated"
	assert.Equal(t, "a_global", reg.Names()[0])
}

func TestRegistry_InvokeNoOp(t *testing.T) {
	k, _, _ := newKernel(t)
	reg, err := NewRegistry(WithEntry(NoOp("zero", 0), NoOp("neg", -5)))
	require.NoError(t, err)

	ret, err := reg.Invoke(context.Background(), k, "zero", []uint64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), ret)

	ret, err = reg.Invoke(context.Background(), k, "neg", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(-5), int32(uint32(ret)))
}

func TestRegistry_InvokeUnimplemented(t *testing.T) {
	k, _, _ := newKernel(t)
	reg, err := NewRegistry(WithUnimplemented("socket"))
	require.NoError(t, err)

	_, err = reg.Invoke(context.Background(), k, "socket", []uint64{2, 1, 0})
	require.Error(t, err)

	var ni *kerrors.NotImplementedError
	require.ErrorAs(t, err, &ni)
	assert.Equal(t, "socket", ni.Name)
	assert.True(t, kerrors.IsSignal(err))
}

func TestRegistry_InvokeErrors(t *testing.T) {
	k, _, _ := newKernel(t)
	reg, err := NewRegistry(WithBundle(LocaleBundle()))
	require.NoError(t, err)

	_, err = reg.Invoke(context.Background(), k, "missing", nil)
	assert.ErrorContains(t, err, "no import named")

	_, err = reg.Invoke(context.Background(), k, "__c_locale", nil)
	assert.ErrorContains(t, err, "not a function")
}

func TestRegistry_InvokeAfterTerminate(t *testing.T) {
	k, _, _ := newKernel(t)
	calls := 0
	reg, err := NewRegistry(
		WithBundle(SyscallBundle()),
		WithEntry(Special("probe", func(context.Context, *kernel.Kernel, []uint64) (uint64, error) {
			calls++
			return 0, nil
		})),
	)
	require.NoError(t, err)

	_, err = reg.Invoke(context.Background(), k, "__syscall1", []uint64{1, 7})
	var term *kerrors.TerminateError
	require.ErrorAs(t, err, &term)
	assert.Equal(t, int32(7), term.Code)

	_, err = reg.Invoke(context.Background(), k, "probe", nil)
	require.ErrorAs(t, err, &term)
	assert.Zero(t, calls, "no host function runs after termination")
}

func TestRegistry_Stub(t *testing.T) {
	k, _, _ := newKernel(t)
	var seen []string
	mw := func(next Handler) Handler {
		return func(ctx context.Context, k *kernel.Kernel, args []uint64) (uint64, error) {
			seen = append(seen, functionName(ctx))
			return next(ctx, k, args)
		}
	}
	reg, err := NewRegistry(WithMiddleware(mw))
	require.NoError(t, err)

	stub := reg.Stub("fork")
	_, err = Call(context.Background(), k, "fork", KindUnimplemented, stub, nil)

	var ni *kerrors.NotImplementedError
	require.ErrorAs(t, err, &ni)
	assert.Equal(t, "fork", ni.Name)
	assert.Equal(t, []string{"fork"}, seen)
}

func TestRegistry_MiddlewareOrder(t *testing.T) {
	k, _, _ := newKernel(t)
	var order []string
	tag := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, k *kernel.Kernel, args []uint64) (uint64, error) {
				order = append(order, name+":before")
				ret, err := next(ctx, k, args)
				order = append(order, name+":after")
				return ret, err
			}
		}
	}

	reg, err := NewRegistry(
		WithMiddleware(tag("first"), tag("second")),
		WithEntry(NoOp("f", 0)),
	)
	require.NoError(t, err)

	_, err = reg.Invoke(context.Background(), k, "f", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"first:before", "second:before", "second:after", "first:after"}, order)
}

func TestArgI32(t *testing.T) {
	args := []uint64{0xffffffff, 5, 0x1_0000_0002}
	assert.Equal(t, int32(-1), ArgI32(args, 0))
	assert.Equal(t, int32(5), ArgI32(args, 1))
	assert.Equal(t, int32(2), ArgI32(args, 2))
	assert.Equal(t, int32(0), ArgI32(args, 3))

	assert.Equal(t, uint64(0xffffffff), EncodeI32(-1))
}
