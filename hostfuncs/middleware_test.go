package hostfuncs

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	kerrors "github.com/reglet-dev/pseudokernel/domain/errors"
	"github.com/reglet-dev/pseudokernel/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPanicRecoveryMiddleware(t *testing.T) {
	k, _, _ := newKernel(t)
	ctx := NewHostContext(context.Background(), "boom", KindSpecial)

	t.Run("plain panic becomes error", func(t *testing.T) {
		h := PanicRecoveryMiddleware()(func(context.Context, *kernel.Kernel, []uint64) (uint64, error) {
			panic("test panic")
		})
		_, err := h(ctx, k, nil)

		var pe *PanicError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "boom", pe.Function)
		assert.Contains(t, err.Error(), "test panic")
	})

	t.Run("signal panic passes through", func(t *testing.T) {
		term := &kerrors.TerminateError{Code: 3}
		h := PanicRecoveryMiddleware()(func(context.Context, *kernel.Kernel, []uint64) (uint64, error) {
			panic(term)
		})
		_, err := h(ctx, k, nil)
		assert.Same(t, term, err)
	})

	t.Run("no panic", func(t *testing.T) {
		h := PanicRecoveryMiddleware()(func(context.Context, *kernel.Kernel, []uint64) (uint64, error) {
			return 11, nil
		})
		ret, err := h(ctx, k, nil)
		require.NoError(t, err)
		assert.Equal(t, uint64(11), ret)
	})
}

func TestLoggingMiddleware(t *testing.T) {
	k, _, _ := newKernel(t)
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	tests := []struct {
		name    string
		err     error
		wantLog []string
	}{
		{"success", nil, []string{"invoking host function", "function=probe"}},
		{"failure", errors.New("bad"), []string{"level=WARN", "host function failed", "error=bad"}},
		{"signal", &kerrors.NotImplementedError{Name: "probe"}, []string{"host function raised signal"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			h := LoggingMiddleware(logger)(func(context.Context, *kernel.Kernel, []uint64) (uint64, error) {
				return 0, tt.err
			})
			_, err := h(NewHostContext(context.Background(), "probe", KindSpecial), k, nil)
			assert.Equal(t, tt.err, err)
			for _, want := range tt.wantLog {
				assert.Contains(t, buf.String(), want)
			}
		})
	}
}

func TestTraceMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	h := TraceMiddleware()(func(context.Context, *kernel.Kernel, []uint64) (uint64, error) {
		return EncodeI32(-2), nil
	})

	t.Run("special call traced", func(t *testing.T) {
		buf.Reset()
		k := kernel.New(kernel.WithLogger(logger), kernel.WithTrace(true))
		ret, err := h(NewHostContext(context.Background(), "pthread_getspecific", KindSpecial), k, []uint64{1})
		require.NoError(t, err)
		assert.Equal(t, EncodeI32(-2), ret)
		assert.Contains(t, buf.String(), "function=pthread_getspecific")
		assert.Contains(t, buf.String(), "result=-2")
	})

	t.Run("noop not traced", func(t *testing.T) {
		buf.Reset()
		k := kernel.New(kernel.WithLogger(logger), kernel.WithTrace(true))
		_, err := h(NewHostContext(context.Background(), "sem_wait", KindNoOp), k, nil)
		require.NoError(t, err)
		assert.Empty(t, buf.String())
	})

	t.Run("tracing disabled", func(t *testing.T) {
		buf.Reset()
		k := kernel.New(kernel.WithLogger(logger))
		_, err := h(NewHostContext(context.Background(), "pthread_getspecific", KindSpecial), k, nil)
		require.NoError(t, err)
		assert.Empty(t, buf.String())
	})
}
