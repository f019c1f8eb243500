package host

import (
	"log/slog"

	"github.com/reglet-dev/pseudokernel/domain/ports"
	"github.com/reglet-dev/pseudokernel/hostfuncs"
	"github.com/reglet-dev/pseudokernel/kernel"
)

// executorConfig holds configuration for the Executor.
type executorConfig struct {
	registry      *hostfuncs.Registry
	unimplemented []string
	kernelOpts    []kernel.Option
	logger        *slog.Logger
	sink          ports.LineSink
	entry         string
	autoStub      bool
}

func defaultExecutorConfig() executorConfig {
	return executorConfig{
		logger: slog.Default(),
		entry:  "main",
	}
}

// Option defines a functional option for configuring the Executor.
type Option func(*executorConfig)

// WithHostFunctions replaces the default import registry.
func WithHostFunctions(registry *hostfuncs.Registry) Option {
	return func(c *executorConfig) {
		c.registry = registry
	}
}

// WithUnimplemented adds names to the default registry that stop the guest
// when called. Ignored when WithHostFunctions is used.
func WithUnimplemented(names ...string) Option {
	return func(c *executorConfig) {
		c.unimplemented = append(c.unimplemented, names...)
	}
}

// WithKernelOptions passes options to every kernel the executor creates.
func WithKernelOptions(opts ...kernel.Option) Option {
	return func(c *executorConfig) {
		c.kernelOpts = append(c.kernelOpts, opts...)
	}
}

// WithLogger sets the logger for the executor and its kernels.
func WithLogger(logger *slog.Logger) Option {
	return func(c *executorConfig) {
		c.logger = logger
	}
}

// WithSink sets where complete guest output lines go.
func WithSink(sink ports.LineSink) Option {
	return func(c *executorConfig) {
		c.sink = sink
	}
}

// WithEntry sets the exported function to invoke (default: "main").
// "main" falls back to "_start" when the guest does not export it.
func WithEntry(name string) Option {
	return func(c *executorConfig) {
		c.entry = name
	}
}

// WithAutoStub turns unknown guest imports into unimplemented stubs.
func WithAutoStub(enabled bool) Option {
	return func(c *executorConfig) {
		c.autoStub = enabled
	}
}
