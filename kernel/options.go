package kernel

import (
	"log/slog"
	"time"

	"github.com/reglet-dev/pseudokernel/domain/ports"
	"github.com/reglet-dev/pseudokernel/vfs"
)

// DefaultID is the pid and tid reported when none is configured.
const DefaultID int32 = 42

type kernelConfig struct {
	files       *vfs.FileSet
	pid         int32
	tid         int32
	trace       bool
	readAdvance bool
	logger      *slog.Logger
	sink        ports.LineSink
	clock       ports.Clock
}

// Option configures a Kernel.
type Option func(*kernelConfig)

// WithFileSet sets the files the guest may open.
func WithFileSet(files *vfs.FileSet) Option {
	return func(c *kernelConfig) {
		c.files = files
	}
}

// WithPID sets the value getpid returns.
func WithPID(pid int32) Option {
	return func(c *kernelConfig) {
		c.pid = pid
	}
}

// WithTID sets the single thread id. tkill and tgkill only accept this id.
func WithTID(tid int32) Option {
	return func(c *kernelConfig) {
		c.tid = tid
	}
}

// WithTrace logs every dispatch with its name, number and arguments.
func WithTrace(enabled bool) Option {
	return func(c *kernelConfig) {
		c.trace = enabled
	}
}

// WithReadAdvance selects the descriptor read semantics. See vfs.WithReadAdvance.
func WithReadAdvance(advance bool) Option {
	return func(c *kernelConfig) {
		c.readAdvance = advance
	}
}

// WithLogger sets the logger for diagnostics (default: slog.Default()).
func WithLogger(logger *slog.Logger) Option {
	return func(c *kernelConfig) {
		c.logger = logger
	}
}

// WithSink sets where completed guest output lines go.
func WithSink(sink ports.LineSink) Option {
	return func(c *kernelConfig) {
		c.sink = sink
	}
}

// WithClock replaces the wall clock behind clock_gettime.
func WithClock(clock ports.Clock) Option {
	return func(c *kernelConfig) {
		c.clock = clock
	}
}

func defaultKernelConfig() kernelConfig {
	return kernelConfig{
		pid:         DefaultID,
		tid:         DefaultID,
		readAdvance: true,
		clock:       ports.ClockFunc(time.Now),
	}
}
