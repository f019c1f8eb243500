package kernel

import (
	"bytes"
	"context"
	"fmt"
	"math"

	kerrors "github.com/reglet-dev/pseudokernel/domain/errors"
	"github.com/reglet-dev/pseudokernel/domain/ports"
	"github.com/reglet-dev/pseudokernel/internal/abi"
)

func stream(fd int32) (ports.Stream, error) {
	switch fd {
	case int32(ports.Stdout):
		return ports.Stdout, nil
	case int32(ports.Stderr):
		return ports.Stderr, nil
	default:
		return 0, fmt.Errorf("write to fd %d: %w", fd, kerrors.ErrInvalidDescriptor)
	}
}

// WriteOutput appends raw bytes to a stream buffer. When the buffer then
// ends in a newline, everything before that final newline goes to the sink
// as one line and the buffer is cleared.
func (k *Kernel) WriteOutput(ctx context.Context, s ports.Stream, b []byte) {
	buf := append(k.out[s], b...)
	if len(buf) > 0 && buf[len(buf)-1] == '\n' {
		k.emit(ctx, s, buf[:len(buf)-1])
		buf = buf[:0]
	}
	k.out[s] = buf
}

// Pending returns the buffered partial line of a stream.
func (k *Kernel) Pending(s ports.Stream) string {
	return string(k.out[s])
}

// FlushOutput emits any partial line left in the buffers. The host calls it
// once the invocation has ended, however it ended.
func (k *Kernel) FlushOutput(ctx context.Context) {
	for _, s := range []ports.Stream{ports.Stdout, ports.Stderr} {
		if buf := k.out[s]; len(buf) > 0 {
			k.emit(ctx, s, buf)
			k.out[s] = buf[:0]
		}
	}
}

func (k *Kernel) emit(ctx context.Context, s ports.Stream, line []byte) {
	if err := k.cfg.sink.WriteLine(s, string(line)); err != nil {
		k.log.ErrorContext(ctx, "failed to emit guest output", "stream", s.String(), "error", err)
	}
}

// maxRWCount caps the bytes one write or writev moves so the count always
// fits the int32 result. Linux uses the same value, MAX_RW_COUNT.
var maxRWCount uint32 = math.MaxInt32 &^ 0xfff

func (k *Kernel) sysWrite(ctx context.Context, a Args) (int32, error) {
	s, err := stream(a[0])
	if err != nil {
		return 0, err
	}
	n := min(a.U32(2), maxRWCount)
	b, err := k.mem.ReadBytes(a.Ptr(1), n)
	if err != nil {
		return 0, err
	}
	k.WriteOutput(ctx, s, b)
	return int32(n), nil //nolint:gosec // G115: n <= maxRWCount
}

// sysWritev gathers every iovec before appending anything, so a bad vector
// leaves the buffer untouched. Vectors past maxRWCount are truncated.
func (k *Kernel) sysWritev(ctx context.Context, a Args) (int32, error) {
	s, err := stream(a[0])
	if err != nil {
		return 0, err
	}
	if a[2] < 0 {
		return 0, fmt.Errorf("writev iovcnt %d: %w", a[2], kerrors.ErrInvalidArgument)
	}

	var gathered bytes.Buffer
	var total uint32
	for i := range a.U32(2) {
		var iov abi.Iovec
		if err := k.mem.Unpack(a.Ptr(1)+i*abi.IovecSize, &iov); err != nil {
			return 0, err
		}
		n := min(iov.Len, maxRWCount-total)
		b, err := k.mem.ReadBytes(iov.Base, n)
		if err != nil {
			return 0, err
		}
		if k.cfg.trace {
			k.log.DebugContext(ctx, "writev", "fd", a[0], "base", iov.Base, "len", iov.Len)
		}
		gathered.Write(b)
		total += n
		if total == maxRWCount {
			break
		}
	}

	k.WriteOutput(ctx, s, gathered.Bytes())
	return int32(total), nil //nolint:gosec // G115: total <= maxRWCount
}
