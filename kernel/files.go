package kernel

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	kerrors "github.com/reglet-dev/pseudokernel/domain/errors"
	"github.com/reglet-dev/pseudokernel/internal/abi"
	"github.com/reglet-dev/pseudokernel/vfs"
)

// atFDCWD is the openat dirfd meaning "relative to the working directory".
const atFDCWD int32 = -100

const (
	blockSize = 512
	ioBlock   = 4096
)

func (k *Kernel) sysOpen(ctx context.Context, a Args) (int32, error) {
	return k.open(ctx, atFDCWD, a.Ptr(0), a.U32(1))
}

func (k *Kernel) sysOpenat(ctx context.Context, a Args) (int32, error) {
	return k.open(ctx, a[0], a.Ptr(1), a.U32(2))
}

func (k *Kernel) open(ctx context.Context, dirfd int32, pathPtr, flags uint32) (int32, error) {
	p, err := k.readPath(pathPtr)
	if err != nil {
		return 0, err
	}
	// Relative paths need the working directory; there are no directory fds.
	if dirfd != atFDCWD && !strings.HasPrefix(p, "/") {
		return 0, fmt.Errorf("openat dirfd %d for %q: %w", dirfd, p, kerrors.ErrInvalidDescriptor)
	}
	fd, err := k.files.Open(p, flags)
	if k.cfg.trace {
		k.log.DebugContext(ctx, "open", "path", p, "flags", fmt.Sprintf("%#o", flags), "fd", fd)
	}
	return fd, err
}

func (k *Kernel) sysRead(ctx context.Context, a Args) (int32, error) {
	fd, buf, n := a[0], a.Ptr(1), a.U32(2)
	if fd == 0 {
		// stdin is always at end of file.
		return 0, nil
	}

	before, err := k.files.Seek(fd, 0, vfs.SeekCur)
	if err != nil {
		return 0, err
	}
	data, err := k.files.Read(fd, n)
	if err != nil {
		return 0, err
	}
	if err := k.mem.WriteBytes(buf, data); err != nil {
		// Nothing reached the guest, so the offset must not move either.
		if _, serr := k.files.Seek(fd, before, vfs.SeekSet); serr != nil {
			err = errors.Join(err, serr)
		}
		return 0, err
	}
	if k.cfg.trace {
		k.log.DebugContext(ctx, "read", "fd", fd, "requested", n, "returned", len(data))
	}
	return int32(len(data)), nil //nolint:gosec // G115: bounded by n
}

func (k *Kernel) sysClose(_ context.Context, a Args) (int32, error) {
	return 0, k.files.Close(a[0])
}

func (k *Kernel) sysStat(ctx context.Context, a Args) (int32, error) {
	p, err := k.readPath(a.Ptr(0))
	if err != nil {
		return 0, err
	}
	info, err := k.files.Stat(p)
	if k.cfg.trace {
		k.log.DebugContext(ctx, "stat", "path", p, "kind", info.Kind.String(), "error", err)
	}
	if err != nil {
		return 0, err
	}
	return 0, k.mem.Pack(a.Ptr(1), k.statFor(info, p))
}

func (k *Kernel) sysFstat(_ context.Context, a Args) (int32, error) {
	info, err := k.files.Fstat(a[0])
	if err != nil {
		return 0, err
	}
	p := ""
	if !vfs.IsStdio(a[0]) {
		if p, err = k.files.Path(a[0]); err != nil {
			return 0, err
		}
	}
	return 0, k.mem.Pack(a.Ptr(1), k.statFor(info, p))
}

// statFor fills struct stat. Inode numbers are stable per name: 1 for the
// root, 2 and up in file set order, 0 for the standard streams.
func (k *Kernel) statFor(info vfs.Info, p string) *abi.Stat {
	st := &abi.Stat{Nlink: 1, Blksize: ioBlock}
	switch info.Kind {
	case vfs.KindDirectory:
		st.Mode = abi.ModeDir | 0o555
		st.Ino = 1
	case vfs.KindRegular:
		st.Mode = abi.ModeRegular | 0o444
		st.Size = info.Size
		st.Blocks = (info.Size + blockSize - 1) / blockSize
		name := strings.TrimPrefix(path.Clean("/"+p), "/")
		for i, n := range k.files.Files().Names() {
			if n == name {
				st.Ino = uint64(i) + 2 //nolint:gosec // G115: small index
				break
			}
		}
	case vfs.KindCharDevice:
		st.Mode = abi.ModeChar | 0o620
	}
	return st
}

// sysLlseek is _llseek(fd, offset_high, offset_low, result, whence). The
// resulting offset is stored as a 64-bit value at result.
func (k *Kernel) sysLlseek(ctx context.Context, a Args) (int32, error) {
	fd, whence := a[0], a[4]
	off := int64(a[1])<<32 | int64(a.U32(2))
	pos, err := k.files.Seek(fd, off, whence)
	if err != nil {
		return 0, err
	}
	if k.cfg.trace {
		k.log.DebugContext(ctx, "lseek", "fd", fd, "whence", whence, "offset", pos)
	}
	return 0, k.mem.WriteI64(a.Ptr(3), pos)
}

// sysReadlink fails for every path: nothing in the file set is a link.
func (k *Kernel) sysReadlink(_ context.Context, a Args) (int32, error) {
	p, err := k.readPath(a.Ptr(0))
	if err != nil {
		return 0, err
	}
	if _, err := k.files.Stat(p); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("readlink %q: not a symlink: %w", p, kerrors.ErrInvalidArgument)
}

// sysGetcwd writes "/" and returns the length including the terminator, as
// the raw syscall does.
func (k *Kernel) sysGetcwd(_ context.Context, a Args) (int32, error) {
	const cwd = "/"
	if a.U32(1) < uint32(len(cwd)+1) {
		return 0, fmt.Errorf("getcwd buffer of %d bytes: %w", a.U32(1), kerrors.ErrRange)
	}
	if err := k.mem.WriteString(a.Ptr(0), cwd); err != nil {
		return 0, err
	}
	return int32(len(cwd) + 1), nil
}
