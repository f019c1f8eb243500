package vfs

import (
	"fmt"

	kerrors "github.com/reglet-dev/pseudokernel/domain/errors"
)

// Open flag bits as a musl i386 guest passes them.
const (
	ORdOnly    uint32 = 0
	OAccMode   uint32 = 0o3
	ONoCTTY    uint32 = 0o400
	ONonBlock  uint32 = 0o4000
	OLargeFile uint32 = 0o100000
	OCloExec   uint32 = 0o2000000

	// tolerated are the bits a read-only open of a blob may carry.
	tolerated = ONoCTTY | ONonBlock | OLargeFile | OCloExec
)

// Seek origins.
const (
	SeekSet int32 = 0
	SeekCur int32 = 1
)

// FirstFD is the first descriptor Open hands out. 0 to 2 are the standard
// streams and never have a record.
const FirstFD int32 = 3

// Kind is the file type reported by Stat and Fstat.
type Kind int

// File kinds.
const (
	KindDirectory Kind = iota
	KindRegular
	KindCharDevice
)

func (k Kind) String() string {
	switch k {
	case KindDirectory:
		return "directory"
	case KindRegular:
		return "regular"
	case KindCharDevice:
		return "chardev"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Info is the subset of stat the guest gets.
type Info struct {
	Kind Kind
	Size int64
}

type openFile struct {
	path    string
	content []byte
	offset  int64
}

type tableConfig struct {
	readAdvance bool
}

// TableOption configures a Table.
type TableOption func(*tableConfig)

// WithReadAdvance selects whether Read moves the offset past the bytes it
// returned. The default is true. With false, sequential reads need Seek.
func WithReadAdvance(advance bool) TableOption {
	return func(c *tableConfig) {
		c.readAdvance = advance
	}
}

func defaultTableConfig() tableConfig {
	return tableConfig{readAdvance: true}
}

// Table is a descriptor table over a FileSet. It belongs to one guest
// instance and is not safe for concurrent use.
type Table struct {
	files *FileSet
	open  map[int32]*openFile
	next  int32
	cfg   tableConfig
}

// NewTable returns an empty table over files. A nil set behaves as empty.
func NewTable(files *FileSet, opts ...TableOption) *Table {
	cfg := defaultTableConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if files == nil {
		files = EmptyFileSet()
	}
	return &Table{
		files: files,
		open:  make(map[int32]*openFile),
		next:  FirstFD,
		cfg:   cfg,
	}
}

// Files returns the set the table serves.
func (t *Table) Files() *FileSet {
	return t.files
}

// ReadAdvances reports the configured read semantics.
func (t *Table) ReadAdvances() bool {
	return t.cfg.readAdvance
}

// IsStdio reports whether fd is one of the standard streams.
func IsStdio(fd int32) bool {
	return fd >= 0 && fd < FirstFD
}

// Stat describes a path without opening it.
func (t *Table) Stat(p string) (Info, error) {
	if isRoot(p) {
		return Info{Kind: KindDirectory}, nil
	}
	content, ok := t.files.Lookup(p)
	if !ok {
		return Info{}, fmt.Errorf("stat %q: %w", p, kerrors.ErrNotFound)
	}
	return Info{Kind: KindRegular, Size: int64(len(content))}, nil
}

// Open binds a new descriptor to a configured file at offset 0. Only
// read-only opens succeed.
func (t *Table) Open(p string, flags uint32) (int32, error) {
	if flags&OAccMode != ORdOnly || flags&^(OAccMode|tolerated) != 0 {
		return -1, fmt.Errorf("open %q with flags %#o: %w", p, flags, kerrors.ErrUnsupported)
	}
	if isRoot(p) {
		return -1, fmt.Errorf("open directory %q: %w", p, kerrors.ErrUnsupported)
	}
	content, ok := t.files.Lookup(p)
	if !ok {
		return -1, fmt.Errorf("open %q: %w", p, kerrors.ErrNotFound)
	}
	name, _ := fileName(p)

	fd := t.next
	t.next++
	t.open[fd] = &openFile{path: "/" + name, content: content}
	return fd, nil
}

func (t *Table) lookup(op string, fd int32) (*openFile, error) {
	f, ok := t.open[fd]
	if !ok {
		return nil, fmt.Errorf("%s fd %d: %w", op, fd, kerrors.ErrInvalidDescriptor)
	}
	return f, nil
}

// Read returns up to n bytes from the descriptor's offset. The returned
// slice aliases the immutable content and must not be modified. An offset
// at or past the end yields an empty slice.
func (t *Table) Read(fd int32, n uint32) ([]byte, error) {
	f, err := t.lookup("read", fd)
	if err != nil {
		return nil, err
	}
	size := int64(len(f.content))
	if f.offset >= size {
		return f.content[size:], nil
	}
	end := min(f.offset+int64(n), size)
	out := f.content[f.offset:end]
	if t.cfg.readAdvance {
		f.offset = end
	}
	return out, nil
}

// Seek moves or reports the offset. SeekSet sets it to off; SeekCur reports
// it unchanged and ignores off. The result is the offset after the call.
func (t *Table) Seek(fd int32, off int64, whence int32) (int64, error) {
	f, err := t.lookup("seek", fd)
	if err != nil {
		return 0, err
	}
	switch whence {
	case SeekSet:
		if off < 0 {
			return 0, fmt.Errorf("seek fd %d to %d: %w", fd, off, kerrors.ErrInvalidArgument)
		}
		f.offset = off
	case SeekCur:
	default:
		return 0, fmt.Errorf("seek fd %d whence %d: %w", fd, whence, kerrors.ErrInvalidArgument)
	}
	return f.offset, nil
}

// Fstat describes an open descriptor. The standard streams are character
// devices of size 0.
func (t *Table) Fstat(fd int32) (Info, error) {
	if IsStdio(fd) {
		return Info{Kind: KindCharDevice}, nil
	}
	f, err := t.lookup("fstat", fd)
	if err != nil {
		return Info{}, err
	}
	return Info{Kind: KindRegular, Size: int64(len(f.content))}, nil
}

// Path returns the rooted path an open descriptor was opened with.
func (t *Table) Path(fd int32) (string, error) {
	f, err := t.lookup("path", fd)
	if err != nil {
		return "", err
	}
	return f.path, nil
}

// Close drops the record. The descriptor number is never handed out again.
func (t *Table) Close(fd int32) error {
	if _, err := t.lookup("close", fd); err != nil {
		return err
	}
	delete(t.open, fd)
	return nil
}

// OpenCount returns the number of live descriptors.
func (t *Table) OpenCount() int {
	return len(t.open)
}
