package abi

// Guest struct layouts for a wasm32 musl guest. All fields are little-endian
// and packed without implicit padding; explicit Pad fields keep alignment.

// Iovec is one {base, len} buffer descriptor of writev.
type Iovec struct {
	Base uint32
	Len  uint32
}

// IovecSize is the guest size of Iovec.
const IovecSize = 8

// Timespec is struct timespec with a 32-bit time_t.
type Timespec struct {
	Sec  int32
	Nsec int32
}

// File type bits of st_mode.
const (
	ModeDir     uint32 = 0o040000
	ModeRegular uint32 = 0o100000
	ModeChar    uint32 = 0o020000
)

// Stat is struct stat. st_mode sits at offset 16 and st_size at offset 40.
type Stat struct {
	Dev       uint64
	Ino       uint64
	Mode      uint32
	Nlink     uint32
	UID       uint32
	GID       uint32
	Rdev      uint64
	Size      int64
	Blksize   int32
	Pad0      int32
	Blocks    int64
	Atime     int32
	AtimeNsec int32
	Mtime     int32
	MtimeNsec int32
	Ctime     int32
	CtimeNsec int32
}

// StatSize is the guest size of Stat.
const StatSize = 88

// SigactionSize is the size of the kernel k_sigaction record: handler,
// flags, restorer and a 64-bit mask.
const SigactionSize = 20

// SigsetSize is the mask length rt_sigaction expects.
const SigsetSize = 8
