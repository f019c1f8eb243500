// Package abi provides typed, bounds-checked access to guest linear memory.
//
// The memory belongs to the guest instance. The Accessor only keeps a live
// view of it, and that view is reacquired whenever the memory may have been
// resized: after Grow, and at every host-call entry through Sync.
package abi

import (
	"bytes"
	"encoding/binary"

	"github.com/lunixbochs/struc"
	kerrors "github.com/reglet-dev/pseudokernel/domain/errors"
)

// PageSize is the wasm page granularity.
const PageSize = 65536

// Memory is the part of the engine's linear memory the accessor needs.
// wazero's api.Memory satisfies it.
type Memory interface {
	// Size returns the current byte length.
	Size() uint32

	// Grow adds deltaPages pages and returns the previous page count.
	Grow(deltaPages uint32) (previousPages uint32, ok bool)

	// Read returns a view of byteCount bytes at offset. Writes to the
	// returned slice are writes to memory until the next growth.
	Read(offset, byteCount uint32) ([]byte, bool)
}

// Accessor reads and writes little-endian values in guest memory.
type Accessor struct {
	mem  Memory
	view []byte
	size uint32
}

// NewAccessor returns a detached accessor. Every access fails with
// ErrOutOfBounds until Attach is called.
func NewAccessor() *Accessor {
	return &Accessor{}
}

// Attach binds the accessor to the instance memory and acquires its view.
func (a *Accessor) Attach(mem Memory) {
	a.mem = mem
	a.refresh()
}

// Attached reports whether a memory is bound.
func (a *Accessor) Attached() bool {
	return a.mem != nil
}

// Size returns the byte length recorded with the current view.
func (a *Accessor) Size() uint32 {
	return a.size
}

// Sync reacquires the view if the memory changed size behind our back,
// which happens when the guest executes memory.grow itself.
func (a *Accessor) Sync() {
	if a.mem != nil && a.mem.Size() != a.size {
		a.refresh()
	}
}

func (a *Accessor) refresh() {
	a.size = a.mem.Size()
	view, ok := a.mem.Read(0, a.size)
	if !ok {
		view = nil
		a.size = 0
	}
	a.view = view
}

// Grow adds pages to the backing memory, then refreshes the view and the
// recorded length. It returns the previous page count.
func (a *Accessor) Grow(pages uint32) (uint32, error) {
	if a.mem == nil {
		return 0, &kerrors.MemoryError{Op: "grow", Size: a.size}
	}
	prev, ok := a.mem.Grow(pages)
	if !ok {
		return 0, kerrors.ErrNoMemory
	}
	a.refresh()
	return prev, nil
}

func (a *Accessor) slice(op string, ptr, n uint32) ([]byte, error) {
	end := uint64(ptr) + uint64(n)
	if end > uint64(len(a.view)) {
		return nil, &kerrors.MemoryError{Op: op, Offset: ptr, Length: n, Size: a.size}
	}
	return a.view[ptr:end], nil
}

// ReadBytes returns a copy of n bytes at ptr.
func (a *Accessor) ReadBytes(ptr, n uint32) ([]byte, error) {
	src, err := a.slice("read", ptr, n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, src)
	return out, nil
}

// WriteBytes copies b into memory at ptr.
func (a *Accessor) WriteBytes(ptr uint32, b []byte) error {
	dst, err := a.slice("write", ptr, uint32(len(b))) //nolint:gosec // G115: guest buffers are 32-bit sized
	if err != nil {
		return err
	}
	copy(dst, b)
	return nil
}

// ReadU32 reads four bytes, least significant first.
func (a *Accessor) ReadU32(ptr uint32) (uint32, error) {
	b, err := a.slice("read", ptr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// WriteU32 writes four bytes, least significant first.
func (a *Accessor) WriteU32(ptr, v uint32) error {
	b, err := a.slice("write", ptr, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, v)
	return nil
}

// ReadI32 reads a signed 32-bit little-endian integer.
func (a *Accessor) ReadI32(ptr uint32) (int32, error) {
	v, err := a.ReadU32(ptr)
	return int32(v), err //nolint:gosec // G115: reinterpretation is intended
}

// WriteI32 writes a signed 32-bit little-endian integer.
func (a *Accessor) WriteI32(ptr uint32, v int32) error {
	return a.WriteU32(ptr, uint32(v)) //nolint:gosec // G115: reinterpretation is intended
}

// ReadI64 reads a signed 64-bit little-endian integer. All eight bytes are
// decoded at 64-bit width, so the high-order byte round-trips.
func (a *Accessor) ReadI64(ptr uint32) (int64, error) {
	b, err := a.slice("read", ptr, 8)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b)), nil //nolint:gosec // G115: reinterpretation is intended
}

// WriteI64 writes a signed 64-bit little-endian integer.
func (a *Accessor) WriteI64(ptr uint32, v int64) error {
	b, err := a.slice("write", ptr, 8)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(b, uint64(v)) //nolint:gosec // G115: reinterpretation is intended
	return nil
}

// ReadString reads bytes at ptr until a zero byte or until maxLen bytes were
// read. A negative maxLen means unbounded. Bytes are taken as-is.
func (a *Accessor) ReadString(ptr uint32, maxLen int) (string, error) {
	start := uint64(ptr)
	end := uint64(len(a.view))
	bounded := false
	if maxLen >= 0 && start+uint64(maxLen) <= end {
		end = start + uint64(maxLen)
		bounded = true
	}
	for i := start; i < end; i++ {
		if a.view[i] == 0 {
			return string(a.view[start:i]), nil
		}
	}
	if bounded {
		return string(a.view[start:end]), nil
	}
	return "", &kerrors.MemoryError{Op: "read string", Offset: ptr, Size: a.size}
}

// WriteString writes the bytes of s followed by a terminating zero.
func (a *Accessor) WriteString(ptr uint32, s string) error {
	dst, err := a.slice("write string", ptr, uint32(len(s))+1) //nolint:gosec // G115: guest strings are 32-bit sized
	if err != nil {
		return err
	}
	copy(dst, s)
	dst[len(s)] = 0
	return nil
}

// Pack encodes v as a little-endian guest struct at ptr.
func (a *Accessor) Pack(ptr uint32, v any) error {
	var buf bytes.Buffer
	if err := struc.PackWithOrder(&buf, v, binary.LittleEndian); err != nil {
		return err
	}
	return a.WriteBytes(ptr, buf.Bytes())
}

// Unpack decodes the little-endian guest struct at ptr into v.
func (a *Accessor) Unpack(ptr uint32, v any) error {
	size, err := struc.Sizeof(v)
	if err != nil {
		return err
	}
	b, err := a.slice("read", ptr, uint32(size)) //nolint:gosec // G115: struct sizes are small
	if err != nil {
		return err
	}
	return struc.UnpackWithOrder(bytes.NewReader(b), v, binary.LittleEndian)
}
