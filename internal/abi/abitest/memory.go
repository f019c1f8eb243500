// Package abitest provides an in-process linear memory for accessor and
// kernel tests.
package abitest

// Memory is a growable byte buffer. Every successful Grow moves the data to
// a fresh backing array, so views taken before growth go stale the way an
// engine's would.
type Memory struct {
	buf      []byte
	maxPages uint32
	grows    int
}

// NewMemory returns a memory of the given page count. maxPages caps growth;
// zero means no cap.
func NewMemory(pages, maxPages uint32) *Memory {
	return &Memory{buf: make([]byte, uint64(pages)*65536), maxPages: maxPages}
}

// Size implements abi.Memory.
func (m *Memory) Size() uint32 {
	return uint32(len(m.buf)) //nolint:gosec // G115: bounded by 4 GiB
}

// Grow implements abi.Memory.
func (m *Memory) Grow(deltaPages uint32) (uint32, bool) {
	prev := m.Size() / 65536
	next := uint64(prev) + uint64(deltaPages)
	if next > 65536 || (m.maxPages != 0 && next > uint64(m.maxPages)) {
		return prev, false
	}
	buf := make([]byte, next*65536)
	copy(buf, m.buf)
	m.buf = buf
	m.grows++
	return prev, true
}

// Read implements abi.Memory.
func (m *Memory) Read(offset, byteCount uint32) ([]byte, bool) {
	end := uint64(offset) + uint64(byteCount)
	if end > uint64(len(m.buf)) {
		return nil, false
	}
	return m.buf[offset:end], true
}

// Grows counts successful Grow calls.
func (m *Memory) Grows() int {
	return m.grows
}

// Bytes exposes the current backing array.
func (m *Memory) Bytes() []byte {
	return m.buf
}
