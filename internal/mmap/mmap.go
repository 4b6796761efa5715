package mmap

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
)

// AccessPattern provides hints to the kernel about how the data will be accessed.
type AccessPattern int

const (
	// AccessDefault is the default access pattern (no specific advice).
	AccessDefault AccessPattern = iota
	// AccessSequential expects data to be accessed sequentially.
	AccessSequential
	// AccessRandom expects data to be accessed randomly.
	AccessRandom
	// AccessWillNeed expects data to be accessed in the near future.
	AccessWillNeed
)

var (
	// ErrClosed is returned when attempting to access a fully released mapping.
	ErrClosed = errors.New("mmap: mapping is closed")
	// ErrInvalidSize is returned when the file size is invalid.
	ErrInvalidSize = errors.New("mmap: invalid file size")
	// ErrInvalidOffset is returned when the offset is negative.
	ErrInvalidOffset = errors.New("mmap: invalid offset")
)

// Mapping represents a read-only memory-mapped file.
//
// The mapping is reference counted. Open returns a Mapping holding one
// reference; each additional consumer calls Retain and releases with Close.
// The underlying region is unmapped when the count reaches zero.
type Mapping struct {
	data []byte
	size int
	refs atomic.Int64
	// unmap is the platform-specific function to unmap the memory.
	unmap func([]byte) error
}

// Open maps the file at path into memory as read-only.
func Open(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}

	size := fi.Size()
	if size < 0 {
		return nil, ErrInvalidSize
	}

	m := &Mapping{size: int(size)}
	m.refs.Store(1)
	if size == 0 {
		return m, nil
	}

	data, err := osMap(f, int(size))
	if err != nil {
		return nil, err
	}
	m.data = data
	m.unmap = osUnmap

	return m, nil
}

// Retain adds a reference to the mapping. It returns ErrClosed if the
// mapping has already been fully released.
func (m *Mapping) Retain() error {
	for {
		n := m.refs.Load()
		if n <= 0 {
			return ErrClosed
		}
		if m.refs.CompareAndSwap(n, n+1) {
			return nil
		}
	}
}

// Close drops one reference. The memory is unmapped when the last
// reference is dropped. Extra Close calls after full release are no-ops.
func (m *Mapping) Close() error {
	for {
		n := m.refs.Load()
		if n <= 0 {
			return nil
		}
		if !m.refs.CompareAndSwap(n, n-1) {
			continue
		}
		if n > 1 {
			return nil
		}
		data := m.data
		m.data = nil
		if m.unmap != nil && data != nil {
			return m.unmap(data)
		}
		return nil
	}
}

// Bytes returns the underlying byte slice.
// Warning: the slice is valid only while the caller holds a reference.
func (m *Mapping) Bytes() []byte {
	if m.refs.Load() <= 0 {
		return nil
	}
	return m.data
}

// Size returns the size of the mapping in bytes.
func (m *Mapping) Size() int {
	return m.size
}

// Refs returns the current reference count.
func (m *Mapping) Refs() int {
	n := m.refs.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}

// Advise provides hints to the kernel about how the memory will be accessed.
func (m *Mapping) Advise(pattern AccessPattern) error {
	if m.refs.Load() <= 0 {
		return ErrClosed
	}
	if m.data == nil {
		return nil
	}
	return osAdvise(m.data, pattern)
}

// ReadAt implements io.ReaderAt.
func (m *Mapping) ReadAt(p []byte, off int64) (n int, err error) {
	if m.refs.Load() <= 0 {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, ErrInvalidOffset
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n = copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *Mapping) String() string {
	return fmt.Sprintf("Mapping(size=%d refs=%d)", m.size, m.Refs())
}
