package persistence

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"
)

var (
	// ErrUnsupportedArchitecture is returned when running on an unsupported
	// CPU architecture.
	ErrUnsupportedArchitecture = errors.New("unsupported architecture: only amd64 and arm64 are supported")

	// ErrBigEndian is returned when running on big-endian systems.
	ErrBigEndian = errors.New("big-endian systems are not supported")

	// ErrUnalignedAccess is returned when attempting unaligned memory access.
	ErrUnalignedAccess = errors.New("unaligned memory access detected")
)

func init() {
	if err := validatePlatform(); err != nil {
		panic(fmt.Sprintf("canopy/persistence: %v", err))
	}
}

// validatePlatform checks if the current platform supports the in-place
// slice reinterpretation the zero-copy loader relies on.
func validatePlatform() error {
	arch := runtime.GOARCH
	if arch != "amd64" && arch != "arm64" {
		return fmt.Errorf("%w: %s", ErrUnsupportedArchitecture, arch)
	}
	if !isLittleEndian() {
		return ErrBigEndian
	}
	return nil
}

func isLittleEndian() bool {
	var test uint16 = 0x0001
	firstByte := *(*byte)(unsafe.Pointer(&test))
	return firstByte == 1
}

func validateAlignment(p unsafe.Pointer, align uintptr) error {
	if uintptr(p)%align != 0 {
		return fmt.Errorf("%w: address 0x%x not %d-byte aligned", ErrUnalignedAccess, uintptr(p), align)
	}
	return nil
}

// bytesToFloat32 reinterprets b as a float32 slice without copying.
// b must be 4-byte aligned and a multiple of 4 bytes long.
func bytesToFloat32(b []byte) ([]float32, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("%w: length %d not a multiple of 4", ErrUnalignedAccess, len(b))
	}
	p := unsafe.Pointer(&b[0])
	if err := validateAlignment(p, 4); err != nil {
		return nil, err
	}
	return unsafe.Slice((*float32)(p), len(b)/4), nil
}

// bytesToUint64 reinterprets b as a uint64 slice without copying.
// b must be 8-byte aligned and a multiple of 8 bytes long.
func bytesToUint64(b []byte) ([]uint64, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("%w: length %d not a multiple of 8", ErrUnalignedAccess, len(b))
	}
	p := unsafe.Pointer(&b[0])
	if err := validateAlignment(p, 8); err != nil {
		return nil, err
	}
	return unsafe.Slice((*uint64)(p), len(b)/8), nil
}

// float32ToBytes reinterprets v as raw bytes without copying.
func float32ToBytes(v []float32) ([]byte, error) {
	if len(v) == 0 {
		return nil, nil
	}
	p := unsafe.Pointer(&v[0])
	if err := validateAlignment(p, 4); err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(p), len(v)*4), nil
}
