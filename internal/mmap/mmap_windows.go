//go:build windows

package mmap

import (
	"errors"
	"os"
)

// ErrUnsupported is returned on platforms without mmap support.
var ErrUnsupported = errors.New("mmap: not supported on this platform")

func osMap(f *os.File, size int) ([]byte, error) {
	return nil, ErrUnsupported
}

func osUnmap(data []byte) error {
	return ErrUnsupported
}

func osAdvise(data []byte, pattern AccessPattern) error {
	return nil
}
