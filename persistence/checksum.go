package persistence

import (
	"fmt"
	"hash/crc32"
)

// CRC32 (IEEE polynomial) is used for corruption detection only; it is not
// cryptographically secure and does not protect against tampering.

// CRC32Table is the IEEE polynomial table for checksum computation.
var CRC32Table = crc32.MakeTable(crc32.IEEE)

// Checksum is a running CRC32 over a sequence of byte sections.
type Checksum struct {
	sum uint32
}

// Add folds data into the running checksum.
func (c *Checksum) Add(data []byte) {
	c.sum = crc32.Update(c.sum, CRC32Table, data)
}

// AddZeros folds n zero bytes into the running checksum.
func (c *Checksum) AddZeros(n int) {
	if n <= 0 {
		return
	}
	c.Add(make([]byte, n))
}

// Sum returns the current checksum value.
func (c *Checksum) Sum() uint32 {
	return c.sum
}

// CalculateChecksum calculates the CRC32 checksum of data.
func CalculateChecksum(data []byte) uint32 {
	return crc32.Checksum(data, CRC32Table)
}

// ChecksumMismatchError is returned when checksum verification fails.
type ChecksumMismatchError struct {
	Expected uint32
	Actual   uint32
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch: expected 0x%08x, got 0x%08x", e.Expected, e.Actual)
}
