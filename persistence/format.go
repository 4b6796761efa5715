package persistence

import "errors"

const (
	// MagicNumber identifies canopy index files (ASCII: "CNPY").
	MagicNumber = 0x434E5059
	// Version is the current file format version (v1.0.0). Unknown and
	// future versions are rejected on load.
	Version = 0x00010000

	// HeaderSize is the size of the fixed file header in bytes.
	HeaderSize = 80
)

var (
	// ErrCorruptIndex is returned when an index file fails validation.
	// All corruption errors wrap this sentinel.
	ErrCorruptIndex = errors.New("corrupt index")

	// ErrInvalidMagic indicates a file that is not a canopy index.
	ErrInvalidMagic = errors.New("invalid magic number")

	// ErrInvalidVersion indicates an unknown or future format version.
	ErrInvalidVersion = errors.New("unsupported version")
)

// FileHeader is the 80-byte header at the start of every index file.
// Layout is fixed and little-endian; section offsets are absolute and
// 8-byte aligned for in-place mmap access.
type FileHeader struct {
	Magic        uint32 // 0x434E5059 ("CNPY")
	Version      uint32 // File format version
	Metric       uint8  // distance.Metric
	Padding1     [3]byte
	Dimension    uint32 // Vector dimensionality D
	ForestSize   uint32 // Number of trees
	LeafCapacity uint32 // Build-time leaf capacity
	ItemCount    uint64 // Total number of items
	VectorsOff   uint64 // Offset of the raw vector section
	TreesOff     uint64 // Offset of the tree section (size table, then blobs)
	IDsOff       uint64 // Offset of the identifier table
	Checksum     uint32 // CRC32 of everything after the header
	Padding2     [4]byte
	Reserved     [16]byte // Future use
}

// Identifier table flags.
const idFlagPayloads = 0x01
