package persistence

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/hupe1980/canopy/distance"
	"github.com/hupe1980/canopy/forest"
	"github.com/hupe1980/canopy/internal/mmap"
	"github.com/hupe1980/canopy/resource"
	"github.com/hupe1980/canopy/vectorspace"
)

// LoadOptions contains configuration options for loading an index file.
type LoadOptions struct {
	// VerifyChecksum controls CRC verification of the whole file on load.
	// Disabling it avoids faulting every page of a large index up front;
	// structural validation still runs.
	VerifyChecksum bool

	// Controller accounts the mapped file size against the controller's
	// memory budget for the lifetime of the index. Nil means no
	// accounting.
	Controller *resource.Controller
}

// DefaultLoadOptions contains the default load configuration.
var DefaultLoadOptions = LoadOptions{
	VerifyChecksum: true,
}

// Index is a loaded, read-only index: a vector space and forest whose
// storage aliases a shared memory mapping. Close releases the caller's
// reference on the mapping; the region is unmapped when the last reference
// is dropped.
type Index struct {
	Header FileHeader
	Space  *vectorspace.VectorSpace
	Forest *forest.Forest

	mapping  *mmap.Mapping
	ctrl     *resource.Controller
	memBytes int64
}

// Mapping returns the underlying memory mapping.
func (ix *Index) Mapping() *mmap.Mapping {
	return ix.mapping
}

// Close drops the index's reference on the mapping and returns the mapped
// bytes to the memory budget.
func (ix *Index) Close() error {
	if ix.mapping == nil {
		return nil
	}
	err := ix.mapping.Close()
	ix.ctrl.ReleaseMemory(ix.memBytes)
	ix.ctrl, ix.memBytes = nil, 0
	return err
}

// Load memory-maps the index file at path read-only and reconstructs the
// vector space and forest as zero-copy views into the mapping. The file is
// version gated and validated; any failure is reported as ErrCorruptIndex
// and nothing is returned.
func Load(ctx context.Context, path string, optFns ...func(o *LoadOptions)) (*Index, error) {
	opts := DefaultLoadOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	m, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	if err := opts.Controller.AcquireMemory(ctx, int64(m.Size())); err != nil {
		_ = m.Close()
		return nil, err
	}
	ix, err := parse(ctx, m, opts)
	if err != nil {
		opts.Controller.ReleaseMemory(int64(m.Size()))
		_ = m.Close()
		return nil, err
	}
	ix.ctrl = opts.Controller
	ix.memBytes = int64(m.Size())
	return ix, nil
}

func parse(ctx context.Context, m *mmap.Mapping, opts LoadOptions) (*Index, error) {
	data := m.Bytes()

	header, err := ReadHeader(data)
	if err != nil {
		return nil, err
	}

	metric := distance.Metric(header.Metric)
	if !metric.Valid() {
		return nil, corrupt("unknown metric %d", header.Metric)
	}
	if header.Dimension == 0 {
		return nil, corrupt("zero dimension")
	}
	if header.ForestSize == 0 {
		return nil, corrupt("zero forest size")
	}
	if header.LeafCapacity == 0 {
		return nil, corrupt("zero leaf capacity")
	}
	if header.ItemCount > math.MaxUint32 {
		return nil, corrupt("item count %d exceeds 32-bit index space", header.ItemCount)
	}

	fileSize := uint64(len(data))
	vecLen := header.ItemCount * uint64(header.Dimension) * 4
	if header.VectorsOff != HeaderSize {
		return nil, corrupt("vector section at %d, want %d", header.VectorsOff, HeaderSize)
	}
	if header.TreesOff%8 != 0 || header.IDsOff%8 != 0 {
		return nil, corrupt("misaligned section offsets")
	}
	if header.VectorsOff+vecLen > header.TreesOff || header.TreesOff > header.IDsOff || header.IDsOff > fileSize {
		return nil, corrupt("section offsets out of range (file size %d)", fileSize)
	}

	if opts.VerifyChecksum {
		if sum := CalculateChecksum(data[HeaderSize:]); sum != header.Checksum {
			return nil, fmt.Errorf("%w: %w", ErrCorruptIndex, &ChecksumMismatchError{Expected: header.Checksum, Actual: sum})
		}
	}

	vectors, err := bytesToFloat32(data[header.VectorsOff : header.VectorsOff+vecLen])
	if err != nil {
		return nil, corrupt("vector section: %v", err)
	}

	trees, err := parseTrees(data, header)
	if err != nil {
		return nil, err
	}

	ids, payloads, err := parseIDTable(data, header)
	if err != nil {
		return nil, err
	}

	space, err := vectorspace.FromParts(int(header.Dimension), metric, vectors, ids, payloads)
	if err != nil {
		return nil, corrupt("%v", err)
	}

	fst := forest.FromTrees(trees, int(header.LeafCapacity))
	if err := fst.Validate(ctx, int(header.Dimension), header.ItemCount); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, corrupt("%v", err)
	}

	return &Index{
		Header:  *header,
		Space:   space,
		Forest:  fst,
		mapping: m,
	}, nil
}

func parseTrees(data []byte, header *FileHeader) ([]forest.Tree, error) {
	n := uint64(header.ForestSize)
	tableEnd := header.TreesOff + 8*n
	if tableEnd > header.IDsOff {
		return nil, corrupt("tree size table overflows tree section")
	}
	sizes, err := bytesToUint64(data[header.TreesOff:tableEnd])
	if err != nil {
		return nil, corrupt("tree size table: %v", err)
	}

	trees := make([]forest.Tree, n)
	off := tableEnd
	for i, size := range sizes {
		if size == 0 || size%8 != 0 {
			return nil, corrupt("tree %d has invalid size %d", i, size)
		}
		if off+size > header.IDsOff {
			return nil, corrupt("tree %d overflows tree section", i)
		}
		trees[i] = forest.TreeFromBytes(data[off : off+size])
		off += size
	}
	if off != header.IDsOff {
		return nil, corrupt("tree section has %d trailing bytes", header.IDsOff-off)
	}
	return trees, nil
}

func parseIDTable(data []byte, header *FileHeader) ([]string, [][]byte, error) {
	off := header.IDsOff
	end := uint64(len(data))
	if off >= end {
		return nil, nil, corrupt("missing identifier table")
	}

	flags := data[off]
	off++
	withPayloads := flags&idFlagPayloads != 0

	ids := make([]string, header.ItemCount)
	var payloads [][]byte
	if withPayloads {
		payloads = make([][]byte, header.ItemCount)
	}

	next := func() ([]byte, error) {
		if off+4 > end {
			return nil, corrupt("identifier table truncated")
		}
		n := uint64(binary.LittleEndian.Uint32(data[off:]))
		off += 4
		if off+n > end {
			return nil, corrupt("identifier table truncated")
		}
		b := data[off : off+n]
		off += n
		return b, nil
	}

	for i := range ids {
		b, err := next()
		if err != nil {
			return nil, nil, err
		}
		ids[i] = string(b)
		if withPayloads {
			p, err := next()
			if err != nil {
				return nil, nil, err
			}
			if len(p) > 0 {
				payloads[i] = p
			}
		}
	}
	if off != end {
		return nil, nil, corrupt("identifier table has %d trailing bytes", end-off)
	}
	return ids, payloads, nil
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptIndex, fmt.Sprintf(format, args...))
}
