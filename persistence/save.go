package persistence

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hupe1980/canopy/forest"
	"github.com/hupe1980/canopy/vectorspace"
)

// Save writes vs and f to path in the fixed binary layout, atomically.
// On any failure nothing is renamed into place and the previous file, if
// any, is untouched.
func Save(path string, vs *vectorspace.VectorSpace, f *forest.Forest) error {
	header, sections, err := assemble(vs, f)
	if err != nil {
		return err
	}

	return SaveToFile(path, func(w io.Writer) error {
		bw := NewBinaryWriter(w)
		if err := bw.WriteHeader(header); err != nil {
			return err
		}
		for _, s := range sections {
			if err := bw.WriteBytes(s); err != nil {
				return err
			}
		}
		return nil
	})
}

// assemble lays out the file sections and computes the header, including
// the checksum over everything after it. Tree blobs and vector storage are
// referenced, not copied.
func assemble(vs *vectorspace.VectorSpace, f *forest.Forest) (*FileHeader, [][]byte, error) {
	dim := vs.Dimension()
	itemCount := uint64(vs.Len())

	vectors, err := float32ToBytes(vs.Data())
	if err != nil {
		return nil, nil, err
	}

	vectorsOff := uint64(HeaderSize)
	treesOff := align8(vectorsOff + uint64(len(vectors)))
	vectorsPad := make([]byte, treesOff-vectorsOff-uint64(len(vectors)))

	sizeTable := make([]byte, 8*f.Len())
	blobs := make([][]byte, f.Len())
	treesLen := uint64(len(sizeTable))
	for i, t := range f.Trees() {
		blob := t.Bytes()
		if len(blob)%8 != 0 {
			return nil, nil, fmt.Errorf("tree %d blob length %d is not 8-byte aligned", i, len(blob))
		}
		binary.LittleEndian.PutUint64(sizeTable[8*i:], uint64(len(blob)))
		blobs[i] = blob
		treesLen += uint64(len(blob))
	}

	idsOff := treesOff + treesLen // size table and blobs are 8-aligned
	ids := encodeIDTable(vs)

	sections := make([][]byte, 0, len(blobs)+4)
	sections = append(sections, vectors, vectorsPad, sizeTable)
	sections = append(sections, blobs...)
	sections = append(sections, ids)

	var crc Checksum
	for _, s := range sections {
		crc.Add(s)
	}

	header := &FileHeader{
		Metric:       uint8(vs.Metric()),
		Dimension:    uint32(dim),
		ForestSize:   uint32(f.Len()),
		LeafCapacity: uint32(f.LeafCapacity()),
		ItemCount:    itemCount,
		VectorsOff:   vectorsOff,
		TreesOff:     treesOff,
		IDsOff:       idsOff,
		Checksum:     crc.Sum(),
	}
	return header, sections, nil
}

// encodeIDTable encodes the identifier table: a flags byte, then per item
// a length-prefixed id and, when present, a length-prefixed payload.
func encodeIDTable(vs *vectorspace.VectorSpace) []byte {
	payloads := vs.Payloads()

	n := 1
	for _, id := range vs.IDs() {
		n += 4 + len(id)
	}
	if payloads != nil {
		for _, p := range payloads {
			n += 4 + len(p)
		}
	}

	buf := make([]byte, 0, n)
	var flags byte
	if payloads != nil {
		flags |= idFlagPayloads
	}
	buf = append(buf, flags)
	for i, id := range vs.IDs() {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(id)))
		buf = append(buf, id...)
		if payloads != nil {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(len(payloads[i])))
			buf = append(buf, payloads[i]...)
		}
	}
	return buf
}

func align8(n uint64) uint64 {
	return (n + 7) &^ 7
}
