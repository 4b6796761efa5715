package persistence

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// BinaryWriter writes index sections in the fixed little-endian layout.
type BinaryWriter struct {
	w io.Writer
}

// NewBinaryWriter creates a new binary writer.
func NewBinaryWriter(w io.Writer) *BinaryWriter {
	return &BinaryWriter{w: w}
}

// WriteHeader writes the file header. Magic and version are stamped here.
func (bw *BinaryWriter) WriteHeader(header *FileHeader) error {
	header.Magic = MagicNumber
	header.Version = Version
	return binary.Write(bw.w, binary.LittleEndian, header)
}

// WriteFloat32Slice writes a float32 slice as raw bytes.
func (bw *BinaryWriter) WriteFloat32Slice(vec []float32) error {
	if len(vec) == 0 {
		return nil
	}
	b, err := float32ToBytes(vec)
	if err != nil {
		return err
	}
	_, err = bw.w.Write(b)
	return err
}

// WriteUint64 writes a single little-endian uint64.
func (bw *BinaryWriter) WriteUint64(v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	_, err := bw.w.Write(b[:])
	return err
}

// WriteBytes writes raw bytes.
func (bw *BinaryWriter) WriteBytes(b []byte) error {
	_, err := bw.w.Write(b)
	return err
}

// WriteZeros writes n zero bytes, used for section alignment padding.
func (bw *BinaryWriter) WriteZeros(n int) error {
	if n <= 0 {
		return nil
	}
	_, err := bw.w.Write(make([]byte, n))
	return err
}

// ReadHeader reads and gates the file header from the start of data.
// Magic and version failures wrap ErrCorruptIndex.
func ReadHeader(data []byte) (*FileHeader, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: file shorter than header (%d bytes)", ErrCorruptIndex, len(data))
	}
	var header FileHeader
	if _, err := binary.Decode(data[:HeaderSize], binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptIndex, err)
	}
	if header.Magic != MagicNumber {
		return nil, fmt.Errorf("%w: %w: got 0x%08x", ErrCorruptIndex, ErrInvalidMagic, header.Magic)
	}
	if header.Version != Version {
		return nil, fmt.Errorf("%w: %w: got 0x%08x", ErrCorruptIndex, ErrInvalidVersion, header.Version)
	}
	return &header, nil
}

// SaveToFile writes a file atomically: content goes to a temp file in the
// same directory, which is fsynced and renamed over the target.
func SaveToFile(filename string, writeFunc func(io.Writer) error) error {
	dir := filepath.Dir(filename)
	base := filepath.Base(filename)

	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	// Match typical file permissions (best-effort).
	_ = tmp.Chmod(0644)

	buf := bufio.NewWriterSize(tmp, 256*1024)
	if err := writeFunc(buf); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpName, filename); err != nil {
		return err
	}

	// Best-effort: fsync the directory so the rename is durable on POSIX.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}

	// Success: prevent deferred cleanup from removing the final file.
	tmpName = ""
	return nil
}
