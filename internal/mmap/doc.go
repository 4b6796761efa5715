// Package mmap provides read-only memory-mapped file access for zero-copy
// index loading.
//
// # Usage
//
//	m, err := mmap.Open("catalog.cnp")
//	if err != nil { ... }
//	defer m.Close()
//
//	// Zero-copy access to file contents
//	data := m.Bytes()
//
//	// Provide kernel hints for access patterns
//	m.Advise(mmap.AccessRandom)
//
// # Reference Counting
//
// A Mapping is a shared resource: a loaded index hands out views into the
// mapped region to every concurrent query. Retain/Close form a reference
// count; the region is unmapped when the last holder calls Close. Open
// returns a Mapping with a count of one.
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2) with madvise(2) for access hints
//   - Windows: not supported; canopy serving targets Unix hosts
package mmap
