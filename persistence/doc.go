// Package persistence serializes a vector space and its forest to a fixed
// binary layout and loads it back through a read-only memory mapping.
//
// Files are written to a temporary path and atomically renamed into place,
// so readers observe either the old complete file or the new complete file,
// never a mix. Loads are version gated and validate checksums and
// structural invariants before the index is allowed to serve.
package persistence
