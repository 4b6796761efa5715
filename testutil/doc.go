// Package testutil provides testing utilities for canopy.
//
// This package is intended for use in tests and benchmarks only.
// It provides helpers for generating random vectors, computing exact
// nearest neighbors by brute force, and verifying search recall.
//
// # Random Vector Generation
//
//	rng := testutil.NewRNG(seed)
//	vecs := rng.UniformVectors(1000, 64)
//	clustered := rng.ClusteredVectors(1000, 64, 10, 0.05)
//
// # Exact Search (Ground Truth)
//
//	exact := testutil.ExactTopK(query, vecs, k, distance.Euclidean)
//
// # Recall Verification
//
//	recall := testutil.Recall(gotIndexes, exact)
package testutil
