package testutil

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/hupe1980/canopy/distance"
)

// Neighbor is an exact nearest-neighbor result.
type Neighbor struct {
	Index    uint32
	Distance float32
}

// RNG encapsulates a seeded random number generator.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float32 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float32() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float32()
}

// FillUniform fills dst with random values in range [0, 1).
func (r *RNG) FillUniform(dst []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range dst {
		dst[i] = r.rand.Float32()
	}
}

// FillGaussian fills dst with values from a standard normal distribution.
func (r *RNG) FillGaussian(dst []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range dst {
		dst[i] = float32(r.rand.NormFloat64())
	}
}

// UniformVectors generates random vectors with values in range [0, 1).
// Uses a single backing array for efficiency.
func (r *RNG) UniformVectors(num, dimensions int) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dimensions)
	vectors := make([][]float32, num)

	for i := range num {
		vec := data[i*dimensions : (i+1)*dimensions]
		for j := range vec {
			vec[j] = r.rand.Float32()
		}
		vectors[i] = vec
	}

	return vectors
}

// GaussianVectors generates random vectors from a standard normal
// distribution.
func (r *RNG) GaussianVectors(num, dimensions int) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dimensions)
	vectors := make([][]float32, num)

	for i := range num {
		vec := data[i*dimensions : (i+1)*dimensions]
		for j := range vec {
			vec[j] = float32(r.rand.NormFloat64())
		}
		vectors[i] = vec
	}

	return vectors
}

// ClusteredVectors generates vectors grouped around random cluster centers,
// which resembles image-embedding workloads better than uniform noise.
// spread controls the per-dimension noise around each center.
func (r *RNG) ClusteredVectors(num, dimensions, clusters int, spread float32) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	centers := make([]float32, clusters*dimensions)
	for i := range centers {
		centers[i] = r.rand.Float32()
	}

	data := make([]float32, num*dimensions)
	vectors := make([][]float32, num)

	for i := range num {
		center := centers[(i%clusters)*dimensions : (i%clusters+1)*dimensions]
		vec := data[i*dimensions : (i+1)*dimensions]
		for j := range vec {
			vec[j] = center[j] + float32(r.rand.NormFloat64())*spread
		}
		vectors[i] = vec
	}

	return vectors
}

// IDs returns n sequential string IDs with the given prefix.
func IDs(prefix string, n int) []string {
	ids := make([]string, n)
	for i := range n {
		ids[i] = fmt.Sprintf("%s-%06d", prefix, i)
	}
	return ids
}

// ExactTopK computes the exact k nearest neighbors of query by brute force.
// Ties on distance are broken by ascending index.
func ExactTopK(query []float32, vectors [][]float32, k int, dist distance.Func) []Neighbor {
	neighbors := make([]Neighbor, 0, len(vectors))
	for i, v := range vectors {
		neighbors = append(neighbors, Neighbor{
			Index:    uint32(i),
			Distance: dist(query, v),
		})
	}

	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Distance != neighbors[j].Distance {
			return neighbors[i].Distance < neighbors[j].Distance
		}
		return neighbors[i].Index < neighbors[j].Index
	})

	if k > len(neighbors) {
		k = len(neighbors)
	}
	return neighbors[:k]
}

// Recall computes the fraction of exact neighbors present in got,
// compared by internal index.
func Recall(got []uint32, exact []Neighbor) float64 {
	if len(exact) == 0 {
		return 1
	}

	want := make(map[uint32]struct{}, len(exact))
	for _, n := range exact {
		want[n.Index] = struct{}{}
	}

	hits := 0
	for _, idx := range got {
		if _, ok := want[idx]; ok {
			hits++
		}
	}

	return float64(hits) / float64(len(exact))
}

// ApproxEqual reports whether two floats are within tol of each other.
func ApproxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}
