package forest

import (
	"math/rand"

	"github.com/hupe1980/canopy/distance"
	"github.com/hupe1980/canopy/internal/math32"
	"github.com/hupe1980/canopy/vectorspace"
)

const (
	// maxSampleAttempts bounds how often the splitter re-samples a point
	// pair when duplicate vectors defeat distinct sampling. Exhausting the
	// bound marks the set non-splittable.
	maxSampleAttempts = 20

	// maxDegenerateRetries bounds how often a tree builder asks for a fresh
	// hyperplane after a split left one side empty, before it gives up and
	// emits an oversized leaf.
	maxDegenerateRetries = 3
)

// hyperplane is a random separating plane: a normal vector and the
// projection of the sampled midpoint onto it.
type hyperplane struct {
	normal []float32
	offset float64
}

// side classifies a vector by the sign of dot(normal, v) - offset.
// Exact zero resolves to the left side deterministically.
func (h hyperplane) side(v []float32) int {
	if float64(math32.Dot(h.normal, v))-h.offset > 0 {
		return 1
	}
	return 0
}

// splitter generates random separating hyperplanes for item sets of a
// shared vector space. It is owned by a single tree builder and draws from
// that builder's random substream.
type splitter struct {
	vs      *vectorspace.VectorSpace
	rng     *rand.Rand
	angular bool
}

// plane samples two distinct points from items and returns the hyperplane
// through their midpoint. ok is false when the set is non-splittable:
// fewer than two items, or every sampled pair collapsed to the same vector
// within maxSampleAttempts.
func (sp *splitter) plane(items []uint32) (hyperplane, bool) {
	n := len(items)
	if n < 2 {
		return hyperplane{}, false
	}

	dim := sp.vs.Dimension()
	for attempt := 0; attempt < maxSampleAttempts; attempt++ {
		i := sp.rng.Intn(n)
		j := sp.rng.Intn(n - 1)
		if j >= i {
			j++
		}
		p1 := sp.vs.Vector(items[i])
		p2 := sp.vs.Vector(items[j])

		normal := make([]float32, dim)
		for d := 0; d < dim; d++ {
			normal[d] = p1[d] - p2[d]
		}
		if sp.angular && !distance.NormalizeL2InPlace(normal) {
			continue // identical vectors, zero normal
		}
		if !sp.angular && isZero(normal) {
			continue
		}

		var offset float64
		for d := 0; d < dim; d++ {
			offset += float64(normal[d]) * (float64(p1[d]) + float64(p2[d])) / 2
		}
		return hyperplane{normal: normal, offset: offset}, true
	}
	return hyperplane{}, false
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
