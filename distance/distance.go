package distance

import (
	"fmt"
	"slices"

	"github.com/hupe1980/canopy/internal/math32"
)

// Metric represents the distance metric used for vector comparison.
type Metric uint8

const (
	// MetricEuclidean ranks by Euclidean (L2) distance.
	MetricEuclidean Metric = iota
	// MetricAngular ranks by angular distance, sqrt(2-2*cos). This is the
	// usual choice for image embeddings where magnitude carries no signal.
	MetricAngular
	// MetricDot ranks by negated inner product, so that ascending order
	// means descending similarity.
	MetricDot
)

func (m Metric) String() string {
	switch m {
	case MetricEuclidean:
		return "Euclidean"
	case MetricAngular:
		return "Angular"
	case MetricDot:
		return "Dot"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(m))
	}
}

// Valid reports whether m is a known metric.
func (m Metric) Valid() bool {
	return m <= MetricDot
}

// Func is a function type for distance calculation.
type Func func(a, b []float32) float32

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	return math32.Dot(a, b)
}

// SquaredL2 calculates the squared L2 (Euclidean) distance between two vectors.
// Assumes vectors are the same length (caller's responsibility).
func SquaredL2(a, b []float32) float32 {
	return math32.SquaredL2(a, b)
}

// Euclidean calculates the L2 distance between two vectors.
func Euclidean(a, b []float32) float32 {
	return math32.Sqrt(math32.SquaredL2(a, b))
}

// Angular calculates the angular distance sqrt(2-2*cos(a,b)).
// Zero-norm inputs are treated as orthogonal to everything.
func Angular(a, b []float32) float32 {
	pp := math32.Dot(a, a)
	qq := math32.Dot(b, b)
	pq := math32.Dot(a, b)
	ppqq := pp * qq
	if ppqq <= 0 {
		return math32.Sqrt(2)
	}
	cos := pq / math32.Sqrt(ppqq)
	d := 2 - 2*cos
	if d < 0 {
		d = 0
	}
	return math32.Sqrt(d)
}

// NegativeDot calculates the negated dot product, an ascending-order
// distance for inner-product similarity.
func NegativeDot(a, b []float32) float32 {
	return -math32.Dot(a, b)
}

// Provider returns the ranking distance function for the given metric.
func Provider(m Metric) (Func, error) {
	switch m {
	case MetricEuclidean:
		return Euclidean, nil
	case MetricAngular:
		return Angular, nil
	case MetricDot:
		return NegativeDot, nil
	default:
		return nil, fmt.Errorf("unsupported metric: %v", m)
	}
}

// NormalizeL2InPlace L2-normalizes v in place.
// Returns false if v has zero L2 norm.
func NormalizeL2InPlace(v []float32) bool {
	if len(v) == 0 {
		return false
	}
	norm2 := math32.Dot(v, v)
	if norm2 == 0 {
		return false
	}
	math32.ScaleInPlace(v, 1/math32.Sqrt(norm2))
	return true
}

// NormalizeL2Copy returns a normalized copy of src.
// Returns false if src has zero L2 norm.
func NormalizeL2Copy(src []float32) ([]float32, bool) {
	dst := slices.Clone(src)
	if !NormalizeL2InPlace(dst) {
		return nil, false
	}
	return dst, true
}
