package math32

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDot(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{4, 5, 6}
	assert.InDelta(t, 32, Dot(a, b), 1e-6)
	assert.InDelta(t, 0, Dot([]float32{1, 0}, []float32{0, 1}), 1e-6)
}

func TestSquaredL2(t *testing.T) {
	a := []float32{0, 0}
	b := []float32{3, 4}
	assert.InDelta(t, 25, SquaredL2(a, b), 1e-6)
	assert.InDelta(t, 0, SquaredL2(b, b), 1e-6)
}

func TestNorm(t *testing.T) {
	assert.InDelta(t, 5, Norm([]float32{3, 4}), 1e-6)
	assert.InDelta(t, 0, Norm([]float32{0, 0}), 1e-6)
}

func TestScaleInPlace(t *testing.T) {
	v := []float32{1, 2, 4}
	ScaleInPlace(v, 0.5)
	assert.Equal(t, []float32{0.5, 1, 2}, v)
}
