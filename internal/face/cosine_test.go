package face

import (
	"math"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a        []float32
		b        []float32
		expected float64
	}{
		{
			name:     "identical vectors",
			a:        []float32{1, 0, 0},
			b:        []float32{1, 0, 0},
			expected: 1.0,
		},
		{
			name:     "orthogonal vectors",
			a:        []float32{1, 0, 0},
			b:        []float32{0, 1, 0},
			expected: 0.0,
		},
		{
			name:     "opposite vectors",
			a:        []float32{1, 0, 0},
			b:        []float32{-1, 0, 0},
			expected: -1.0,
		},
		{
			name:     "scaled vectors keep similarity",
			a:        []float32{2, 2, 0},
			b:        []float32{1, 1, 0},
			expected: 1.0,
		},
		{
			name:     "length mismatch",
			a:        []float32{1, 0},
			b:        []float32{1, 0, 0},
			expected: -1.0,
		},
		{
			name:     "empty vectors",
			a:        []float32{},
			b:        []float32{},
			expected: -1.0,
		},
		{
			name:     "zero vector",
			a:        []float32{0, 0, 0},
			b:        []float32{1, 0, 0},
			expected: -1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.expected) > 0.0001 {
				t.Errorf("CosineSimilarity(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.expected)
			}
		})
	}
}

func TestCosineDistance(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}
	if d := CosineDistance(a, a); math.Abs(d) > 0.0001 {
		t.Errorf("CosineDistance(a, a) = %v, want 0", d)
	}
	if d := CosineDistance(a, b); math.Abs(d-1) > 0.0001 {
		t.Errorf("CosineDistance(a, b) = %v, want 1", d)
	}
}

func TestEmbeddingNormalize(t *testing.T) {
	e := Embedding{3, 4}
	e.Normalize()
	var sum float64
	for _, v := range e {
		sum += float64(v) * float64(v)
	}
	if math.Abs(sum-1) > 0.0001 {
		t.Errorf("normalized embedding has squared norm %v, want 1", sum)
	}

	zero := Embedding{0, 0}
	zero.Normalize()
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero embedding changed by Normalize: %v", zero)
	}
}
