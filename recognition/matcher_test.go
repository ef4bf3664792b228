package recognition

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func TestEuclideanDistance(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Embedding
		expected float64
		err      error
	}{
		{name: "identical", a: Embedding{1, 2, 3}, b: Embedding{1, 2, 3}, expected: 0},
		{name: "unit axis", a: Embedding{0, 0}, b: Embedding{1, 0}, expected: 1},
		{name: "3-4-5", a: Embedding{0, 0}, b: Embedding{3, 4}, expected: 5},
		{name: "dimension mismatch", a: make(Embedding, 128), b: make(Embedding, 64), err: ErrDimensionMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := EuclideanDistance(tt.a, tt.b)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("expected error %v, got %v", tt.err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(d-tt.expected) > 1e-9 {
				t.Errorf("distance = %v, want %v", d, tt.expected)
			}
		})
	}
}

func TestEuclideanDistanceSymmetric(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		a, b := randomEmbedding(rng, 128), randomEmbedding(rng, 128)
		ab, _ := EuclideanDistance(a, b)
		ba, _ := EuclideanDistance(b, a)
		if ab != ba {
			t.Fatalf("distance not symmetric: %v vs %v", ab, ba)
		}
		if ab < 0 {
			t.Fatalf("negative distance %v", ab)
		}
	}
}

func TestMatchInclusiveThresholdAndOrder(t *testing.T) {
	unknown := Embedding{0, 0}
	candidates := []Candidate{
		{IdentityID: 1, Embedding: Embedding{0.5, 0}}, // exactly at threshold
		{IdentityID: 2, Embedding: Embedding{0.1, 0}},
		{IdentityID: 3, Embedding: Embedding{2, 0}},
		{IdentityID: 4, Embedding: Embedding{0, 0.3}},
	}

	result := MatchAll(unknown, candidates, 0.5)
	if len(result) != 3 {
		t.Fatalf("expected 3 matches, got %d: %+v", len(result), result)
	}
	wantOrder := []uint{2, 4, 1}
	for i, id := range wantOrder {
		if result[i].IdentityID != id {
			t.Errorf("result[%d] = %d, want %d", i, result[i].IdentityID, id)
		}
	}
	best, ok := result.Best()
	if !ok || best.IdentityID != 2 {
		t.Errorf("Best() = %+v, %v; want identity 2", best, ok)
	}
}

func TestMatchSkipsMismatchedDimensions(t *testing.T) {
	unknown := make(Embedding, 128)
	candidates := []Candidate{
		{IdentityID: 1, Embedding: make(Embedding, 64)},
	}

	result := MatchAll(unknown, candidates, 10)
	if len(result) != 0 {
		t.Fatalf("expected no matches, got %+v", result)
	}
}

func TestMatchThresholdMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	unknown := randomEmbedding(rng, 16)
	candidates := make([]Candidate, 40)
	for i := range candidates {
		candidates[i] = Candidate{IdentityID: uint(i + 1), Embedding: randomEmbedding(rng, 16)}
	}

	prev := map[uint]bool{}
	for _, threshold := range []float64{0.5, 1, 1.5, 2, 3, 10} {
		current := map[uint]bool{}
		for _, m := range MatchAll(unknown, candidates, threshold) {
			current[m.IdentityID] = true
		}
		for id := range prev {
			if !current[id] {
				t.Fatalf("identity %d matched at a lower threshold but not at %v", id, threshold)
			}
		}
		prev = current
	}
}

func TestMatcherCapsResults(t *testing.T) {
	candidates := make([]Candidate, 15)
	for i := range candidates {
		candidates[i] = Candidate{IdentityID: uint(i + 1), Embedding: Embedding{float32(i) * 0.01}}
	}

	m := NewMatcher(1, DefaultMaxMatches)
	result := m.Search(Embedding{0}, candidates)
	if len(result) != DefaultMaxMatches {
		t.Fatalf("expected %d matches, got %d", DefaultMaxMatches, len(result))
	}
	if result[0].IdentityID != 1 {
		t.Errorf("nearest identity = %d, want 1", result[0].IdentityID)
	}

	unlimited := NewMatcher(1, 0).Search(Embedding{0}, candidates)
	if len(unlimited) != 15 {
		t.Errorf("expected all 15 matches without a cap, got %d", len(unlimited))
	}
}

func randomEmbedding(rng *rand.Rand, dim int) Embedding {
	e := make(Embedding, dim)
	for i := range e {
		e[i] = rng.Float32()*2 - 1
	}
	return e
}
