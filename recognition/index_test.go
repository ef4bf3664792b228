package recognition

import (
	"math/rand"
	"testing"
)

func TestIndexedMatcherFallsBackBelowMinSize(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	candidates := make([]Candidate, 20)
	for i := range candidates {
		candidates[i] = Candidate{IdentityID: uint(i + 1), Embedding: randomEmbedding(rng, 8)}
	}
	unknown := randomEmbedding(rng, 8)

	indexed := NewIndexedMatcher(1.5, 0)
	linear := NewMatcher(1.5, 0)

	got := indexed.Search(unknown, candidates)
	want := linear.Search(unknown, candidates)
	if len(got) != len(want) {
		t.Fatalf("indexed returned %d matches, linear %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("match %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestIndexedMatcherFindsExactMatch(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	candidates := make([]Candidate, 300)
	for i := range candidates {
		candidates[i] = Candidate{IdentityID: uint(i + 1), Embedding: randomEmbedding(rng, 16)}
	}
	candidates = append(candidates, Candidate{IdentityID: 9999, Embedding: make(Embedding, 4)})

	m := NewIndexedMatcher(0.6, DefaultMaxMatches)
	m.MinIndexSize = 50

	target := candidates[122]
	result := m.Search(target.Embedding, candidates)
	best, ok := result.Best()
	if !ok {
		t.Fatal("expected a match for a stored embedding")
	}
	if best.IdentityID != target.IdentityID || best.Distance != 0 {
		t.Errorf("best = %+v, want identity %d at distance 0", best, target.IdentityID)
	}
	for _, match := range result {
		if match.Distance > 0.6 {
			t.Errorf("match %+v exceeds threshold", match)
		}
		if match.IdentityID == 9999 {
			t.Error("candidate with another dimensionality was matched")
		}
	}
}

func TestIndexedMatcherRebuildsAfterEmbeddingChange(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	candidates := make([]Candidate, 60)
	for i := range candidates {
		candidates[i] = Candidate{IdentityID: uint(i + 1), Embedding: randomEmbedding(rng, 8)}
	}
	m := NewIndexedMatcher(0.01, 1)
	m.MinIndexSize = 10

	m.Search(candidates[0].Embedding, candidates)

	replaced := randomEmbedding(rng, 8)
	updated := make([]Candidate, len(candidates))
	copy(updated, candidates)
	updated[5] = Candidate{IdentityID: 6, Embedding: replaced}

	best, ok := m.Search(replaced, updated).Best()
	if !ok || best.IdentityID != 6 {
		t.Fatalf("expected identity 6 after its embedding changed, got %+v (ok=%v)", best, ok)
	}
}
