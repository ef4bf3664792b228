package recognition

import (
	"hash/fnv"
	"log"
	"math"
	"sync"

	"github.com/coder/hnsw"
)

const (
	// DefaultMinIndexSize is the candidate count below which the indexed
	// matcher falls back to a linear scan.
	DefaultMinIndexSize = 256

	hnswMaxNeighbors = 16
	hnswEfSearch     = 64
	maxCachedScopes  = 32
)

type indexedScope struct {
	mu    sync.Mutex
	graph *hnsw.Graph[uint]
}

// IndexedMatcher answers the same question as Matcher using an HNSW graph
// per candidate set. Graph hits are re-ranked with exact Euclidean distance,
// so a returned match always satisfies distance <= Threshold; the index can
// only miss matches, never invent them.
type IndexedMatcher struct {
	Threshold    float64
	MaxResults   int
	MinIndexSize int

	mu     sync.Mutex
	scopes map[uint64]*indexedScope
}

func NewIndexedMatcher(threshold float64, maxResults int) *IndexedMatcher {
	return &IndexedMatcher{
		Threshold:    threshold,
		MaxResults:   maxResults,
		MinIndexSize: DefaultMinIndexSize,
		scopes:       make(map[uint64]*indexedScope),
	}
}

// Invalidate drops every cached graph. Call it after reference embeddings change.
func (m *IndexedMatcher) Invalidate() {
	m.mu.Lock()
	m.scopes = make(map[uint64]*indexedScope)
	m.mu.Unlock()
}

func (m *IndexedMatcher) Search(unknown Embedding, candidates []Candidate) MatchResult {
	eligible := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if unknown.Dim() > 0 && c.Embedding.Dim() == unknown.Dim() {
			eligible = append(eligible, c)
		}
	}
	if skipped := len(candidates) - len(eligible); skipped > 0 {
		log.Printf("matcher(hnsw): skipped %d candidate(s) with dimension != %d", skipped, unknown.Dim())
	}

	if len(eligible) < m.MinIndexSize {
		return truncate(MatchAll(unknown, eligible, m.Threshold), m.MaxResults)
	}

	scope := m.scopeFor(eligible)
	k := m.MaxResults * 4
	if k < hnswEfSearch {
		k = hnswEfSearch
	}
	if k > len(eligible) {
		k = len(eligible)
	}

	scope.mu.Lock()
	nodes := scope.graph.Search([]float32(unknown), k)
	scope.mu.Unlock()

	var result MatchResult
	for _, n := range nodes {
		d, err := EuclideanDistance(Embedding(n.Value), unknown)
		if err != nil {
			continue
		}
		if d <= m.Threshold {
			result = append(result, Match{IdentityID: n.Key, Distance: d})
		}
	}
	sortMatches(result)
	return truncate(result, m.MaxResults)
}

func (m *IndexedMatcher) scopeFor(candidates []Candidate) *indexedScope {
	key := fingerprint(candidates)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scopes == nil {
		m.scopes = make(map[uint64]*indexedScope)
	}
	if s, ok := m.scopes[key]; ok {
		return s
	}
	if len(m.scopes) >= maxCachedScopes {
		m.scopes = make(map[uint64]*indexedScope)
	}

	g := hnsw.NewGraph[uint]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors)
	g.EfSearch = hnswEfSearch
	g.Distance = hnsw.EuclideanDistance
	for _, c := range candidates {
		g.Add(hnsw.MakeNode(c.IdentityID, []float32(c.Embedding)))
	}
	log.Printf("matcher(hnsw): built index over %d candidates", len(candidates))

	s := &indexedScope{graph: g}
	m.scopes[key] = s
	return s
}

// fingerprint identifies a candidate set by ids, dimension and the edge
// values of each embedding.
func fingerprint(candidates []Candidate) uint64 {
	h := fnv.New64a()
	var buf [12]byte
	for _, c := range candidates {
		id := uint32(c.IdentityID)
		first, last := uint32(0), uint32(0)
		if n := len(c.Embedding); n > 0 {
			first = math.Float32bits(c.Embedding[0])
			last = math.Float32bits(c.Embedding[n-1])
		}
		for i, v := range []uint32{id, first, last} {
			buf[i*4] = byte(v)
			buf[i*4+1] = byte(v >> 8)
			buf[i*4+2] = byte(v >> 16)
			buf[i*4+3] = byte(v >> 24)
		}
		h.Write(buf[:])
	}
	if len(candidates) > 0 {
		dim := candidates[0].Embedding.Dim()
		h.Write([]byte{byte(dim), byte(dim >> 8)})
	}
	return h.Sum64()
}

var _ Searcher = (*IndexedMatcher)(nil)
