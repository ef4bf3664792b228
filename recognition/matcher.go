package recognition

import (
	"log"
	"math"
	"sort"
)

// DefaultMaxMatches caps how many accepted matches are kept per face.
const DefaultMaxMatches = 10

// Searcher finds the candidates within threshold of an unknown embedding.
type Searcher interface {
	Search(unknown Embedding, candidates []Candidate) MatchResult
}

// EuclideanDistance is the reference metric between two embeddings.
func EuclideanDistance(a, b Embedding) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// MatchAll compares unknown against every candidate and returns those with
// distance <= threshold, nearest first. Candidates of another dimensionality
// are skipped.
func MatchAll(unknown Embedding, candidates []Candidate, threshold float64) MatchResult {
	var result MatchResult
	skipped := 0
	for _, c := range candidates {
		d, err := EuclideanDistance(c.Embedding, unknown)
		if err != nil {
			skipped++
			continue
		}
		if d <= threshold {
			result = append(result, Match{IdentityID: c.IdentityID, Distance: d})
		}
	}
	if skipped > 0 {
		log.Printf("matcher: skipped %d candidate(s) with dimension != %d", skipped, unknown.Dim())
	}
	sortMatches(result)
	return result
}

func sortMatches(result MatchResult) {
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Distance != result[j].Distance {
			return result[i].Distance < result[j].Distance
		}
		return result[i].IdentityID < result[j].IdentityID
	})
}

func truncate(result MatchResult, max int) MatchResult {
	if max > 0 && len(result) > max {
		return result[:max]
	}
	return result
}

// Matcher is the linear-scan Searcher.
type Matcher struct {
	Threshold  float64
	MaxResults int // 0 keeps every match
}

func NewMatcher(threshold float64, maxResults int) *Matcher {
	return &Matcher{Threshold: threshold, MaxResults: maxResults}
}

func (m *Matcher) Search(unknown Embedding, candidates []Candidate) MatchResult {
	return truncate(MatchAll(unknown, candidates, m.Threshold), m.MaxResults)
}

var _ Searcher = (*Matcher)(nil)
