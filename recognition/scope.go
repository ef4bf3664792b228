package recognition

import (
	"context"
	"fmt"
	"log"
)

// CandidateSource lists identities that have a stored embedding, optionally
// restricted to the registrants of one event.
type CandidateSource interface {
	ListCandidates(ctx context.Context, eventID *uint) ([]Candidate, error)
}

// ScopeResolver narrows the candidate population for one matching operation.
type ScopeResolver struct {
	Source CandidateSource
}

func NewScopeResolver(source CandidateSource) *ScopeResolver {
	return &ScopeResolver{Source: source}
}

// Resolve returns the registrants of eventID that have an embedding, or every
// identity with an embedding when eventID is nil.
func (r *ScopeResolver) Resolve(ctx context.Context, eventID *uint) ([]Candidate, error) {
	candidates, err := r.Source.ListCandidates(ctx, eventID)
	if err != nil {
		if eventID != nil {
			return nil, fmt.Errorf("failed to list candidates for event %d: %w", *eventID, err)
		}
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}

	scoped := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Embedding.Dim() > 0 {
			scoped = append(scoped, c)
		}
	}

	if eventID != nil {
		log.Printf("scope: %d candidate(s) registered for event %d", len(scoped), *eventID)
	} else {
		log.Printf("scope: %d candidate(s) in full population", len(scoped))
	}
	return scoped, nil
}
