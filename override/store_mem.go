package override

import (
	"context"
	"sync"

	"github.com/sievemod/sieve/engine"
)

// In-memory RecommendationStore for tests and single-instance deployments.
type MemRecommendationStore struct {
	lk   sync.Mutex
	recs map[string]Recommendation
}

func NewMemRecommendationStore() *MemRecommendationStore {
	return &MemRecommendationStore{
		recs: make(map[string]Recommendation),
	}
}

func (s *MemRecommendationStore) Create(ctx context.Context, rec Recommendation) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	s.recs[rec.ID] = rec
	return nil
}

func (s *MemRecommendationStore) Update(ctx context.Context, rec Recommendation) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	s.recs[rec.ID] = rec
	return nil
}

func (s *MemRecommendationStore) Close(ctx context.Context, rec Recommendation) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	existing, ok := s.recs[rec.ID]
	if !ok || existing.Status != StatusPending {
		return ErrInvalidTransition
	}
	s.recs[rec.ID] = rec
	return nil
}

func (s *MemRecommendationStore) Get(ctx context.Context, id string) (*Recommendation, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *MemRecommendationStore) GetPending(ctx context.Context, contentID string) (*Recommendation, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	for _, rec := range s.recs {
		if rec.ContentID == contentID && rec.Status == StatusPending {
			out := rec
			return &out, nil
		}
	}
	return nil, nil
}

// In-memory DecisionStore.
type MemDecisionStore struct {
	lk        sync.Mutex
	decisions map[string]engine.ModerationDecision
}

func NewMemDecisionStore() *MemDecisionStore {
	return &MemDecisionStore{
		decisions: make(map[string]engine.ModerationDecision),
	}
}

func (s *MemDecisionStore) PutDecision(ctx context.Context, d engine.ModerationDecision) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	s.decisions[d.ContentID] = d
	return nil
}

func (s *MemDecisionStore) GetDecision(ctx context.Context, contentID string) (*engine.ModerationDecision, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	d, ok := s.decisions[contentID]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (s *MemDecisionStore) SetDecisionStatus(ctx context.Context, contentID string, status engine.DecisionStatus) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	d, ok := s.decisions[contentID]
	if !ok {
		return nil
	}
	d.Status = status
	s.decisions[contentID] = d
	return nil
}
