package consensus

import (
	"context"
	"sync"
)

// In-memory VoteStore. Suitable for tests and single-instance deployments.
type MemVoteStore struct {
	lk    sync.Mutex
	votes map[string]map[string]Vote // contentID -> voterID -> vote
}

func NewMemVoteStore() *MemVoteStore {
	return &MemVoteStore{
		votes: make(map[string]map[string]Vote),
	}
}

func (s *MemVoteStore) Add(ctx context.Context, vote Vote) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	byVoter, ok := s.votes[vote.ContentID]
	if !ok {
		byVoter = make(map[string]Vote)
		s.votes[vote.ContentID] = byVoter
	}
	if _, exists := byVoter[vote.VoterID]; exists {
		return ErrDuplicateVote
	}
	byVoter[vote.VoterID] = vote
	return nil
}

func (s *MemVoteStore) ListByContent(ctx context.Context, contentID string) ([]Vote, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	out := make([]Vote, 0, len(s.votes[contentID]))
	for _, v := range s.votes[contentID] {
		out = append(out, v)
	}
	return out, nil
}

func (s *MemVoteStore) HasVoted(ctx context.Context, contentID, voterID string) (bool, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	_, ok := s.votes[contentID][voterID]
	return ok, nil
}

func (s *MemVoteStore) CountByContent(ctx context.Context, contentID string) (int, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	return len(s.votes[contentID]), nil
}

// In-memory RecordStore.
type MemRecordStore struct {
	lk      sync.Mutex
	records map[string]Record
}

func NewMemRecordStore() *MemRecordStore {
	return &MemRecordStore{
		records: make(map[string]Record),
	}
}

func (s *MemRecordStore) Upsert(ctx context.Context, rec Record) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	s.records[rec.ContentID] = rec
	return nil
}

func (s *MemRecordStore) Get(ctx context.Context, contentID string) (*Record, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	rec, ok := s.records[contentID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}
