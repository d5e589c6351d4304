// Package consensus aggregates trust-weighted community feedback votes into
// per-content consensus records.
package consensus

import (
	"context"
	"errors"
	"time"
)

// Categorical voter tier, derived from reputation by an upstream service.
type TrustLevel string

const (
	TrustNovice      TrustLevel = "novice"
	TrustContributor TrustLevel = "contributor"
	TrustTrusted     TrustLevel = "trusted"
	TrustExpert      TrustLevel = "expert"
	TrustModerator   TrustLevel = "moderator"
)

// Trust level to vote weight mapping. Injectable so deployments can tune
// weights without touching consensus math.
type WeightTable map[TrustLevel]float64

func DefaultWeights() WeightTable {
	return WeightTable{
		TrustNovice:      1,
		TrustContributor: 1.5,
		TrustTrusted:     2,
		TrustExpert:      3,
		TrustModerator:   4,
	}
}

// Weight for a trust level; unknown levels get novice weight.
func (w WeightTable) Weight(level TrustLevel) float64 {
	if v, ok := w[level]; ok {
		return v
	}
	return w[TrustNovice]
}

// The voter's judgement of the original automated decision.
type VoteFeedback struct {
	// true means the voter agrees the original action was correct
	WasAccurate bool     `json:"wasAccurate"`
	Severity    string   `json:"severity,omitempty"`
	Categories  []string `json:"categories,omitempty"`
}

// One community feedback vote. Unique per (voterID, contentID).
type Vote struct {
	ID          string       `json:"id"`
	ContentID   string       `json:"contentId"`
	VoterID     string       `json:"voterId"`
	TrustLevel  TrustLevel   `json:"voterTrustLevel"`
	Weight      float64      `json:"voteWeight"`
	Feedback    VoteFeedback `json:"feedback"`
	SubmittedAt time.Time    `json:"submittedAt"`
}

// Aggregated vote state for one content item, recomputed from the full vote
// set on every new vote so late corrections are tolerated.
type Record struct {
	ContentID      string    `json:"contentId"`
	TotalWeight    float64   `json:"totalWeight"`
	AgreeWeight    float64   `json:"agreeWeight"`
	DisagreeWeight float64   `json:"disagreeWeight"`
	VoterCount     int       `json:"voterCount"`
	Score          float64   `json:"consensusScore"`
	ComputedAt     time.Time `json:"computedAt"`
}

var ErrDuplicateVote = errors.New("voter has already voted on this content")

// Durable storage for votes. Add must enforce (voterID, contentID)
// uniqueness atomically and return ErrDuplicateVote on conflict.
type VoteStore interface {
	Add(ctx context.Context, vote Vote) error
	ListByContent(ctx context.Context, contentID string) ([]Vote, error)
	HasVoted(ctx context.Context, contentID, voterID string) (bool, error)
	CountByContent(ctx context.Context, contentID string) (int, error)
}

// Durable storage for computed consensus records.
type RecordStore interface {
	Upsert(ctx context.Context, rec Record) error
	Get(ctx context.Context, contentID string) (*Record, error)
}
