package consensus

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCalculator() *Calculator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewCalculator(logger, NewMemVoteStore(), NewMemRecordStore())
}

// five votes on a blocked item: weights [3,2,1,1,1], accuracy
// [false,false,true,true,true]
func blockedItemVotes() []Vote {
	return []Vote{
		{ContentID: "c1", VoterID: "v1", TrustLevel: TrustExpert, Feedback: VoteFeedback{WasAccurate: false}},
		{ContentID: "c1", VoterID: "v2", TrustLevel: TrustTrusted, Feedback: VoteFeedback{WasAccurate: false}},
		{ContentID: "c1", VoterID: "v3", TrustLevel: TrustNovice, Feedback: VoteFeedback{WasAccurate: true}},
		{ContentID: "c1", VoterID: "v4", TrustLevel: TrustNovice, Feedback: VoteFeedback{WasAccurate: true}},
		{ContentID: "c1", VoterID: "v5", TrustLevel: TrustNovice, Feedback: VoteFeedback{WasAccurate: true}},
	}
}

func TestWeightTable(t *testing.T) {
	assert := assert.New(t)

	w := DefaultWeights()
	assert.Equal(1.0, w.Weight(TrustNovice))
	assert.Equal(1.5, w.Weight(TrustContributor))
	assert.Equal(2.0, w.Weight(TrustTrusted))
	assert.Equal(3.0, w.Weight(TrustExpert))
	assert.Equal(4.0, w.Weight(TrustModerator))
	// unknown levels fall back to novice weight
	assert.Equal(1.0, w.Weight("wizard"))
}

func TestBlockedItemConsensus(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	calc := testCalculator()
	var rec *Record
	var err error
	for _, v := range blockedItemVotes() {
		rec, err = calc.SubmitVote(ctx, v)
		require.NoError(t, err)
	}

	// disagreeWeight 3+2=5, agreeWeight 1+1+1=3
	assert.Equal(5, rec.VoterCount)
	assert.Equal(8.0, rec.TotalWeight)
	assert.Equal(5.0, rec.DisagreeWeight)
	assert.Equal(3.0, rec.AgreeWeight)
	assert.InDelta(0.625, rec.Score, 1e-9)
	assert.True(calc.Reliable(rec))
}

func TestFlippedTrustedVoteConsensus(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	// same item, but two agree-votes flip to disagree:
	// disagreeWeight 7, agreeWeight 1
	votes := blockedItemVotes()
	votes[2].Feedback.WasAccurate = false
	votes[3].Feedback.WasAccurate = false

	calc := testCalculator()
	var rec *Record
	var err error
	for _, v := range votes {
		rec, err = calc.SubmitVote(ctx, v)
		require.NoError(t, err)
	}

	assert.Equal(7.0, rec.DisagreeWeight)
	assert.Equal(1.0, rec.AgreeWeight)
	assert.InDelta(0.875, rec.Score, 1e-9)
	assert.True(calc.Reliable(rec))
}

func TestDuplicateVoteRejected(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	calc := testCalculator()
	vote := Vote{ContentID: "c2", VoterID: "v1", TrustLevel: TrustNovice, Feedback: VoteFeedback{WasAccurate: true}}

	rec, err := calc.SubmitVote(ctx, vote)
	assert.NoError(err)
	assert.Equal(1, rec.VoterCount)

	// resubmission does not double-count, even with different feedback
	vote.Feedback.WasAccurate = false
	_, err = calc.SubmitVote(ctx, vote)
	assert.ErrorIs(err, ErrDuplicateVote)

	stored, err := calc.Records.Get(ctx, "c2")
	assert.NoError(err)
	assert.Equal(1, stored.VoterCount)
	assert.Equal(0.0, stored.Score)
}

func TestComputeOrderIndependent(t *testing.T) {
	assert := assert.New(t)

	votes := blockedItemVotes()
	weights := DefaultWeights()
	for i := range votes {
		votes[i].Weight = weights.Weight(votes[i].TrustLevel)
	}

	base := Compute("c1", votes)
	for i := 0; i < 20; i++ {
		shuffled := make([]Vote, len(votes))
		copy(shuffled, votes)
		rand.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		rec := Compute("c1", shuffled)
		assert.Equal(base.Score, rec.Score)
		assert.Equal(base.TotalWeight, rec.TotalWeight)
		assert.Equal(base.VoterCount, rec.VoterCount)
	}
}

func TestScoreBounds(t *testing.T) {
	assert := assert.New(t)

	// empty vote set
	rec := Compute("c1", nil)
	assert.Equal(0.0, rec.Score)

	// all agree
	votes := blockedItemVotes()
	for i := range votes {
		votes[i].Weight = 1
		votes[i].Feedback.WasAccurate = true
	}
	rec = Compute("c1", votes)
	assert.Equal(0.0, rec.Score)

	// all disagree
	for i := range votes {
		votes[i].Feedback.WasAccurate = false
	}
	rec = Compute("c1", votes)
	assert.Equal(1.0, rec.Score)
}

func TestReliabilityGate(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	calc := testCalculator()
	fired := 0
	calc.OnReliable = func(ctx context.Context, rec Record) error {
		fired++
		return nil
	}

	// four moderator votes: plenty of weight but too few voters
	for i := 0; i < 4; i++ {
		_, err := calc.SubmitVote(ctx, Vote{
			ContentID:  "c3",
			VoterID:    fmt.Sprintf("v%d", i),
			TrustLevel: TrustModerator,
			Feedback:   VoteFeedback{WasAccurate: false},
		})
		assert.NoError(err)
	}
	assert.Zero(fired)

	// fifth voter crosses both thresholds
	_, err := calc.SubmitVote(ctx, Vote{
		ContentID:  "c3",
		VoterID:    "v5",
		TrustLevel: TrustNovice,
		Feedback:   VoteFeedback{WasAccurate: false},
	})
	assert.NoError(err)
	assert.Equal(1, fired)
}

func TestConcurrentVoteSubmission(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	calc := testCalculator()

	// forty distinct voters race on one content item; every vote must land
	// exactly once
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := calc.SubmitVote(ctx, Vote{
				ContentID:  "c4",
				VoterID:    fmt.Sprintf("v%d", n),
				TrustLevel: TrustNovice,
				Feedback:   VoteFeedback{WasAccurate: n%2 == 0},
			})
			assert.NoError(err)
		}(i)
	}
	// plus racing duplicates from one voter: exactly one wins
	dupErrs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := calc.SubmitVote(ctx, Vote{
				ContentID:  "c4",
				VoterID:    "dup",
				TrustLevel: TrustNovice,
				Feedback:   VoteFeedback{WasAccurate: true},
			})
			dupErrs <- err
		}()
	}
	wg.Wait()
	close(dupErrs)

	conflicts := 0
	for err := range dupErrs {
		if err != nil {
			assert.ErrorIs(err, ErrDuplicateVote)
			conflicts++
		}
	}
	assert.Equal(3, conflicts)

	rec, err := calc.Records.Get(ctx, "c4")
	assert.NoError(err)
	assert.Equal(41, rec.VoterCount)
	assert.Equal(41.0, rec.TotalWeight)
}
