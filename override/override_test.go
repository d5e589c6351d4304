package override

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sievemod/sieve/consensus"
	"github.com/sievemod/sieve/countstore"
	"github.com/sievemod/sieve/engine"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	recommender *Recommender
	gate        *ReviewGate
	calc        *consensus.Calculator
	decisions   *MemDecisionStore
	recs        *MemRecommendationStore
	counters    countstore.CountStore
	applier     *recordingApplier
	points      *recordingPoints
}

type recordingApplier struct {
	applied []Recommendation
}

func (a *recordingApplier) ApplyOverride(ctx context.Context, rec Recommendation) error {
	a.applied = append(a.applied, rec)
	return nil
}

type recordingPoints struct {
	awards map[string]int // idempotency key -> amount
}

func (p *recordingPoints) Award(ctx context.Context, userID string, amount int, reason, key string) error {
	if p.awards == nil {
		p.awards = make(map[string]int)
	}
	p.awards[key] = amount
	return nil
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := testLogger()
	votes := consensus.NewMemVoteStore()
	records := consensus.NewMemRecordStore()
	decisions := NewMemDecisionStore()
	recs := NewMemRecommendationStore()
	counters := countstore.NewMemCountStore()
	applier := &recordingApplier{}
	points := &recordingPoints{}

	recommender := NewRecommender(logger, recs, decisions, votes)
	calc := consensus.NewCalculator(logger, votes, records)
	calc.OnReliable = func(ctx context.Context, rec consensus.Record) error {
		_, err := recommender.HandleConsensus(ctx, rec)
		return err
	}
	gate := &ReviewGate{
		Logger:    logger,
		Recs:      recs,
		Decisions: decisions,
		Votes:     votes,
		Counters:  counters,
		Applier:   applier,
		Points:    points,
	}
	return &fixture{
		recommender: recommender,
		gate:        gate,
		calc:        calc,
		decisions:   decisions,
		recs:        recs,
		counters:    counters,
		applier:     applier,
		points:      points,
	}
}

func blockedDecision(contentID string) engine.ModerationDecision {
	return engine.ModerationDecision{
		ContentID:     contentID,
		ContentType:   "post",
		WinningRuleID: 7,
		Action:        engine.ActionBlock,
		Confidence:    0.6,
		Status:        engine.StatusAutoApplied,
	}
}

func submitVotes(t *testing.T, f *fixture, contentID string, accurate []bool, levels []consensus.TrustLevel) {
	t.Helper()
	for i := range accurate {
		_, err := f.calc.SubmitVote(context.Background(), consensus.Vote{
			ContentID:  contentID,
			VoterID:    fmt.Sprintf("voter-%d", i),
			TrustLevel: levels[i],
			Feedback:   consensus.VoteFeedback{WasAccurate: accurate[i]},
		})
		require.NoError(t, err)
	}
}

func TestNoRecommendationBelowThreshold(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	f := newFixture(t)
	require.NoError(t, f.decisions.PutDecision(ctx, blockedDecision("c1")))

	// weights [3,2,1,1,1], accurate [F,F,T,T,T]: score 0.625, below 0.65
	submitVotes(t, f, "c1",
		[]bool{false, false, true, true, true},
		[]consensus.TrustLevel{consensus.TrustExpert, consensus.TrustTrusted, consensus.TrustNovice, consensus.TrustNovice, consensus.TrustNovice})

	pending, err := f.recs.GetPending(ctx, "c1")
	assert.NoError(err)
	assert.Nil(pending)
}

func TestRecommendationCreatedAboveThreshold(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	f := newFixture(t)
	require.NoError(t, f.decisions.PutDecision(ctx, blockedDecision("c2")))

	// disagreeWeight 7, agreeWeight 1: score 0.875
	submitVotes(t, f, "c2",
		[]bool{false, false, false, false, true},
		[]consensus.TrustLevel{consensus.TrustExpert, consensus.TrustTrusted, consensus.TrustNovice, consensus.TrustNovice, consensus.TrustNovice})

	pending, err := f.recs.GetPending(ctx, "c2")
	assert.NoError(err)
	require.NotNil(t, pending)
	assert.Equal(StatusPending, pending.Status)
	assert.Equal(engine.ActionBlock, pending.OriginalAction)
	assert.Equal(engine.ActionApprove, pending.RecommendedAction)
	assert.InDelta(0.875, pending.Confidence, 1e-9)
}

func TestRecommendationNotDuplicated(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	f := newFixture(t)
	require.NoError(t, f.decisions.PutDecision(ctx, blockedDecision("c3")))

	submitVotes(t, f, "c3",
		[]bool{false, false, false, false, true},
		[]consensus.TrustLevel{consensus.TrustExpert, consensus.TrustTrusted, consensus.TrustNovice, consensus.TrustNovice, consensus.TrustNovice})

	first, err := f.recs.GetPending(ctx, "c3")
	require.NoError(t, err)
	require.NotNil(t, first)

	// another disagree vote strengthens the consensus; the pending
	// recommendation is refreshed, not duplicated
	_, err = f.calc.SubmitVote(ctx, consensus.Vote{
		ContentID:  "c3",
		VoterID:    "voter-5",
		TrustLevel: consensus.TrustModerator,
		Feedback:   consensus.VoteFeedback{WasAccurate: false},
	})
	require.NoError(t, err)

	second, err := f.recs.GetPending(ctx, "c3")
	assert.NoError(err)
	require.NotNil(t, second)
	assert.Equal(first.ID, second.ID)
	assert.Greater(second.Confidence, first.Confidence)
}

func TestNoRecommendationForNonAutoApplied(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	f := newFixture(t)
	d := blockedDecision("c4")
	d.Status = engine.StatusOverridden
	require.NoError(t, f.decisions.PutDecision(ctx, d))

	submitVotes(t, f, "c4",
		[]bool{false, false, false, false, false},
		[]consensus.TrustLevel{consensus.TrustExpert, consensus.TrustTrusted, consensus.TrustNovice, consensus.TrustNovice, consensus.TrustNovice})

	pending, err := f.recs.GetPending(ctx, "c4")
	assert.NoError(err)
	assert.Nil(pending)
}

func approvedFixture(t *testing.T) (*fixture, *Recommendation) {
	t.Helper()
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.decisions.PutDecision(ctx, blockedDecision("c5")))
	submitVotes(t, f, "c5",
		[]bool{false, false, false, false, true},
		[]consensus.TrustLevel{consensus.TrustExpert, consensus.TrustTrusted, consensus.TrustNovice, consensus.TrustNovice, consensus.TrustNovice})
	pending, err := f.recs.GetPending(ctx, "c5")
	require.NoError(t, err)
	require.NotNil(t, pending)
	return f, pending
}

func TestApproveOverride(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	f, pending := approvedFixture(t)

	reviewed, err := f.gate.Review(ctx, pending.ID, "mod-1", true, "clearly a false positive")
	assert.NoError(err)
	assert.Equal(StatusApproved, reviewed.Status)
	assert.Equal("mod-1", reviewed.ReviewedBy)
	assert.NotNil(reviewed.ReviewedAt)

	// original decision flipped to overridden
	decision, err := f.decisions.GetDecision(ctx, "c5")
	assert.NoError(err)
	assert.Equal(engine.StatusOverridden, decision.Status)

	// recommended action went through the gateway
	require.Len(t, f.applier.applied, 1)
	assert.Equal(engine.ActionApprove, f.applier.applied[0].RecommendedAction)

	// the four disagreeing voters each got one bonus
	assert.Len(f.points.awards, 4)
	for _, amount := range f.points.awards {
		assert.Equal(AgreeingVoterBonus, amount)
	}

	// the originating rule's override counter advanced
	overridden, err := f.counters.GetCount(ctx, engine.CounterRuleOverridden, "7", countstore.PeriodTotal)
	assert.NoError(err)
	assert.Equal(1, overridden)
}

func TestRejectOverride(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	f, pending := approvedFixture(t)

	reviewed, err := f.gate.Review(ctx, pending.ID, "mod-1", false, "the rule got it right")
	assert.NoError(err)
	assert.Equal(StatusRejected, reviewed.Status)

	// decision stays auto_applied
	decision, err := f.decisions.GetDecision(ctx, "c5")
	assert.NoError(err)
	assert.Equal(engine.StatusAutoApplied, decision.Status)
	assert.Empty(f.applier.applied)
	assert.Empty(f.points.awards)

	// one-time affirmation for the originating rule
	affirmed, err := f.counters.GetCount(ctx, engine.CounterRuleAffirmed, "7", countstore.PeriodTotal)
	assert.NoError(err)
	assert.Equal(1, affirmed)
}

func TestClosedRecommendationConflicts(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	f, pending := approvedFixture(t)

	_, err := f.gate.Review(ctx, pending.ID, "mod-1", true, "")
	require.NoError(t, err)

	// no transition leaves approved, in either direction
	_, err = f.gate.Review(ctx, pending.ID, "mod-2", false, "")
	assert.ErrorIs(err, ErrInvalidTransition)
	_, err = f.gate.Review(ctx, pending.ID, "mod-2", true, "")
	assert.ErrorIs(err, ErrInvalidTransition)

	stored, err := f.recs.Get(ctx, pending.ID)
	assert.NoError(err)
	assert.Equal(StatusApproved, stored.Status)
	assert.Equal("mod-1", stored.ReviewedBy)
}

func TestConcurrentReviewsResolveOnce(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	f, pending := approvedFixture(t)

	// an approve and a reject race on the same pending recommendation; the
	// pending guard lets exactly one of them through
	start := make(chan struct{})
	errs := make(chan error, 2)
	go func() {
		<-start
		_, err := f.gate.Review(ctx, pending.ID, "mod-1", true, "")
		errs <- err
	}()
	go func() {
		<-start
		_, err := f.gate.Review(ctx, pending.ID, "mod-2", false, "")
		errs <- err
	}()
	close(start)

	var wins, conflicts int
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			assert.ErrorIs(err, ErrInvalidTransition)
			conflicts++
		} else {
			wins++
		}
	}
	assert.Equal(1, wins)
	assert.Equal(1, conflicts)

	// whichever won, the stored state is consistent with it
	stored, err := f.recs.Get(ctx, pending.ID)
	require.NoError(t, err)
	decision, err := f.decisions.GetDecision(ctx, "c5")
	require.NoError(t, err)
	if stored.Status == StatusApproved {
		assert.Equal(engine.StatusOverridden, decision.Status)
		assert.Len(f.applier.applied, 1)
	} else {
		assert.Equal(StatusRejected, stored.Status)
		assert.Equal(engine.StatusAutoApplied, decision.Status)
		assert.Empty(f.applier.applied)
	}
}

func TestReviewUnknownRecommendation(t *testing.T) {
	assert := assert.New(t)
	f := newFixture(t)
	_, err := f.gate.Review(context.Background(), "no-such-id", "mod-1", true, "")
	assert.ErrorIs(err, ErrNotFound)
}

func TestMajorityCategoryPolicy(t *testing.T) {
	assert := assert.New(t)

	disagreeHigh := consensus.Vote{Weight: 2, Feedback: consensus.VoteFeedback{WasAccurate: false, Severity: "high"}}
	disagreeLow := consensus.Vote{Weight: 1, Feedback: consensus.VoteFeedback{WasAccurate: false, Severity: "low"}}
	agree := consensus.Vote{Weight: 3, Feedback: consensus.VoteFeedback{WasAccurate: true}}

	// restrictive originals reverse to approve
	for _, original := range []engine.ActionType{engine.ActionBlock, engine.ActionHide, engine.ActionFlag, engine.ActionQueueForReview} {
		assert.Equal(engine.ActionApprove, MajorityCategoryPolicy(original, []consensus.Vote{disagreeHigh, agree}))
	}

	// approve with a high-severity disagree majority goes to block
	assert.Equal(engine.ActionBlock, MajorityCategoryPolicy(engine.ActionApprove, []consensus.Vote{disagreeHigh, disagreeLow, agree}))

	// approve with mostly low-severity disagreement queues for review
	assert.Equal(engine.ActionQueueForReview, MajorityCategoryPolicy(engine.ActionApprove, []consensus.Vote{disagreeLow, disagreeLow, disagreeLow, disagreeHigh, agree}))
}
