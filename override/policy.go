package override

import (
	"github.com/sievemod/sieve/consensus"
	"github.com/sievemod/sieve/engine"
)

// ActionPolicy infers the recommended action from the original action and
// the votes backing the consensus. Deliberately swappable; the default is a
// majority-category heuristic.
type ActionPolicy func(original engine.ActionType, votes []consensus.Vote) engine.ActionType

// Severities that push an approve-reversal toward a block rather than a
// review queue.
var highSeverities = map[string]bool{
	string(engine.SeverityHigh):     true,
	string(engine.SeverityCritical): true,
}

// MajorityCategoryPolicy recommends the reversal suggested by the majority
// of disagreeing voters:
//   - a restrictive original action with an inaccuracy majority reverses to
//     approve;
//   - an original approve reverses to block when the disagreeing majority
//     reports high severity, otherwise to queue_for_review.
func MajorityCategoryPolicy(original engine.ActionType, votes []consensus.Vote) engine.ActionType {
	if original.Restrictive() {
		return engine.ActionApprove
	}

	// original was an approve (or reputation tweak): decide how hard to
	// reverse based on the severity reported by disagreeing voters
	var disagree, severe float64
	for _, v := range votes {
		if v.Feedback.WasAccurate {
			continue
		}
		disagree += v.Weight
		if highSeverities[v.Feedback.Severity] {
			severe += v.Weight
		}
	}
	if disagree > 0 && severe*2 >= disagree {
		return engine.ActionBlock
	}
	return engine.ActionQueueForReview
}
