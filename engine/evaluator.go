package engine

import (
	"fmt"
	"log/slog"
	"regexp"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/sievemod/sieve/keyword"
)

// Consecutive regex timeouts before a condition is auto-disabled.
const regexBreakerLimit = 3

// Default wall-clock budget for a single regex match.
const DefaultRegexTimeout = 10 * time.Millisecond

type breakerState struct {
	consecutive atomic.Int32
	tripped     atomic.Bool
}

// Evaluator tests single conditions against content snapshots. It holds no
// per-content state; the only mutable pieces are the compiled-regex cache and
// the per-condition circuit breakers, both safe for concurrent use.
type Evaluator struct {
	Logger       *slog.Logger
	RegexTimeout time.Duration

	regexCache *lru.Cache[string, *regexp.Regexp]
	breakers   *xsync.MapOf[string, *breakerState]
}

func NewEvaluator(logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	cache, _ := lru.New[string, *regexp.Regexp](512)
	return &Evaluator{
		Logger:       logger,
		RegexTimeout: DefaultRegexTimeout,
		regexCache:   cache,
		breakers:     xsync.NewMapOf[string, *breakerState](),
	}
}

// Tests one condition against the snapshot. Returns whether the condition is
// satisfied, and the condition's weight if satisfied (else 0). Evaluation
// failures are recovered and count as not satisfied, never an error.
func (ev *Evaluator) Condition(ruleID int64, idx int, cond Condition, snap *ContentSnapshot) (satisfied bool, weight float64) {
	defer func() {
		if r := recover(); r != nil {
			ev.Logger.Error("condition evaluation exception", "err", r, "rule", ruleID, "condition", idx)
			conditionErrorCount.WithLabelValues(string(cond.Operator)).Inc()
			satisfied = false
			weight = 0
		}
	}()

	raw, ok := snap.Field(cond.Field)
	if !ok {
		return false, 0
	}

	switch cond.Operator {
	case OpEquals:
		s, ok := coerceString(raw)
		if !ok {
			return false, 0
		}
		satisfied = keyword.Equals(s, cond.Value)
	case OpContains:
		s, ok := coerceString(raw)
		if !ok {
			return false, 0
		}
		satisfied = keyword.Contains(s, cond.Value)
	case OpGreaterThan:
		f, ok := coerceNumeric(raw)
		if !ok {
			return false, 0
		}
		threshold, ok := coerceNumeric(cond.Value)
		if !ok {
			return false, 0
		}
		satisfied = f > threshold
	case OpLessThan:
		f, ok := coerceNumeric(raw)
		if !ok {
			return false, 0
		}
		threshold, ok := coerceNumeric(cond.Value)
		if !ok {
			return false, 0
		}
		satisfied = f < threshold
	case OpMatches:
		s, ok := coerceString(raw)
		if !ok {
			return false, 0
		}
		satisfied = ev.matches(ruleID, idx, cond.Value, s)
	default:
		// unreachable for validated rule sets
		ev.Logger.Warn("unknown condition operator", "operator", cond.Operator, "rule", ruleID)
		return false, 0
	}

	if satisfied {
		return true, cond.Weight
	}
	return false, 0
}

func breakerKey(ruleID int64, idx int) string {
	return fmt.Sprintf("%d/%d", ruleID, idx)
}

// Regex match under the evaluator's time budget. A timeout counts as not
// satisfied; three consecutive timeouts trip a circuit breaker which disables
// the condition until the process restarts or the rule set is redefined.
func (ev *Evaluator) matches(ruleID int64, idx int, pattern, s string) bool {
	st, _ := ev.breakers.LoadOrCompute(breakerKey(ruleID, idx), func() *breakerState {
		return &breakerState{}
	})
	if st.tripped.Load() {
		conditionBreakerSkipCount.Inc()
		return false
	}

	re, err := ev.compile(pattern)
	if err != nil {
		// validated rule sets compile at load; this covers ad-hoc callers
		ev.Logger.Warn("regex compile failed", "err", err, "rule", ruleID, "condition", idx)
		return false
	}

	matched, timedOut := ev.matchWithTimeout(re, s)
	if timedOut {
		conditionTimeoutCount.Inc()
		n := st.consecutive.Add(1)
		ev.Logger.Warn("regex evaluation timeout", "rule", ruleID, "condition", idx, "consecutive", n)
		if n >= regexBreakerLimit && st.tripped.CompareAndSwap(false, true) {
			conditionBreakerTripCount.Inc()
			ev.Logger.Error("condition auto-disabled after repeated regex timeouts", "rule", ruleID, "condition", idx)
		}
		return false
	}
	st.consecutive.Store(0)
	return matched
}

func (ev *Evaluator) compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := ev.regexCache.Get(pattern); ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	ev.regexCache.Add(pattern, re)
	return re, nil
}

// Runs the match in a goroutine and abandons it if the budget elapses. The
// abandoned goroutine finishes on its own; the buffered channel keeps it from
// leaking.
func (ev *Evaluator) matchWithTimeout(re *regexp.Regexp, s string) (matched, timedOut bool) {
	budget := ev.RegexTimeout
	if budget <= 0 {
		// no budget at all; treat as immediately expired
		return false, true
	}
	done := make(chan bool, 1)
	go func() {
		done <- re.MatchString(s)
	}()
	timer := time.NewTimer(budget)
	defer timer.Stop()
	select {
	case m := <-done:
		return m, false
	case <-timer.C:
		return false, true
	}
}

// Whether the circuit breaker for a condition has disabled it.
func (ev *Evaluator) ConditionDisabled(ruleID int64, idx int) bool {
	st, ok := ev.breakers.Load(breakerKey(ruleID, idx))
	return ok && st.tripped.Load()
}

// Clears breaker state, eg after the rule set is reloaded with new
// definitions.
func (ev *Evaluator) ResetBreakers() {
	ev.breakers.Clear()
}
