package engine

type CounterRef struct {
	Name string
	Val  string
}

type CounterDistinctRef struct {
	Name   string
	Bucket string
	Val    string
}

// Mutable container for the side-effects of one evaluation. Rule execution
// only collects descriptors here; they are persisted or handed to
// collaborating systems in bulk after all rules have run.
type Effects struct {
	// Counters to increment after evaluation (trigger statistics).
	CounterIncrements         []CounterRef
	CounterDistinctIncrements []CounterDistinctRef
	// Action descriptors from the winning rule, for collaborating systems to
	// apply. Empty when the default approve decision stands.
	Actions []Action
}

func (e *Effects) Increment(name, val string) {
	e.CounterIncrements = append(e.CounterIncrements, CounterRef{Name: name, Val: val})
}

func (e *Effects) IncrementDistinct(name, bucket, val string) {
	e.CounterDistinctIncrements = append(e.CounterDistinctIncrements, CounterDistinctRef{Name: name, Bucket: bucket, Val: val})
}

func (e *Effects) AddAction(a Action) {
	e.Actions = append(e.Actions, a)
}
