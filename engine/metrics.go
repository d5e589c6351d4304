package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var evalDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "sieve_eval_duration_sec",
	Help: "Total duration of rule-set evaluation per content event",
}, []string{"event"})

var evalCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sieve_eval_processed",
	Help: "Number of content events evaluated",
}, []string{"event"})

var evalErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sieve_eval_errors",
	Help: "Number of content events which failed evaluation",
}, []string{"event"})

var ruleTriggerCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sieve_rule_triggers",
	Help: "Number of rule triggers, by action type of the winning rule",
}, []string{"action"})

var conditionErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sieve_condition_errors",
	Help: "Number of recovered per-condition evaluation failures",
}, []string{"operator"})

var conditionTimeoutCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "sieve_condition_regex_timeouts",
	Help: "Number of regex evaluations abandoned at the time budget",
})

var conditionBreakerTripCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "sieve_condition_breaker_trips",
	Help: "Number of conditions auto-disabled after repeated regex timeouts",
})

var conditionBreakerSkipCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "sieve_condition_breaker_skips",
	Help: "Number of condition evaluations skipped by a tripped breaker",
})
