package consensus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var voteSubmittedCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sieve_votes_submitted",
	Help: "Number of accepted community feedback votes",
}, []string{"trust_level"})

var recomputeCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "sieve_consensus_recomputes",
	Help: "Number of full consensus recomputations",
})
