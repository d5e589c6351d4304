package override

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var recommendationCreatedCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "sieve_override_recommendations",
	Help: "Number of override recommendations created",
})

var reviewCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sieve_override_reviews",
	Help: "Number of moderator review outcomes",
}, []string{"status"})
