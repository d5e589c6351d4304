package feedback

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var selectedCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "sieve_feedback_opportunities",
	Help: "Number of feedback opportunities served",
})
