package routing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	routingOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "directory_routing_outcomes_total",
			Help: "Lead routing attempts by outcome",
		},
		[]string{"outcome"},
	)

	routingCandidates = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "directory_routing_candidates",
			Help:    "Eligible, matching providers per routing attempt",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		},
	)

	routingMatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "directory_routing_matches_total",
			Help: "Winning provider matches by geographic rule",
		},
		[]string{"match"},
	)
)

func recordOutcome(outcome string) {
	routingOutcomes.WithLabelValues(outcome).Inc()
}
