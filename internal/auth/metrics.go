package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var tokenVerifications = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "directory_token_verifications_total",
		Help: "Token and credential verifications by kind and result",
	},
	[]string{"kind", "result"},
)

func recordVerification(kind, result string) {
	tokenVerifications.WithLabelValues(kind, result).Inc()
}
