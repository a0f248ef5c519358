package gate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "driftscan",
		Subsystem: "gate",
		Name:      "decisions_total",
		Help:      "Permission gate decisions by permission and outcome.",
	}, []string{"permission", "decision"})

	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "driftscan",
		Subsystem: "gate",
		Name:      "request_results_total",
		Help:      "Answers to permission requests by permission and follow-up action.",
	}, []string{"permission", "action"})
)
