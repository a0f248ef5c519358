package capture

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Frame outcomes recorded in framesTotal.
const (
	outcomeDropped = "dropped"
	outcomeNoImage = "no_image"
	outcomeDecoded = "decoded"
	outcomeEmpty   = "empty"
	outcomeFailed  = "failed"
	outcomeStale   = "stale"
)

var (
	framesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "driftscan",
		Subsystem: "capture",
		Name:      "frames_total",
		Help:      "Camera frames seen by the analyzer, by outcome.",
	}, []string{"outcome"})

	decodeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "driftscan",
		Subsystem: "capture",
		Name:      "decode_duration_seconds",
		Help:      "Time spent in the barcode decoder per attempt.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})
)
