package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var chatLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "labassist_chat_duration_seconds",
	Help:    "End-to-end chat request duration including generation.",
	Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
})
