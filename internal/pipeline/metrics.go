package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	chatRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "labassist_chat_requests_total",
		Help: "Chat requests by serving route.",
	}, []string{"route"})

	intentOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "labassist_intent_total",
		Help: "Classifier intent outcomes.",
	}, []string{"intent"})

	generatorFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "labassist_generator_fallbacks_total",
		Help: "Times the safe fallback replaced generator output.",
	})
)
