package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nexus",
		Subsystem: "plan_cache",
		Name:      "lookups_total",
		Help:      "Plan cache lookups by result (hit, miss).",
	}, []string{"result"})

	evictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nexus",
		Subsystem: "plan_cache",
		Name:      "evictions_total",
		Help:      "Plans evicted to honour the entry or memory bound.",
	})

	memoryBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "nexus",
		Subsystem: "plan_cache",
		Name:      "memory_bytes",
		Help:      "Estimated memory held by cached plans.",
	})
)
