package cypher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	statementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nexus",
		Name:      "statements_total",
		Help:      "Executed statements by result kind (ok or an error kind).",
	}, []string{"result"})

	statementDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "nexus",
		Name:      "statement_duration_seconds",
		Help:      "Statement execution latency.",
		Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
	})

	transactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nexus",
		Name:      "transactions_total",
		Help:      "Finished transactions by outcome (committed, rolled_back, failed).",
	}, []string{"outcome"})
)

func statementResult(err error) string {
	if err == nil {
		return "ok"
	}
	return string(Classify(err))
}
