// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	prometheus.MustRegister(
		jobsStarted,
		jobsFinished,
		aiTokensTotal,
		aiCostUSD,
	)
}

var (
	jobsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobs_started_total",
			Help: "Number of job streams that entered the running state.",
		},
	)

	jobsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_finished_total",
			Help: "Number of jobs that reached a terminal state, by status.",
		},
		[]string{"status"},
	)

	aiTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_total",
			Help: "Sum of tokens billed per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiCostUSD = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_cost_usd_total",
			Help: "Total USD cost accrued per provider/model.",
		},
		[]string{"provider", "model"},
	)
)

func JobStarted() {
	jobsStarted.Inc()
}

func JobFinished(status string) {
	jobsFinished.WithLabelValues(status).Inc()
}

func TokensBilled(provider, model string, tokens int, costUSD float64) {
	aiTokensTotal.WithLabelValues(provider, model).Add(float64(tokens))
	aiCostUSD.WithLabelValues(provider, model).Add(costUSD)
}
