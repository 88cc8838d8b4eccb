package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes recorded for each dead-lettered change the manager touches.
const (
	dlqOutcomeRequeued    = "requeued"
	dlqOutcomeQuarantined = "quarantined"
	dlqOutcomeRetry       = "retry_scheduled"
)

var (
	dlqOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "habits_service",
		Subsystem: "dlq",
		Name:      "entries_total",
		Help:      "Dead-lettered habit and profile changes by outcome.",
	}, []string{"outcome", "event_type"})

	dlqEntries = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "habits_service",
		Subsystem: "dlq",
		Name:      "entries",
		Help:      "Dead-lettered changes currently held, split into pending and quarantined.",
	}, []string{"state"})
)

func init() {
	prometheus.MustRegister(dlqOutcomes, dlqEntries)
}

func recordDLQOutcome(entry dlqEntry, outcome string) {
	dlqOutcomes.WithLabelValues(outcome, entry.EventType).Inc()
}

// refreshDLQGauge is best effort; a failed count leaves the last values in place.
func refreshDLQGauge(ctx context.Context, pool *pgxpool.Pool) {
	var pending, quarantined int
	err := pool.QueryRow(ctx, `
        SELECT COUNT(*) FILTER (WHERE quarantined_at IS NULL),
               COUNT(*) FILTER (WHERE quarantined_at IS NOT NULL)
          FROM outbox_dlq`).Scan(&pending, &quarantined)
	if err != nil {
		return
	}
	dlqEntries.WithLabelValues("pending").Set(float64(pending))
	dlqEntries.WithLabelValues("quarantined").Set(float64(quarantined))
}
