package outbox

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeDelivered    = "delivered"
	outcomeDeadLettered = "dead_lettered"
)

var (
	eventsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "habits_service",
		Subsystem: "outbox",
		Name:      "events_total",
		Help:      "Habit and profile events drained from the outbox, by outcome and event type.",
	}, []string{"outcome", "event_type"})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "habits_service",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time from claiming an outbox batch to marking it published.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})
)

func init() {
	prometheus.MustRegister(eventsCounter, batchDuration)
}

func recordBatch(messages []Message, outcome string, started time.Time) {
	for _, msg := range messages {
		eventsCounter.WithLabelValues(outcome, msg.EventType).Inc()
	}
	batchDuration.Observe(time.Since(started).Seconds())
}
