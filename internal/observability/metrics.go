package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	xpAwardedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "habits_service",
		Subsystem: "leveling",
		Name:      "xp_awarded_total",
		Help:      "Total XP granted across all profiles.",
	})
	levelUpCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "habits_service",
		Subsystem: "leveling",
		Name:      "level_ups_total",
		Help:      "Number of levels gained across all profiles.",
	})

	habitsCreatedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "habits_service",
		Subsystem: "lifecycle",
		Name:      "habits_created_total",
		Help:      "Number of habits accepted by createHabit.",
	})
	habitsRejectedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "habits_service",
		Subsystem: "lifecycle",
		Name:      "habits_rejected_total",
		Help:      "Number of refused habit creations, labeled by reason.",
	}, []string{"reason"})
	streakIncrementCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "habits_service",
		Subsystem: "lifecycle",
		Name:      "streak_increments_total",
		Help:      "Number of streak increments, labeled by the resulting status.",
	}, []string{"status"})
	streakResetCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "habits_service",
		Subsystem: "lifecycle",
		Name:      "streak_resets_total",
		Help:      "Number of streak resets.",
	})
	habitsDeletedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "habits_service",
		Subsystem: "lifecycle",
		Name:      "habits_deleted_total",
		Help:      "Number of habits removed.",
	})

	openViewsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "habits_service",
		Subsystem: "liveview",
		Name:      "open_views",
		Help:      "Live views currently subscribed to store changes.",
	})
	viewRefreshCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "habits_service",
		Subsystem: "liveview",
		Name:      "refreshes_total",
		Help:      "Live view re-derivations, labeled by outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(
		xpAwardedCounter,
		levelUpCounter,
		habitsCreatedCounter,
		habitsRejectedCounter,
		streakIncrementCounter,
		streakResetCounter,
		habitsDeletedCounter,
		openViewsGauge,
		viewRefreshCounter,
	)
}

// RecordXPAwarded adds the granted amount to the XP counter.
func RecordXPAwarded(gain int) {
	xpAwardedCounter.Add(float64(gain))
}

// RecordLevelUp counts gained levels.
func RecordLevelUp(levels int) {
	if levels <= 0 {
		return
	}
	levelUpCounter.Add(float64(levels))
}

func RecordHabitCreated() {
	habitsCreatedCounter.Inc()
}

func RecordHabitRejected(reason string) {
	habitsRejectedCounter.WithLabelValues(reason).Inc()
}

func RecordStreakIncrement(status string) {
	streakIncrementCounter.WithLabelValues(status).Inc()
}

func RecordStreakReset() {
	streakResetCounter.Inc()
}

func RecordHabitDeleted() {
	habitsDeletedCounter.Inc()
}

// ViewOpened and ViewClosed track the open live view gauge.
func ViewOpened() {
	openViewsGauge.Inc()
}

func ViewClosed() {
	openViewsGauge.Dec()
}

// RecordViewRefresh counts a live view re-derivation; ok=false marks a failed store read.
func RecordViewRefresh(ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	viewRefreshCounter.WithLabelValues(outcome).Inc()
}
