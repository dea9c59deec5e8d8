package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	awardsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gamification",
		Subsystem: "awards",
		Name:      "applied_total",
		Help:      "Number of XP awards applied.",
	})
	awardedXPTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gamification",
		Subsystem: "awards",
		Name:      "xp_total",
		Help:      "Cumulative XP granted through awards.",
	})
	adjustmentsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gamification",
		Subsystem: "awards",
		Name:      "adjustments_total",
		Help:      "Number of administrative XP adjustments applied.",
	})
	activityPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gamification",
		Subsystem: "persistence",
		Name:      "last_activity_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity persisted to Postgres.",
	})
)

func init() {
	prometheus.MustRegister(awardsTotal, awardedXPTotal, adjustmentsTotal, activityPersistGauge)
}

// RecordAward counts a successfully applied XP grant.
func RecordAward(xp int) {
	awardsTotal.Inc()
	awardedXPTotal.Add(float64(xp))
}

// RecordAdjustment counts an applied administrative correction. Negative
// deltas still count as one adjustment; the XP counter only tracks grants.
func RecordAdjustment(xp int) {
	adjustmentsTotal.Inc()
	if xp > 0 {
		awardedXPTotal.Add(float64(xp))
	}
}

// RecordActivityPersisted updates the persistence watermark gauge.
func RecordActivityPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	activityPersistGauge.Set(float64(ts.Unix()))
}
