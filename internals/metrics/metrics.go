package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Call signaling
	CallsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "coord_calls_active",
		Help: "Number of call sessions currently pending or accepted",
	})

	CallOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coord_call_outcomes_total",
		Help: "Terminal call outcomes by kind",
	}, []string{"outcome"})

	CallTokenValidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coord_call_token_validations_total",
		Help: "Call token validation attempts by result",
	}, []string{"result"})

	// Live-stream grace windows
	GraceWindowsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coord_grace_windows_started_total",
		Help: "Grace windows opened for disconnected hosts",
	})

	GraceWindowsRescuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coord_grace_windows_rescued_total",
		Help: "Grace windows closed by a host rejoin",
	})

	GraceWindowsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coord_grace_windows_expired_total",
		Help: "Grace windows that expired and force-ended the stream",
	})

	// Presence
	PresenceConnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coord_presence_connects_total",
		Help: "Presence connections registered",
	})

	PresenceDisconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coord_presence_disconnects_total",
		Help: "Presence disconnections registered",
	})

	// Moderation
	ReportsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coord_reports_total",
		Help: "Abuse reports recorded",
	})

	ForceRemovesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coord_force_removes_total",
		Help: "Force-remove events triggered by the report threshold",
	})

	BansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coord_bans_total",
		Help: "Viewer bans recorded by duration class",
	}, []string{"duration_class"})

	// Store / bus health
	StoreLatencyMs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "coord_store_latency_ms",
		Help:    "TTL store operation latency in milliseconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 25, 50},
	})

	StoreErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coord_store_errors_total",
		Help: "Total TTL store errors",
	})

	BusPublishesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coord_bus_publishes_total",
		Help: "Events published to the bus by event name",
	}, []string{"event"})

	BusErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coord_bus_errors_total",
		Help: "Total event bus errors",
	})
)

// Helper functions

func RecordCallOutcome(outcome string) {
	CallOutcomesTotal.WithLabelValues(outcome).Inc()
	CallsActive.Dec()
}

func RecordTokenValidation(ok bool) {
	if ok {
		CallTokenValidationsTotal.WithLabelValues("ok").Inc()
	} else {
		CallTokenValidationsTotal.WithLabelValues("rejected").Inc()
	}
}

func RecordBan(durationClass string) {
	BansTotal.WithLabelValues(durationClass).Inc()
}

func RecordPublish(event string) {
	BusPublishesTotal.WithLabelValues(event).Inc()
}
