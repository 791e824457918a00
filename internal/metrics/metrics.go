package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	SettlementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "settlement",
			Name:      "outcomes_total",
			Help:      "Applied settlement outcomes by owner kind and result",
		},
		[]string{"owner_kind", "outcome"},
	)

	DuplicateDeliveriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "settlement",
			Name:      "duplicate_deliveries_total",
			Help:      "Gateway outcomes skipped because the payment was already settled",
		},
	)

	SignatureFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "settlement",
			Name:      "signature_failures_total",
			Help:      "Callback payloads rejected for an invalid signature",
		},
	)

	GatewayCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "settlement",
			Name:      "gateway_call_duration_seconds",
			Help:      "Duration of outbound gateway calls",
			Buckets: []float64{
				0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.2, 2, 3, 5, 8,
			},
		},
		[]string{"call", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		SettlementsTotal,
		DuplicateDeliveriesTotal,
		SignatureFailuresTotal,
		GatewayCallDuration,
	)
}

func IncSettlement(ownerKind, outcome string) {
	SettlementsTotal.WithLabelValues(ownerKind, outcome).Inc()
}

func ObserveGatewayCall(call, status string, seconds float64) {
	GatewayCallDuration.WithLabelValues(call, status).Observe(seconds)
}
