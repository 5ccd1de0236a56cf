package metrics

import "github.com/prometheus/client_golang/prometheus"

// CartMetrics counts how persisted carts were recovered on load.
type CartMetrics struct {
	loads *prometheus.CounterVec
}

func NewCartMetrics(reg prometheus.Registerer) *CartMetrics {
	if reg == nil {
		return &CartMetrics{}
	}
	loads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_cart_loads_total",
		Help: "Cart hydrations by outcome (fresh, restored, corrupt, unavailable).",
	}, []string{"state"})
	reg.MustRegister(loads)
	return &CartMetrics{loads: loads}
}

func (m *CartMetrics) IncLoad(state string) {
	if m == nil || m.loads == nil {
		return
	}
	m.loads.WithLabelValues(normalizeLabel(state)).Inc()
}
