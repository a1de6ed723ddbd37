package ytaccess

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"ytaccess/quota"
)

// metrics holds the Prometheus collectors of one Service.
type metrics struct {
	tierOutcomes      *prometheus.CounterVec
	quotaDebits       *prometheus.CounterVec
	quotaRemaining    *prometheus.GaugeVec
	executorRetries   *prometheus.CounterVec
	circuitRejections *prometheus.CounterVec
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
}

// newMetrics builds the collectors and registers them on reg. A nil reg
// leaves them unregistered, which tests and embedded uses rely on.
func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		tierOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ytaccess_tier_outcomes_total",
				Help: "Fallback tier outcomes, by operation, tier and status.",
			},
			[]string{"op", "tier", "status"},
		),
		quotaDebits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ytaccess_quota_debited_units_total",
				Help: "Data API quota units reserved, by key index.",
			},
			[]string{"key_index"},
		),
		quotaRemaining: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ytaccess_quota_remaining_units",
				Help: "Quota units left on a key after its last reservation.",
			},
			[]string{"key_index"},
		),
		executorRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ytaccess_executor_retries_total",
				Help: "Data API retries, by failure class.",
			},
			[]string{"class"},
		),
		circuitRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ytaccess_circuit_rejections_total",
				Help: "Operations rejected by an open circuit.",
			},
			[]string{"op"},
		),
		cacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ytaccess_cache_hits_total",
				Help: "Result cache hits.",
			},
		),
		cacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ytaccess_cache_misses_total",
				Help: "Result cache misses.",
			},
		),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{
			m.tierOutcomes,
			m.quotaDebits,
			m.quotaRemaining,
			m.executorRetries,
			m.circuitRejections,
			m.cacheHits,
			m.cacheMisses,
		} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *metrics) observeReservation(_ string, r quota.Reservation) {
	idx := strconv.Itoa(r.Index)
	m.quotaDebits.WithLabelValues(idx).Add(float64(r.Cost))
	m.quotaRemaining.WithLabelValues(idx).Set(float64(r.Remaining))
}

func (m *metrics) observeRetry(_, class string) {
	m.executorRetries.WithLabelValues(class).Inc()
}
