package supervisor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics are registered against the supervisor's own registry so multiple
// supervisors (e.g. under test) never collide.
type metrics struct {
	restarts  *prometheus.CounterVec
	unhealthy *prometheus.CounterVec
	kills     *prometheus.CounterVec
	up        *prometheus.GaugeVec
	logBytes  *prometheus.GaugeVec
	cycles    prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		restarts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scraperd_worker_restarts_total",
			Help: "Total worker restarts by worker and reason",
		}, []string{"worker", "reason"}),
		unhealthy: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scraperd_worker_unhealthy_total",
			Help: "Total unhealthy verdicts by worker and reason",
		}, []string{"worker", "reason"}),
		kills: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scraperd_worker_kills_total",
			Help: "Total forceful kills after graceful stop timed out",
		}, []string{"worker"}),
		up: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scraperd_worker_up",
			Help: "1 if a live process is recorded for the worker",
		}, []string{"worker"}),
		logBytes: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scraperd_worker_log_bytes",
			Help: "Last observed size of the worker's log sink",
		}, []string{"worker"}),
		cycles: factory.NewCounter(prometheus.CounterOpts{
			Name: "scraperd_cycles_total",
			Help: "Total polling cycles completed",
		}),
	}
}

// observe refreshes per-worker gauges after an evaluation
func (m *metrics) observe(st *workerState) {
	name := st.spec.Name
	m.logBytes.WithLabelValues(name).Set(float64(st.lastObservedSize))
	if st.pid != 0 && !st.exited() {
		m.up.WithLabelValues(name).Set(1)
	} else {
		m.up.WithLabelValues(name).Set(0)
	}
}
