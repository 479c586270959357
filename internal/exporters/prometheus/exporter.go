package prometheus

import (
	"bytes"
	"fmt"
	"net/http"
	"sync"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Exporter serves Prometheus metrics for the supervisor: host gauges sampled
// on scrape plus everything registered on the supervisor's registry.
type Exporter struct {
	registry  *promclient.Registry
	startTime time.Time

	mu          sync.RWMutex
	cpuUsage    float64
	memoryUsed  uint64
	memoryTotal uint64
	lastSample  time.Time
}

// NewExporter creates a new Prometheus exporter over the given registry
func NewExporter(registry *promclient.Registry) *Exporter {
	return &Exporter{
		registry:  registry,
		startTime: time.Now(),
	}
}

// ServeHTTP serves Prometheus-compatible metrics at /metrics
func (e *Exporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	e.updateHostMetrics()

	e.mu.RLock()
	cpuUsage := e.cpuUsage
	memUsed := e.memoryUsed
	memTotal := e.memoryTotal
	e.mu.RUnlock()

	fmt.Fprintf(w, "# HELP scraperd_uptime_seconds Supervisor uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE scraperd_uptime_seconds gauge\n")
	fmt.Fprintf(w, "scraperd_uptime_seconds %.0f\n", time.Since(e.startTime).Seconds())

	fmt.Fprintf(w, "\n# HELP scraperd_host_cpu_usage Host CPU usage percentage (0-100)\n")
	fmt.Fprintf(w, "# TYPE scraperd_host_cpu_usage gauge\n")
	fmt.Fprintf(w, "scraperd_host_cpu_usage %.2f\n", cpuUsage)

	fmt.Fprintf(w, "\n# HELP scraperd_host_memory_used_bytes Host memory in use\n")
	fmt.Fprintf(w, "# TYPE scraperd_host_memory_used_bytes gauge\n")
	fmt.Fprintf(w, "scraperd_host_memory_used_bytes %d\n", memUsed)

	fmt.Fprintf(w, "\n# HELP scraperd_host_memory_total_bytes Host memory total\n")
	fmt.Fprintf(w, "# TYPE scraperd_host_memory_total_bytes gauge\n")
	fmt.Fprintf(w, "scraperd_host_memory_total_bytes %d\n", memTotal)

	// Append the supervisor's own registry (restart counters, worker gauges)
	metricFamilies, err := e.registry.Gather()
	if err != nil {
		fmt.Fprintf(w, "\n# gather error: %v\n", err)
		return
	}

	var buf bytes.Buffer
	encoder := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range metricFamilies {
		if err := encoder.Encode(mf); err != nil {
			fmt.Fprintf(w, "\n# encode error: %v\n", err)
			return
		}
	}
	fmt.Fprintf(w, "\n")
	w.Write(buf.Bytes())
}

// updateHostMetrics samples host CPU and memory, best effort
func (e *Exporter) updateHostMetrics() {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Rate-limit sampling; cpu.Percent with zero interval compares against
	// the previous call.
	if time.Since(e.lastSample) < time.Second {
		return
	}
	e.lastSample = time.Now()

	if percentages, err := cpu.Percent(0, false); err == nil && len(percentages) > 0 {
		e.cpuUsage = percentages[0]
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		e.memoryUsed = vm.Used
		e.memoryTotal = vm.Total
	}
}
