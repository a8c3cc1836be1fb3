// Package metrics records per-VM action outcomes as Prometheus metrics and
// exports them to a node_exporter textfile.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "k93s"

// Recorder implements backend.Observer. Each Recorder owns its registry so
// several can coexist in one process.
type Recorder struct {
	registry *prometheus.Registry

	vmActionDuration *prometheus.HistogramVec
	vmActionTotal    *prometheus.CounterVec
	fleetSize        *prometheus.GaugeVec
	lastRun          prometheus.Gauge
}

// NewRecorder creates a Recorder with a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		vmActionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "vm_action_duration_seconds",
			Help:      "Duration of per-VM actions",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}, []string{"action"}),
		vmActionTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vm_actions_total",
			Help:      "Total per-VM actions by result",
		}, []string{"action", "result"}),
		fleetSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fleet_size",
			Help:      "Number of VMs in the last computed fleet",
		}, []string{"backend"}),
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last action finished",
		}),
	}
}

// ObserveVMAction implements backend.Observer.
func (r *Recorder) ObserveVMAction(action string, d time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	r.vmActionDuration.WithLabelValues(action).Observe(d.Seconds())
	r.vmActionTotal.WithLabelValues(action, result).Inc()
}

// ObserveFleet records the size of a computed fleet.
func (r *Recorder) ObserveFleet(backendName string, size int) {
	r.fleetSize.WithLabelValues(backendName).Set(float64(size))
}

// MarkRun stamps the time an action finished.
func (r *Recorder) MarkRun(t time.Time) {
	r.lastRun.Set(float64(t.Unix()))
}

// Registry returns the registry the metrics are registered in.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes every metric to path in the text exposition format.
// The file is written atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
