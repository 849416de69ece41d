// Package metrics exposes job counters in Prometheus format.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder implements printer.MetricsRecorder on top of a private Prometheus registry.
type Recorder struct {
	registry *prometheus.Registry

	jobsTotal   *prometheus.CounterVec
	framesTotal *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qlsend_jobs_total",
			Help: "Total number of print jobs by transport and result",
		}, []string{"transport", "result"}),
		framesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qlsend_status_frames_total",
			Help: "Total number of status frames read from printers by kind",
		}, []string{"kind"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "qlsend_job_duration_seconds",
			Help:    "Time from write to the end of status polling",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"transport"}),
	}
	r.registry.MustRegister(r.jobsTotal, r.framesTotal, r.jobDuration)

	return r
}

func (r *Recorder) ObserveFrame(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	r.framesTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) ObserveJob(transport, result string, duration time.Duration) {
	if transport == "" {
		transport = "unknown"
	}
	if result == "" {
		result = "unknown"
	}
	r.jobsTotal.WithLabelValues(transport, result).Inc()
	r.jobDuration.WithLabelValues(transport).Observe(duration.Seconds())
}

func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile dumps the current values for the node_exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}

	return nil
}
