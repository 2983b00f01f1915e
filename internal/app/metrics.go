package app

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts one run. It is registered on its own registry so repeated
// runs in one process never collide.
type Metrics struct {
	registry *prometheus.Registry

	URLsProcessed prometheus.Counter
	Records       *prometheus.CounterVec
	Tiers         *prometheus.CounterVec
	Retries       *prometheus.CounterVec
	StoredBytes   prometheus.Counter
	ProxyFailures prometheus.Counter
	PushFailures  prometheus.Counter
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		URLsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "igfetch_urls_processed_total",
			Help: "Input URLs processed in this run",
		}),
		Records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "igfetch_records_total",
			Help: "Dataset records produced, by status",
		}, []string{"status"}),
		Tiers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "igfetch_extraction_tiers_total",
			Help: "Extraction tier outcomes",
		}, []string{"tier", "outcome"}),
		Retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "igfetch_extraction_retries_total",
			Help: "Extraction retries scheduled, by tier",
		}, []string{"tier"}),
		StoredBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "igfetch_stored_bytes_total",
			Help: "Media bytes written to the blob store",
		}),
		ProxyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "igfetch_proxy_refresh_failures_total",
			Help: "Failed attempts to obtain a fresh proxy endpoint",
		}),
		PushFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "igfetch_dataset_push_failures_total",
			Help: "Dataset pushes that failed",
		}),
	}
	reg.MustRegister(m.URLsProcessed, m.Records, m.Tiers, m.Retries, m.StoredBytes, m.ProxyFailures, m.PushFailures)
	return m
}

func (m *Metrics) RetryScheduled(tier string) {
	m.Retries.WithLabelValues(tier).Inc()
}

func (m *Metrics) TierFinished(tier string, ok bool) {
	outcome := "failure"
	if ok {
		outcome = "success"
	}
	m.Tiers.WithLabelValues(tier, outcome).Inc()
}

func (m *Metrics) MediaStored(bytes int64) {
	m.StoredBytes.Add(float64(bytes))
}

func (m *Metrics) recordProduced(failed bool) {
	status := "succeeded"
	if failed {
		status = "failed"
	}
	m.Records.WithLabelValues(status).Inc()
}

// WriteTextfile writes the metrics in the text exposition format, for node
// exporter style collection after the run exits.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
