package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 服务级指标集合。每个 Server 持有自己的 registry，测试里可以并行创建。
type Metrics struct {
	Registry *prometheus.Registry

	PricingDecisions *prometheus.CounterVec
	CallsIngested    *prometheus.CounterVec
	MCVerifications  *prometheus.CounterVec
	HTTPDurationMs   *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		PricingDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "pricing_decisions_total", Help: "Counter offer evaluations by decision"},
			[]string{"decision"},
		),
		CallsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "calls_ingested_total", Help: "Ingested calls by outcome"},
			[]string{"outcome"},
		),
		MCVerifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "mc_verifications_total", Help: "MC lookups by result"},
			[]string{"result"},
		),
		HTTPDurationMs: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "http_request_duration_ms", Help: "HTTP latency by route and status", Buckets: prometheus.ExponentialBuckets(1, 2, 14)},
			[]string{"route", "status"},
		),
	}
	m.Registry.MustRegister(
		m.PricingDecisions, m.CallsIngested, m.MCVerifications, m.HTTPDurationMs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
