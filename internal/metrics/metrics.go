// Package metrics provides Prometheus metrics instrumentation for the operator.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Collector provides metrics recording interface.
// This allows components to record metrics without direct prometheus dependency.
type Collector interface {
	// Reconciler metrics
	RecordDecision(ctx context.Context, action, reason string)

	// Zone API metrics
	RecordZoneCall(ctx context.Context, operation, status string, duration time.Duration)
	RecordZoneError(ctx context.Context, operation, errorType string)
	RecordZoneRecords(ctx context.Context, count int)

	// Poll source metrics
	RecordPoll(ctx context.Context, status string, duration time.Duration, workloads int)
}

// prometheusCollector implements Collector using Prometheus metrics.
type prometheusCollector struct {
	decisionsTotal *prometheus.CounterVec

	zoneDuration    *prometheus.HistogramVec
	zoneCallsTotal  *prometheus.CounterVec
	zoneErrorsTotal *prometheus.CounterVec
	zoneRecords     prometheus.Gauge

	pollDuration  *prometheus.HistogramVec
	pollWorkloads prometheus.Gauge
}

// NewCollector creates a new Prometheus metrics collector and registers metrics.
func NewCollector(reg prometheus.Registerer) Collector {
	c := &prometheusCollector{}
	c.initDecisionMetrics()
	c.initZoneMetrics()
	c.initPollMetrics()
	c.register(reg)

	return c
}

// RecordDecision counts a reconciliation decision.
func (c *prometheusCollector) RecordDecision(_ context.Context, action, reason string) {
	c.decisionsTotal.WithLabelValues(action, reason).Inc()
}

// RecordZoneCall records a call to the DNS zone API.
func (c *prometheusCollector) RecordZoneCall(
	_ context.Context,
	operation, status string,
	duration time.Duration,
) {
	c.zoneDuration.WithLabelValues(operation).Observe(duration.Seconds())
	c.zoneCallsTotal.WithLabelValues(operation, status).Inc()
}

// RecordZoneError records a zone API error by type.
func (c *prometheusCollector) RecordZoneError(_ context.Context, operation, errorType string) {
	c.zoneErrorsTotal.WithLabelValues(operation, errorType).Inc()
}

// RecordZoneRecords records the number of record sets seen in the last listing.
func (c *prometheusCollector) RecordZoneRecords(_ context.Context, count int) {
	c.zoneRecords.Set(float64(count))
}

// RecordPoll records one poll pass over all workloads.
func (c *prometheusCollector) RecordPoll(_ context.Context, status string, duration time.Duration, workloads int) {
	c.pollDuration.WithLabelValues(status).Observe(duration.Seconds())
	c.pollWorkloads.Set(float64(workloads))
}

func (c *prometheusCollector) initDecisionMetrics() {
	c.decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aksdns_decisions_total",
			Help: "Total reconciliation decisions by action and reason",
		},
		[]string{"action", "reason"},
	)
}

func (c *prometheusCollector) initZoneMetrics() {
	c.zoneDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aksdns_zone_api_duration_seconds",
			Help:    "Duration of DNS zone API calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)
	c.zoneCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aksdns_zone_api_calls_total",
			Help: "Total DNS zone API calls",
		},
		[]string{"operation", "status"},
	)
	c.zoneErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aksdns_zone_api_errors_total",
			Help: "Total DNS zone API errors by type",
		},
		[]string{"operation", "error_type"},
	)
	c.zoneRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aksdns_zone_record_sets",
			Help: "Number of record sets in the zone at the last listing",
		},
	)
}

func (c *prometheusCollector) initPollMetrics() {
	c.pollDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aksdns_poll_duration_seconds",
			Help:    "Duration of a poll pass over all workloads",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"status"},
	)
	c.pollWorkloads = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aksdns_poll_workloads",
			Help: "Number of annotated workloads seen by the last poll pass",
		},
	)
}

func (c *prometheusCollector) register(reg prometheus.Registerer) {
	reg.MustRegister(
		c.decisionsTotal,
		c.zoneDuration,
		c.zoneCallsTotal,
		c.zoneErrorsTotal,
		c.zoneRecords,
		c.pollDuration,
		c.pollWorkloads,
	)
}

// NoopCollector is a no-op implementation of Collector for testing.
type NoopCollector struct{}

// NewNoopCollector creates a new no-op collector.
func NewNoopCollector() *NoopCollector {
	return &NoopCollector{}
}

// RecordDecision is a no-op.
func (c *NoopCollector) RecordDecision(_ context.Context, _, _ string) {}

// RecordZoneCall is a no-op.
func (c *NoopCollector) RecordZoneCall(_ context.Context, _, _ string, _ time.Duration) {}

// RecordZoneError is a no-op.
func (c *NoopCollector) RecordZoneError(_ context.Context, _, _ string) {}

// RecordZoneRecords is a no-op.
func (c *NoopCollector) RecordZoneRecords(_ context.Context, _ int) {}

// RecordPoll is a no-op.
func (c *NoopCollector) RecordPoll(_ context.Context, _ string, _ time.Duration, _ int) {}
