package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/vitameals"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Guard metrics
	GateDecisionsTotal        metric.Int64Counter
	SessionResolutionFailures metric.Int64Counter
	SessionResolveDuration    metric.Float64Histogram

	// Auth operation metrics
	AuthOperationsTotal   metric.Int64Counter
	AuthOperationDuration metric.Float64Histogram

	// Activity log metrics
	ActivityRecordedTotal     metric.Int64Counter
	ActivityRecordErrorsTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	// Guard metrics
	m.GateDecisionsTotal, _ = meter.Int64Counter(
		"vitameals.gate.decisions.total",
		metric.WithDescription("Total number of route guard decisions by surface and outcome"),
		metric.WithUnit("{decision}"),
	)

	m.SessionResolutionFailures, _ = meter.Int64Counter(
		"vitameals.gate.resolution_failures.total",
		metric.WithDescription("Total number of session resolutions that failed and were treated as signed out"),
		metric.WithUnit("{error}"),
	)

	m.SessionResolveDuration, _ = meter.Float64Histogram(
		"vitameals.gate.resolve.duration",
		metric.WithDescription("Duration of per-request session resolution"),
		metric.WithUnit("ms"),
	)

	// Auth operation metrics
	m.AuthOperationsTotal, _ = meter.Int64Counter(
		"vitameals.auth.operations.total",
		metric.WithDescription("Total number of sign in, sign up and sign out attempts by outcome"),
		metric.WithUnit("{operation}"),
	)

	m.AuthOperationDuration, _ = meter.Float64Histogram(
		"vitameals.auth.operations.duration",
		metric.WithDescription("Duration of auth service operations"),
		metric.WithUnit("ms"),
	)

	// Activity log metrics
	m.ActivityRecordedTotal, _ = meter.Int64Counter(
		"vitameals.activity.recorded.total",
		metric.WithDescription("Total number of activity entries recorded"),
		metric.WithUnit("{entry}"),
	)

	m.ActivityRecordErrorsTotal, _ = meter.Int64Counter(
		"vitameals.activity.record_errors.total",
		metric.WithDescription("Total number of activity entries that failed to record"),
		metric.WithUnit("{error}"),
	)

	return m
}
