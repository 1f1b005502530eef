// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/lamwimham/neuroflow-sub001/pkg/errors"
)

// RouterMetrics tracks dispatch outcomes and sandbox capacity for production
// monitoring. Capacity errors (pool exhausted, limit breaches) are recorded
// separately from caller mistakes so operators can tell them apart.
type RouterMetrics struct {
	// dispatchCounter counts dispatches by tool, source and outcome
	dispatchCounter metric.Int64Counter

	// errorCounter counts dispatch failures by error code
	errorCounter metric.Int64Counter

	// capacityCounter counts only capacity-class failures
	capacityCounter metric.Int64Counter

	// dispatchDuration records end-to-end dispatch latency
	dispatchDuration metric.Float64Histogram

	// poolInstancesGauge tracks live sandbox instances
	poolInstancesGauge metric.Int64Gauge

	// poolBusyGauge tracks instances currently executing
	poolBusyGauge metric.Int64Gauge

	// extractionCounter counts knowledge extraction attempts by outcome
	extractionCounter metric.Int64Counter
}

// NewRouterMetrics creates the metric instruments on the global meter.
func NewRouterMetrics() (*RouterMetrics, error) {
	meter := otel.Meter("neuroflow/router")

	dispatchCounter, err := meter.Int64Counter(
		"neuroflow.dispatch.total",
		metric.WithDescription("Tool dispatches by tool, source and outcome"),
	)
	if err != nil {
		return nil, err
	}

	errorCounter, err := meter.Int64Counter(
		"neuroflow.dispatch.errors",
		metric.WithDescription("Dispatch failures by error code"),
	)
	if err != nil {
		return nil, err
	}

	capacityCounter, err := meter.Int64Counter(
		"neuroflow.dispatch.capacity_errors",
		metric.WithDescription("Capacity-class failures (pool exhausted, limit breaches)"),
	)
	if err != nil {
		return nil, err
	}

	dispatchDuration, err := meter.Float64Histogram(
		"neuroflow.dispatch.duration_ms",
		metric.WithDescription("End-to-end dispatch latency in milliseconds"),
	)
	if err != nil {
		return nil, err
	}

	poolInstancesGauge, err := meter.Int64Gauge(
		"neuroflow.sandbox.instances",
		metric.WithDescription("Live sandbox instances"),
	)
	if err != nil {
		return nil, err
	}

	poolBusyGauge, err := meter.Int64Gauge(
		"neuroflow.sandbox.busy",
		metric.WithDescription("Sandbox instances currently executing"),
	)
	if err != nil {
		return nil, err
	}

	extractionCounter, err := meter.Int64Counter(
		"neuroflow.extraction.total",
		metric.WithDescription("Knowledge extraction attempts by outcome"),
	)
	if err != nil {
		return nil, err
	}

	return &RouterMetrics{
		dispatchCounter:    dispatchCounter,
		errorCounter:       errorCounter,
		capacityCounter:    capacityCounter,
		dispatchDuration:   dispatchDuration,
		poolInstancesGauge: poolInstancesGauge,
		poolBusyGauge:      poolBusyGauge,
		extractionCounter:  extractionCounter,
	}, nil
}

// RecordDispatch records one dispatch outcome.
func (rm *RouterMetrics) RecordDispatch(ctx context.Context, toolName, source string, code errors.ErrorCode, durationMS float64) {
	if rm == nil {
		return
	}
	outcome := "success"
	if code != "" {
		outcome = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("tool", toolName),
		attribute.String("source", source),
		attribute.String("outcome", outcome),
	)
	rm.dispatchCounter.Add(ctx, 1, attrs)
	rm.dispatchDuration.Record(ctx, durationMS, attrs)

	if code == "" {
		return
	}
	rm.errorCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", toolName),
		attribute.String("code", string(code)),
	))
	if errors.IsCapacity(code) {
		rm.capacityCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("code", string(code)),
		))
	}
}

// RecordPool records sandbox pool occupancy.
func (rm *RouterMetrics) RecordPool(ctx context.Context, instances, busy int) {
	if rm == nil {
		return
	}
	rm.poolInstancesGauge.Record(ctx, int64(instances))
	rm.poolBusyGauge.Record(ctx, int64(busy))
}

// RecordExtraction records one knowledge extraction attempt.
func (rm *RouterMetrics) RecordExtraction(ctx context.Context, items int, err error) {
	if rm == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = string(errors.CodeOf(err))
	}
	rm.extractionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.Int("items", items),
	))
}
