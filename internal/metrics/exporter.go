/*
SPDX-License-Identifier: Apache-2.0

Copyright 2026 Project Shepherd

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

/*
Package metrics provides the OpenTelemetry-based metrics exporter for
Shepherd. It bridges OTLP instruments to a Prometheus registry served on the
daemon's metrics listener.
*/
package metrics

import (
	"context"
	"fmt"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

var (
	otelMeter metric.Meter

	// TicksTotal counts reconcile ticks started.
	TicksTotal metric.Int64Counter
	// ObjectsCreatedTotal counts successful create operations.
	ObjectsCreatedTotal metric.Int64Counter
	// ObjectsPatchedTotal counts successful patch operations.
	ObjectsPatchedTotal metric.Int64Counter
	// ObjectsDeletedTotal counts successful delete operations.
	ObjectsDeletedTotal metric.Int64Counter
	// OperationFailuresTotal counts per-object failures collected in ticks.
	OperationFailuresTotal metric.Int64Counter
	// GitPushDurationSeconds times pushes to the remote.
	GitPushDurationSeconds metric.Float64Histogram
	// TickDurationSeconds times whole reconcile ticks.
	TickDurationSeconds metric.Float64Histogram
)

// Registry is the Prometheus registry the exporter feeds; the metrics HTTP
// handler serves it.
var Registry = promclient.NewRegistry()

// InitExporter initializes the OTLP-to-Prometheus bridge and registers all
// instruments. Returns the provider shutdown func.
func InitExporter(_ context.Context) (func(context.Context) error, error) {
	exporter, err := prometheus.New(prometheus.WithRegisterer(Registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	otelMeter = provider.Meter("shepherd")

	type cSpec struct {
		name string
		dest *metric.Int64Counter
	}
	counters := []cSpec{
		{"shepherd_ticks_total", &TicksTotal},
		{"shepherd_objects_created_total", &ObjectsCreatedTotal},
		{"shepherd_objects_patched_total", &ObjectsPatchedTotal},
		{"shepherd_objects_deleted_total", &ObjectsDeletedTotal},
		{"shepherd_operation_failures_total", &OperationFailuresTotal},
	}
	for _, s := range counters {
		v, err := otelMeter.Int64Counter(s.name)
		if err != nil {
			return nil, err
		}
		*s.dest = v
	}

	type hSpec struct {
		name string
		dest *metric.Float64Histogram
	}
	hists := []hSpec{
		{"shepherd_git_push_duration_seconds", &GitPushDurationSeconds},
		{"shepherd_tick_duration_seconds", &TickDurationSeconds},
	}
	for _, s := range hists {
		v, err := otelMeter.Float64Histogram(s.name)
		if err != nil {
			return nil, err
		}
		*s.dest = v
	}

	return provider.Shutdown, nil
}

// Add increments a counter when the exporter is initialized. Instruments are
// nil in tests that never call InitExporter.
func Add(ctx context.Context, c metric.Int64Counter, delta int64) {
	if c != nil {
		c.Add(ctx, delta)
	}
}

// Observe records a histogram sample when the exporter is initialized.
func Observe(ctx context.Context, h metric.Float64Histogram, value float64) {
	if h != nil {
		h.Record(ctx, value)
	}
}
