// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics and instrumentation for the
// copilot engine.
//
// # Description
//
// This package implements Prometheus metrics for monitoring live
// conversation orchestration. Metrics include:
//   - Utterance and pipeline run counters (by trigger)
//   - Pipeline duration histograms and stage fault counters
//   - Action lifecycle counters (by final status and interaction)
//   - Dispatch counters and duration histograms (by tool and outcome)
//   - Active conversation gauge
//
// # Integration
//
// Metrics are exposed via /metrics endpoint. Use with Prometheus + Grafana
// for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "aleutian"

// Subsystem for copilot engine metrics
const copilotSubsystem = "copilot"

// EngineMetrics holds all Prometheus metrics for the copilot engine.
//
// # Description
//
// Provides counters, histograms, and gauges for monitoring scheduling,
// pipeline, and dispatch behavior. Initialize once at startup via
// InitMetrics().
//
// # Thread Safety
//
// All operations are thread-safe.
type EngineMetrics struct {
	// UtterancesTotal counts submitted utterances.
	// Labels: speaker (agent, customer)
	UtterancesTotal *prometheus.CounterVec

	// PipelineRunsTotal counts pipeline runs by trigger.
	// Labels: trigger (debounce, max_wait)
	PipelineRunsTotal *prometheus.CounterVec

	// PipelineDurationSeconds measures full pipeline run duration.
	PipelineDurationSeconds prometheus.Histogram

	// StageFaultsTotal counts degraded pipeline stages.
	// Labels: stage
	StageFaultsTotal *prometheus.CounterVec

	// ActionsResolvedTotal counts resolved actions.
	// Labels: status (completed, failed, dismissed, invalidated),
	// interaction (confirmed, dismissed, auto_executed, invalidated)
	ActionsResolvedTotal *prometheus.CounterVec

	// DispatchesTotal counts tool invocations.
	// Labels: tool, phase (started, retrying, completed, failed)
	DispatchesTotal *prometheus.CounterVec

	// DispatchDurationSeconds measures tool invocation duration.
	// Labels: tool
	DispatchDurationSeconds *prometheus.HistogramVec

	// ActiveConversations gauges conversations held by the registry.
	ActiveConversations prometheus.Gauge
}

// DefaultMetrics is the singleton instance of EngineMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *EngineMetrics

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics. Should be called once
// at application startup.
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
func InitMetrics() *EngineMetrics {
	DefaultMetrics = &EngineMetrics{
		UtterancesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: copilotSubsystem,
				Name:      "utterances_total",
				Help:      "Total utterances submitted by speaker",
			},
			[]string{"speaker"},
		),

		PipelineRunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: copilotSubsystem,
				Name:      "pipeline_runs_total",
				Help:      "Total analysis pipeline runs by trigger",
			},
			[]string{"trigger"},
		),

		PipelineDurationSeconds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: copilotSubsystem,
				Name:      "pipeline_duration_seconds",
				Help:      "Full pipeline run duration in seconds",
				Buckets:   []float64{0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
		),

		StageFaultsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: copilotSubsystem,
				Name:      "stage_faults_total",
				Help:      "Total pipeline stages degraded to an empty patch",
			},
			[]string{"stage"},
		),

		ActionsResolvedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: copilotSubsystem,
				Name:      "actions_resolved_total",
				Help:      "Total resolved actions by final status and interaction",
			},
			[]string{"status", "interaction"},
		),

		DispatchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: copilotSubsystem,
				Name:      "dispatches_total",
				Help:      "Total tool invocations by tool and phase",
			},
			[]string{"tool", "phase"},
		),

		DispatchDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: copilotSubsystem,
				Name:      "dispatch_duration_seconds",
				Help:      "Tool invocation duration in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 15.0, 30.0},
			},
			[]string{"tool"},
		),

		ActiveConversations: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: copilotSubsystem,
				Name:      "active_conversations",
				Help:      "Conversations currently held by the registry",
			},
		),
	}

	return DefaultMetrics
}

// RecordPipelineRun records one completed pipeline run.
func (m *EngineMetrics) RecordPipelineRun(trigger string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.PipelineRunsTotal.WithLabelValues(trigger).Inc()
	m.PipelineDurationSeconds.Observe(durationSeconds)
}

// RecordStageFault records one degraded stage.
func (m *EngineMetrics) RecordStageFault(stage string) {
	if m == nil {
		return
	}
	m.StageFaultsTotal.WithLabelValues(stage).Inc()
}

// RecordUtterance records one submitted utterance.
func (m *EngineMetrics) RecordUtterance(speaker string) {
	if m == nil {
		return
	}
	m.UtterancesTotal.WithLabelValues(speaker).Inc()
}

// RecordActionResolved records one action resolution.
func (m *EngineMetrics) RecordActionResolved(status, interaction string) {
	if m == nil {
		return
	}
	m.ActionsResolvedTotal.WithLabelValues(status, interaction).Inc()
}

// SetActiveConversations sets the live conversation gauge.
func (m *EngineMetrics) SetActiveConversations(n int) {
	if m == nil {
		return
	}
	m.ActiveConversations.Set(float64(n))
}

// RecordDispatch records one dispatch lifecycle phase.
func (m *EngineMetrics) RecordDispatch(tool, phase string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.DispatchesTotal.WithLabelValues(tool, phase).Inc()
	if phase == "completed" || phase == "failed" {
		m.DispatchDurationSeconds.WithLabelValues(tool).Observe(durationSeconds)
	}
}
