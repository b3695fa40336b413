// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package worker

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the worker's Prometheus instruments.
type Metrics struct {
	JobsProcessed *prometheus.CounterVec
	JobDuration   prometheus.Histogram
	StepDuration  *prometheus.HistogramVec
	QueueReady    prometheus.Gauge
	QueueInFlight prometheus.Gauge
	QueueDead     prometheus.Gauge
}

// NewMetrics registers the worker metrics on reg. Pass a fresh registry
// in tests to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		JobsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slopscope",
			Subsystem: "worker",
			Name:      "jobs_processed_total",
			Help:      "Jobs finished by terminal outcome.",
		}, []string{"outcome"}),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "slopscope",
			Subsystem: "worker",
			Name:      "job_duration_seconds",
			Help:      "Wall time of completed analysis runs.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "slopscope",
			Subsystem: "worker",
			Name:      "step_duration_seconds",
			Help:      "Wall time of individual pipeline steps.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"step"}),
		QueueReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "slopscope",
			Subsystem: "queue",
			Name:      "ready_messages",
			Help:      "Messages waiting for a worker.",
		}),
		QueueInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "slopscope",
			Subsystem: "queue",
			Name:      "inflight_messages",
			Help:      "Messages currently leased.",
		}),
		QueueDead: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "slopscope",
			Subsystem: "queue",
			Name:      "dead_messages",
			Help:      "Messages parked in the dead-letter keyspace.",
		}),
	}
	reg.MustRegister(m.JobsProcessed, m.JobDuration, m.StepDuration, m.QueueReady, m.QueueInFlight, m.QueueDead)
	return m
}
