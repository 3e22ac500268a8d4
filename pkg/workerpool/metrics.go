// Copyright 2024 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package workerpool

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	queuedTasks = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vtnc",
			Subsystem: "workerpool",
			Name:      "queued_tasks",
			Help:      "The number of tasks waiting for a worker.",
		}, []string{"name"})
	runningTasks = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vtnc",
			Subsystem: "workerpool",
			Name:      "running_tasks",
			Help:      "The number of tasks being executed by workers.",
		}, []string{"name"})
	rejectedTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vtnc",
			Subsystem: "workerpool",
			Name:      "rejected_tasks_total",
			Help:      "Total number of tasks rejected because the queue was full.",
		}, []string{"name"})
	pendingTimers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vtnc",
			Subsystem: "workerpool",
			Name:      "pending_timers",
			Help:      "The number of posted timers that have not fired yet.",
		})
)

type poolMetrics struct {
	queued   prometheus.Gauge
	running  prometheus.Gauge
	rejected prometheus.Counter
}

func newPoolMetrics(name string) poolMetrics {
	return poolMetrics{
		queued:   queuedTasks.WithLabelValues(name),
		running:  runningTasks.WithLabelValues(name),
		rejected: rejectedTasks.WithLabelValues(name),
	}
}

// InitMetrics registers all metrics in this file
func InitMetrics(registry *prometheus.Registry) {
	registry.MustRegister(queuedTasks)
	registry.MustRegister(runningTasks)
	registry.MustRegister(rejectedTasks)
	registry.MustRegister(pendingTimers)
}
