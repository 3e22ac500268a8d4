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

package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vtnc",
			Subsystem: "tc",
			Name:      "operation_duration_seconds",
			Help:      "Bucketed histogram of the duration of coordinator operations.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 18), // 1ms ~ 131s
		}, []string{"operation", "status"})
	auditRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vtnc",
			Subsystem: "tc",
			Name:      "audit_runs_total",
			Help:      "Total number of controller audits by result.",
		}, []string{"result"})
	configSessionsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vtnc",
			Subsystem: "tc",
			Name:      "config_sessions",
			Help:      "The number of sessions holding a config lock.",
		})
	readSessionsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vtnc",
			Subsystem: "tc",
			Name:      "read_sessions",
			Help:      "The number of active read sessions.",
		})
	controllerUpGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vtnc",
			Subsystem: "tc",
			Name:      "controller_up",
			Help:      "1 if the controller answered the last ping.",
		}, []string{"controller"})
	autosaveFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vtnc",
			Subsystem: "tc",
			Name:      "autosave_failures_total",
			Help:      "Total number of running saves after commit that failed.",
		})
)

// InitMetrics registers all metrics in this file
func InitMetrics(registry *prometheus.Registry) {
	registry.MustRegister(operationDuration)
	registry.MustRegister(auditRuns)
	registry.MustRegister(configSessionsGauge)
	registry.MustRegister(readSessionsGauge)
	registry.MustRegister(controllerUpGauge)
	registry.MustRegister(autosaveFailures)
}
