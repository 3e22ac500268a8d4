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

package db

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	dbWriteBytes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "vtnc",
		Subsystem: "db",
		Name:      "write_bytes_total",
		Help:      "The total number of bytes written by the db",
	}, []string{"id"})

	dbReadBytes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "vtnc",
		Subsystem: "db",
		Name:      "read_bytes_total",
		Help:      "The total number of bytes read by the db",
	}, []string{"id"})

	dbSnapshotGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "vtnc",
		Subsystem: "db",
		Name:      "snapshot_count_gauge",
		Help:      "The number of alive snapshots of the db",
	}, []string{"id"})

	dbIteratorGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "vtnc",
		Subsystem: "db",
		Name:      "iterator_count_gauge",
		Help:      "The number of alive iterators of the db",
	}, []string{"id"})

	dbLevelCount = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "vtnc",
		Subsystem: "db",
		Name:      "level_count",
		Help:      "The number of tables in each level of the db",
	}, []string{"level", "id"})

	dbWriteDelayDuration = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "vtnc",
		Subsystem: "db",
		Name:      "write_delay_seconds",
		Help:      "The duration of db write delay seconds",
	}, []string{"id"})

	dbWriteDelayCount = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "vtnc",
		Subsystem: "db",
		Name:      "write_delay_total",
		Help:      "The total number of db write delays",
	}, []string{"id"})
)

// InitMetrics registers all metrics in this file
func InitMetrics(registry *prometheus.Registry) {
	registry.MustRegister(dbSnapshotGauge)
	registry.MustRegister(dbIteratorGauge)
	registry.MustRegister(dbLevelCount)
	registry.MustRegister(dbWriteBytes)
	registry.MustRegister(dbReadBytes)
	registry.MustRegister(dbWriteDelayDuration)
	registry.MustRegister(dbWriteDelayCount)
}
