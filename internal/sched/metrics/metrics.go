// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics provides opt-in Prometheus export of the scheduler's
// global counters. It is designed to be safe to call from the dequeue
// hot path: when disabled, Observe is a single atomic load and return.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fqcodel"
)

var modEnabled atomic.Bool

// Every collector below is labeled by link, since one process may run a
// Registry with many concurrently-observed schedulers (one per egress
// link); unlabeled gauges would have the last-observed link silently
// clobber every other link's value.
var (
	qlenGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fqcodel_qlen_packets",
		Help: "Current total queue length across all flows, in packets",
	}, []string{"link"})
	backlogGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fqcodel_backlog_bytes",
		Help: "Current total backlog across all flows, in bytes",
	}, []string{"link"})
	memoryUsageGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fqcodel_memory_usage_bytes",
		Help: "Current estimated memory usage across all flows",
	}, []string{"link"})
	dropOverlimitTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fqcodel_drop_overlimit_total",
		Help: "Total packets dropped by the fat-flow pass for exceeding the queue length limit",
	}, []string{"link"})
	dropOvermemTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fqcodel_drop_overmemory_total",
		Help: "Total packets dropped by the fat-flow pass for exceeding the memory limit",
	}, []string{"link"})
	newFlowTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fqcodel_new_flow_total",
		Help: "Total number of times a flow transitioned from empty to active",
	}, []string{"link"})
	ecnMarkTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fqcodel_ecn_mark_total",
		Help: "Total packets ECN-marked by CoDel instead of dropped",
	}, []string{"link"})
	ceMarkTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fqcodel_ce_mark_total",
		Help: "Total packets marked for exceeding the CE sojourn threshold",
	}, []string{"link"})
	dropCountTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fqcodel_codel_drop_total",
		Help: "Total packets dropped by CoDel's sojourn-time AQM",
	}, []string{"link"})
	newOldFlowsLen = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fqcodel_scheduling_list_length",
		Help: "Current number of flows on the new_flows/old_flows scheduling lists",
	}, []string{"link", "list"})
)

func init() {
	prometheus.MustRegister(
		qlenGauge, backlogGauge, memoryUsageGauge,
		dropOverlimitTotal, dropOvermemTotal, newFlowTotal,
		ecnMarkTotal, ceMarkTotal, dropCountTotal, newOldFlowsLen,
	)
}

// Enable turns metrics export on or off. Safe to call multiple times.
func Enable(enabled bool) { modEnabled.Store(enabled) }

// Enabled reports whether metrics export is active.
func Enabled() bool { return modEnabled.Load() }

// counterDeltas tracks the last-seen monotonic counters per link key so
// Observe can derive deltas for Prometheus Counter types, which only
// ever go up, even when several links' stats are observed on a shared
// set of collectors.
type counterDeltas struct {
	dropOverlimit, dropOvermem, newFlow, ecnMark, ceMark, dropCount uint64
}

var lastCounters sync.Map // linkKey string -> *counterDeltas

// Observe snapshots one link's Stats into the registered Prometheus
// collectors. It is a no-op when metrics export is disabled.
func Observe(linkKey string, s fqcodel.Stats) {
	if !modEnabled.Load() {
		return
	}
	qlenGauge.WithLabelValues(linkKey).Set(float64(s.QLen))
	backlogGauge.WithLabelValues(linkKey).Set(float64(s.Backlog))
	memoryUsageGauge.WithLabelValues(linkKey).Set(float64(s.MemoryUsage))
	newOldFlowsLen.WithLabelValues(linkKey, "new").Set(float64(s.NewFlowsLen))
	newOldFlowsLen.WithLabelValues(linkKey, "old").Set(float64(s.OldFlowsLen))

	actual, _ := lastCounters.LoadOrStore(linkKey, &counterDeltas{})
	last := actual.(*counterDeltas)

	addDelta(&last.dropOverlimit, s.DropOverlimit, dropOverlimitTotal.WithLabelValues(linkKey))
	addDelta(&last.dropOvermem, s.DropOvermem, dropOvermemTotal.WithLabelValues(linkKey))
	addDelta(&last.newFlow, s.NewFlowCount, newFlowTotal.WithLabelValues(linkKey))
	addDelta(&last.ecnMark, s.ECNMark, ecnMarkTotal.WithLabelValues(linkKey))
	addDelta(&last.ceMark, s.CEMark, ceMarkTotal.WithLabelValues(linkKey))
	addDelta(&last.dropCount, s.DropCount, dropCountTotal.WithLabelValues(linkKey))
}

func addDelta(last *uint64, current uint64, counter prometheus.Counter) {
	if current > *last {
		counter.Add(float64(current - *last))
	}
	*last = current
}

// ServeHTTP exposes /metrics on addr in a background goroutine, for
// deployments that do not already run a Prometheus handler elsewhere.
func ServeHTTP(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = server.ListenAndServe()
	}()
}
