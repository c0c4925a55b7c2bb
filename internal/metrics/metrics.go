// Copyright 2025 Google LLC
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

// Package metrics exposes the mount's operational counters through
// github.com/prometheus/client_golang: direct client_golang registration,
// with no OpenCensus/OpenTelemetry exporter chain in front of it (there is
// no trace backend in scope for this domain).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// FSOp annotates the fs_op_total counter with the fuseops method name
// (LookUpInode, ReadDir, WriteFile, ...), mirroring the "fs_op" label the
// teacher's own OpenCensus wiring used for the same purpose.
const FSOp = "fs_op"

var (
	registry = prometheus.NewRegistry()

	FSOpsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fhirfuse",
		Name:      "fs_op_total",
		Help:      "Count of FUSE operations handled, by op name.",
	}, []string{FSOp})

	CacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fhirfuse",
		Name:      "cache_hits_total",
		Help:      "Count of cache lookups, by cache name and hit/miss.",
	}, []string{"cache", "result"})

	HTTPCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fhirfuse",
		Name:      "http_call_duration_seconds",
		Help:      "Latency of outbound FHIR HTTP calls, by method.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})
)

func init() {
	registry.MustRegister(FSOpsTotal, CacheHitsTotal, HTTPCallDuration)
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
}

// ObserveOp increments the FUSE op counter for name. Called at the top of
// the fs op methods, so an op is counted regardless of outcome;
// Init, SetInodeAttributes, ForgetInode and the handle-release ops are not
// counted.
func ObserveOp(name string) {
	FSOpsTotal.WithLabelValues(name).Inc()
}

// ObserveCache records a cache hit or miss for name.
func ObserveCache(name string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheHitsTotal.WithLabelValues(name, result).Inc()
}

// Handler returns the HTTP handler to serve at --metrics-addr.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
