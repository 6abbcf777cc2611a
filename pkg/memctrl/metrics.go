/*
Copyright 2022 The Numaproj Authors.

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

package memctrl

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/numaproj/windowstore/pkg/metrics"
)

// costModelSlope is the fitted milliseconds per byte of an operation
var costModelSlope = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Subsystem: "memctrl",
	Name:      "cost_model_slope",
	Help:      "Fitted milliseconds per byte of a slice file operation",
}, []string{metrics.LabelStore, metrics.LabelOperation})

// costModelIntercept is the fitted fixed cost of an operation
var costModelIntercept = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Subsystem: "memctrl",
	Name:      "cost_model_intercept_ms",
	Help:      "Fitted fixed milliseconds of a slice file operation",
}, []string{metrics.LabelStore, metrics.LabelOperation})

// sliceBytes counts the slice bytes moved between memory and disk
var sliceBytes = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "memctrl",
	Name:      "slice_bytes_total",
	Help:      "Total number of slice bytes written to or read from files",
}, []string{metrics.LabelStore, metrics.LabelOperation})

// throttledTime is the time spent waiting for the I/O bandwidth limit
var throttledTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Subsystem: "memctrl",
	Name:      "io_throttled_time",
	Help:      "Time waited for the I/O bandwidth limit (100 microseconds to 10 minutes)",
	Buckets:   prometheus.ExponentialBucketsRange(100, 60000000*10, 10),
}, []string{metrics.LabelStore})

// observedThroughput is the smoothed bytes per millisecond of slice file operations
var observedThroughput = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Subsystem: "memctrl",
	Name:      "observed_throughput_bytes_per_ms",
	Help:      "Exponentially weighted moving average of slice file throughput",
}, []string{metrics.LabelStore, metrics.LabelOperation})
