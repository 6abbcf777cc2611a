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

package fs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/numaproj/windowstore/pkg/metrics"
)

var entriesCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "slice_file",
	Name:      "entries_total",
	Help:      "Total number of page entries written to slice files",
}, []string{metrics.LabelStore})

var entriesBytesCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "slice_file",
	Name:      "entries_bytes_total",
	Help:      "Total number of bytes written to slice files",
}, []string{metrics.LabelStore})

var activeFilesCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Subsystem: "slice_file",
	Name:      "active_files",
	Help:      "Number of slice files currently on disk",
}, []string{metrics.LabelStore})

var fileOperationTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Subsystem: "slice_file",
	Name:      "operation_time",
	Help:      "Time of slice file writes, reads and deletes (10 to 5000000 microseconds)",
	Buckets:   prometheus.ExponentialBucketsRange(10, 5000000, 10),
}, []string{metrics.LabelStore, metrics.LabelOperation})

var fileErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "slice_file",
	Name:      "errors_total",
	Help:      "Errors encountered on slice files",
}, []string{metrics.LabelStore, metrics.LabelErrorKind})
