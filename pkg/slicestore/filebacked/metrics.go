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

package filebacked

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/numaproj/windowstore/pkg/metrics"
)

// policyDecisions counts the decision rounds per policy
var policyDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "file_backed_store",
	Name:      "policy_decisions_total",
	Help:      "Total number of slice update decision rounds per policy",
}, []string{metrics.LabelStore, metrics.LabelPolicy})

// sliceOperations counts the executed slice file operations
var sliceOperations = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "file_backed_store",
	Name:      "slice_operations_total",
	Help:      "Total number of executed slice file operations",
}, []string{metrics.LabelStore, metrics.LabelOperation})

// sliceOperationErrors counts failed slice file operations
var sliceOperationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "file_backed_store",
	Name:      "slice_operation_errors_total",
	Help:      "Total number of failed slice file operations",
}, []string{metrics.LabelStore, metrics.LabelOperation})

// skippedOperations counts operations dropped because the slice was combined, dropped or gone
var skippedOperations = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "file_backed_store",
	Name:      "slice_operations_skipped_total",
	Help:      "Total number of slice file operations skipped",
}, []string{metrics.LabelStore, metrics.LabelReason})

// inflightOperations is the number of submitted operations which have not finished
var inflightOperations = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Subsystem: "file_backed_store",
	Name:      "inflight_operations",
	Help:      "Number of submitted slice file operations which have not finished",
}, []string{metrics.LabelStore})
