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

package slicestore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/numaproj/windowstore/pkg/metrics"
)

const (
	gcTargetSlices  = "slices"
	gcTargetWindows = "windows"
)

// liveSlices is the number of slices held by a store
var liveSlices = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Subsystem: "slice_store",
	Name:      "slices",
	Help:      "Number of live slices",
}, []string{metrics.LabelStore})

// liveWindows is the number of windows held by a store
var liveWindows = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Subsystem: "slice_store",
	Name:      "windows",
	Help:      "Number of live windows",
}, []string{metrics.LabelStore})

// garbageCollected counts the slices and windows removed by garbage collection
var garbageCollected = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "slice_store",
	Name:      "gc_removed_total",
	Help:      "Total number of slices and windows removed by garbage collection",
}, []string{metrics.LabelStore, metrics.LabelOperation})

// garbageCollectionSkipped counts passes deferred because the lock was contended
var garbageCollectionSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "slice_store",
	Name:      "gc_skipped_total",
	Help:      "Total number of garbage collection passes skipped on lock contention",
}, []string{metrics.LabelStore, metrics.LabelOperation})

// triggeredWindows counts windows emitted to the probe phase
var triggeredWindows = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "slice_store",
	Name:      "triggered_windows_total",
	Help:      "Total number of windows emitted to the probe phase",
}, []string{metrics.LabelStore})
