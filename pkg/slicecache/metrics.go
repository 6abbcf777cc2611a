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

package slicecache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/numaproj/windowstore/pkg/metrics"
)

var cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "slice_cache",
	Name:      "hits_total",
	Help:      "Total number of slice cache lookups served from the cache",
}, []string{metrics.LabelStore, metrics.LabelPolicy})

var cacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "slice_cache",
	Name:      "misses_total",
	Help:      "Total number of slice cache lookups which had to populate an entry",
}, []string{metrics.LabelStore, metrics.LabelPolicy})
