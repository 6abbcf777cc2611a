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
	"math"

	"github.com/numaproj/windowstore/pkg/storeerr"
	"github.com/numaproj/windowstore/pkg/window"
)

// Optimal replays keys against Belady's offline policy, which evicts the key whose
// next use lies furthest in the future. No online policy scores more hits.
func Optimal(keys []int64, capacity int) Stats {
	var stats Stats
	if capacity <= 0 {
		stats.Misses = uint64(len(keys))
		return stats
	}
	// nextUse[i] is the position of the next access to keys[i]
	nextUse := make([]int, len(keys))
	last := make(map[int64]int, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		if j, ok := last[keys[i]]; ok {
			nextUse[i] = j
		} else {
			nextUse[i] = math.MaxInt
		}
		last[keys[i]] = i
	}

	cached := make(map[int64]int, capacity)
	for i, k := range keys {
		if _, ok := cached[k]; ok {
			stats.Hits++
			cached[k] = nextUse[i]
			continue
		}
		stats.Misses++
		if len(cached) >= capacity {
			var victim int64
			furthest := -1
			for ck, next := range cached {
				if next > furthest || (next == furthest && ck < victim) {
					victim, furthest = ck, next
				}
			}
			delete(cached, victim)
		}
		cached[k] = nextUse[i]
	}
	return stats
}

// SimulationResult compares an online policy with the offline optimum over one trace.
type SimulationResult struct {
	Policy   Policy
	Capacity int
	Online   Stats
	Optimal  Stats
}

type simulatedSlice struct {
	start int64
	end   int64
}

func (s simulatedSlice) StartTime() int64 { return s.start }

func (s simulatedSlice) EndTime() int64 { return s.end }

// Simulate looks up every timestamp of the trace through a cache using policy and
// reports its hits next to Belady's on the same slice sequence.
func Simulate(policy Policy, capacity int, assigner *window.SliceAssigner, timestamps []int64, opts ...Option) (SimulationResult, error) {
	if assigner == nil {
		return SimulationResult{}, storeerr.New(storeerr.Configuration, "simulation requires a slice assigner")
	}
	cache, err := New[simulatedSlice](policy, capacity, opts...)
	if err != nil {
		return SimulationResult{}, err
	}
	onMiss := func(ts int64) (simulatedSlice, error) {
		return simulatedSlice{start: assigner.GetSliceStartTs(ts), end: assigner.GetSliceEndTs(ts)}, nil
	}
	keys := make([]int64, 0, len(timestamps))
	for _, ts := range timestamps {
		if _, err := cache.GetFromCache(ts, onMiss); err != nil {
			return SimulationResult{}, err
		}
		keys = append(keys, assigner.GetSliceEndTs(ts))
	}
	return SimulationResult{
		Policy:   policy,
		Capacity: capacity,
		Online:   cache.Stats(),
		Optimal:  Optimal(keys, capacity),
	}, nil
}
