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

package commands

import (
	"math/rand"
)

// syntheticTrace returns n event timestamps advancing by step milliseconds per event,
// each displaced by up to disorder milliseconds into the past.
func syntheticTrace(n int, step, disorder, seed int64) []int64 {
	r := rand.New(rand.NewSource(seed))
	trace := make([]int64, n)
	for i := range trace {
		ts := int64(i) * step
		if disorder > 0 {
			ts -= r.Int63n(disorder + 1)
		}
		trace[i] = max(ts, 0)
	}
	return trace
}
