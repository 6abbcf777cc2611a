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

// Package wmb represents the watermark samples exchanged between the watermark
// processor and the watermark predictors.
package wmb

import "fmt"

// InitialWatermark is the watermark of an origin which has not reported yet.
const InitialWatermark int64 = 0

// WMB pairs the watermark of one origin with the sequence number that carried it and
// the wall-clock time, in milliseconds, at which it was ingested.
type WMB struct {
	// SeqNumber is the sequence number of the buffer which advanced the watermark.
	SeqNumber uint64
	// Watermark is monotonically increasing for a given origin as the sequence number increases.
	Watermark int64
	// IngestionTime is the wall-clock time at which the watermark was observed.
	IngestionTime int64
}

func (w WMB) String() string {
	return fmt.Sprintf("[%d:%d@%d]", w.Watermark, w.SeqNumber, w.IngestionTime)
}
