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

/*
Package processor aggregates the watermarks of all input origins into the combined
watermark. Every origin is the smallest entity for which the watermark strictly
monotonically increases.
*/
package processor

import (
	"context"

	"github.com/numaproj/windowstore/pkg/watermark/timeline"
	"github.com/numaproj/windowstore/pkg/watermark/wmb"
)

// originEntity tracks the watermark of one origin. Buffers may arrive out of
// sequence order; the watermark only advances over a gap-free prefix of sequence
// numbers.
type originEntity struct {
	id uint64
	// lastSeqNumber is the highest sequence number of the gap-free prefix.
	lastSeqNumber uint64
	watermark     int64
	// pending holds watermarks of sequence numbers beyond a gap.
	pending  map[uint64]int64
	timeline *timeline.SampleTimeline
}

func newOriginEntity(ctx context.Context, id uint64, historyCapacity int) *originEntity {
	return &originEntity{
		id:        id,
		watermark: wmb.InitialWatermark,
		pending:   make(map[uint64]int64),
		timeline:  timeline.NewSampleTimeline(ctx, historyCapacity),
	}
}

// update applies the watermark ts carried by seqNumber and returns whether the
// origin's watermark advanced.
func (o *originEntity) update(ts int64, seqNumber uint64, ingestionTime int64) bool {
	if seqNumber <= o.lastSeqNumber {
		// already applied
		return false
	}
	o.pending[seqNumber] = ts

	advanced := false
	for {
		next, ok := o.pending[o.lastSeqNumber+1]
		if !ok {
			break
		}
		delete(o.pending, o.lastSeqNumber+1)
		o.lastSeqNumber++
		if next > o.watermark {
			o.watermark = next
			advanced = true
		}
	}
	if advanced {
		o.timeline.Put(wmb.WMB{
			SeqNumber:     o.lastSeqNumber,
			Watermark:     o.watermark,
			IngestionTime: ingestionTime,
		})
	}
	return advanced
}
