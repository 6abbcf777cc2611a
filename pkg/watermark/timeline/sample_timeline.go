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

package timeline

import (
	"container/list"
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/numaproj/windowstore/pkg/shared/logging"
	"github.com/numaproj/windowstore/pkg/watermark/wmb"
)

// SampleTimeline keeps the most recent watermark samples of one origin.
// Our list is sorted by watermark from highest to lowest.
type SampleTimeline struct {
	samples  list.List
	capacity int
	size     int
	lock     sync.RWMutex
	log      *zap.SugaredLogger
}

// NewSampleTimeline returns a SampleTimeline holding at most c samples.
func NewSampleTimeline(ctx context.Context, c int) *SampleTimeline {
	return &SampleTimeline{
		capacity: c,
		log:      logging.FromContext(ctx),
	}
}

// Capacity returns the capacity of the SampleTimeline.
func (t *SampleTimeline) Capacity() int {
	return t.capacity
}

// Len returns the number of samples held.
func (t *SampleTimeline) Len() int {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return t.size
}

// Put inserts the sample into the list, keeping it sorted. When the list is full the
// oldest sample is dropped.
func (t *SampleTimeline) Put(node wmb.WMB) {
	t.lock.Lock()
	defer t.lock.Unlock()
	// The loop's amortized time complexity is O(1) since samples mostly arrive in order.
	for e := t.samples.Front(); e != nil; e = e.Next() {
		var elementNode = e.Value.(wmb.WMB)
		if node.Watermark == elementNode.Watermark {
			// we keep the largest sequence number for a given watermark
			if node.SeqNumber > elementNode.SeqNumber {
				e.Value = node
			}
			return
		} else if node.Watermark > elementNode.Watermark {
			if node.SeqNumber < elementNode.SeqNumber {
				t.log.Errorw("The new sequence number should never be smaller than the existing one",
					zap.Int64("watermark", node.Watermark), zap.Int64("existingWatermark", elementNode.Watermark),
					zap.Uint64("existingSeqNumber", elementNode.SeqNumber), zap.Uint64("seqNumber", node.SeqNumber))
				return
			}
			t.samples.InsertBefore(node, e)
			t.trim()
			return
		}
	}
	t.samples.PushBack(node)
	t.trim()
}

func (t *SampleTimeline) trim() {
	t.size++
	if t.size > t.capacity {
		t.samples.Remove(t.samples.Back())
		t.size--
	}
}

// GetHeadWMB returns the sample with the highest watermark.
func (t *SampleTimeline) GetHeadWMB() (wmb.WMB, bool) {
	t.lock.RLock()
	defer t.lock.RUnlock()
	if t.samples.Len() == 0 {
		return wmb.WMB{}, false
	}
	return t.samples.Front().Value.(wmb.WMB), true
}

// GetHeadWatermark returns the highest watermark, or wmb.InitialWatermark if empty.
func (t *SampleTimeline) GetHeadWatermark() int64 {
	head, ok := t.GetHeadWMB()
	if !ok {
		return wmb.InitialWatermark
	}
	return head.Watermark
}

// Recent walks the samples from newest to oldest. It stops after maxSamples samples or
// once the sequence numbers skipped between consecutive samples add up to more than
// maxGaps. The samples are returned oldest first.
func (t *SampleTimeline) Recent(maxGaps uint64, maxSamples int) []wmb.WMB {
	t.lock.RLock()
	defer t.lock.RUnlock()

	collected := make([]wmb.WMB, 0, min(maxSamples, t.size))
	var gaps uint64
	var newer *wmb.WMB
	for e := t.samples.Front(); e != nil && len(collected) < maxSamples; e = e.Next() {
		node := e.Value.(wmb.WMB)
		if newer != nil && newer.SeqNumber > node.SeqNumber+1 {
			gaps += newer.SeqNumber - node.SeqNumber - 1
			if gaps > maxGaps {
				break
			}
		}
		collected = append(collected, node)
		newer = &node
	}
	// oldest first
	for i, j := 0, len(collected)-1; i < j; i, j = i+1, j-1 {
		collected[i], collected[j] = collected[j], collected[i]
	}
	return collected
}

// Dump dumps the in-memory representation of the SampleTimeline.
func (t *SampleTimeline) Dump() string {
	var builder strings.Builder
	t.lock.RLock()
	defer t.lock.RUnlock()
	for e := t.samples.Front(); e != nil; e = e.Next() {
		builder.WriteString(e.Value.(wmb.WMB).String())
		builder.WriteString(" -> ")
	}
	if builder.Len() < 4 {
		return ""
	}
	return builder.String()[:builder.Len()-4]
}
