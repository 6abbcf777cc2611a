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

package processor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/numaproj/windowstore/pkg/shared/logging"
	"github.com/numaproj/windowstore/pkg/watermark/wmb"
)

// WatermarkProcessor combines the watermarks of several origins.
type WatermarkProcessor interface {
	// UpdateWatermark applies the watermark ts carried by buffer seqNumber of originID
	// and returns the combined watermark over all origins.
	UpdateWatermark(ts int64, seqNumber uint64, originID uint64) int64
	// GetCurrentWatermark returns the combined watermark.
	GetCurrentWatermark() int64
	// GetIngestionTimesForWatermarks returns recent samples of the origin, oldest first.
	GetIngestionTimesForWatermarks(originID uint64, maxGaps uint64, maxSeqNumbers int) []wmb.WMB
}

// MultiOriginProcessor is the in-process WatermarkProcessor. The combined watermark is
// the minimum of the watermarks of all registered origins. Updates are serialized.
type MultiOriginProcessor struct {
	lock    sync.Mutex
	origins map[uint64]*originEntity
	opts    *processorOptions
	log     *zap.SugaredLogger
}

var _ WatermarkProcessor = (*MultiOriginProcessor)(nil)

// NewMultiOriginProcessor returns a processor for the given origins.
func NewMultiOriginProcessor(ctx context.Context, origins []uint64, inputOpts ...Option) *MultiOriginProcessor {
	opts := &processorOptions{
		historyCapacity: defaultHistoryCapacity,
		clock:           time.Now,
	}
	for _, o := range inputOpts {
		o(opts)
	}
	p := &MultiOriginProcessor{
		origins: make(map[uint64]*originEntity, len(origins)),
		opts:    opts,
		log:     logging.FromContext(ctx),
	}
	for _, id := range origins {
		p.origins[id] = newOriginEntity(ctx, id, opts.historyCapacity)
	}
	return p
}

func (p *MultiOriginProcessor) UpdateWatermark(ts int64, seqNumber uint64, originID uint64) int64 {
	p.lock.Lock()
	defer p.lock.Unlock()
	origin, ok := p.origins[originID]
	if !ok {
		p.log.Warnw("Watermark update for an unknown origin, ignoring", zap.Uint64("originID", originID))
		return p.combinedLocked()
	}
	origin.update(ts, seqNumber, p.opts.clock().UnixMilli())
	return p.combinedLocked()
}

func (p *MultiOriginProcessor) GetCurrentWatermark() int64 {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.combinedLocked()
}

func (p *MultiOriginProcessor) combinedLocked() int64 {
	if len(p.origins) == 0 {
		return wmb.InitialWatermark
	}
	first := true
	var combined int64
	for _, o := range p.origins {
		if first || o.watermark < combined {
			combined = o.watermark
			first = false
		}
	}
	return combined
}

func (p *MultiOriginProcessor) GetIngestionTimesForWatermarks(originID uint64, maxGaps uint64, maxSeqNumbers int) []wmb.WMB {
	p.lock.Lock()
	origin, ok := p.origins[originID]
	p.lock.Unlock()
	if !ok {
		return nil
	}
	return origin.timeline.Recent(maxGaps, maxSeqNumbers)
}
