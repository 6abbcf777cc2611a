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
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/numaproj/windowstore/pkg/slicestore"
	"github.com/numaproj/windowstore/pkg/storeerr"
)

const (
	skipCombined  = "combined"
	skipDropped   = "dropped"
	skipMissing   = "missing"
	skipTriggered = "triggered"
)

// UpdateSlices applies the watermark update of a worker, retrains the origin's predictor
// when it is due, and submits the operations chosen by GetSlicesToUpdate. It never waits
// for the I/O; the returned Future completes once the operations have finished.
func (s *FileBackedTimeBasedSliceStore) UpdateSlices(ctx context.Context, md UpdateSlicesMetaData) *Future {
	watermark := s.processor.UpdateWatermark(md.WatermarkTs, md.SeqNumber, md.OriginID)
	if s.predictors != nil && s.predictors.Observe(md.OriginID) {
		samples := s.processor.GetIngestionTimesForWatermarks(md.OriginID, s.info.MaxGapsForPrediction, s.info.MaxSamplesForPrediction)
		s.predictors.Update(md.OriginID, samples)
	}
	return s.submit(ctx, s.GetSlicesToUpdate(md.WorkerThreadID, md.Side, watermark))
}

func (s *FileBackedTimeBasedSliceStore) submit(ctx context.Context, updates []SliceToUpdate) *Future {
	f := newFuture(len(updates))
	for _, u := range updates {
		s.inflight.Add(1)
		inflightOperations.WithLabelValues(s.opts.name).Inc()
		go func() {
			defer func() {
				inflightOperations.WithLabelValues(s.opts.name).Dec()
				s.inflight.Done()
			}()
			err := s.execute(ctx, u)
			if err != nil {
				sliceOperationErrors.WithLabelValues(s.opts.name, u.Operation.String()).Inc()
				// retried in the next decision round of the worker
				s.markAltered(u.WorkerThreadID, u.Side, u.Slice)
				s.log.Warnw("Slice file operation failed", zap.String("slice", u.Slice.String()),
					zap.Int("thread", u.WorkerThreadID), zap.String("side", u.Side.String()),
					zap.String("operation", u.Operation.String()), zap.Error(err))
			}
			f.complete(err)
		}()
	}
	return f
}

// skipReason returns why an operation on u must not run, or "" if it may.
func (s *FileBackedTimeBasedSliceStore) skipReason(ctx context.Context, u SliceToUpdate) string {
	if u.Slice == nil {
		return skipMissing
	}
	if u.Slice.IsCombined() {
		return skipCombined
	}
	if u.Slice.IsDropped() {
		return skipDropped
	}
	if _, err := s.TimeBasedSliceStore.GetSliceBySliceEnd(ctx, u.Slice.EndTime()); errors.Is(err, slicestore.ErrSliceNotFound) {
		return skipMissing
	}
	// WriteSlice checks this again under the combine lock
	if u.Operation != Read && u.Slice.IsTriggered() {
		return skipTriggered
	}
	return ""
}

func (s *FileBackedTimeBasedSliceStore) execute(ctx context.Context, u SliceToUpdate) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.sem.Release(1)
	if reason := s.skipReason(ctx, u); reason != "" {
		skippedOperations.WithLabelValues(s.opts.name, reason).Inc()
		return nil
	}

	var err error
	switch u.Operation {
	case ForceWrite, Write:
		_, err = s.mc.WriteSlice(ctx, u.Slice, u.WorkerThreadID, u.Side)
	case Read:
		_, err = s.mc.ReadSlice(ctx, u.Slice, u.WorkerThreadID, u.Side)
	default:
		storeerr.Invariantf("unknown slice update operation %s", u.Operation)
	}
	if err != nil {
		return fmt.Errorf("failed to %s slice %s: %w", u.Operation, u.Slice, err)
	}
	sliceOperations.WithLabelValues(s.opts.name, u.Operation.String()).Inc()
	return nil
}
