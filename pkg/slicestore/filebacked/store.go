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

// Package filebacked extends the time based slice store with slice files. Under memory
// pressure the state of altered slices is written out, and read back before the
// watermark reaches them.
package filebacked

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/numaproj/windowstore/pkg/buffer"
	"github.com/numaproj/windowstore/pkg/memctrl"
	"github.com/numaproj/windowstore/pkg/shared/logging"
	"github.com/numaproj/windowstore/pkg/slice"
	"github.com/numaproj/windowstore/pkg/slicestore"
	"github.com/numaproj/windowstore/pkg/storeerr"
	"github.com/numaproj/windowstore/pkg/watermark/predictor"
	"github.com/numaproj/windowstore/pkg/watermark/processor"
)

type alteredKey struct {
	thread int
	side   slice.BuildSide
}

// FileBackedTimeBasedSliceStore is a TimeBasedSliceStore whose slices can live on disk.
// Every (worker, side) tracks the slices it touched since its last UpdateSlices call.
type FileBackedTimeBasedSliceStore struct {
	*slicestore.TimeBasedSliceStore

	ctx        context.Context
	info       slicestore.SliceStoreInfo
	mc         *memctrl.MemoryController
	provider   buffer.Provider
	processor  processor.WatermarkProcessor
	predictors *predictor.OriginPredictors

	sem      *semaphore.Weighted
	inflight sync.WaitGroup

	alteredLock sync.Mutex
	numWorkers  int
	altered     map[alteredKey]map[int64]*slice.Slice

	opts *storeOptions
	log  *zap.SugaredLogger
}

var _ slicestore.SliceStore = (*FileBackedTimeBasedSliceStore)(nil)

// NewFileBackedTimeBasedSliceStore returns an empty store for windows of the given size
// and slide. Memory pressure is measured on provider. With prediction enabled the I/O
// cost models are calibrated before returning.
func NewFileBackedTimeBasedSliceStore(ctx context.Context, windowSize, windowSlide int64, origins []uint64, provider buffer.Provider, info slicestore.SliceStoreInfo, inputOpts ...Option) (*FileBackedTimeBasedSliceStore, error) {
	opts := &storeOptions{
		name:  "default",
		clock: time.Now,
	}
	for _, o := range inputOpts {
		o(opts)
	}
	if opts.processor == nil {
		opts.processor = processor.NewMultiOriginProcessor(ctx, origins)
	}

	s := &FileBackedTimeBasedSliceStore{
		ctx:        ctx,
		info:       info,
		provider:   provider,
		processor:  opts.processor,
		numWorkers: 1,
		altered:    make(map[alteredKey]map[int64]*slice.Slice),
		opts:       opts,
		log:        logging.FromContext(ctx).With("store", opts.name),
	}
	base, err := slicestore.NewTimeBasedSliceStore(ctx, windowSize, windowSlide,
		slicestore.WithName(opts.name), slicestore.WithRemovalHook(s.deleteRemoved))
	if err != nil {
		return nil, err
	}
	s.TimeBasedSliceStore = base

	if info.WithPrediction {
		kind, err := predictor.ParseKind(info.Predictor)
		if err != nil {
			return nil, err
		}
		if s.predictors, err = predictor.NewOriginPredictors(kind, origins, predictor.WithMaxUpdateInterval(info.MaxPredictorUpdateInterval)); err != nil {
			return nil, err
		}
	}

	mcOpts := []memctrl.Option{memctrl.WithName(opts.name)}
	if opts.fsys != nil {
		mcOpts = append(mcOpts, memctrl.WithFileSystem(opts.fsys))
	}
	if s.mc, err = memctrl.NewMemoryController(ctx, info, mcOpts...); err != nil {
		return nil, err
	}
	s.sem = semaphore.NewWeighted(int64(info.MaxConcurrentIO))
	if info.WithPrediction {
		if err = s.mc.MeasureReadAndWriteExecTimes(ctx, info.CalibrationSizes); err != nil {
			return nil, multierr.Append(err, s.mc.Close())
		}
	}
	s.log.Infow("Created file backed slice store", zap.String("spillDir", s.mc.Files().Dir()),
		zap.Int64("lowerMemoryBound", info.LowerMemoryBound), zap.Int64("upperMemoryBound", info.UpperMemoryBound),
		zap.Bool("withPrediction", info.WithPrediction))
	return s, nil
}

// MemoryController returns the controller owning the slice files.
func (s *FileBackedTimeBasedSliceStore) MemoryController() *memctrl.MemoryController {
	return s.mc
}

// SetWorkerThreads sets the number of worker threads and resets the altered slices.
// It is called once before the first record is processed.
func (s *FileBackedTimeBasedSliceStore) SetWorkerThreads(n int) error {
	if n <= 0 {
		return storeerr.Newf(storeerr.Configuration, "number of worker threads must be positive, got %d", n)
	}
	s.alteredLock.Lock()
	defer s.alteredLock.Unlock()
	s.numWorkers = n
	clear(s.altered)
	return nil
}

func (s *FileBackedTimeBasedSliceStore) key(workerThreadID int, side slice.BuildSide) alteredKey {
	return alteredKey{thread: workerThreadID % s.numWorkers, side: side}
}

func (s *FileBackedTimeBasedSliceStore) markAltered(workerThreadID int, side slice.BuildSide, slices ...*slice.Slice) {
	s.alteredLock.Lock()
	defer s.alteredLock.Unlock()
	k := s.key(workerThreadID, side)
	set, ok := s.altered[k]
	if !ok {
		set = make(map[int64]*slice.Slice)
		s.altered[k] = set
	}
	for _, sl := range slices {
		set[sl.EndTime()] = sl
	}
}

// takeAltered returns the altered slices of (workerThreadID, side) ordered by end and
// clears them.
func (s *FileBackedTimeBasedSliceStore) takeAltered(workerThreadID int, side slice.BuildSide) []*slice.Slice {
	s.alteredLock.Lock()
	k := s.key(workerThreadID, side)
	set := s.altered[k]
	delete(s.altered, k)
	s.alteredLock.Unlock()

	taken := make([]*slice.Slice, 0, len(set))
	for _, sl := range set {
		taken = append(taken, sl)
	}
	sort.Slice(taken, func(i, j int) bool {
		return taken[i].EndTime() < taken[j].EndTime()
	})
	return taken
}

// AlteredSlices returns the number of slices flagged as altered for (workerThreadID, side).
func (s *FileBackedTimeBasedSliceStore) AlteredSlices(workerThreadID int, side slice.BuildSide) int {
	s.alteredLock.Lock()
	defer s.alteredLock.Unlock()
	return len(s.altered[s.key(workerThreadID, side)])
}

// GetSlicesOrCreate returns the slices covering ts and flags them as altered by
// (workerThreadID, side).
func (s *FileBackedTimeBasedSliceStore) GetSlicesOrCreate(ctx context.Context, ts int64, workerThreadID int, side slice.BuildSide, createFn slicestore.CreateFunc) ([]*slice.Slice, error) {
	slices, err := s.TimeBasedSliceStore.GetSlicesOrCreate(ctx, ts, workerThreadID, side, createFn)
	if err != nil {
		return nil, err
	}
	s.markAltered(workerThreadID, side, slices...)
	return slices, nil
}

// GetSliceBySliceEnd returns the slice ending at sliceEnd with all of its state in memory.
// State on disk is read back for every worker and side before returning.
func (s *FileBackedTimeBasedSliceStore) GetSliceBySliceEnd(ctx context.Context, sliceEnd int64) (*slice.Slice, error) {
	sl, err := s.TimeBasedSliceStore.GetSliceBySliceEnd(ctx, sliceEnd)
	if err != nil {
		return nil, err
	}
	if err = s.readBack(ctx, sl); err != nil {
		return nil, err
	}
	return sl, nil
}

func (s *FileBackedTimeBasedSliceStore) readBack(ctx context.Context, sl *slice.Slice) error {
	if !sl.HasSpilledState() {
		return nil
	}
	if err := s.mc.ReadSliceFully(ctx, sl); err != nil {
		return fmt.Errorf("failed to read back slice %s: %w", sl, err)
	}
	return nil
}

// TriggerableWindowSlices emits the windows ending before the watermark with the state
// of their slices read back into memory.
func (s *FileBackedTimeBasedSliceStore) TriggerableWindowSlices(watermark int64) []slicestore.WindowSlices {
	return s.withStateInMemory(s.TimeBasedSliceStore.TriggerableWindowSlices(watermark))
}

// AllNonTriggeredSlices emits every remaining window with the state of its slices read
// back into memory.
func (s *FileBackedTimeBasedSliceStore) AllNonTriggeredSlices() []slicestore.WindowSlices {
	return s.withStateInMemory(s.TimeBasedSliceStore.AllNonTriggeredSlices())
}

func (s *FileBackedTimeBasedSliceStore) withStateInMemory(triggered []slicestore.WindowSlices) []slicestore.WindowSlices {
	for _, ws := range triggered {
		for _, sl := range ws.Slices {
			// no write to disk may start after the read back
			sl.MarkTriggered()
			if err := s.readBack(s.ctx, sl); err != nil {
				// GetSliceBySliceEnd retries the read
				s.log.Errorw("Failed to read back a triggered slice", zap.String("slice", sl.String()), zap.Error(err))
			}
		}
	}
	return triggered
}

// Combine merges the buffers of a slice, reading back any state still on disk first.
func (s *FileBackedTimeBasedSliceStore) Combine(ctx context.Context, sl *slice.Slice) error {
	sl.MarkTriggered()
	if err := s.readBack(ctx, sl); err != nil {
		return err
	}
	return sl.Combine()
}

// deleteRemoved deletes the files of garbage collected slices.
func (s *FileBackedTimeBasedSliceStore) deleteRemoved(_ context.Context, removed []*slice.Slice) error {
	s.alteredLock.Lock()
	for _, set := range s.altered {
		for _, sl := range removed {
			delete(set, sl.EndTime())
		}
	}
	s.alteredLock.Unlock()

	var err error
	for _, sl := range removed {
		err = multierr.Append(err, s.mc.DeleteSlice(sl))
	}
	return err
}

// IsHealthy fails once the slice files can no longer be accessed.
func (s *FileBackedTimeBasedSliceStore) IsHealthy(ctx context.Context) error {
	return s.mc.Files().IsHealthy(ctx)
}

// Drain waits for every submitted slice file operation to finish.
func (s *FileBackedTimeBasedSliceStore) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DeleteState waits for outstanding I/O, drops every slice and window and removes the
// spill directory.
func (s *FileBackedTimeBasedSliceStore) DeleteState(ctx context.Context) error {
	err := s.Drain(ctx)
	err = multierr.Append(err, s.TimeBasedSliceStore.DeleteState(ctx))
	s.alteredLock.Lock()
	clear(s.altered)
	s.alteredLock.Unlock()
	return multierr.Append(err, s.mc.Close())
}
