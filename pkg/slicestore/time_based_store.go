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
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/numaproj/windowstore/pkg/shared/logging"
	"github.com/numaproj/windowstore/pkg/slice"
	"github.com/numaproj/windowstore/pkg/storeerr"
	"github.com/numaproj/windowstore/pkg/window"
)

// TimeBasedSliceStore keeps slices and windows in two lists sorted by end time, each
// guarded by its own lock. The two locks are never held at the same time.
type TimeBasedSliceStore struct {
	assigner *window.SliceAssigner

	slicesLock sync.RWMutex
	slices     *window.SortedByEnd[*slice.Slice]

	windowsLock sync.RWMutex
	windows     *window.SortedByEnd[*window.Info]

	opts *storeOptions
	log  *zap.SugaredLogger
}

var _ SliceStore = (*TimeBasedSliceStore)(nil)

// NewTimeBasedSliceStore returns an empty store for windows of the given size and slide.
func NewTimeBasedSliceStore(ctx context.Context, windowSize, windowSlide int64, inputOpts ...Option) (*TimeBasedSliceStore, error) {
	assigner, err := window.NewSliceAssigner(windowSize, windowSlide)
	if err != nil {
		return nil, err
	}
	opts := &storeOptions{name: defaultStoreName}
	for _, o := range inputOpts {
		o(opts)
	}
	return &TimeBasedSliceStore{
		assigner: assigner,
		slices:   window.NewSortedByEnd[*slice.Slice](),
		windows:  window.NewSortedByEnd[*window.Info](),
		opts:     opts,
		log:      logging.FromContext(ctx).With("store", opts.name),
	}, nil
}

// Assigner returns the slice assigner of the store.
func (s *TimeBasedSliceStore) Assigner() *window.SliceAssigner {
	return s.assigner
}

// GetSlicesOrCreate returns the slice covering ts. A missing slice is created by
// createFn and every window containing it is registered.
func (s *TimeBasedSliceStore) GetSlicesOrCreate(_ context.Context, ts int64, _ int, _ slice.BuildSide, createFn CreateFunc) ([]*slice.Slice, error) {
	s.slicesLock.RLock()
	existing, ok := s.slices.FindForTime(ts)
	s.slicesLock.RUnlock()
	if ok {
		return []*slice.Slice{existing}, nil
	}

	start, end := s.assigner.GetSliceStartTs(ts), s.assigner.GetSliceEndTs(ts)
	s.slicesLock.Lock()
	// another worker may have created it in the meantime
	if existing, ok = s.slices.Get(end); ok {
		s.slicesLock.Unlock()
		return []*slice.Slice{existing}, nil
	}
	created, err := createFn(start, end)
	if err != nil {
		s.slicesLock.Unlock()
		return nil, fmt.Errorf("failed to create slice [%d, %d): %w", start, end, err)
	}
	if created.StartTime() != start || created.EndTime() != end {
		s.slicesLock.Unlock()
		storeerr.Invariantf("slice %s was created for the range [%d, %d)", created, start, end)
	}
	s.slices.InsertIfNotPresent(created)
	numSlices := s.slices.Len()
	s.slicesLock.Unlock()
	liveSlices.WithLabelValues(s.opts.name).Set(float64(numSlices))

	s.registerWindows(start, end)
	return []*slice.Slice{created}, nil
}

func (s *TimeBasedSliceStore) registerWindows(sliceStart, sliceEnd int64) {
	bounds := s.assigner.WindowsContaining(sliceStart, sliceEnd)
	s.windowsLock.Lock()
	for _, b := range bounds {
		s.windows.InsertIfNotPresent(window.NewInfo(b[0], b[1]))
	}
	numWindows := s.windows.Len()
	s.windowsLock.Unlock()
	liveWindows.WithLabelValues(s.opts.name).Set(float64(numWindows))
}

// GetSliceBySliceEnd returns the slice ending at sliceEnd.
func (s *TimeBasedSliceStore) GetSliceBySliceEnd(_ context.Context, sliceEnd int64) (*slice.Slice, error) {
	s.slicesLock.RLock()
	defer s.slicesLock.RUnlock()
	if sl, ok := s.slices.Get(sliceEnd); ok {
		return sl, nil
	}
	return nil, ErrSliceNotFound
}

// TriggerableWindowSlices marks every not yet emitted window ending before the watermark
// as EmittedToProbe and returns it with its slices.
func (s *TimeBasedSliceStore) TriggerableWindowSlices(watermark int64) []WindowSlices {
	return s.emit(func(w *window.Info) bool {
		return w.EndTime() >= watermark
	})
}

// AllNonTriggeredSlices emits every window which has not been emitted yet. It is used
// to flush the store at the end of a stream.
func (s *TimeBasedSliceStore) AllNonTriggeredSlices() []WindowSlices {
	return s.emit(func(*window.Info) bool {
		return false
	})
}

func (s *TimeBasedSliceStore) emit(stop func(w *window.Info) bool) []WindowSlices {
	var triggered []WindowSlices
	s.windowsLock.Lock()
	for _, w := range s.windows.Items() {
		if stop(w) {
			break
		}
		if w.State() == window.EmittedToProbe {
			continue
		}
		w.SetState(window.EmittedToProbe)
		triggered = append(triggered, WindowSlices{WindowStart: w.StartTime(), WindowEnd: w.EndTime()})
	}
	s.windowsLock.Unlock()
	if len(triggered) == 0 {
		return nil
	}

	s.slicesLock.RLock()
	for i := range triggered {
		s.slices.Range(triggered[i].WindowStart, triggered[i].WindowEnd, func(sl *slice.Slice) {
			triggered[i].Slices = append(triggered[i].Slices, sl)
		})
	}
	s.slicesLock.RUnlock()
	triggeredWindows.WithLabelValues(s.opts.name).Add(float64(len(triggered)))
	return triggered
}

// GarbageCollectSlicesAndWindows removes emitted windows ending before the watermark and
// slices whose end plus the window size lies before it. A list whose lock is contended
// is left for the next pass. Removed slices are dropped, and handed to the removal hook,
// once both locks are released.
func (s *TimeBasedSliceStore) GarbageCollectSlicesAndWindows(ctx context.Context, watermark int64) error {
	if s.windowsLock.TryLock() {
		removed := s.windows.RemoveIf(func(w *window.Info) bool {
			return w.EndTime() < watermark && w.State() == window.EmittedToProbe
		}, func(w *window.Info) bool {
			return w.EndTime() >= watermark
		})
		numWindows := s.windows.Len()
		s.windowsLock.Unlock()
		liveWindows.WithLabelValues(s.opts.name).Set(float64(numWindows))
		garbageCollected.WithLabelValues(s.opts.name, gcTargetWindows).Add(float64(len(removed)))
	} else {
		garbageCollectionSkipped.WithLabelValues(s.opts.name, gcTargetWindows).Inc()
	}

	var removedSlices []*slice.Slice
	if s.slicesLock.TryLock() {
		windowSize := s.assigner.WindowSize()
		removedSlices = s.slices.RemoveIf(func(sl *slice.Slice) bool {
			return sl.EndTime()+windowSize < watermark
		}, func(sl *slice.Slice) bool {
			return sl.EndTime()+windowSize >= watermark
		})
		numSlices := s.slices.Len()
		s.slicesLock.Unlock()
		liveSlices.WithLabelValues(s.opts.name).Set(float64(numSlices))
		garbageCollected.WithLabelValues(s.opts.name, gcTargetSlices).Add(float64(len(removedSlices)))
	} else {
		garbageCollectionSkipped.WithLabelValues(s.opts.name, gcTargetSlices).Inc()
	}

	if len(removedSlices) == 0 {
		return nil
	}
	s.log.Debugw("Garbage collected slices", zap.Int64("watermark", watermark), zap.Int("removed", len(removedSlices)))
	return s.release(ctx, removedSlices)
}

func (s *TimeBasedSliceStore) release(ctx context.Context, removed []*slice.Slice) error {
	for _, sl := range removed {
		sl.Drop()
	}
	if s.opts.removalHook == nil {
		return nil
	}
	return s.opts.removalHook(ctx, removed)
}

// DeleteState drops every slice and window.
func (s *TimeBasedSliceStore) DeleteState(ctx context.Context) error {
	s.windowsLock.Lock()
	s.windows.Clear()
	s.windowsLock.Unlock()

	s.slicesLock.Lock()
	removed := s.slices.Clear()
	s.slicesLock.Unlock()

	liveWindows.WithLabelValues(s.opts.name).Set(0)
	liveSlices.WithLabelValues(s.opts.name).Set(0)
	return s.release(ctx, removed)
}

// NumberOfSlices returns the number of live slices.
func (s *TimeBasedSliceStore) NumberOfSlices() int {
	s.slicesLock.RLock()
	defer s.slicesLock.RUnlock()
	return s.slices.Len()
}

// Slices returns the live slices in ascending order of end.
func (s *TimeBasedSliceStore) Slices() []*slice.Slice {
	s.slicesLock.RLock()
	defer s.slicesLock.RUnlock()
	return s.slices.Items()
}

// Windows returns a snapshot of the live windows in ascending order of end.
func (s *TimeBasedSliceStore) Windows() []window.Info {
	s.windowsLock.RLock()
	defer s.windowsLock.RUnlock()
	items := s.windows.Items()
	snapshot := make([]window.Info, 0, len(items))
	for _, w := range items {
		snapshot = append(snapshot, *w)
	}
	return snapshot
}
