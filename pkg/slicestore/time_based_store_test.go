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
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/numaproj/windowstore/pkg/buffer"
	"github.com/numaproj/windowstore/pkg/slice"
	"github.com/numaproj/windowstore/pkg/storeerr"
	"github.com/numaproj/windowstore/pkg/window"
)

const testWorkers = 2

type sliceFactory struct {
	provider buffer.Provider
	created  atomic.Int64
}

func newSliceFactory() *sliceFactory {
	return &sliceFactory{provider: buffer.NewProvider(buffer.WithPageSize(64))}
}

func (f *sliceFactory) create(start, end int64) (*slice.Slice, error) {
	f.created.Inc()
	return slice.New(start, end, testWorkers, buffer.FixedSizeLayout(8), f.provider)
}

func bounds(slices []*slice.Slice) [][2]int64 {
	out := make([][2]int64, 0, len(slices))
	for _, s := range slices {
		out = append(out, [2]int64{s.StartTime(), s.EndTime()})
	}
	return out
}

func getOrCreate(t *testing.T, store *TimeBasedSliceStore, f *sliceFactory, ts int64) *slice.Slice {
	t.Helper()
	slices, err := store.GetSlicesOrCreate(context.Background(), ts, 0, slice.Left, f.create)
	require.NoError(t, err)
	require.Len(t, slices, 1)
	return slices[0]
}

func TestTimeBasedSliceStore_TumblingWindows(t *testing.T) {
	ctx := context.Background()
	f := newSliceFactory()
	store, err := NewTimeBasedSliceStore(ctx, 1000, 1000, WithName("tumbling"))
	require.NoError(t, err)

	first := getOrCreate(t, store, f, 500)
	assert.Equal(t, [2]int64{0, 1000}, [2]int64{first.StartTime(), first.EndTime()})
	second := getOrCreate(t, store, f, 1500)
	assert.Equal(t, [2]int64{1000, 2000}, [2]int64{second.StartTime(), second.EndTime()})
	for _, ts := range []int64{100, 400, 900} {
		assert.Same(t, first, getOrCreate(t, store, f, ts))
	}
	assert.Equal(t, int64(2), f.created.Load())
	assert.Equal(t, 2, store.NumberOfSlices())
	assert.Equal(t, float64(2), testutil.ToFloat64(liveSlices.WithLabelValues("tumbling")))

	windows := store.Windows()
	require.Len(t, windows, 2)
	assert.Equal(t, int64(1000), windows[0].EndTime())
	assert.Equal(t, window.BothSidesFilling, windows[0].State())

	got, err := store.GetSliceBySliceEnd(ctx, 2000)
	require.NoError(t, err)
	assert.Same(t, second, got)
	_, err = store.GetSliceBySliceEnd(ctx, 1500)
	assert.ErrorIs(t, err, ErrSliceNotFound)
}

func TestTimeBasedSliceStore_ConcurrentCreation(t *testing.T) {
	f := newSliceFactory()
	store, err := NewTimeBasedSliceStore(context.Background(), 1000, 500)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for ts := int64(0); ts < 10_000; ts += 7 {
				_, err := store.GetSlicesOrCreate(context.Background(), ts, worker, slice.Left, f.create)
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()
	// slices of 500ms tile [0, 10000)
	assert.Equal(t, 20, store.NumberOfSlices())
	assert.Equal(t, int64(20), f.created.Load())
	for i, s := range store.Slices() {
		assert.Equal(t, int64(i)*500, s.StartTime())
	}
}

func TestTimeBasedSliceStore_TriggerAndGarbageCollect(t *testing.T) {
	ctx := context.Background()
	f := newSliceFactory()
	var removedByHook [][2]int64
	store, err := NewTimeBasedSliceStore(ctx, 10_000, 5_000, WithRemovalHook(func(_ context.Context, removed []*slice.Slice) error {
		removedByHook = append(removedByHook, bounds(removed)...)
		return nil
	}))
	require.NoError(t, err)

	s1 := getOrCreate(t, store, f, 7000)
	assert.Equal(t, [2]int64{5000, 10_000}, [2]int64{s1.StartTime(), s1.EndTime()})
	s2 := getOrCreate(t, store, f, 12_000)
	// [0,10000) [5000,15000) [10000,20000)
	assert.Len(t, store.Windows(), 3)

	triggered := store.TriggerableWindowSlices(10_001)
	require.Len(t, triggered, 1)
	assert.Equal(t, int64(0), triggered[0].WindowStart)
	assert.Equal(t, [][2]int64{{5000, 10_000}}, bounds(triggered[0].Slices))
	assert.Nil(t, store.TriggerableWindowSlices(10_001))

	// the emitted window goes, both slices are still needed by the open windows
	require.NoError(t, store.GarbageCollectSlicesAndWindows(ctx, 10_001))
	assert.Len(t, store.Windows(), 2)
	assert.Equal(t, 2, store.NumberOfSlices())
	assert.Empty(t, removedByHook)

	rest := store.AllNonTriggeredSlices()
	require.Len(t, rest, 2)
	assert.Equal(t, [][2]int64{{5000, 10_000}, {10_000, 15_000}}, bounds(rest[0].Slices))
	assert.Equal(t, [][2]int64{{10_000, 15_000}}, bounds(rest[1].Slices))

	require.NoError(t, store.GarbageCollectSlicesAndWindows(ctx, 25_001))
	assert.Empty(t, store.Windows())
	assert.Equal(t, 0, store.NumberOfSlices())
	assert.Equal(t, [][2]int64{{5000, 10_000}, {10_000, 15_000}}, removedByHook)
	assert.True(t, s1.IsDropped())
	assert.True(t, s2.IsDropped())
}

func TestTimeBasedSliceStore_GarbageCollectKeepsOpenWindows(t *testing.T) {
	ctx := context.Background()
	f := newSliceFactory()
	store, err := NewTimeBasedSliceStore(ctx, 1000, 1000)
	require.NoError(t, err)
	getOrCreate(t, store, f, 10)
	getOrCreate(t, store, f, 5010)

	require.NoError(t, store.GarbageCollectSlicesAndWindows(ctx, 2001))
	// the slice is past its retention, the window was never emitted
	assert.Equal(t, 1, store.NumberOfSlices())
	assert.Len(t, store.Windows(), 2)
	assert.Equal(t, window.BothSidesFilling, store.Windows()[0].State())
}

func TestTimeBasedSliceStore_GarbageCollectSkipsOnContention(t *testing.T) {
	ctx := context.Background()
	f := newSliceFactory()
	store, err := NewTimeBasedSliceStore(ctx, 1000, 1000, WithName("contended"))
	require.NoError(t, err)
	getOrCreate(t, store, f, 10)

	store.slicesLock.RLock()
	require.NoError(t, store.GarbageCollectSlicesAndWindows(ctx, 5000))
	store.slicesLock.RUnlock()
	assert.Equal(t, 1, store.NumberOfSlices())
	assert.Equal(t, float64(1), testutil.ToFloat64(garbageCollectionSkipped.WithLabelValues("contended", gcTargetSlices)))

	require.NoError(t, store.GarbageCollectSlicesAndWindows(ctx, 5000))
	assert.Equal(t, 0, store.NumberOfSlices())
}

func TestTimeBasedSliceStore_DeleteState(t *testing.T) {
	ctx := context.Background()
	f := newSliceFactory()
	hookErr := errors.New("cannot delete files")
	var removed int
	store, err := NewTimeBasedSliceStore(ctx, 1000, 1000, WithRemovalHook(func(_ context.Context, s []*slice.Slice) error {
		removed += len(s)
		return hookErr
	}))
	require.NoError(t, err)
	s := getOrCreate(t, store, f, 10)
	getOrCreate(t, store, f, 1010)

	assert.ErrorIs(t, store.DeleteState(ctx), hookErr)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 0, store.NumberOfSlices())
	assert.Empty(t, store.Windows())
	assert.True(t, s.IsDropped())
}

func TestTimeBasedSliceStore_CreateErrors(t *testing.T) {
	ctx := context.Background()
	_, err := NewTimeBasedSliceStore(ctx, 1000, 2000)
	assert.True(t, storeerr.IsConfiguration(err))

	store, err := NewTimeBasedSliceStore(ctx, 1000, 1000)
	require.NoError(t, err)
	boom := errors.New("out of pages")
	_, err = store.GetSlicesOrCreate(ctx, 10, 0, slice.Left, func(int64, int64) (*slice.Slice, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, store.NumberOfSlices())

	f := newSliceFactory()
	assert.Panics(t, func() {
		_, _ = store.GetSlicesOrCreate(ctx, 10, 0, slice.Left, func(int64, int64) (*slice.Slice, error) {
			return f.create(0, 500)
		})
	})
	// the lock was released before panicking
	assert.Equal(t, 0, store.NumberOfSlices())
}
