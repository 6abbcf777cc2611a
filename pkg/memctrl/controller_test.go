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

package memctrl

import (
	"context"
	"encoding/binary"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/windowstore/pkg/buffer"
	"github.com/numaproj/windowstore/pkg/slice"
	"github.com/numaproj/windowstore/pkg/slicestore"
	"github.com/numaproj/windowstore/pkg/slicestore/fs"
	"github.com/numaproj/windowstore/pkg/storeerr"
)

func testInfo(t *testing.T) slicestore.SliceStoreInfo {
	info := slicestore.DefaultSliceStoreInfo()
	info.SpillDirectory = t.TempDir()
	return info
}

func newTestController(t *testing.T, info slicestore.SliceStoreInfo, opts ...Option) *MemoryController {
	t.Helper()
	mc, err := NewMemoryController(context.Background(), info, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = mc.Close()
	})
	return mc
}

func appendRecords(t *testing.T, s *slice.Slice, worker int, side slice.BuildSide, first, n int) {
	t.Helper()
	for i := first; i < first+n; i++ {
		rec := make([]byte, 8)
		binary.LittleEndian.PutUint64(rec, uint64(i))
		require.NoError(t, s.Append(worker, side, rec))
	}
}

func threadRecords(t *testing.T, s *slice.Slice, worker int, side slice.BuildSide) []uint64 {
	t.Helper()
	var out []uint64
	_, err := s.WithThreadBuffer(worker, side, func(v *buffer.PagedVector) error {
		v.Records(func(r []byte) bool {
			out = append(out, binary.LittleEndian.Uint64(r))
			return true
		})
		return nil
	})
	require.NoError(t, err)
	return out
}

func sequence(first, n int) []uint64 {
	out := make([]uint64, 0, n)
	for i := first; i < first+n; i++ {
		out = append(out, uint64(i))
	}
	return out
}

func TestNewMemoryController_Configuration(t *testing.T) {
	info := testInfo(t)
	info.LowerMemoryBound = 10
	info.UpperMemoryBound = 5
	_, err := NewMemoryController(context.Background(), info)
	assert.True(t, storeerr.IsConfiguration(err))

	info = testInfo(t)
	info.FileCodec = "brotli"
	_, err = NewMemoryController(context.Background(), info)
	assert.True(t, storeerr.IsConfiguration(err))
}

func TestFitCostModel(t *testing.T) {
	m, err := fitCostModel([]int64{1024, 2048, 4096}, []float64{1.5, 2, 3})
	require.NoError(t, err)
	assert.InDelta(t, 1.0/2048, m.slope, 1e-9)
	assert.InDelta(t, 1.0, m.intercept, 1e-6)
	assert.Equal(t, int64(6), m.cost(9000))
	assert.Equal(t, int64(2), m.cost(100))
	assert.Equal(t, int64(0), m.cost(0))

	assert.Equal(t, int64(0), costModel{slope: -1}.cost(10))

	_, err = fitCostModel([]int64{1024, 1024}, []float64{1, 2})
	assert.True(t, storeerr.IsConfiguration(err))
}

func TestMeasureReadAndWriteExecTimes(t *testing.T) {
	mc := newTestController(t, testInfo(t), WithCalibrationRepetitions(2), WithName("calibrate"))

	err := mc.MeasureReadAndWriteExecTimes(context.Background(), []int64{4096, 4096})
	assert.True(t, storeerr.IsConfiguration(err))
	err = mc.MeasureReadAndWriteExecTimes(context.Background(), nil)
	assert.True(t, storeerr.IsConfiguration(err))
	err = mc.MeasureReadAndWriteExecTimes(context.Background(), []int64{0, 4096})
	assert.True(t, storeerr.IsConfiguration(err))
	assert.False(t, mc.Calibrated())
	assert.Equal(t, int64(0), mc.WriteCost(1<<20))

	require.NoError(t, mc.MeasureReadAndWriteExecTimes(context.Background(), []int64{4 << 10, 256 << 10, 1 << 20}))
	assert.True(t, mc.Calibrated())
	assert.GreaterOrEqual(t, mc.WriteCost(1<<20), int64(0))
	assert.GreaterOrEqual(t, mc.ReadCost(1<<20), int64(0))
	// calibration leaves no files behind
	assert.Equal(t, 0, mc.Files().NumSegments())
	entries, err := os.ReadDir(mc.Files().Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMeasureReadAndWriteExecTimes_Canceled(t *testing.T) {
	mc := newTestController(t, testInfo(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := mc.MeasureReadAndWriteExecTimes(ctx, []int64{4096, 8192})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, mc.Calibrated())
}

func TestWriteAndReadSlice(t *testing.T) {
	provider := buffer.NewProvider(buffer.WithPageSize(64))
	info := testInfo(t)
	info.IOBytesPerSecond = 1 << 20
	mc := newTestController(t, info)
	s, err := slice.New(0, 1000, 2, buffer.FixedSizeLayout(8), provider)
	require.NoError(t, err)

	appendRecords(t, s, 1, slice.Right, 0, 20)
	appendRecords(t, s, 0, slice.Left, 100, 3)
	written, err := mc.WriteSlice(context.Background(), s, 1, slice.Right)
	require.NoError(t, err)
	assert.Positive(t, written)
	assert.Equal(t, written, mc.StateSizeOnDisk(s, 1, slice.Right))
	// worker ids wrap around the slice's workers
	assert.Equal(t, written, mc.StateSizeOnDisk(s, 3, slice.Right))
	assert.True(t, s.IsSpilled(1, slice.Right))
	assert.False(t, s.IsSpilled(0, slice.Left))
	assert.Equal(t, 0, s.NumRecords(1, slice.Right))
	assert.Equal(t, int64(0), s.StateSizeInMemory(1, slice.Right))

	appendRecords(t, s, 1, slice.Right, 20, 5)
	read, err := mc.ReadSlice(context.Background(), s, 1, slice.Right)
	require.NoError(t, err)
	assert.Equal(t, written, read)
	assert.Equal(t, sequence(0, 25), threadRecords(t, s, 1, slice.Right))
	assert.False(t, s.HasSpilledState())
	assert.Equal(t, int64(0), mc.StateSizeOnDisk(s, 1, slice.Right))
	assert.GreaterOrEqual(t, mc.ObservedWriteThroughput(), 0.0)
	assert.GreaterOrEqual(t, mc.ObservedReadThroughput(), 0.0)

	// nothing on disk, nothing to read
	read, err = mc.ReadSlice(context.Background(), s, 0, slice.Left)
	require.NoError(t, err)
	assert.Equal(t, int64(0), read)
	assert.Equal(t, sequence(100, 3), threadRecords(t, s, 0, slice.Left))
}

func TestReadSliceFully(t *testing.T) {
	provider := buffer.NewProvider(buffer.WithPageSize(64))
	mc := newTestController(t, testInfo(t))
	s, err := slice.New(0, 1000, 2, buffer.FixedSizeLayout(8), provider)
	require.NoError(t, err)
	for w := 0; w < 2; w++ {
		for _, side := range slice.BuildSides {
			appendRecords(t, s, w, side, 0, 10)
			_, err := mc.WriteSlice(context.Background(), s, w, side)
			require.NoError(t, err)
		}
	}
	assert.Equal(t, 4, mc.Files().NumSegments())
	require.NoError(t, mc.ReadSliceFully(context.Background(), s))
	assert.False(t, s.HasSpilledState())
	assert.Equal(t, 0, mc.Files().NumSegments())
	for w := 0; w < 2; w++ {
		for _, side := range slice.BuildSides {
			assert.Equal(t, sequence(0, 10), threadRecords(t, s, w, side))
		}
	}
}

func TestWriteSlice_Failure(t *testing.T) {
	provider := buffer.NewProvider(buffer.WithPageSize(64))
	faulty := fs.NewFaultyFS(nil)
	faulty.AddRule(fs.SegmentPrefix, fs.Fault{FailWrites: true, FailAfterBytes: 16})
	mc := newTestController(t, testInfo(t), WithFileSystem(faulty))
	s, err := slice.New(0, 1000, 1, buffer.FixedSizeLayout(8), provider)
	require.NoError(t, err)
	appendRecords(t, s, 0, slice.Left, 0, 30)

	_, err = mc.WriteSlice(context.Background(), s, 0, slice.Left)
	assert.True(t, storeerr.IsIO(err))
	assert.False(t, s.IsSpilled(0, slice.Left))
	assert.Equal(t, sequence(0, 30), threadRecords(t, s, 0, slice.Left))

	faulty.ClearRules()
	_, err = mc.WriteSlice(context.Background(), s, 0, slice.Left)
	require.NoError(t, err)
	assert.True(t, s.IsSpilled(0, slice.Left))
}

func TestWriteSlice_SkipsUnspillableSlices(t *testing.T) {
	provider := buffer.NewProvider(buffer.WithPageSize(64))
	mc := newTestController(t, testInfo(t))

	combined, err := slice.New(0, 1000, 1, buffer.FixedSizeLayout(8), provider)
	require.NoError(t, err)
	appendRecords(t, combined, 0, slice.Left, 0, 10)
	require.NoError(t, combined.Combine())
	written, err := mc.WriteSlice(context.Background(), combined, 0, slice.Left)
	require.NoError(t, err)
	assert.Equal(t, int64(0), written)
	assert.Equal(t, 10, combined.Combined(slice.Left).NumRecords())

	dropped, err := slice.New(1000, 2000, 1, buffer.FixedSizeLayout(8), provider)
	require.NoError(t, err)
	appendRecords(t, dropped, 0, slice.Left, 0, 10)
	dropped.Drop()
	written, err = mc.WriteSlice(context.Background(), dropped, 0, slice.Left)
	require.NoError(t, err)
	assert.Equal(t, int64(0), written)

	triggered, err := slice.New(2000, 3000, 1, buffer.FixedSizeLayout(8), provider)
	require.NoError(t, err)
	appendRecords(t, triggered, 0, slice.Left, 0, 10)
	triggered.MarkTriggered()
	written, err = mc.WriteSlice(context.Background(), triggered, 0, slice.Left)
	require.NoError(t, err)
	assert.Equal(t, int64(0), written)
	assert.Equal(t, 10, triggered.NumRecords(0, slice.Left))
	assert.Equal(t, 0, mc.Files().NumSegments())
}

func TestDeleteSliceAndClose(t *testing.T) {
	provider := buffer.NewProvider(buffer.WithPageSize(64))
	mc, err := NewMemoryController(context.Background(), testInfo(t))
	require.NoError(t, err)
	s, err := slice.New(0, 1000, 2, buffer.FixedSizeLayout(8), provider)
	require.NoError(t, err)
	appendRecords(t, s, 0, slice.Left, 0, 10)
	appendRecords(t, s, 1, slice.Right, 0, 10)
	_, err = mc.WriteSlice(context.Background(), s, 0, slice.Left)
	require.NoError(t, err)
	_, err = mc.WriteSlice(context.Background(), s, 1, slice.Right)
	require.NoError(t, err)

	require.NoError(t, mc.DeleteSlice(s))
	assert.Equal(t, 0, mc.Files().NumSegments())
	require.NoError(t, mc.Close())
	_, err = os.Stat(mc.Files().Dir())
	assert.True(t, os.IsNotExist(err))
}
