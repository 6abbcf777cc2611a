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

package fs

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/windowstore/pkg/buffer"
	"github.com/numaproj/windowstore/pkg/slice"
	"github.com/numaproj/windowstore/pkg/storeerr"
)

const recordSize = 8

var testID = SegmentID{SliceStart: 0, SliceEnd: 1000, ThreadID: 1, Side: slice.Right}

// fill returns a vector holding the records first..first+n-1.
func fill(t *testing.T, provider buffer.Provider, first, n int) *buffer.PagedVector {
	t.Helper()
	v, err := buffer.NewPagedVector(provider, buffer.FixedSizeLayout(recordSize))
	require.NoError(t, err)
	for i := first; i < first+n; i++ {
		rec := make([]byte, recordSize)
		binary.LittleEndian.PutUint64(rec, uint64(i))
		require.NoError(t, v.Append(rec))
	}
	return v
}

func records(pages []*buffer.Page) []uint64 {
	var out []uint64
	for _, p := range pages {
		for i := 0; i < p.NumRecords; i++ {
			out = append(out, binary.LittleEndian.Uint64(p.Data[i*recordSize:]))
		}
	}
	return out
}

func sequence(first, n int) []uint64 {
	out := make([]uint64, 0, n)
	for i := first; i < first+n; i++ {
		out = append(out, uint64(i))
	}
	return out
}

func newTestManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	m, err := NewManager(context.Background(), t.TempDir(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = m.Close()
	})
	return m
}

func TestManager_RoundTrip(t *testing.T) {
	for _, codec := range []Codec{CodecNone, CodecZstd, CodecLZ4} {
		t.Run(codec.String(), func(t *testing.T) {
			provider := buffer.NewProvider(buffer.WithPageSize(256))
			m := newTestManager(t, WithCodec(codec), WithName("roundtrip-"+codec.String()))

			first := fill(t, provider, 0, 100)
			n1, err := m.Write(testID, recordSize, first.Pages())
			require.NoError(t, err)
			second := fill(t, provider, 100, 50)
			n2, err := m.Write(testID, recordSize, second.Pages())
			require.NoError(t, err)
			assert.Equal(t, n1+n2, m.SizeOnDisk(testID))
			assert.Equal(t, 1, m.NumSegments())
			assert.Equal(t, float64(1), testutil.ToFloat64(activeFilesCount.WithLabelValues("roundtrip-"+codec.String())))
			first.Release()
			second.Release()

			pages, err := m.Read(testID, recordSize, provider)
			require.NoError(t, err)
			assert.Equal(t, sequence(0, 150), records(pages))
			assert.Equal(t, int64(len(pages))*256, buffer.UsedBytes(provider))

			// reading back deletes the segment
			assert.Equal(t, int64(0), m.SizeOnDisk(testID))
			_, err = os.Stat(m.path(testID))
			assert.True(t, os.IsNotExist(err))
			pages, err = m.Read(testID, recordSize, provider)
			require.NoError(t, err)
			assert.Empty(t, pages)
		})
	}
}

func TestManager_WriteFailureTruncates(t *testing.T) {
	provider := buffer.NewProvider(buffer.WithPageSize(256))
	faulty := NewFaultyFS(nil)
	m := newTestManager(t, WithFileSystem(faulty))

	good := fill(t, provider, 0, 40)
	n, err := m.Write(testID, recordSize, good.Pages())
	require.NoError(t, err)

	faulty.AddRule(testID.String(), Fault{FailWrites: true, FailAfterBytes: 100})
	bad := fill(t, provider, 40, 40)
	_, err = m.Write(testID, recordSize, bad.Pages())
	assert.True(t, storeerr.IsIO(err))
	assert.ErrorIs(t, err, ErrInjected)
	stat, err := os.Stat(m.path(testID))
	require.NoError(t, err)
	assert.Equal(t, n, stat.Size())
	assert.Equal(t, n, m.SizeOnDisk(testID))

	faulty.ClearRules()
	_, err = m.Write(testID, recordSize, bad.Pages())
	require.NoError(t, err)
	pages, err := m.Read(testID, recordSize, provider)
	require.NoError(t, err)
	assert.Equal(t, sequence(0, 80), records(pages))
}

func TestManager_SyncFailureOnNewSegment(t *testing.T) {
	provider := buffer.NewProvider(buffer.WithPageSize(256))
	faulty := NewFaultyFS(nil)
	syncErr := errors.New("disk gone")
	faulty.AddRule(SegmentPrefix, Fault{FailOnSync: true, Err: syncErr})
	m := newTestManager(t, WithFileSystem(faulty))

	v := fill(t, provider, 0, 10)
	_, err := m.Write(testID, recordSize, v.Pages())
	assert.ErrorIs(t, err, syncErr)
	assert.Equal(t, int64(0), m.SizeOnDisk(testID))
	stat, err := os.Stat(m.path(testID))
	require.NoError(t, err)
	assert.Equal(t, int64(0), stat.Size())
}

func TestManager_ReadFailures(t *testing.T) {
	provider := buffer.NewProvider(buffer.WithPageSize(256))
	faulty := NewFaultyFS(nil)
	m := newTestManager(t, WithFileSystem(faulty))
	v := fill(t, provider, 0, 10)
	_, err := m.Write(testID, recordSize, v.Pages())
	require.NoError(t, err)
	v.Release()

	faulty.AddRule(testID.String(), Fault{FailOnRead: true})
	_, err = m.Read(testID, recordSize, provider)
	assert.True(t, storeerr.IsIO(err))
	faulty.ClearRules()

	// flip a byte of the first entry's payload
	fp, err := os.OpenFile(m.path(testID), os.O_RDWR, 0)
	require.NoError(t, err)
	_, err = fp.WriteAt([]byte{0xff}, segmentHeaderSize+entryHeaderSize+1)
	require.NoError(t, err)
	require.NoError(t, fp.Close())
	_, err = m.Read(testID, recordSize, provider)
	assert.ErrorIs(t, err, errChecksumMismatch)
	// failed reads hand back no memory
	assert.Equal(t, int64(0), buffer.UsedBytes(provider))
	// and keep the segment for another attempt
	assert.NotZero(t, m.SizeOnDisk(testID))

	_, err = m.Read(testID, recordSize*2, provider)
	assert.ErrorIs(t, err, errHeaderMismatch)
}

func TestManager_DeleteSliceAndClose(t *testing.T) {
	provider := buffer.NewProvider(buffer.WithPageSize(256))
	m, err := NewManager(context.Background(), t.TempDir(), WithName("delete"))
	require.NoError(t, err)
	for w := 0; w < 2; w++ {
		for _, side := range slice.BuildSides {
			id := SegmentID{SliceStart: 0, SliceEnd: 1000, ThreadID: w, Side: side}
			_, err := m.Write(id, recordSize, fill(t, provider, 0, 5).Pages())
			require.NoError(t, err)
		}
	}
	other := SegmentID{SliceStart: 1000, SliceEnd: 2000}
	_, err = m.Write(other, recordSize, fill(t, provider, 0, 5).Pages())
	require.NoError(t, err)
	assert.Equal(t, 5, m.NumSegments())

	require.NoError(t, m.DeleteSlice(0, 1000, 2))
	assert.Equal(t, 1, m.NumSegments())
	assert.Equal(t, float64(1), testutil.ToFloat64(activeFilesCount.WithLabelValues("delete")))
	// deleting twice is fine
	require.NoError(t, m.DeleteSlice(0, 1000, 2))

	require.NoError(t, m.Close())
	_, err = os.Stat(m.Dir())
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, float64(0), testutil.ToFloat64(activeFilesCount.WithLabelValues("delete")))
}

func TestParseCodec(t *testing.T) {
	c, err := ParseCodec("ZSTD")
	require.NoError(t, err)
	assert.Equal(t, CodecZstd, c)
	c, err = ParseCodec("")
	require.NoError(t, err)
	assert.Equal(t, CodecNone, c)
	_, err = ParseCodec("snappy")
	assert.True(t, storeerr.IsConfiguration(err))
}
