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

package window

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/windowstore/pkg/storeerr"
)

func TestNewSliceAssigner_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		size  int64
		slide int64
	}{
		{name: "zero size", size: 0, slide: 10},
		{name: "negative slide", size: 10, slide: -1},
		{name: "slide larger than size", size: 10, slide: 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSliceAssigner(tt.size, tt.slide)
			assert.True(t, storeerr.IsConfiguration(err))
		})
	}
}

func TestSliceAssigner_Tumbling(t *testing.T) {
	a, err := NewSliceAssigner(1000, 1000)
	require.NoError(t, err)

	assert.Equal(t, int64(0), a.GetSliceStartTs(500))
	assert.Equal(t, int64(1000), a.GetSliceEndTs(500))
	assert.Equal(t, int64(1000), a.GetSliceStartTs(1500))
	assert.Equal(t, int64(2000), a.GetSliceEndTs(1500))
	for _, ts := range []int64{100, 400, 900} {
		assert.Equal(t, int64(0), a.GetSliceStartTs(ts))
		assert.Equal(t, int64(1000), a.GetSliceEndTs(ts))
	}
	// boundaries belong to the slice on the right
	assert.Equal(t, int64(1000), a.GetSliceStartTs(1000))
	assert.Equal(t, int64(2000), a.GetSliceEndTs(1000))
}

func TestSliceAssigner_Sliding(t *testing.T) {
	tests := []struct {
		name          string
		size          int64
		slide         int64
		ts            int64
		expectedStart int64
		expectedEnd   int64
	}{
		{name: "before first window end", size: 10000, slide: 5000, ts: 7000, expectedStart: 5000, expectedEnd: 10000},
		{name: "first slice", size: 10000, slide: 5000, ts: 0, expectedStart: 0, expectedEnd: 5000},
		{name: "after first window end", size: 10000, slide: 5000, ts: 12345, expectedStart: 10000, expectedEnd: 15000},
		{name: "slide does not divide size", size: 10000, slide: 3000, ts: 11000, expectedStart: 10000, expectedEnd: 12000},
		{name: "slide does not divide size, slide boundary", size: 10000, slide: 3000, ts: 12500, expectedStart: 12000, expectedEnd: 13000},
		{name: "slide does not divide size, in first window", size: 10000, slide: 3000, ts: 9500, expectedStart: 9000, expectedEnd: 10000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewSliceAssigner(tt.size, tt.slide)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedStart, a.GetSliceStartTs(tt.ts))
			assert.Equal(t, tt.expectedEnd, a.GetSliceEndTs(tt.ts))
		})
	}
}

func TestSliceAssigner_TilesTimeline(t *testing.T) {
	configs := [][2]int64{{1000, 1000}, {10000, 5000}, {10000, 3000}, {7, 3}, {60, 41}, {5, 1}}
	for _, c := range configs {
		a, err := NewSliceAssigner(c[0], c[1])
		require.NoError(t, err)
		expectedStart := int64(0)
		for ts := int64(0); ts < 20*c[0]; ts++ {
			start, end := a.GetSliceStartTs(ts), a.GetSliceEndTs(ts)
			// idempotent
			assert.Equal(t, start, a.GetSliceStartTs(ts))
			assert.Equal(t, end, a.GetSliceEndTs(ts))
			require.LessOrEqual(t, start, ts, "size %d slide %d ts %d", c[0], c[1], ts)
			require.Less(t, ts, end, "size %d slide %d ts %d", c[0], c[1], ts)
			// slices are contiguous: a new slice starts exactly where the previous one ended
			if start != expectedStart {
				require.Equal(t, a.GetSliceEndTs(ts-1), start, "gap before ts %d", ts)
				expectedStart = start
			}
		}
	}
}

func TestSliceAssigner_WindowsContaining(t *testing.T) {
	a, err := NewSliceAssigner(10000, 5000)
	require.NoError(t, err)
	assert.Equal(t, [][2]int64{{0, 10000}}, a.WindowsContaining(0, 5000))
	assert.Equal(t, [][2]int64{{0, 10000}, {5000, 15000}}, a.WindowsContaining(5000, 10000))
	assert.Equal(t, [][2]int64{{5000, 15000}, {10000, 20000}}, a.WindowsContaining(10000, 15000))

	a, err = NewSliceAssigner(10000, 3000)
	require.NoError(t, err)
	assert.Equal(t, [][2]int64{{3000, 13000}, {6000, 16000}, {9000, 19000}}, a.WindowsContaining(10000, 12000))

	tumbling, err := NewSliceAssigner(1000, 1000)
	require.NoError(t, err)
	assert.Equal(t, [][2]int64{{1000, 2000}}, tumbling.WindowsContaining(1000, 2000))
}
