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
	"github.com/numaproj/windowstore/pkg/storeerr"
)

// SliceAssigner maps timestamps to the slice containing them. Timestamps are
// non-negative milliseconds.
type SliceAssigner struct {
	windowSize  int64
	windowSlide int64
}

// NewSliceAssigner returns a SliceAssigner for windows of the given size and slide.
// Tumbling windows use size == slide.
func NewSliceAssigner(windowSize, windowSlide int64) (*SliceAssigner, error) {
	if windowSize <= 0 || windowSlide <= 0 {
		return nil, storeerr.Newf(storeerr.Configuration, "window size %d and slide %d must be positive", windowSize, windowSlide)
	}
	if windowSlide > windowSize {
		return nil, storeerr.Newf(storeerr.Configuration, "window slide %d must not exceed window size %d", windowSlide, windowSize)
	}
	return &SliceAssigner{
		windowSize:  windowSize,
		windowSlide: windowSlide,
	}, nil
}

// WindowSize returns the window size.
func (a *SliceAssigner) WindowSize() int64 {
	return a.windowSize
}

// WindowSlide returns the window slide.
func (a *SliceAssigner) WindowSlide() int64 {
	return a.windowSlide
}

// GetSliceStartTs returns the inclusive start of the slice containing ts. It is the
// later of the previous slide boundary and the previous window end boundary.
func (a *SliceAssigner) GetSliceStartTs(ts int64) int64 {
	prevSlideStart := ts - (ts % a.windowSlide)
	prevWindowStart := prevSlideStart
	if ts >= a.windowSize {
		prevWindowStart = ts - ((ts - a.windowSize) % a.windowSlide)
	}
	return max(prevSlideStart, prevWindowStart)
}

// GetSliceEndTs returns the exclusive end of the slice containing ts. It is the
// earlier of the next slide boundary and the next window end boundary.
func (a *SliceAssigner) GetSliceEndTs(ts int64) int64 {
	nextSlideEnd := ts + a.windowSlide - (ts % a.windowSlide)
	nextWindowEnd := a.windowSize
	if ts >= a.windowSize {
		nextWindowEnd = ts + a.windowSlide - ((ts - a.windowSize) % a.windowSlide)
	}
	return min(nextSlideEnd, nextWindowEnd)
}

// WindowsContaining returns the [start, end) bounds of every window, in ascending
// order of end, which fully contains the slice [sliceStart, sliceEnd).
func (a *SliceAssigner) WindowsContaining(sliceStart, sliceEnd int64) [][2]int64 {
	// windows start at multiples of the slide; the earliest one containing the slice
	// is the first with start+size >= sliceEnd.
	first := int64(0)
	if sliceEnd > a.windowSize {
		first = sliceEnd - a.windowSize
		if rem := first % a.windowSlide; rem != 0 {
			first += a.windowSlide - rem
		}
	}
	windows := make([][2]int64, 0, a.windowSize/a.windowSlide)
	for start := first; start <= sliceStart; start += a.windowSlide {
		windows = append(windows, [2]int64{start, start + a.windowSize})
	}
	return windows
}
