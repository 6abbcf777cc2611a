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
	"math"

	"github.com/montanaflynn/stats"

	"github.com/numaproj/windowstore/pkg/storeerr"
)

// costModel is a line time = slope*size + intercept, with time in milliseconds.
type costModel struct {
	slope     float64
	intercept float64
}

// cost returns the projected time in milliseconds of an operation on size bytes.
func (m costModel) cost(size int64) int64 {
	if size <= 0 {
		return 0
	}
	return int64(math.Max(0, math.Ceil(m.slope*float64(size)+m.intercept)))
}

// fitCostModel fits a least squares line through (size, milliseconds) samples. The
// samples must cover at least two distinct sizes.
func fitCostModel(sizes []int64, millis []float64) (costModel, error) {
	series := make(stats.Series, 0, len(sizes))
	for i := range sizes {
		series = append(series, stats.Coordinate{X: float64(sizes[i]), Y: millis[i]})
	}
	line, err := stats.LinearRegression(series)
	if err != nil {
		return costModel{}, err
	}
	// LinearRegression keeps the order of the input, so take the widest pair of x
	lo, hi := line[0], line[0]
	for _, c := range line {
		if c.X < lo.X {
			lo = c
		}
		if c.X > hi.X {
			hi = c
		}
	}
	if hi.X == lo.X {
		return costModel{}, storeerr.New(storeerr.Configuration, "calibration needs at least two distinct sizes")
	}
	slope := (hi.Y - lo.Y) / (hi.X - lo.X)
	return costModel{slope: slope, intercept: lo.Y - slope*lo.X}, nil
}

// distinctSizes returns the number of distinct sizes, failing on sizes which are not positive.
func distinctSizes(sizes []int64) (int, error) {
	seen := make(map[int64]struct{}, len(sizes))
	for _, s := range sizes {
		if s <= 0 {
			return 0, storeerr.Newf(storeerr.Configuration, "calibration size must be positive, got %d", s)
		}
		seen[s] = struct{}{}
	}
	return len(seen), nil
}
