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

package predictor

import (
	"sync"

	"github.com/montanaflynn/stats"

	"github.com/numaproj/windowstore/pkg/watermark/wmb"
)

const defaultRegressionWindow = 64

// RegressionPredictor fits an ordinary least squares line over the most recent samples.
type RegressionPredictor struct {
	lock sync.RWMutex
	observed
	window  int
	samples []wmb.WMB
	// fitted line, watermark = slope*t + intercept
	slope     float64
	intercept float64
	fitted    bool
}

var _ Predictor = (*RegressionPredictor)(nil)

// NewRegressionPredictor returns a RegressionPredictor over the last 64 samples.
func NewRegressionPredictor() *RegressionPredictor {
	return &RegressionPredictor{window: defaultRegressionWindow}
}

func (r *RegressionPredictor) Update(samples []wmb.WMB) {
	r.lock.Lock()
	defer r.lock.Unlock()
	fresh := r.fresh(samples)
	if len(fresh) == 0 {
		return
	}
	for _, s := range fresh {
		r.observe(s)
	}
	r.samples = append(r.samples, fresh...)
	if over := len(r.samples) - r.window; over > 0 {
		r.samples = append(r.samples[:0], r.samples[over:]...)
	}
	r.fit()
}

func (r *RegressionPredictor) fit() {
	if len(r.samples) < 2 {
		return
	}
	// x relative to the oldest sample keeps the fit well conditioned
	base := r.samples[0].IngestionTime
	series := make(stats.Series, 0, len(r.samples))
	for _, s := range r.samples {
		series = append(series, stats.Coordinate{X: float64(s.IngestionTime - base), Y: float64(s.Watermark)})
	}
	line, err := stats.LinearRegression(series)
	if err != nil || len(line) < 2 {
		return
	}
	first, last := line[0], line[len(line)-1]
	if last.X == first.X {
		return
	}
	r.slope = (last.Y - first.Y) / (last.X - first.X)
	r.intercept = first.Y - r.slope*(first.X+float64(base))
	r.fitted = true
}

func (r *RegressionPredictor) Predict(at int64) int64 {
	r.lock.RLock()
	defer r.lock.RUnlock()
	if !r.seen {
		return wmb.InitialWatermark
	}
	if !r.fitted {
		return r.lastWatermark
	}
	return r.clamp(r.slope*float64(at) + r.intercept)
}
