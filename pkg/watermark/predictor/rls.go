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

	"github.com/numaproj/windowstore/pkg/watermark/wmb"
)

const (
	defaultForgettingFactor  = 0.99
	defaultInitialCovariance = 1000.0
)

// RLSPredictor fits watermark = a*(t-t0) + b with recursive least squares and an
// exponential forgetting factor, t0 being the ingestion time of the first sample.
type RLSPredictor struct {
	lock sync.RWMutex
	observed
	t0 int64
	// theta = [a, b]
	a, b float64
	// symmetric 2x2 covariance
	p00, p01, p11 float64
	lambda        float64
}

var _ Predictor = (*RLSPredictor)(nil)

// NewRLSPredictor returns an RLSPredictor with default forgetting factor.
func NewRLSPredictor() *RLSPredictor {
	return &RLSPredictor{lambda: defaultForgettingFactor}
}

func (r *RLSPredictor) Update(samples []wmb.WMB) {
	r.lock.Lock()
	defer r.lock.Unlock()
	for _, s := range r.fresh(samples) {
		if !r.seen {
			r.t0 = s.IngestionTime
			r.a, r.b = 1, float64(s.Watermark)
			r.p00, r.p01, r.p11 = defaultInitialCovariance, 0, defaultInitialCovariance
			r.observe(s)
			continue
		}
		r.step(float64(s.IngestionTime-r.t0), float64(s.Watermark))
		r.observe(s)
	}
}

// step folds in one observation y at regressor x = [t, 1].
func (r *RLSPredictor) step(t, y float64) {
	// px = P x
	px0 := r.p00*t + r.p01
	px1 := r.p01*t + r.p11
	denom := r.lambda + t*px0 + px1
	k0 := px0 / denom
	k1 := px1 / denom
	e := y - (r.a*t + r.b)
	r.a += k0 * e
	r.b += k1 * e
	// P = (P - k x' P) / lambda, x' P = px' since P is symmetric
	r.p00 = (r.p00 - k0*px0) / r.lambda
	r.p01 = (r.p01 - k0*px1) / r.lambda
	r.p11 = (r.p11 - k1*px1) / r.lambda
}

func (r *RLSPredictor) Predict(at int64) int64 {
	r.lock.RLock()
	defer r.lock.RUnlock()
	if !r.seen {
		return wmb.InitialWatermark
	}
	return r.clamp(r.a*float64(at-r.t0) + r.b)
}
