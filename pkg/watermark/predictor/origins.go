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

	"github.com/numaproj/windowstore/pkg/storeerr"
	"github.com/numaproj/windowstore/pkg/watermark/wmb"
)

const defaultMaxUpdateInterval uint64 = 1024

type originsOptions struct {
	maxUpdateInterval uint64
}

// OriginsOption configures OriginPredictors.
type OriginsOption func(*originsOptions)

// WithMaxUpdateInterval caps the number of observations between two predictor updates.
func WithMaxUpdateInterval(n uint64) OriginsOption {
	return func(o *originsOptions) {
		o.maxUpdateInterval = n
	}
}

type originState struct {
	predictor  Predictor
	count      uint64
	nextUpdate uint64
}

// OriginPredictors owns one Predictor per input origin. Each origin is retrained on its
// 1st, 2nd, 4th, 8th ... observation, the spacing capped at the max update interval.
type OriginPredictors struct {
	lock              sync.Mutex
	origins           map[uint64]*originState
	maxUpdateInterval uint64
}

// NewOriginPredictors builds a predictor of the given kind for every origin.
func NewOriginPredictors(kind Kind, origins []uint64, inputOpts ...OriginsOption) (*OriginPredictors, error) {
	opts := &originsOptions{maxUpdateInterval: defaultMaxUpdateInterval}
	for _, o := range inputOpts {
		o(opts)
	}
	if opts.maxUpdateInterval == 0 {
		return nil, storeerr.New(storeerr.Configuration, "max predictor update interval must be positive")
	}
	op := &OriginPredictors{
		origins:           make(map[uint64]*originState, len(origins)),
		maxUpdateInterval: opts.maxUpdateInterval,
	}
	for _, id := range origins {
		p, err := New(kind)
		if err != nil {
			return nil, err
		}
		op.origins[id] = &originState{predictor: p, nextUpdate: 1}
	}
	return op, nil
}

// Observe counts one watermark update of the origin and reports whether the origin's
// predictor is due for retraining.
func (op *OriginPredictors) Observe(originID uint64) bool {
	op.lock.Lock()
	defer op.lock.Unlock()
	o, ok := op.origins[originID]
	if !ok {
		return false
	}
	o.count++
	if o.count < o.nextUpdate {
		return false
	}
	o.nextUpdate = o.count + min(o.count, op.maxUpdateInterval)
	return true
}

// Update feeds samples to the origin's predictor.
func (op *OriginPredictors) Update(originID uint64, samples []wmb.WMB) {
	op.lock.Lock()
	o, ok := op.origins[originID]
	op.lock.Unlock()
	if !ok || len(samples) == 0 {
		return
	}
	o.predictor.Update(samples)
}

// PredictMin returns the minimum forecast watermark over all origins at wall-clock time at.
func (op *OriginPredictors) PredictMin(at int64) int64 {
	op.lock.Lock()
	defer op.lock.Unlock()
	first := true
	result := wmb.InitialWatermark
	for _, o := range op.origins {
		p := o.predictor.Predict(at)
		if first || p < result {
			result = p
			first = false
		}
	}
	return result
}
