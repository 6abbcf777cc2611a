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

// Package ewma smooths noisy measurements such as observed I/O throughput.
package ewma

import "sync"

// DefaultSpan is the span used when none is given.
const DefaultSpan = 30.0

// SimpleEWMA is an exponentially weighted moving average with smoothing factor
// 2/(span+1). It is safe for concurrent use.
type SimpleEWMA struct {
	lock  sync.Mutex
	decay float64
	value float64
	init  bool
}

// NewSimpleEWMA returns an EWMA over the given span, or DefaultSpan if span is not positive.
func NewSimpleEWMA(span float64) *SimpleEWMA {
	if span <= 0 {
		span = DefaultSpan
	}
	return &SimpleEWMA{decay: 2.0 / (span + 1.0)}
}

// Add folds value into the average. The first value initializes it.
func (s *SimpleEWMA) Add(value float64) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if !s.init {
		s.value = value
		s.init = true
		return
	}
	s.value += s.decay * (value - s.value)
}

// Get returns the current average, zero before the first value.
func (s *SimpleEWMA) Get() float64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.value
}

// Initialized reports whether a value has been added.
func (s *SimpleEWMA) Initialized() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.init
}
