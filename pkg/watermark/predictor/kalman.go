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
	defaultProcessNoise     = 1e-4
	defaultMeasurementNoise = 10.0
)

// KalmanPredictor tracks the watermark and its rate of progress with a constant
// velocity Kalman filter. The state is [watermark, rate] where rate is watermark
// milliseconds per wall-clock millisecond.
type KalmanPredictor struct {
	lock sync.RWMutex
	observed
	// state estimate
	wm   float64
	rate float64
	// state covariance
	p00, p01, p11 float64
	// q scales the process noise, r is the measurement variance
	q, r float64
}

var _ Predictor = (*KalmanPredictor)(nil)

// NewKalmanPredictor returns a KalmanPredictor with default noise parameters.
func NewKalmanPredictor() *KalmanPredictor {
	return &KalmanPredictor{
		q: defaultProcessNoise,
		r: defaultMeasurementNoise,
	}
}

func (k *KalmanPredictor) Update(samples []wmb.WMB) {
	k.lock.Lock()
	defer k.lock.Unlock()
	for _, s := range k.fresh(samples) {
		if !k.seen {
			k.wm = float64(s.Watermark)
			k.rate = 1
			k.p00, k.p01, k.p11 = k.r, 0, 1
			k.observe(s)
			continue
		}
		dt := float64(s.IngestionTime - k.lastTime)
		k.predictStep(dt)
		k.correct(float64(s.Watermark))
		k.observe(s)
	}
}

// predictStep advances the state by dt: x = F x, P = F P F' + Q with F = [[1, dt], [0, 1]].
func (k *KalmanPredictor) predictStep(dt float64) {
	k.wm += k.rate * dt
	p00 := k.p00 + dt*(2*k.p01+dt*k.p11)
	p01 := k.p01 + dt*k.p11
	p11 := k.p11
	// discrete white noise acceleration model
	p00 += k.q * dt * dt * dt / 3
	p01 += k.q * dt * dt / 2
	p11 += k.q * dt
	k.p00, k.p01, k.p11 = p00, p01, p11
}

// correct folds in a measurement of the watermark, H = [1, 0].
func (k *KalmanPredictor) correct(z float64) {
	s := k.p00 + k.r
	k0 := k.p00 / s
	k1 := k.p01 / s
	innovation := z - k.wm
	k.wm += k0 * innovation
	k.rate += k1 * innovation
	p00 := (1 - k0) * k.p00
	p01 := (1 - k0) * k.p01
	p11 := k.p11 - k1*k.p01
	k.p00, k.p01, k.p11 = p00, p01, p11
}

func (k *KalmanPredictor) Predict(at int64) int64 {
	k.lock.RLock()
	defer k.lock.RUnlock()
	if !k.seen {
		return wmb.InitialWatermark
	}
	return k.clamp(k.wm + k.rate*float64(at-k.lastTime))
}
