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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/windowstore/pkg/storeerr"
	"github.com/numaproj/windowstore/pkg/watermark/wmb"
)

// linearSamples returns n samples 100ms apart whose watermark advances rate ms per ms.
func linearSamples(n int, start int64, rate int64) []wmb.WMB {
	samples := make([]wmb.WMB, 0, n)
	for i := 0; i < n; i++ {
		t := start + int64(i)*100
		samples = append(samples, wmb.WMB{
			SeqNumber:     uint64(i + 1),
			Watermark:     10_000 + (t-start)*rate,
			IngestionTime: t,
		})
	}
	return samples
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		name string
		want Kind
	}{
		{"kalman", Kalman},
		{"RLS", RLS},
		{"Regression", Regression},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := ParseKind(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, k)
		})
	}
	_, err := ParseKind("oracle")
	assert.True(t, storeerr.IsConfiguration(err))
}

func TestPredictors_LinearProgress(t *testing.T) {
	for _, kind := range []Kind{Kalman, RLS, Regression} {
		t.Run(kind.String(), func(t *testing.T) {
			p, err := New(kind)
			require.NoError(t, err)
			assert.Equal(t, wmb.InitialWatermark, p.Predict(1_000_000))

			samples := linearSamples(50, 1_000_000, 2)
			p.Update(samples)
			last := samples[len(samples)-1]
			got := p.Predict(last.IngestionTime + 1000)
			assert.InEpsilon(t, float64(last.Watermark+2000), float64(got), 0.01)
		})
	}
}

func TestPredictors_NeverBelowLastObserved(t *testing.T) {
	for _, kind := range []Kind{Kalman, RLS, Regression} {
		t.Run(kind.String(), func(t *testing.T) {
			p, err := New(kind)
			require.NoError(t, err)
			samples := linearSamples(20, 5000, 1)
			p.Update(samples)
			last := samples[len(samples)-1]
			// a time in the past would extrapolate below the observed watermark
			assert.Equal(t, last.Watermark, p.Predict(samples[0].IngestionTime))
		})
	}
}

func TestPredictors_IgnoreStaleSamples(t *testing.T) {
	p := NewRegressionPredictor()
	samples := linearSamples(10, 0, 1)
	p.Update(samples)
	before := p.Predict(5000)
	// replaying the same samples is a no-op
	p.Update(samples)
	assert.Equal(t, before, p.Predict(5000))
	assert.Len(t, p.samples, 10)
}

func TestOriginPredictors_UpdateSchedule(t *testing.T) {
	op, err := NewOriginPredictors(RLS, []uint64{1})
	require.NoError(t, err)
	var due []int
	for i := 1; i <= 20; i++ {
		if op.Observe(1) {
			due = append(due, i)
		}
	}
	assert.Equal(t, []int{1, 2, 4, 8, 16}, due)
	assert.False(t, op.Observe(99))

	capped, err := NewOriginPredictors(RLS, []uint64{1}, WithMaxUpdateInterval(2))
	require.NoError(t, err)
	due = nil
	for i := 1; i <= 10; i++ {
		if capped.Observe(1) {
			due = append(due, i)
		}
	}
	assert.Equal(t, []int{1, 2, 4, 6, 8, 10}, due)

	_, err = NewOriginPredictors(RLS, nil, WithMaxUpdateInterval(0))
	assert.True(t, storeerr.IsConfiguration(err))
}

func TestOriginPredictors_PredictMin(t *testing.T) {
	op, err := NewOriginPredictors(Regression, []uint64{1, 2})
	require.NoError(t, err)
	op.Update(1, linearSamples(10, 0, 1))
	op.Update(2, linearSamples(10, 0, 3))
	fast := op.origins[2].predictor.Predict(2000)
	slow := op.origins[1].predictor.Predict(2000)
	assert.Less(t, slow, fast)
	assert.Equal(t, slow, op.PredictMin(2000))
}
