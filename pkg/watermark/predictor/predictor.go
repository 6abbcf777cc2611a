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

// Package predictor forecasts how an origin's watermark progresses over wall-clock
// time. The slice store uses the forecast to decide whether a slice will be needed
// again before an I/O operation on it could complete.
package predictor

import (
	"strings"

	"github.com/numaproj/windowstore/pkg/storeerr"
	"github.com/numaproj/windowstore/pkg/watermark/wmb"
)

// Predictor forecasts the watermark of a single origin.
type Predictor interface {
	// Update feeds samples, oldest first. Samples already seen are ignored.
	Update(samples []wmb.WMB)
	// Predict returns the expected watermark at wall-clock time at (milliseconds).
	// The forecast never falls below the last observed watermark.
	Predict(at int64) int64
}

// Kind selects a Predictor implementation.
type Kind int

const (
	Kalman Kind = iota
	RLS
	Regression
)

func (k Kind) String() string {
	switch k {
	case Kalman:
		return "Kalman"
	case RLS:
		return "RLS"
	case Regression:
		return "Regression"
	default:
		return "Unknown"
	}
}

// ParseKind parses the name of a predictor kind, case-insensitively.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(name) {
	case "kalman":
		return Kalman, nil
	case "rls":
		return RLS, nil
	case "regression":
		return Regression, nil
	default:
		return 0, storeerr.Newf(storeerr.Configuration, "unknown watermark predictor %q", name)
	}
}

// New returns a Predictor of the given kind.
func New(kind Kind) (Predictor, error) {
	switch kind {
	case Kalman:
		return NewKalmanPredictor(), nil
	case RLS:
		return NewRLSPredictor(), nil
	case Regression:
		return NewRegressionPredictor(), nil
	default:
		return nil, storeerr.Newf(storeerr.Configuration, "unknown watermark predictor kind %d", kind)
	}
}

// observed tracks the newest sample fed to a predictor.
type observed struct {
	seen          bool
	lastTime      int64
	lastWatermark int64
}

// fresh filters samples which are newer than the last one seen.
func (o *observed) fresh(samples []wmb.WMB) []wmb.WMB {
	if !o.seen {
		return samples
	}
	for i, s := range samples {
		if s.IngestionTime > o.lastTime {
			return samples[i:]
		}
	}
	return nil
}

func (o *observed) observe(s wmb.WMB) {
	o.seen = true
	o.lastTime = s.IngestionTime
	if s.Watermark > o.lastWatermark {
		o.lastWatermark = s.Watermark
	}
}

// clamp keeps a forecast at or above the last observed watermark.
func (o *observed) clamp(prediction float64) int64 {
	p := int64(prediction)
	if p < o.lastWatermark {
		return o.lastWatermark
	}
	return p
}
