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

package slicestore

import (
	"github.com/numaproj/windowstore/pkg/storeerr"
)

const (
	DefaultLowerMemoryBound         int64 = 0
	DefaultUpperMemoryBound         int64 = 0
	DefaultMinReadStateSize         int64 = 0
	DefaultMinWriteStateSize        int64 = 0
	DefaultFileOperationTimeDeltaMs int64 = 0
)

const (
	DefaultMaxConcurrentIO         = 8
	DefaultMaxSamplesForPrediction = 64
	DefaultPredictor               = "RLS"
	DefaultFileCodec               = "none"
)

const (
	DefaultMaxGapsForPrediction uint64 = 10
	DefaultMaxPredictorUpdates  uint64 = 1024
)

// DefaultCalibrationSizes are the payload sizes timed when calibrating the cost models.
var DefaultCalibrationSizes = []int64{4 << 10, 64 << 10, 1 << 20}

// SliceStoreInfo configures the file-backed slice store and its memory controller.
type SliceStoreInfo struct {
	// LowerMemoryBound is the used bytes above which the proactive policy runs.
	LowerMemoryBound int64 `mapstructure:"lowerMemoryBound" json:"lowerMemoryBound"`
	// UpperMemoryBound is the used bytes above which every altered slice is written out.
	// Zero always selects the reactive policy.
	UpperMemoryBound int64 `mapstructure:"upperMemoryBound" json:"upperMemoryBound"`
	// WithPrediction enables watermark prediction in the proactive policy.
	WithPrediction bool `mapstructure:"withPrediction" json:"withPrediction"`
	// Predictor is one of Kalman, RLS or Regression.
	Predictor string `mapstructure:"predictor" json:"predictor"`
	// MinReadStateSize is the on-disk size a slice must exceed to be read back.
	MinReadStateSize int64 `mapstructure:"minReadStateSize" json:"minReadStateSize"`
	// MinWriteStateSize is the in-memory size a slice must exceed to be written out.
	MinWriteStateSize int64 `mapstructure:"minWriteStateSize" json:"minWriteStateSize"`
	// FileOperationTimeDeltaMs is a fixed slack added to projected I/O latencies.
	FileOperationTimeDeltaMs int64 `mapstructure:"fileOperationTimeDeltaMs" json:"fileOperationTimeDeltaMs"`
	// SpillDirectory is where slice files are created.
	SpillDirectory string `mapstructure:"spillDirectory" json:"spillDirectory"`
	// FileCodec compresses slice pages: none, zstd or lz4.
	FileCodec string `mapstructure:"fileCodec" json:"fileCodec"`
	// CalibrationSizes are the payload sizes used to fit the I/O cost models.
	CalibrationSizes []int64 `mapstructure:"calibrationSizes" json:"calibrationSizes"`
	// MaxConcurrentIO bounds the number of concurrent slice file operations.
	MaxConcurrentIO int `mapstructure:"maxConcurrentIO" json:"maxConcurrentIO"`
	// IOBytesPerSecond limits file bandwidth, zero means unlimited.
	IOBytesPerSecond int64 `mapstructure:"ioBytesPerSecond" json:"ioBytesPerSecond"`
	// MaxGapsForPrediction and MaxSamplesForPrediction bound the samples fed to a predictor.
	MaxGapsForPrediction    uint64 `mapstructure:"maxGapsForPrediction" json:"maxGapsForPrediction"`
	MaxSamplesForPrediction int    `mapstructure:"maxSamplesForPrediction" json:"maxSamplesForPrediction"`
	// MaxPredictorUpdateInterval caps the number of watermark updates between predictor updates.
	MaxPredictorUpdateInterval uint64 `mapstructure:"maxPredictorUpdateInterval" json:"maxPredictorUpdateInterval"`
}

// DefaultSliceStoreInfo returns the default configuration.
func DefaultSliceStoreInfo() SliceStoreInfo {
	return SliceStoreInfo{
		LowerMemoryBound:           DefaultLowerMemoryBound,
		UpperMemoryBound:           DefaultUpperMemoryBound,
		Predictor:                  DefaultPredictor,
		MinReadStateSize:           DefaultMinReadStateSize,
		MinWriteStateSize:          DefaultMinWriteStateSize,
		FileOperationTimeDeltaMs:   DefaultFileOperationTimeDeltaMs,
		FileCodec:                  DefaultFileCodec,
		CalibrationSizes:           append([]int64(nil), DefaultCalibrationSizes...),
		MaxConcurrentIO:            DefaultMaxConcurrentIO,
		MaxGapsForPrediction:       DefaultMaxGapsForPrediction,
		MaxSamplesForPrediction:    DefaultMaxSamplesForPrediction,
		MaxPredictorUpdateInterval: DefaultMaxPredictorUpdates,
	}
}

// Validate checks the invariants of the configuration.
func (i SliceStoreInfo) Validate() error {
	if i.LowerMemoryBound < 0 || i.UpperMemoryBound < 0 {
		return storeerr.Newf(storeerr.Configuration, "memory bounds must not be negative, got lower=%d upper=%d", i.LowerMemoryBound, i.UpperMemoryBound)
	}
	if i.LowerMemoryBound > i.UpperMemoryBound {
		return storeerr.Newf(storeerr.Configuration, "lower memory bound %d exceeds upper memory bound %d", i.LowerMemoryBound, i.UpperMemoryBound)
	}
	if i.MaxConcurrentIO <= 0 {
		return storeerr.Newf(storeerr.Configuration, "max concurrent io must be positive, got %d", i.MaxConcurrentIO)
	}
	if i.IOBytesPerSecond < 0 {
		return storeerr.Newf(storeerr.Configuration, "io bytes per second must not be negative, got %d", i.IOBytesPerSecond)
	}
	if i.FileOperationTimeDeltaMs < 0 {
		return storeerr.Newf(storeerr.Configuration, "file operation time delta must not be negative, got %d", i.FileOperationTimeDeltaMs)
	}
	return nil
}
