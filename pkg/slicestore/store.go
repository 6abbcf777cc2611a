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

// Package slicestore keeps the slices and windows of a windowed operator, ordered by
// end time, and discards them once the watermark proves they can no longer be touched.
package slicestore

import (
	"context"
	"errors"

	"github.com/numaproj/windowstore/pkg/slice"
)

// ErrSliceNotFound is returned when no slice has the requested end.
var ErrSliceNotFound = errors.New("slice not found")

// CreateFunc builds the slice [start, end).
type CreateFunc func(start, end int64) (*slice.Slice, error)

// WindowSlices is a triggered window together with the slices it consists of.
type WindowSlices struct {
	WindowStart int64
	WindowEnd   int64
	Slices      []*slice.Slice
}

// SliceStore is implemented by the in-memory and the file-backed store.
type SliceStore interface {
	// GetSlicesOrCreate returns the slices covering ts, creating them with createFn if needed.
	GetSlicesOrCreate(ctx context.Context, ts int64, workerThreadID int, side slice.BuildSide, createFn CreateFunc) ([]*slice.Slice, error)
	// GetSliceBySliceEnd returns the slice ending at sliceEnd or ErrSliceNotFound.
	GetSliceBySliceEnd(ctx context.Context, sliceEnd int64) (*slice.Slice, error)
	// TriggerableWindowSlices emits every window ending before the watermark that has not been emitted yet.
	TriggerableWindowSlices(watermark int64) []WindowSlices
	// AllNonTriggeredSlices emits every window that has not been emitted yet.
	AllNonTriggeredSlices() []WindowSlices
	// GarbageCollectSlicesAndWindows removes what the watermark proves unreachable.
	GarbageCollectSlicesAndWindows(ctx context.Context, watermark int64) error
	// NumberOfSlices returns the number of live slices.
	NumberOfSlices() int
	// DeleteState drops every slice and window.
	DeleteState(ctx context.Context) error
}
