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
	"context"

	"github.com/numaproj/windowstore/pkg/slice"
)

const defaultStoreName = "default"

// RemovalHook is called with the slices removed by garbage collection or teardown,
// after the store locks have been released and the slices dropped.
type RemovalHook func(ctx context.Context, removed []*slice.Slice) error

type storeOptions struct {
	// name labels the store metrics
	name        string
	removalHook RemovalHook
}

// Option set options for the TimeBasedSliceStore.
type Option func(*storeOptions)

// WithName sets the name used in the store metrics.
func WithName(name string) Option {
	return func(opts *storeOptions) {
		opts.name = name
	}
}

// WithRemovalHook sets a hook run on every batch of removed slices.
func WithRemovalHook(hook RemovalHook) Option {
	return func(opts *storeOptions) {
		opts.removalHook = hook
	}
}
