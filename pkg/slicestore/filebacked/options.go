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

package filebacked

import (
	"time"

	"github.com/numaproj/windowstore/pkg/slicestore/fs"
	"github.com/numaproj/windowstore/pkg/watermark/processor"
)

type storeOptions struct {
	name      string
	fsys      fs.FileSystem
	processor processor.WatermarkProcessor
	clock     func() time.Time
}

// Option set options for the FileBackedTimeBasedSliceStore.
type Option func(*storeOptions)

// WithName sets the store label of the store's metrics and logs.
func WithName(name string) Option {
	return func(o *storeOptions) {
		o.name = name
	}
}

// WithFileSystem sets the file system slice files are stored on.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(o *storeOptions) {
		o.fsys = fsys
	}
}

// WithWatermarkProcessor replaces the default in-process watermark processor.
func WithWatermarkProcessor(p processor.WatermarkProcessor) Option {
	return func(o *storeOptions) {
		o.processor = p
	}
}

// WithClock sets the clock the proactive policy projects I/O completion times from.
func WithClock(clock func() time.Time) Option {
	return func(o *storeOptions) {
		o.clock = clock
	}
}
