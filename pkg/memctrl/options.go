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

package memctrl

import (
	"github.com/numaproj/windowstore/pkg/buffer"
	"github.com/numaproj/windowstore/pkg/slicestore/fs"
)

const defaultCalibrationRepetitions = 3

type options struct {
	name        string
	fsys        fs.FileSystem
	provider    buffer.Provider
	repetitions int
}

// Option set options for the MemoryController.
type Option func(*options)

// WithName sets the store label of the controller's metrics.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithFileSystem sets the file system slice files are stored on.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		o.fsys = fsys
	}
}

// WithCalibrationProvider sets the provider of the pages written during calibration.
func WithCalibrationProvider(p buffer.Provider) Option {
	return func(o *options) {
		o.provider = p
	}
}

// WithCalibrationRepetitions sets how often each calibration size is measured.
func WithCalibrationRepetitions(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.repetitions = n
		}
	}
}
