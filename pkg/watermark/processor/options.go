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

package processor

import "time"

const defaultHistoryCapacity = 1024

type processorOptions struct {
	// historyCapacity is the number of samples kept per origin
	historyCapacity int
	// clock returns the ingestion time of a watermark update
	clock func() time.Time
}

// Option set options for the MultiOriginProcessor.
type Option func(*processorOptions)

// WithHistoryCapacity sets the number of watermark samples kept per origin.
func WithHistoryCapacity(c int) Option {
	return func(opts *processorOptions) {
		opts.historyCapacity = c
	}
}

// WithClock sets the clock used to stamp ingestion times.
func WithClock(clock func() time.Time) Option {
	return func(opts *processorOptions) {
		opts.clock = clock
	}
}
