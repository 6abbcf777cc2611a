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
	"context"
	"sync"

	"go.uber.org/multierr"
)

// Future completes once every operation submitted by one UpdateSlices call has finished.
type Future struct {
	lock    sync.Mutex
	pending int
	err     error
	done    chan struct{}
}

func newFuture(pending int) *Future {
	f := &Future{pending: pending, done: make(chan struct{})}
	if pending == 0 {
		close(f.done)
	}
	return f
}

func (f *Future) complete(err error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.err = multierr.Append(f.err, err)
	f.pending--
	if f.pending == 0 {
		close(f.done)
	}
}

// Done is closed once every operation has finished.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Err returns the combined errors of the finished operations.
func (f *Future) Err() error {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.err
}

// Wait blocks until every operation has finished or ctx is done.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
