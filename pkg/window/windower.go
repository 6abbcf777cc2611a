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

package window

import (
	"fmt"
)

// Ended is implemented by everything kept in a SortedByEnd list.
type Ended interface {
	// StartTime returns the inclusive start in milliseconds.
	StartTime() int64
	// EndTime returns the exclusive end in milliseconds. It is the identity of the entry.
	EndTime() int64
}

// State is the lifecycle state of a window.
type State int

const (
	// BothSidesFilling means records may still arrive for both build sides.
	BothSidesFilling State = iota
	// OneSideFilled means one build side has been completely received.
	OneSideFilled
	// EmittedToProbe means the window has been triggered and its slices handed to the
	// probe phase. Such a window is discarded once the watermark passes its end.
	EmittedToProbe
)

func (s State) String() string {
	switch s {
	case BothSidesFilling:
		return "BothSidesFilling"
	case OneSideFilled:
		return "OneSideFilled"
	case EmittedToProbe:
		return "EmittedToProbe"
	default:
		return "Unknown"
	}
}

// Info describes one window [start, end) and its state.
type Info struct {
	windowStart int64
	windowEnd   int64
	state       State
}

var _ Ended = (*Info)(nil)

// NewInfo returns a window in the BothSidesFilling state.
func NewInfo(start, end int64) *Info {
	return &Info{
		windowStart: start,
		windowEnd:   end,
		state:       BothSidesFilling,
	}
}

func (w *Info) StartTime() int64 {
	return w.windowStart
}

func (w *Info) EndTime() int64 {
	return w.windowEnd
}

// State returns the state of the window. Callers must hold the lock guarding the window list.
func (w *Info) State() State {
	return w.state
}

// SetState sets the state of the window. Callers must hold the lock guarding the window list.
func (w *Info) SetState(state State) {
	w.state = state
}

// Contains reports whether the interval [start, end) lies within the window.
func (w *Info) Contains(start, end int64) bool {
	return w.windowStart <= start && end <= w.windowEnd
}

func (w *Info) String() string {
	return fmt.Sprintf("[%d, %d) %s", w.windowStart, w.windowEnd, w.state)
}
