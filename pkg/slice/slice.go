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

// Package slice implements the unit of windowed state. A slice covers [start, end)
// and keeps one append-only buffer per (worker thread, build side). Every worker
// only appends to its own buffers, so appends are lock free; merging the buffers for
// the probe phase and moving a buffer to or from disk take the slice's combine lock.
package slice

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/atomic"

	"github.com/numaproj/windowstore/pkg/buffer"
)

// ErrSpilledState is returned by Combine while a part of the slice is still on disk.
var ErrSpilledState = errors.New("slice has state on disk")

// BuildSide identifies the side of a join a record belongs to.
type BuildSide int

const (
	Left BuildSide = iota
	Right
)

// NumBuildSides is the number of build sides.
const NumBuildSides = 2

func (b BuildSide) String() string {
	switch b {
	case Left:
		return "Left"
	case Right:
		return "Right"
	default:
		return "Unknown"
	}
}

// BuildSides lists every build side.
var BuildSides = [NumBuildSides]BuildSide{Left, Right}

// Slice is the windowed state for the interval [start, end).
type Slice struct {
	start      int64
	end        int64
	numWorkers int
	provider   buffer.Provider

	// buffers holds one vector per (worker, side), indexed by worker*NumBuildSides+side.
	// bufferLocks guard them against the I/O executor; they are taken after combineLock.
	buffers     []*buffer.PagedVector
	bufferLocks []sync.Mutex
	combined    [NumBuildSides]*buffer.PagedVector

	// combineLock serializes merging against single-thread reads and writes of the buffers.
	combineLock sync.Mutex
	isCombined  *atomic.Bool
	isDropped   *atomic.Bool
	// isTriggered is set once a window containing the slice has been emitted. From then
	// on the state of the slice must stay in memory.
	isTriggered *atomic.Bool

	// spilled marks the (worker, side) parts which currently have state on disk
	spilled []*atomic.Bool
}

// New returns an empty slice for [start, end) with buffers for numWorkers worker threads.
func New(start, end int64, numWorkers int, layout buffer.TupleLayout, provider buffer.Provider) (*Slice, error) {
	if end <= start {
		return nil, fmt.Errorf("slice end %d must be greater than start %d", end, start)
	}
	if numWorkers <= 0 {
		return nil, fmt.Errorf("number of worker threads must be positive, got %d", numWorkers)
	}
	s := &Slice{
		start:       start,
		end:         end,
		numWorkers:  numWorkers,
		provider:    provider,
		buffers:     make([]*buffer.PagedVector, numWorkers*NumBuildSides),
		bufferLocks: make([]sync.Mutex, numWorkers*NumBuildSides),
		isCombined:  atomic.NewBool(false),
		isDropped:   atomic.NewBool(false),
		isTriggered: atomic.NewBool(false),
		spilled:     make([]*atomic.Bool, numWorkers*NumBuildSides),
	}
	for i := range s.buffers {
		v, err := buffer.NewPagedVector(provider, layout)
		if err != nil {
			return nil, err
		}
		s.buffers[i] = v
		s.spilled[i] = atomic.NewBool(false)
	}
	for _, side := range BuildSides {
		v, err := buffer.NewPagedVector(provider, layout)
		if err != nil {
			return nil, err
		}
		s.combined[side] = v
	}
	return s, nil
}

// StartTime returns the inclusive start of the slice.
func (s *Slice) StartTime() int64 {
	return s.start
}

// EndTime returns the exclusive end of the slice. It identifies the slice.
func (s *Slice) EndTime() int64 {
	return s.end
}

// Provider returns the provider the slice's pages are obtained from.
func (s *Slice) Provider() buffer.Provider {
	return s.provider
}

// NumWorkerThreads returns the number of per-worker buffers of each side.
func (s *Slice) NumWorkerThreads() int {
	return s.numWorkers
}

func (s *Slice) index(workerThreadID int, side BuildSide) int {
	return (workerThreadID%s.numWorkers)*NumBuildSides + int(side)
}

// Append appends a record to the buffer of (workerThreadID, side). Only the owning
// worker may call it. Appending to a combined slice is an error.
func (s *Slice) Append(workerThreadID int, side BuildSide, record []byte) error {
	i := s.index(workerThreadID, side)
	s.bufferLocks[i].Lock()
	defer s.bufferLocks[i].Unlock()
	if s.isCombined.Load() {
		return fmt.Errorf("slice [%d, %d) is already combined", s.start, s.end)
	}
	if s.isDropped.Load() {
		return fmt.Errorf("slice [%d, %d) is already dropped", s.start, s.end)
	}
	return s.buffers[i].Append(record)
}

func (s *Slice) lockAllBuffers() {
	for i := range s.bufferLocks {
		s.bufferLocks[i].Lock()
	}
}

func (s *Slice) unlockAllBuffers() {
	for i := range s.bufferLocks {
		s.bufferLocks[i].Unlock()
	}
}

// WithThreadBuffer runs fn on the buffer of (workerThreadID, side) while holding the
// combine lock. fn is skipped, and false returned, once the buffers have been
// combined or the slice has been dropped.
func (s *Slice) WithThreadBuffer(workerThreadID int, side BuildSide, fn func(v *buffer.PagedVector) error) (bool, error) {
	s.combineLock.Lock()
	defer s.combineLock.Unlock()
	if s.isCombined.Load() || s.isDropped.Load() {
		return false, nil
	}
	i := s.index(workerThreadID, side)
	s.bufferLocks[i].Lock()
	defer s.bufferLocks[i].Unlock()
	return true, fn(s.buffers[i])
}

// WithSpillableBuffer is WithThreadBuffer for moving state to disk. fn is also skipped
// once the slice has been triggered.
func (s *Slice) WithSpillableBuffer(workerThreadID int, side BuildSide, fn func(v *buffer.PagedVector) error) (bool, error) {
	s.combineLock.Lock()
	defer s.combineLock.Unlock()
	if s.isCombined.Load() || s.isDropped.Load() || s.isTriggered.Load() {
		return false, nil
	}
	i := s.index(workerThreadID, side)
	s.bufferLocks[i].Lock()
	defer s.bufferLocks[i].Unlock()
	return true, fn(s.buffers[i])
}

// MarkTriggered records that a window containing the slice has been emitted. It waits
// for an in-flight buffer operation, so a write to disk either finished before or is
// refused afterwards.
func (s *Slice) MarkTriggered() {
	s.combineLock.Lock()
	defer s.combineLock.Unlock()
	s.isTriggered.Store(true)
}

// IsTriggered reports whether a window containing the slice has been emitted.
func (s *Slice) IsTriggered() bool {
	return s.isTriggered.Load()
}

// StateSizeInMemory returns the bytes held by the buffer of (workerThreadID, side).
func (s *Slice) StateSizeInMemory(workerThreadID int, side BuildSide) int64 {
	i := s.index(workerThreadID, side)
	s.bufferLocks[i].Lock()
	defer s.bufferLocks[i].Unlock()
	return s.buffers[i].SizeInBytes()
}

// NumRecords returns the number of in-memory records of one worker and side.
func (s *Slice) NumRecords(workerThreadID int, side BuildSide) int {
	i := s.index(workerThreadID, side)
	s.bufferLocks[i].Lock()
	defer s.bufferLocks[i].Unlock()
	return s.buffers[i].NumRecords()
}

// Combine merges the per-worker buffers of every side into one vector per side.
// After Combine the per-worker buffers are empty and no longer written to disk.
// Combine fails with ErrSpilledState, and merges nothing, while any part is on disk.
func (s *Slice) Combine() error {
	s.combineLock.Lock()
	defer s.combineLock.Unlock()
	if s.isCombined.Load() || s.isDropped.Load() {
		return nil
	}
	for i, spilled := range s.spilled {
		if spilled.Load() {
			return fmt.Errorf("combining slice [%d, %d), thread %d side %s: %w", s.start, s.end,
				i/NumBuildSides, BuildSide(i%NumBuildSides), ErrSpilledState)
		}
	}
	s.lockAllBuffers()
	defer s.unlockAllBuffers()
	for w := 0; w < s.numWorkers; w++ {
		for _, side := range BuildSides {
			s.combined[side].MoveFrom(s.buffers[s.index(w, side)])
		}
	}
	s.isCombined.Store(true)
	return nil
}

// Combined returns the merged vector of a side. It is empty until Combine is called.
func (s *Slice) Combined(side BuildSide) *buffer.PagedVector {
	return s.combined[side]
}

// IsCombined reports whether the per-worker buffers have been merged.
func (s *Slice) IsCombined() bool {
	return s.isCombined.Load()
}

// Drop releases all memory of the slice. Drop waits for any in-flight buffer
// operation; operations started afterwards are skipped.
func (s *Slice) Drop() {
	s.combineLock.Lock()
	defer s.combineLock.Unlock()
	s.lockAllBuffers()
	defer s.unlockAllBuffers()
	if s.isDropped.Swap(true) {
		return
	}
	for _, v := range s.buffers {
		v.Release()
	}
	for _, v := range s.combined {
		v.Release()
	}
}

// IsDropped reports whether the slice has been dropped.
func (s *Slice) IsDropped() bool {
	return s.isDropped.Load()
}

// SetSpilled records whether the part of (workerThreadID, side) has state on disk.
func (s *Slice) SetSpilled(workerThreadID int, side BuildSide, spilled bool) {
	s.spilled[s.index(workerThreadID, side)].Store(spilled)
}

// IsSpilled reports whether the part of (workerThreadID, side) has state on disk.
func (s *Slice) IsSpilled(workerThreadID int, side BuildSide) bool {
	return s.spilled[s.index(workerThreadID, side)].Load()
}

// HasSpilledState reports whether any part of the slice currently lives on disk.
func (s *Slice) HasSpilledState() bool {
	for _, b := range s.spilled {
		if b.Load() {
			return true
		}
	}
	return false
}

func (s *Slice) String() string {
	return fmt.Sprintf("[%d, %d)", s.start, s.end)
}
