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
	"fmt"

	"go.uber.org/zap"

	"github.com/numaproj/windowstore/pkg/buffer"
	"github.com/numaproj/windowstore/pkg/slice"
)

// UpdateOperation is what the executor does with the state of one (slice, worker, side).
type UpdateOperation int

const (
	// ForceWrite writes the state regardless of any prediction.
	ForceWrite UpdateOperation = iota
	Write
	Read
)

func (o UpdateOperation) String() string {
	switch o {
	case ForceWrite:
		return "ForceWrite"
	case Write:
		return "Write"
	case Read:
		return "Read"
	default:
		return fmt.Sprintf("UpdateOperation(%d)", int(o))
	}
}

// Policy names the rule a decision round applied.
type Policy string

const (
	PolicyReactive  Policy = "reactive"
	PolicyProactive Policy = "proactive"
	PolicyNone      Policy = "none"
)

// SliceToUpdate is one scheduled operation.
type SliceToUpdate struct {
	Slice          *slice.Slice
	WorkerThreadID int
	Side           slice.BuildSide
	Operation      UpdateOperation
}

// UpdateSlicesMetaData describes the watermark update a worker observed.
type UpdateSlicesMetaData struct {
	WorkerThreadID int
	Side           slice.BuildSide
	WatermarkTs    int64
	SeqNumber      uint64
	OriginID       uint64
}

// policyFor selects the policy for the memory in use.
func (s *FileBackedTimeBasedSliceStore) policyFor(usedBytes int64) Policy {
	switch {
	case s.info.UpperMemoryBound == 0 || usedBytes >= s.info.UpperMemoryBound:
		return PolicyReactive
	case usedBytes >= s.info.LowerMemoryBound:
		return PolicyProactive
	default:
		return PolicyNone
	}
}

// GetSlicesToUpdate decides what happens to the slices (workerThreadID, side) altered
// since its last round, given the combined watermark. The altered slices are cleared.
//
// At or above the upper memory bound every altered slice is written. Between the bounds
// a slice is read back when the watermark is expected to reach its end before the read
// completes, and written when it is not expected to reach it before a write and a full
// read back complete. Below the lower bound nothing happens.
func (s *FileBackedTimeBasedSliceStore) GetSlicesToUpdate(workerThreadID int, side slice.BuildSide, watermark int64) []SliceToUpdate {
	altered := s.takeAltered(workerThreadID, side)
	policy := s.policyFor(buffer.UsedBytes(s.provider))
	policyDecisions.WithLabelValues(s.opts.name, string(policy)).Inc()
	if len(altered) == 0 || policy == PolicyNone {
		return nil
	}

	updates := make([]SliceToUpdate, 0, len(altered))
	add := func(sl *slice.Slice, op UpdateOperation) {
		updates = append(updates, SliceToUpdate{Slice: sl, WorkerThreadID: workerThreadID, Side: side, Operation: op})
	}
	if policy == PolicyReactive {
		for _, sl := range altered {
			add(sl, ForceWrite)
		}
		return updates
	}

	if s.predictors == nil {
		for _, sl := range altered {
			if watermark < sl.EndTime() {
				add(sl, Write)
			} else {
				add(sl, Read)
			}
		}
		return updates
	}

	now := s.opts.clock().UnixMilli()
	delta := s.info.FileOperationTimeDeltaMs
	for _, sl := range altered {
		onDisk := s.mc.StateSizeOnDisk(sl, workerThreadID, side)
		inMemory := sl.StateSizeInMemory(workerThreadID, side)
		readDone := now + s.mc.ReadCost(onDisk) + delta
		if onDisk > s.info.MinReadStateSize && s.predictors.PredictMin(readDone) >= sl.EndTime() {
			add(sl, Read)
			continue
		}
		writeAndReadDone := now + s.mc.WriteCost(inMemory) + s.mc.ReadCost(onDisk+inMemory) + delta
		if inMemory > s.info.MinWriteStateSize && s.predictors.PredictMin(writeAndReadDone) < sl.EndTime() {
			add(sl, Write)
		}
	}
	s.log.Debugw("Proactive decision round", zap.Int("altered", len(altered)), zap.Int("scheduled", len(updates)))
	return updates
}
