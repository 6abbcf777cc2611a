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
	"sort"
)

// SortedByEnd is a list of entries sorted by end time from lowest to highest, with
// at most one entry per end time. It is not safe for concurrent use; the owner
// guards it with its own lock so that it can choose between blocking and
// non-blocking acquisition.
type SortedByEnd[W Ended] struct {
	entries []W
}

// NewSortedByEnd returns an empty list. The Front of the list always holds the
// smallest end time and the Back the largest.
func NewSortedByEnd[W Ended]() *SortedByEnd[W] {
	return &SortedByEnd[W]{
		entries: make([]W, 0),
	}
}

func (s *SortedByEnd[W]) search(end int64) int {
	return sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].EndTime() >= end
	})
}

// InsertIfNotPresent inserts the entry unless one with the same end time exists.
// It returns the entry kept in the list and whether it was already present.
func (s *SortedByEnd[W]) InsertIfNotPresent(entry W) (W, bool) {
	index := s.search(entry.EndTime())
	if index < len(s.entries) && s.entries[index].EndTime() == entry.EndTime() {
		return s.entries[index], true
	}

	// most inserts go to the back since time mostly moves forward
	if index == len(s.entries) {
		s.entries = append(s.entries, entry)
		return entry, false
	}

	var zero W
	s.entries = append(s.entries, zero)
	copy(s.entries[index+1:], s.entries[index:])
	s.entries[index] = entry
	return entry, false
}

// Get returns the entry with the given end time.
func (s *SortedByEnd[W]) Get(end int64) (W, bool) {
	index := s.search(end)
	if index < len(s.entries) && s.entries[index].EndTime() == end {
		return s.entries[index], true
	}
	var empty W
	return empty, false
}

// FindForTime returns the entry whose [start, end) interval contains t.
func (s *SortedByEnd[W]) FindForTime(t int64) (W, bool) {
	// the first entry ending after t is the only candidate since entries do not overlap
	index := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].EndTime() > t
	})
	if index < len(s.entries) && s.entries[index].StartTime() <= t {
		return s.entries[index], true
	}
	var empty W
	return empty, false
}

// Range calls fn for the entries with start >= from and end <= to, in ascending
// order of end time.
func (s *SortedByEnd[W]) Range(from, to int64, fn func(W)) {
	for i := s.search(from); i < len(s.entries); i++ {
		if s.entries[i].EndTime() > to {
			break
		}
		if s.entries[i].StartTime() >= from {
			fn(s.entries[i])
		}
	}
}

// RemoveIf scans the list in ascending order of end time. Entries for which remove
// returns true are removed; the scan stops at the first entry for which stop returns
// true. The removed entries are returned in ascending order.
func (s *SortedByEnd[W]) RemoveIf(remove func(W) bool, stop func(W) bool) []W {
	removed := make([]W, 0)
	kept := s.entries[:0]
	i := 0
	for ; i < len(s.entries); i++ {
		e := s.entries[i]
		if stop(e) {
			break
		}
		if remove(e) {
			removed = append(removed, e)
			continue
		}
		kept = append(kept, e)
	}
	kept = append(kept, s.entries[i:]...)
	// clear the tail so removed entries can be collected
	var zero W
	for j := len(kept); j < len(s.entries); j++ {
		s.entries[j] = zero
	}
	s.entries = kept
	return removed
}

// Len returns the number of entries.
func (s *SortedByEnd[W]) Len() int {
	return len(s.entries)
}

// Front returns the entry with the smallest end time.
func (s *SortedByEnd[W]) Front() (W, bool) {
	var front W
	if len(s.entries) == 0 {
		return front, false
	}
	return s.entries[0], true
}

// Back returns the entry with the largest end time.
func (s *SortedByEnd[W]) Back() (W, bool) {
	var back W
	if len(s.entries) == 0 {
		return back, false
	}
	return s.entries[len(s.entries)-1], true
}

// Items returns a copy of the list.
func (s *SortedByEnd[W]) Items() []W {
	items := make([]W, len(s.entries))
	copy(items, s.entries)
	return items
}

// Clear removes every entry and returns them.
func (s *SortedByEnd[W]) Clear() []W {
	items := s.entries
	s.entries = make([]W, 0)
	return items
}
