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

package slicecache

import (
	"strings"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/numaproj/windowstore/pkg/storeerr"
)

// Policy selects the entry replaced on a miss.
type Policy int

const (
	FIFO Policy = iota
	LRU
	LFU
	TwoQueues
	SecondChance
)

// Policies lists every online replacement policy.
var Policies = []Policy{FIFO, LRU, LFU, TwoQueues, SecondChance}

func (p Policy) String() string {
	switch p {
	case FIFO:
		return "FIFO"
	case LRU:
		return "LRU"
	case LFU:
		return "LFU"
	case TwoQueues:
		return "2Q"
	case SecondChance:
		return "SecondChance"
	default:
		return "Unknown"
	}
}

// ParsePolicy parses a policy name, case-insensitively.
func ParsePolicy(name string) (Policy, error) {
	for _, p := range Policies {
		if strings.EqualFold(p.String(), name) {
			return p, nil
		}
	}
	return 0, storeerr.Newf(storeerr.Configuration, "unknown slice cache policy %q", name)
}

// replacer holds the per-entry metadata of a policy. Entries are addressed by index.
type replacer interface {
	// hit records an access to a populated entry
	hit(i int)
	// victim returns the index of the populated entry to replace
	victim() int
	// inserted records that entry i was (re)populated
	inserted(i int)
}

func newReplacer(p Policy, capacity int) (replacer, error) {
	switch p {
	case FIFO:
		return &fifoReplacer{stamps: make([]uint64, capacity)}, nil
	case LRU:
		l, err := simplelru.NewLRU[int, struct{}](capacity, nil)
		if err != nil {
			return nil, err
		}
		return &lruReplacer{recency: l}, nil
	case LFU:
		return &lfuReplacer{counts: make([]uint64, capacity), stamps: make([]uint64, capacity)}, nil
	case TwoQueues:
		return newTwoQueueReplacer(capacity)
	case SecondChance:
		return &secondChanceReplacer{referenced: make([]bool, capacity)}, nil
	default:
		return nil, storeerr.Newf(storeerr.Configuration, "unknown slice cache policy %d", p)
	}
}

// fifoReplacer evicts the entry populated first.
type fifoReplacer struct {
	clock  uint64
	stamps []uint64
}

func (f *fifoReplacer) hit(int) {}

func (f *fifoReplacer) victim() int {
	return oldest(f.stamps)
}

func (f *fifoReplacer) inserted(i int) {
	f.clock++
	f.stamps[i] = f.clock
}

// lruReplacer evicts the least recently accessed entry.
type lruReplacer struct {
	recency *simplelru.LRU[int, struct{}]
}

func (l *lruReplacer) hit(i int) {
	l.recency.Get(i)
}

func (l *lruReplacer) victim() int {
	i, _, ok := l.recency.GetOldest()
	if !ok {
		storeerr.Invariantf("lru replacer has no eviction candidate")
	}
	return i
}

func (l *lruReplacer) inserted(i int) {
	l.recency.Add(i, struct{}{})
}

// lfuReplacer evicts the least frequently accessed entry, the oldest on ties.
type lfuReplacer struct {
	clock  uint64
	counts []uint64
	stamps []uint64
}

func (l *lfuReplacer) hit(i int) {
	l.counts[i]++
}

func (l *lfuReplacer) victim() int {
	v := 0
	for i := 1; i < len(l.counts); i++ {
		if l.counts[i] < l.counts[v] || (l.counts[i] == l.counts[v] && l.stamps[i] < l.stamps[v]) {
			v = i
		}
	}
	return v
}

func (l *lfuReplacer) inserted(i int) {
	l.clock++
	l.counts[i] = 1
	l.stamps[i] = l.clock
}

// twoQueueReplacer keeps entries referenced once in a FIFO probation queue and
// promotes re-referenced entries to a protected LRU queue.
type twoQueueReplacer struct {
	probation *simplelru.LRU[int, struct{}]
	protected *simplelru.LRU[int, struct{}]
	// probationTarget is the probation size above which it is evicted from first
	probationTarget int
}

func newTwoQueueReplacer(capacity int) (*twoQueueReplacer, error) {
	probation, err := simplelru.NewLRU[int, struct{}](capacity, nil)
	if err != nil {
		return nil, err
	}
	protected, err := simplelru.NewLRU[int, struct{}](capacity, nil)
	if err != nil {
		return nil, err
	}
	return &twoQueueReplacer{
		probation:       probation,
		protected:       protected,
		probationTarget: max(1, capacity/4),
	}, nil
}

func (q *twoQueueReplacer) hit(i int) {
	if q.probation.Contains(i) {
		q.probation.Remove(i)
		q.protected.Add(i, struct{}{})
		return
	}
	q.protected.Get(i)
}

func (q *twoQueueReplacer) victim() int {
	if q.probation.Len() >= q.probationTarget || q.protected.Len() == 0 {
		if i, _, ok := q.probation.GetOldest(); ok {
			return i
		}
	}
	i, _, ok := q.protected.GetOldest()
	if !ok {
		storeerr.Invariantf("2q replacer has no eviction candidate")
	}
	return i
}

func (q *twoQueueReplacer) inserted(i int) {
	q.protected.Remove(i)
	q.probation.Remove(i)
	// hits never touch probation order, so it stays FIFO
	q.probation.Add(i, struct{}{})
}

// secondChanceReplacer is the clock algorithm: the hand skips and clears referenced entries.
type secondChanceReplacer struct {
	hand       int
	referenced []bool
}

func (s *secondChanceReplacer) hit(i int) {
	s.referenced[i] = true
}

func (s *secondChanceReplacer) victim() int {
	for {
		i := s.hand
		s.hand = (s.hand + 1) % len(s.referenced)
		if !s.referenced[i] {
			return i
		}
		s.referenced[i] = false
	}
}

func (s *secondChanceReplacer) inserted(i int) {
	s.referenced[i] = false
}

func oldest(stamps []uint64) int {
	v := 0
	for i := 1; i < len(stamps); i++ {
		if stamps[i] < stamps[v] {
			v = i
		}
	}
	return v
}
