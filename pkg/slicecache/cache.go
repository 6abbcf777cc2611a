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

// Package slicecache is a small fixed-size cache in front of the slice store. Each
// worker owns its own cache, so lookups on the hot path take no locks.
package slicecache

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/numaproj/windowstore/pkg/storeerr"
	"github.com/numaproj/windowstore/pkg/window"
)

const defaultCacheName = "default"

// Stats counts lookups.
type Stats struct {
	Hits   uint64
	Misses uint64
}

// Lookups returns hits plus misses.
func (s Stats) Lookups() uint64 {
	return s.Hits + s.Misses
}

// HitRate returns the fraction of lookups served from the cache.
func (s Stats) HitRate() float64 {
	if s.Lookups() == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Lookups())
}

func (s Stats) String() string {
	return fmt.Sprintf("hits=%d misses=%d hitRate=%.4f", s.Hits, s.Misses, s.HitRate())
}

type entry[T window.Ended] struct {
	start int64
	end   int64
	value T
}

type cacheOptions struct {
	name string
}

// Option configures a Cache.
type Option func(*cacheOptions)

// WithName sets the store label of the cache metrics.
func WithName(name string) Option {
	return func(o *cacheOptions) {
		o.name = name
	}
}

// Cache maps timestamps to the value whose [StartTime, EndTime) range contains them.
// A Cache is not safe for concurrent use.
type Cache[T window.Ended] struct {
	policy   Policy
	entries  []entry[T]
	used     int
	replacer replacer
	stats    Stats
	hits     prometheus.Counter
	misses   prometheus.Counter
}

// New returns an empty cache with capacity entries.
func New[T window.Ended](policy Policy, capacity int, inputOpts ...Option) (*Cache[T], error) {
	opts := &cacheOptions{name: defaultCacheName}
	for _, o := range inputOpts {
		o(opts)
	}
	if capacity <= 0 {
		return nil, storeerr.Newf(storeerr.Configuration, "slice cache capacity must be positive, got %d", capacity)
	}
	r, err := newReplacer(policy, capacity)
	if err != nil {
		return nil, err
	}
	return &Cache[T]{
		policy:   policy,
		entries:  make([]entry[T], capacity),
		replacer: r,
		hits:     cacheHits.WithLabelValues(opts.name, policy.String()),
		misses:   cacheMisses.WithLabelValues(opts.name, policy.String()),
	}, nil
}

// GetFromCache returns the cached value containing ts. On a miss onMiss produces the
// value, which replaces the entry chosen by the policy. A failed onMiss leaves the
// cache untouched.
func (c *Cache[T]) GetFromCache(ts int64, onMiss func(ts int64) (T, error)) (T, error) {
	for i := 0; i < c.used; i++ {
		e := &c.entries[i]
		if e.start <= ts && ts < e.end {
			c.stats.Hits++
			c.hits.Inc()
			c.replacer.hit(i)
			return e.value, nil
		}
	}
	c.stats.Misses++
	c.misses.Inc()
	v, err := onMiss(ts)
	if err != nil {
		var zero T
		return zero, err
	}
	var i int
	if c.used < len(c.entries) {
		i = c.used
		c.used++
	} else {
		i = c.replacer.victim()
	}
	c.entries[i] = entry[T]{start: v.StartTime(), end: v.EndTime(), value: v}
	c.replacer.inserted(i)
	return v, nil
}

// Clear empties the cache. Counters are kept.
func (c *Cache[T]) Clear() {
	clear(c.entries)
	c.used = 0
	// a fresh replacer cannot fail for a capacity that was accepted before
	r, err := newReplacer(c.policy, len(c.entries))
	if err != nil {
		storeerr.Invariantf("recreating %s replacer: %v", c.policy, err)
	}
	c.replacer = r
}

// Stats returns the hit and miss counts.
func (c *Cache[T]) Stats() Stats {
	return c.stats
}

// Len returns the number of populated entries.
func (c *Cache[T]) Len() int {
	return c.used
}

// Policy returns the replacement policy.
func (c *Cache[T]) Policy() Policy {
	return c.policy
}
