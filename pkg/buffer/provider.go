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

// Package buffer provides the memory the slice store keeps its records in: a page
// provider which accounts for every byte handed out, and an append-only paged vector
// of fixed-size records.
package buffer

import (
	"go.uber.org/atomic"
)

const DefaultPageSize = 4096

// Provider hands out memory and reports how much of it is in use. The slice store
// reads the usage counters to decide how much memory pressure it is under.
type Provider interface {
	// PageSize returns the size of a pooled page.
	PageSize() int
	// GetPage returns a zeroed page of PageSize bytes.
	GetPage() []byte
	// ReleasePage returns a page obtained from GetPage.
	ReleasePage(page []byte)
	// GetUnpooled returns a buffer of the given size which is not backed by the pool.
	GetUnpooled(size int) []byte
	// ReleaseUnpooled releases a buffer obtained from GetUnpooled.
	ReleaseUnpooled(buf []byte)
	// PooledBytesInUse returns the number of pooled bytes handed out.
	PooledBytesInUse() int64
	// UnpooledBytesInUse returns the number of unpooled bytes handed out.
	UnpooledBytesInUse() int64
}

// UsedBytes returns the total number of bytes in use by the provider.
func UsedBytes(p Provider) int64 {
	return p.PooledBytesInUse() + p.UnpooledBytesInUse()
}

// pagePool implements Provider with a bounded free list of pages.
type pagePool struct {
	pageSize int
	free     chan []byte
	pooled   *atomic.Int64
	unpooled *atomic.Int64
}

var _ Provider = (*pagePool)(nil)

type Option func(*pagePool)

// WithPageSize sets the page size of the pool.
func WithPageSize(size int) Option {
	return func(p *pagePool) {
		p.pageSize = size
	}
}

// WithMaxFreePages sets how many released pages are kept for reuse.
func WithMaxFreePages(n int) Option {
	return func(p *pagePool) {
		p.free = make(chan []byte, n)
	}
}

// NewProvider returns a page pool backed Provider.
func NewProvider(opts ...Option) Provider {
	p := &pagePool{
		pageSize: DefaultPageSize,
		free:     make(chan []byte, 1024),
		pooled:   atomic.NewInt64(0),
		unpooled: atomic.NewInt64(0),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *pagePool) PageSize() int {
	return p.pageSize
}

func (p *pagePool) GetPage() []byte {
	p.pooled.Add(int64(p.pageSize))
	select {
	case page := <-p.free:
		clear(page)
		return page
	default:
		return make([]byte, p.pageSize)
	}
}

func (p *pagePool) ReleasePage(page []byte) {
	if page == nil {
		return
	}
	p.pooled.Sub(int64(p.pageSize))
	if cap(page) != p.pageSize {
		return
	}
	select {
	case p.free <- page[:p.pageSize]:
	default:
	}
}

func (p *pagePool) GetUnpooled(size int) []byte {
	p.unpooled.Add(int64(size))
	return make([]byte, size)
}

func (p *pagePool) ReleaseUnpooled(buf []byte) {
	if buf == nil {
		return
	}
	p.unpooled.Sub(int64(len(buf)))
}

func (p *pagePool) PooledBytesInUse() int64 {
	return p.pooled.Load()
}

func (p *pagePool) UnpooledBytesInUse() int64 {
	return p.unpooled.Load()
}
