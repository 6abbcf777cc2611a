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

package buffer

import (
	"fmt"

	"github.com/numaproj/windowstore/pkg/storeerr"
)

// TupleLayout describes the physical layout of the records kept in a PagedVector.
type TupleLayout interface {
	// RecordSize returns the size of a single record in bytes.
	RecordSize() int
}

// FixedSizeLayout is a TupleLayout of records with a constant size.
type FixedSizeLayout int

func (l FixedSizeLayout) RecordSize() int {
	return int(l)
}

// Page is a single page of a PagedVector. Records are packed from the start of Data.
type Page struct {
	Data       []byte
	NumRecords int
}

// PagedVector is an append-only buffer of fixed-size records, stored in pages
// obtained from a Provider. It is not safe for concurrent use.
type PagedVector struct {
	provider       Provider
	layout         TupleLayout
	recordsPerPage int
	pages          []*Page
	numRecords     int
}

// NewPagedVector returns an empty PagedVector for records of the given layout.
func NewPagedVector(provider Provider, layout TupleLayout) (*PagedVector, error) {
	recordSize := layout.RecordSize()
	if recordSize <= 0 || recordSize > provider.PageSize() {
		return nil, storeerr.Newf(storeerr.Configuration, "record size %d must be in (0, %d]", recordSize, provider.PageSize())
	}
	return &PagedVector{
		provider:       provider,
		layout:         layout,
		recordsPerPage: provider.PageSize() / recordSize,
		pages:          make([]*Page, 0),
	}, nil
}

// Layout returns the tuple layout of the vector.
func (v *PagedVector) Layout() TupleLayout {
	return v.layout
}

// Append copies record to the end of the vector.
func (v *PagedVector) Append(record []byte) error {
	recordSize := v.layout.RecordSize()
	if len(record) != recordSize {
		return fmt.Errorf("expected a record of %d bytes, got %d", recordSize, len(record))
	}
	if len(v.pages) == 0 || v.pages[len(v.pages)-1].NumRecords == v.recordsPerPage {
		v.pages = append(v.pages, &Page{Data: v.provider.GetPage()})
	}
	last := v.pages[len(v.pages)-1]
	copy(last.Data[last.NumRecords*recordSize:], record)
	last.NumRecords++
	v.numRecords++
	return nil
}

// NumRecords returns the number of records in the vector.
func (v *PagedVector) NumRecords() int {
	return v.numRecords
}

// NumPages returns the number of pages in the vector.
func (v *PagedVector) NumPages() int {
	return len(v.pages)
}

// SizeInBytes returns the memory held by the vector's pages.
func (v *PagedVector) SizeInBytes() int64 {
	return int64(len(v.pages)) * int64(v.provider.PageSize())
}

// Pages returns the pages of the vector. The pages remain owned by the vector.
func (v *PagedVector) Pages() []*Page {
	return v.pages
}

// Records calls fn for every record in insertion order until fn returns false.
func (v *PagedVector) Records(fn func(record []byte) bool) {
	recordSize := v.layout.RecordSize()
	for _, p := range v.pages {
		for i := 0; i < p.NumRecords; i++ {
			if !fn(p.Data[i*recordSize : (i+1)*recordSize]) {
				return
			}
		}
	}
}

// TakePages detaches all pages from the vector and leaves it empty. The caller
// owns the returned pages and must release them with ReleasePages.
func (v *PagedVector) TakePages() []*Page {
	pages := v.pages
	v.pages = make([]*Page, 0)
	v.numRecords = 0
	return pages
}

// PrependPages inserts pages in front of the existing ones. Used when state which was
// written out before the current in-memory pages is read back.
func (v *PagedVector) PrependPages(pages []*Page) {
	if len(pages) == 0 {
		return
	}
	merged := make([]*Page, 0, len(pages)+len(v.pages))
	merged = append(merged, pages...)
	merged = append(merged, v.pages...)
	v.pages = merged
	for _, p := range pages {
		v.numRecords += p.NumRecords
	}
}

// MoveFrom appends all pages of other to v and leaves other empty.
func (v *PagedVector) MoveFrom(other *PagedVector) {
	v.pages = append(v.pages, other.pages...)
	v.numRecords += other.numRecords
	other.pages = make([]*Page, 0)
	other.numRecords = 0
}

// Release returns every page to the provider and empties the vector.
func (v *PagedVector) Release() {
	ReleasePages(v.provider, v.TakePages())
}

// ReleasePages returns pages to the provider they were obtained from.
func ReleasePages(provider Provider, pages []*Page) {
	for _, p := range pages {
		provider.ReleasePage(p.Data)
		p.Data = nil
	}
}
