// Copyright 2023 Sneller, Inc.
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.

// Package arena implements the monotonic slab allocator that owns
// variable-length aggregation keys and aggregate-function state
// blobs. An Arena is paged (grounded on vm.slab's pageref/pages
// design) and bulk-released with the owning query;
// nothing is individually freed.
package arena

import "sync/atomic"

const defaultPageSize = 64 * 1024

// Arena is a monotonic byte allocator. The zero value is usable.
// An Arena is not safe for concurrent Alloc calls from multiple
// goroutines; callers that shard aggregation across threads give
// each worker its own Arena and merge afterwards (
// merge(variants[])).
type Arena struct {
	pages    [][]byte
	off      int
	pageSize int
	refs     int32 // shared-ownership count; see Pin/Unpin
}

// New returns an Arena with the given page size (0 selects a
// default).
func New(pageSize int) *Arena {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Arena{pageSize: pageSize, refs: 1}
}

// Alloc returns n zeroed bytes with 8-byte alignment, backed by
// arena-owned memory. The returned slice is only valid for the
// lifetime of the Arena (see Pin).
func (a *Arena) Alloc(n int) []byte {
	if n == 0 {
		return nil
	}
	const align = 8
	if len(a.pages) == 0 || a.off+n > len(a.pages[len(a.pages)-1]) {
		sz := a.pageSize
		if n > sz {
			sz = ((n + align - 1) / align) * align
		}
		a.pages = append(a.pages, make([]byte, sz))
		a.off = 0
	}
	page := a.pages[len(a.pages)-1]
	buf := page[a.off : a.off+n : a.off+n]
	adv := ((n + align - 1) / align) * align
	if a.off+adv <= len(page) {
		a.off += adv
	} else {
		a.off = len(page)
	}
	return buf
}

// CopyBytes copies src into a freshly-allocated arena slice, the way
// the KEY_STRING hash method arena-copies variable-length keys.
func (a *Arena) CopyBytes(src []byte) []byte {
	dst := a.Alloc(len(src))
	copy(dst, src)
	return dst
}

// Reset releases every page. It must only be called once no column
// or aggregate state still references memory from this Arena (see
// Pin/Unpin accounting).
func (a *Arena) Reset() {
	a.pages = a.pages[:0]
	a.off = 0
}

// Bytes returns the total bytes currently allocated from this Arena,
// used to feed the profiling mixin's byte-limit accounting.
func (a *Arena) Bytes() int {
	n := 0
	for i, p := range a.pages {
		if i == len(a.pages)-1 {
			n += a.off
		} else {
			n += len(p)
		}
	}
	return n
}

// Pin increments the shared-ownership refcount, used when a result
// column embedding aggregate-state pointers must keep the Arena alive
// past the aggregator that created it (final=false,).
func (a *Arena) Pin() { atomic.AddInt32(&a.refs, 1) }

// Unpin decrements the refcount and resets the Arena once it drops to
// zero. Calling Unpin more times than Pin (plus the initial New
// reference) is a logic error and panics, matching the "Logical"
// error class.
func (a *Arena) Unpin() {
	n := atomic.AddInt32(&a.refs, -1)
	switch {
	case n == 0:
		a.Reset()
	case n < 0:
		panic("arena: Unpin called without matching Pin/New")
	}
}
