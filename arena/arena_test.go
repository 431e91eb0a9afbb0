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

package arena

import (
	"bytes"
	"testing"
)

func TestAllocZeroedAndDistinct(t *testing.T) {
	a := New(64)
	x := a.Alloc(8)
	for _, b := range x {
		if b != 0 {
			t.Fatal("Alloc should return zeroed bytes")
		}
	}
	x[0] = 0xff
	y := a.Alloc(8)
	if y[0] == 0xff {
		t.Fatal("two Alloc calls returned overlapping memory")
	}
}

func TestAllocCrossesPageBoundary(t *testing.T) {
	a := New(16)
	a.Alloc(12)
	if len(a.pages) != 1 {
		t.Fatalf("len(pages) = %d, want 1", len(a.pages))
	}
	a.Alloc(12) // doesn't fit in the remainder of the first 16-byte page
	if len(a.pages) != 2 {
		t.Fatalf("len(pages) = %d, want 2 (should have started a new page)", len(a.pages))
	}
}

func TestAllocOversizedRequestGetsItsOwnPage(t *testing.T) {
	a := New(16)
	big := a.Alloc(100)
	if len(big) != 100 {
		t.Fatalf("len(big) = %d, want 100", len(big))
	}
}

func TestCopyBytes(t *testing.T) {
	a := New(64)
	src := []byte("hello")
	dst := a.CopyBytes(src)
	if !bytes.Equal(dst, src) {
		t.Fatalf("CopyBytes = %q, want %q", dst, src)
	}
	src[0] = 'H'
	if dst[0] == 'H' {
		t.Fatal("CopyBytes aliased the source slice")
	}
}

func TestBytesAccounting(t *testing.T) {
	a := New(1024)
	if a.Bytes() != 0 {
		t.Fatalf("Bytes() = %d, want 0", a.Bytes())
	}
	a.Alloc(10)
	if a.Bytes() != 16 { // rounded up to 8-byte alignment
		t.Fatalf("Bytes() = %d, want 16", a.Bytes())
	}
}

func TestPinUnpinResetsAtZero(t *testing.T) {
	a := New(64)
	a.Alloc(8)
	a.Pin() // refs: 2
	a.Unpin() // refs: 1
	if a.Bytes() == 0 {
		t.Fatal("Arena should not have reset while a Pin reference remains")
	}
	a.Unpin() // refs: 0, should reset
	if a.Bytes() != 0 {
		t.Fatal("Arena should reset once the refcount drops to zero")
	}
}

func TestUnpinWithoutMatchingPinPanics(t *testing.T) {
	a := New(64)
	a.Unpin() // consumes the initial New() reference, refs: 0
	defer func() {
		if recover() == nil {
			t.Fatal("a second Unpin should panic")
		}
	}()
	a.Unpin()
}
