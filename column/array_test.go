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

package column

import "testing"

// rows: [1 2], [3], [], [4 5 6]
func buildTestArray() *Array {
	return &Array{
		Elements: &Numeric[int64]{Values: []int64{1, 2, 3, 4, 5, 6}},
		Offsets:  []int{2, 3, 3, 6},
	}
}

func TestArrayRange(t *testing.T) {
	a := buildTestArray()
	if a.Size() != 4 {
		t.Fatalf("Size() = %d, want 4", a.Size())
	}
	lo, hi := a.Range(0)
	if lo != 0 || hi != 2 {
		t.Fatalf("Range(0) = (%d,%d), want (0,2)", lo, hi)
	}
	lo, hi = a.Range(2)
	if lo != 3 || hi != 3 {
		t.Fatalf("Range(2) (empty row) = (%d,%d), want (3,3)", lo, hi)
	}
	lo, hi = a.Range(3)
	if lo != 3 || hi != 6 {
		t.Fatalf("Range(3) = (%d,%d), want (3,6)", lo, hi)
	}
}

func TestArrayInsertFromAppendsWholeRow(t *testing.T) {
	src := buildTestArray()
	dst := NewArray(&Numeric[int64]{})
	if err := dst.InsertFrom(src, 3); err != nil {
		t.Fatalf("InsertFrom: %v", err)
	}
	if dst.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", dst.Size())
	}
	got := dst.Elements.(*Numeric[int64]).Values
	want := []int64{4, 5, 6}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("copied elements = %v, want %v", got, want)
		}
	}
}

func TestArrayInsertDefaultAddsEmptyRow(t *testing.T) {
	a := buildTestArray()
	before := a.Size()
	a.InsertDefault()
	if a.Size() != before+1 {
		t.Fatalf("Size() = %d, want %d", a.Size(), before+1)
	}
	lo, hi := a.Range(before)
	if lo != hi {
		t.Fatalf("default row should be empty, got Range = (%d,%d)", lo, hi)
	}
}

func TestArrayFilter(t *testing.T) {
	a := buildTestArray()
	f := a.Filter([]byte{1, 0, 1, 0}).(*Array)
	if f.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", f.Size())
	}
	lo, hi := f.Range(0)
	vals := f.Elements.(*Numeric[int64]).Values[lo:hi]
	if len(vals) != 2 || vals[0] != 1 || vals[1] != 2 {
		t.Fatalf("row 0 = %v, want [1 2]", vals)
	}
	lo, hi = f.Range(1)
	if lo != hi {
		t.Fatalf("row 1 should be the empty row, got Range = (%d,%d)", lo, hi)
	}
}

func TestArrayFilterSizeMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Filter with mismatched mask length should panic")
		}
	}()
	buildTestArray().Filter([]byte{1, 0})
}

func TestArrayPermute(t *testing.T) {
	a := buildTestArray()
	p := a.Permute([]int{3, 0}, 0).(*Array)
	if p.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", p.Size())
	}
	lo, hi := p.Range(0)
	vals := p.Elements.(*Numeric[int64]).Values[lo:hi]
	want := []int64{4, 5, 6}
	for i := range want {
		if vals[i] != want[i] {
			t.Fatalf("row 0 = %v, want %v", vals, want)
		}
	}
}

func TestArrayCut(t *testing.T) {
	a := buildTestArray()
	c := a.Cut(1, 2).(*Array) // rows [3], []
	if c.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", c.Size())
	}
	lo, hi := c.Range(0)
	vals := c.Elements.(*Numeric[int64]).Values[lo:hi]
	if len(vals) != 1 || vals[0] != 3 {
		t.Fatalf("row 0 = %v, want [3]", vals)
	}
}

func TestArrayCompareAtLexicographicThenLength(t *testing.T) {
	a := &Array{
		Elements: &Numeric[int64]{Values: []int64{1, 2, 1, 2, 3}},
		Offsets:  []int{2, 5}, // row0 = [1 2], row1 = [1 2 3]
	}
	if got := a.CompareAt(0, a, 1, NaNLast); got != -1 {
		t.Fatalf("[1 2] vs [1 2 3] = %d, want -1 (shorter prefix sorts first)", got)
	}
	if got := a.CompareAt(1, a, 0, NaNLast); got != 1 {
		t.Fatalf("[1 2 3] vs [1 2] = %d, want 1", got)
	}
	if got := a.CompareAt(0, a, 0, NaNLast); got != 0 {
		t.Fatalf("[1 2] vs itself = %d, want 0", got)
	}
}

func TestArrayGetPermutationSortsByLengthThenValue(t *testing.T) {
	a := buildTestArray() // [1 2], [3], [], [4 5 6]
	perm := a.GetPermutation(false, 0)
	// expected ascending order: [] < [3] < [1 2] < [4 5 6]
	want := []int{2, 1, 0, 3}
	for i := range want {
		if perm[i] != want[i] {
			t.Fatalf("GetPermutation = %v, want %v", perm, want)
		}
	}
}

func TestArrayGetExtremesUnsupported(t *testing.T) {
	_, _, ok := buildTestArray().GetExtremes()
	if ok {
		t.Fatal("Array.GetExtremes should report ok=false")
	}
}
