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

import (
	"math"
	"testing"
)

func TestNumericCompareAt(t *testing.T) {
	c := &Numeric[int64]{Values: []int64{1, 2, 2, -5}}
	cases := []struct {
		i, j int
		want int
	}{
		{0, 1, -1},
		{1, 2, 0},
		{3, 0, -1},
		{2, 0, 1},
	}
	for _, tc := range cases {
		if got := c.CompareAt(tc.i, c, tc.j, NaNLast); got != tc.want {
			t.Errorf("CompareAt(%d,%d) = %d, want %d", tc.i, tc.j, got, tc.want)
		}
	}
}

func TestNumericCompareAtNaN(t *testing.T) {
	c := &Numeric[float64]{Values: []float64{1.0, math.NaN(), 2.0}}
	if got := c.CompareAt(1, c, 0, NaNLast); got != 1 {
		t.Errorf("NaN vs 1.0 under NaNLast: got %d, want 1 (NaN sorts greatest)", got)
	}
	if got := c.CompareAt(0, c, 1, NaNLast); got != -1 {
		t.Errorf("1.0 vs NaN under NaNLast: got %d, want -1", got)
	}
	if got := c.CompareAt(1, c, 1, NaNLast); got != 0 {
		t.Errorf("NaN vs NaN: got %d, want 0 (equal under this ordering)", got)
	}
}

func TestNumericFilterPermuteCut(t *testing.T) {
	c := &Numeric[int64]{Values: []int64{10, 20, 30, 40}}
	f := c.Filter([]byte{0, 1, 0, 1}).(*Numeric[int64])
	if len(f.Values) != 2 || f.Values[0] != 20 || f.Values[1] != 40 {
		t.Fatalf("Filter result = %v, want [20 40]", f.Values)
	}
	p := c.Permute([]int{3, 1}, 0).(*Numeric[int64])
	if len(p.Values) != 2 || p.Values[0] != 40 || p.Values[1] != 20 {
		t.Fatalf("Permute result = %v, want [40 20]", p.Values)
	}
	cut := c.Cut(1, 2).(*Numeric[int64])
	if len(cut.Values) != 2 || cut.Values[0] != 20 || cut.Values[1] != 30 {
		t.Fatalf("Cut result = %v, want [20 30]", cut.Values)
	}
}

func TestNumericFilterSizeMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Filter with mismatched mask length should panic")
		}
	}()
	c := &Numeric[int64]{Values: []int64{1, 2, 3}}
	c.Filter([]byte{1, 0})
}

func TestStringGetDataAtAndFilter(t *testing.T) {
	s := NewString()
	for _, v := range []string{"aa", "bbb", "c"} {
		s.Chars = append(s.Chars, v...)
		s.Offsets = append(s.Offsets, len(s.Chars))
	}
	if string(s.GetDataAt(1)) != "bbb" {
		t.Fatalf("GetDataAt(1) = %q, want bbb", s.GetDataAt(1))
	}
	filtered := s.Filter([]byte{1, 0, 1}).(*String)
	if filtered.Size() != 2 {
		t.Fatalf("filtered size = %d, want 2", filtered.Size())
	}
	if string(filtered.GetDataAt(0)) != "aa" || string(filtered.GetDataAt(1)) != "c" {
		t.Fatalf("filtered rows = %q,%q, want aa,c", filtered.GetDataAt(0), filtered.GetDataAt(1))
	}
}

func TestTupleField(t *testing.T) {
	a := &Numeric[int64]{Values: []int64{1, 2}}
	b := NewString()
	b.Chars = append(b.Chars, "xy"...)
	b.Offsets = append(b.Offsets, 2)
	b.Chars = append(b.Chars, "z"...)
	b.Offsets = append(b.Offsets, 3)

	tup := NewTuple([]string{"n", "s"}, []Column{a, b})
	if got, ok := tup.Field("n"); !ok || got != Column(a) {
		t.Fatal("Field(n) did not return the n column")
	}
	if _, ok := tup.Field("missing"); ok {
		t.Fatal("Field(missing) should report ok=false")
	}
}
