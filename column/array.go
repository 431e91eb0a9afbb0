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
	"fmt"
	"sort"
)

// Array is a variable-length array column: Elements is a column
// holding the concatenation of every row's elements, and Offsets
// gives the one-past-last element index of row i (Offsets[-1] == 0
// implicitly), mirroring column.String but over an arbitrary element
// column rather than raw bytes.
type Array struct {
	Elements Column
	Offsets  []int
}

func NewArray(elems Column) *Array {
	return &Array{Elements: elems, Offsets: []int{}}
}

func (c *Array) Size() int { return len(c.Offsets) }

func (c *Array) ByteSize() int { return c.Elements.ByteSize() + len(c.Offsets)*8 }

func (c *Array) start(i int) int {
	if i == 0 {
		return 0
	}
	return c.Offsets[i-1]
}

// GetDataAt is not meaningful for a nested column; callers that need
// the element range should use Range instead.
func (c *Array) GetDataAt(i int) []byte {
	panic(fmt.Errorf("column.Array: GetDataAt is not defined for nested columns, use Range"))
}

// Range returns the [start, end) element indices occupied by row i.
func (c *Array) Range(i int) (start, end int) {
	return c.start(i), c.Offsets[i]
}

func (c *Array) InsertFrom(src Column, i int) error {
	s, ok := src.(*Array)
	if !ok {
		return &ErrWrongVariant{Op: "InsertFrom", Have: "column.Array", Want: "column.Array"}
	}
	lo, hi := s.Range(i)
	for k := lo; k < hi; k++ {
		if err := c.Elements.InsertFrom(s.Elements, k); err != nil {
			return err
		}
	}
	c.Offsets = append(c.Offsets, c.Elements.Size())
	return nil
}

func (c *Array) InsertDefault() {
	c.Offsets = append(c.Offsets, c.Elements.Size())
}

func (c *Array) Reserve(n int) {
	if cap(c.Offsets)-len(c.Offsets) < n {
		grown := make([]int, len(c.Offsets), len(c.Offsets)+n)
		copy(grown, c.Offsets)
		c.Offsets = grown
	}
}

func (c *Array) Cut(start, length int) Column {
	lo := c.start(start)
	hi := lo
	if length > 0 {
		hi = c.Offsets[start+length-1]
	}
	out := &Array{Elements: c.Elements.Cut(lo, hi-lo), Offsets: make([]int, length)}
	base := lo
	for i := 0; i < length; i++ {
		out.Offsets[i] = c.Offsets[start+i] - base
	}
	return out
}

func (c *Array) Filter(mask []byte) Column {
	if len(mask) != len(c.Offsets) {
		panic(&ErrSizeMismatch{Op: "Filter", Got: len(mask), Want: len(c.Offsets)})
	}
	elemMask := make([]byte, c.Elements.Size())
	for i, m := range mask {
		if m != 0 {
			lo, hi := c.Range(i)
			for k := lo; k < hi; k++ {
				elemMask[k] = 1
			}
		}
	}
	out := &Array{Elements: c.Elements.Filter(elemMask), Offsets: make([]int, 0, popcount(mask))}
	running := 0
	for i, m := range mask {
		if m != 0 {
			lo, hi := c.Range(i)
			running += hi - lo
			out.Offsets = append(out.Offsets, running)
		}
	}
	return out
}

func (c *Array) Permute(perm []int, limit int) Column {
	n := permuteLen(perm, limit)
	var elemPerm []int
	out := &Array{Offsets: make([]int, 0, n)}
	running := 0
	for i := 0; i < n; i++ {
		lo, hi := c.Range(perm[i])
		for k := lo; k < hi; k++ {
			elemPerm = append(elemPerm, k)
		}
		running += hi - lo
		out.Offsets = append(out.Offsets, running)
	}
	out.Elements = c.Elements.Permute(elemPerm, 0)
	return out
}

func (c *Array) Replicate(offsets []int) Column {
	if len(offsets) != len(c.Offsets) {
		panic(&ErrSizeMismatch{Op: "Replicate", Got: len(offsets), Want: len(c.Offsets)})
	}
	var elemPerm []int
	out := &Array{Offsets: make([]int, 0, offsets[len(offsets)-1])}
	running := 0
	prev := 0
	for i, off := range offsets {
		lo, hi := c.Range(i)
		for k := prev; k < off; k++ {
			for e := lo; e < hi; e++ {
				elemPerm = append(elemPerm, e)
			}
			running += hi - lo
			out.Offsets = append(out.Offsets, running)
		}
		prev = off
	}
	out.Elements = c.Elements.Permute(elemPerm, 0)
	return out
}

// CompareAt compares arrays lexicographically element-by-element,
// then by length.
func (c *Array) CompareAt(i int, other Column, j int, hint NaNDirection) int {
	o, ok := other.(*Array)
	if !ok {
		panic(&ErrWrongVariant{Op: "CompareAt", Have: "column.Array", Want: "column.Array"})
	}
	aLo, aHi := c.Range(i)
	bLo, bHi := o.Range(j)
	for a, b := aLo, bLo; a < aHi && b < bHi; a, b = a+1, b+1 {
		if cmp := c.Elements.CompareAt(a, o.Elements, b, hint); cmp != 0 {
			return cmp
		}
	}
	switch {
	case (aHi - aLo) < (bHi - bLo):
		return -1
	case (aHi - aLo) > (bHi - bLo):
		return 1
	default:
		return 0
	}
}

func (c *Array) GetPermutation(reverse bool, limit int) []int {
	n := len(c.Offsets)
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	less := func(i, j int) bool {
		cmp := c.CompareAt(perm[i], c, perm[j], NaNLast)
		if reverse {
			return cmp > 0
		}
		return cmp < 0
	}
	sort.SliceStable(perm, less)
	if limit > 0 && limit < n {
		return perm[:limit]
	}
	return perm
}

func (c *Array) GetExtremes() (min, max Column, ok bool) {
	// Extremes over nested arrays are rarely meaningful; the
	// primary-key/sparse-index machinery never indexes array
	// columns, so this degenerates to "not supported".
	return nil, nil, false
}
