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
	"bytes"
	"sort"
)

// String is a variable-length byte-string column. Row i occupies
// Chars[Offsets[i-1]:Offsets[i]), with an implicit Offsets[-1] == 0.
// Offsets and Chars are kept mutually consistent by every method;
// Filter and Permute rebuild both buffers in a single pass so no
// per-row temporary allocation occurs.
type String struct {
	Chars   []byte
	Offsets []int
}

func NewString() *String {
	return &String{Offsets: []int{}}
}

func (c *String) Size() int { return len(c.Offsets) }

func (c *String) ByteSize() int { return len(c.Chars) + len(c.Offsets)*8 }

func (c *String) start(i int) int {
	if i == 0 {
		return 0
	}
	return c.Offsets[i-1]
}

func (c *String) GetDataAt(i int) []byte {
	return c.Chars[c.start(i):c.Offsets[i]]
}

func (c *String) append(b []byte) {
	c.Chars = append(c.Chars, b...)
	c.Offsets = append(c.Offsets, len(c.Chars))
}

func (c *String) InsertFrom(src Column, i int) error {
	s, ok := src.(*String)
	if !ok {
		return &ErrWrongVariant{Op: "InsertFrom", Have: "column.String", Want: "column.String"}
	}
	c.append(s.GetDataAt(i))
	return nil
}

func (c *String) InsertDefault() { c.append(nil) }

func (c *String) Reserve(n int) {
	if cap(c.Offsets)-len(c.Offsets) < n {
		grown := make([]int, len(c.Offsets), len(c.Offsets)+n)
		copy(grown, c.Offsets)
		c.Offsets = grown
	}
}

func (c *String) Cut(start, length int) Column {
	out := NewString()
	lo := c.start(start)
	hi := lo
	if length > 0 {
		hi = c.Offsets[start+length-1]
	}
	out.Chars = append(out.Chars, c.Chars[lo:hi]...)
	out.Offsets = make([]int, length)
	base := lo
	for i := 0; i < length; i++ {
		out.Offsets[i] = c.Offsets[start+i] - base
	}
	return out
}

func (c *String) Filter(mask []byte) Column {
	if len(mask) != len(c.Offsets) {
		panic(&ErrSizeMismatch{Op: "Filter", Got: len(mask), Want: len(c.Offsets)})
	}
	out := NewString()
	out.Chars = make([]byte, 0, len(c.Chars))
	out.Offsets = make([]int, 0, popcount(mask))
	for i, m := range mask {
		if m != 0 {
			out.Chars = append(out.Chars, c.GetDataAt(i)...)
			out.Offsets = append(out.Offsets, len(out.Chars))
		}
	}
	return out
}

func (c *String) Permute(perm []int, limit int) Column {
	n := permuteLen(perm, limit)
	out := NewString()
	out.Offsets = make([]int, 0, n)
	for i := 0; i < n; i++ {
		out.Chars = append(out.Chars, c.GetDataAt(perm[i])...)
		out.Offsets = append(out.Offsets, len(out.Chars))
	}
	return out
}

func (c *String) Replicate(offsets []int) Column {
	if len(offsets) != len(c.Offsets) {
		panic(&ErrSizeMismatch{Op: "Replicate", Got: len(offsets), Want: len(c.Offsets)})
	}
	out := NewString()
	prev := 0
	for i, off := range offsets {
		data := c.GetDataAt(i)
		for k := prev; k < off; k++ {
			out.Chars = append(out.Chars, data...)
			out.Offsets = append(out.Offsets, len(out.Chars))
		}
		prev = off
	}
	return out
}

func (c *String) CompareAt(i int, other Column, j int, _ NaNDirection) int {
	o, ok := other.(*String)
	if !ok {
		panic(&ErrWrongVariant{Op: "CompareAt", Have: "column.String", Want: "column.String"})
	}
	return bytes.Compare(c.GetDataAt(i), o.GetDataAt(j))
}

func (c *String) GetPermutation(reverse bool, limit int) []int {
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

func (c *String) GetExtremes() (min, max Column, ok bool) {
	if len(c.Offsets) == 0 {
		return nil, nil, false
	}
	mn, mx := c.GetDataAt(0), c.GetDataAt(0)
	for i := 1; i < len(c.Offsets); i++ {
		v := c.GetDataAt(i)
		if bytes.Compare(v, mn) < 0 {
			mn = v
		}
		if bytes.Compare(v, mx) > 0 {
			mx = v
		}
	}
	minC, maxC := NewString(), NewString()
	minC.append(mn)
	maxC.append(mx)
	return minC, maxC, true
}

// FixedString is a column of fixed-width byte strings (no offsets
// buffer needed; row i occupies Chars[i*Width:(i+1)*Width)).
type FixedString struct {
	Chars []byte
	Width int
}

func NewFixedString(width int) *FixedString {
	return &FixedString{Width: width}
}

func (c *FixedString) Size() int     { return len(c.Chars) / c.Width }
func (c *FixedString) ByteSize() int { return len(c.Chars) }

func (c *FixedString) GetDataAt(i int) []byte {
	return c.Chars[i*c.Width : (i+1)*c.Width]
}

func (c *FixedString) InsertFrom(src Column, i int) error {
	s, ok := src.(*FixedString)
	if !ok || s.Width != c.Width {
		return &ErrWrongVariant{Op: "InsertFrom", Have: "column.FixedString", Want: "column.FixedString"}
	}
	c.Chars = append(c.Chars, s.GetDataAt(i)...)
	return nil
}

func (c *FixedString) InsertDefault() {
	c.Chars = append(c.Chars, make([]byte, c.Width)...)
}

func (c *FixedString) Reserve(n int) {
	need := n * c.Width
	if cap(c.Chars)-len(c.Chars) < need {
		grown := make([]byte, len(c.Chars), len(c.Chars)+need)
		copy(grown, c.Chars)
		c.Chars = grown
	}
}

func (c *FixedString) Cut(start, length int) Column {
	out := &FixedString{Width: c.Width}
	out.Chars = append(out.Chars, c.Chars[start*c.Width:(start+length)*c.Width]...)
	return out
}

func (c *FixedString) Filter(mask []byte) Column {
	if len(mask) != c.Size() {
		panic(&ErrSizeMismatch{Op: "Filter", Got: len(mask), Want: c.Size()})
	}
	out := &FixedString{Width: c.Width}
	for i, m := range mask {
		if m != 0 {
			out.Chars = append(out.Chars, c.GetDataAt(i)...)
		}
	}
	return out
}

func (c *FixedString) Permute(perm []int, limit int) Column {
	n := permuteLen(perm, limit)
	out := &FixedString{Width: c.Width}
	out.Chars = make([]byte, 0, n*c.Width)
	for i := 0; i < n; i++ {
		out.Chars = append(out.Chars, c.GetDataAt(perm[i])...)
	}
	return out
}

func (c *FixedString) Replicate(offsets []int) Column {
	if len(offsets) != c.Size() {
		panic(&ErrSizeMismatch{Op: "Replicate", Got: len(offsets), Want: c.Size()})
	}
	out := &FixedString{Width: c.Width}
	prev := 0
	for i, off := range offsets {
		data := c.GetDataAt(i)
		for k := prev; k < off; k++ {
			out.Chars = append(out.Chars, data...)
		}
		prev = off
	}
	return out
}

func (c *FixedString) CompareAt(i int, other Column, j int, _ NaNDirection) int {
	o, ok := other.(*FixedString)
	if !ok {
		panic(&ErrWrongVariant{Op: "CompareAt", Have: "column.FixedString", Want: "column.FixedString"})
	}
	return bytes.Compare(c.GetDataAt(i), o.GetDataAt(j))
}

func (c *FixedString) GetPermutation(reverse bool, limit int) []int {
	n := c.Size()
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

func (c *FixedString) GetExtremes() (min, max Column, ok bool) {
	n := c.Size()
	if n == 0 {
		return nil, nil, false
	}
	mn, mx := c.GetDataAt(0), c.GetDataAt(0)
	for i := 1; i < n; i++ {
		v := c.GetDataAt(i)
		if bytes.Compare(v, mn) < 0 {
			mn = v
		}
		if bytes.Compare(v, mx) > 0 {
			mx = v
		}
	}
	minC := &FixedString{Width: c.Width, Chars: append([]byte{}, mn...)}
	maxC := &FixedString{Width: c.Width, Chars: append([]byte{}, mx...)}
	return minC, maxC, true
}
