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
	"encoding/binary"
	"math"
	"sort"

	"golang.org/x/exp/constraints"
)

// Numeric is a fixed-width numeric column: Int64, Float64, UInt32, ...
// Every value occupies exactly unsafe.Sizeof(T) bytes, so GetDataAt,
// Cut, Filter and Permute never need an offsets buffer.
type Numeric[T constraints.Integer | constraints.Float] struct {
	Values []T
}

func NewNumeric[T constraints.Integer | constraints.Float](cap int) *Numeric[T] {
	return &Numeric[T]{Values: make([]T, 0, cap)}
}

func (c *Numeric[T]) Size() int { return len(c.Values) }

func (c *Numeric[T]) ByteSize() int {
	var z T
	return len(c.Values) * int(sizeofT(z))
}

func sizeofT[T constraints.Integer | constraints.Float](z T) uintptr {
	switch any(z).(type) {
	case int8, uint8:
		return 1
	case int16, uint16:
		return 2
	case int32, uint32, float32:
		return 4
	default:
		return 8
	}
}

func (c *Numeric[T]) GetDataAt(i int) []byte {
	var buf [8]byte
	v := c.Values[i]
	switch x := any(v).(type) {
	case float64:
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(x))
		return buf[:8]
	case float32:
		binary.LittleEndian.PutUint32(buf[:4], math.Float32bits(x))
		return buf[:4]
	default:
		binary.LittleEndian.PutUint64(buf[:], uint64(int64OrUint64(v)))
		n := int(sizeofT(v))
		return buf[:n]
	}
}

func int64OrUint64[T constraints.Integer | constraints.Float](v T) int64 {
	return int64(v)
}

func (c *Numeric[T]) InsertFrom(src Column, i int) error {
	s, ok := src.(*Numeric[T])
	if !ok {
		return &ErrWrongVariant{Op: "InsertFrom", Have: "column.Numeric", Want: "column.Numeric"}
	}
	c.Values = append(c.Values, s.Values[i])
	return nil
}

func (c *Numeric[T]) InsertDefault() {
	var zero T
	c.Values = append(c.Values, zero)
}

func (c *Numeric[T]) Reserve(n int) {
	if cap(c.Values)-len(c.Values) < n {
		grown := make([]T, len(c.Values), len(c.Values)+n)
		copy(grown, c.Values)
		c.Values = grown
	}
}

func (c *Numeric[T]) Cut(start, length int) Column {
	out := make([]T, length)
	copy(out, c.Values[start:start+length])
	return &Numeric[T]{Values: out}
}

func (c *Numeric[T]) Filter(mask []byte) Column {
	if len(mask) != len(c.Values) {
		panic(&ErrSizeMismatch{Op: "Filter", Got: len(mask), Want: len(c.Values)})
	}
	out := make([]T, 0, popcount(mask))
	for i, m := range mask {
		if m != 0 {
			out = append(out, c.Values[i])
		}
	}
	return &Numeric[T]{Values: out}
}

func (c *Numeric[T]) Permute(perm []int, limit int) Column {
	n := permuteLen(perm, limit)
	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = c.Values[perm[i]]
	}
	return &Numeric[T]{Values: out}
}

func (c *Numeric[T]) Replicate(offsets []int) Column {
	if len(offsets) != len(c.Values) {
		panic(&ErrSizeMismatch{Op: "Replicate", Got: len(offsets), Want: len(c.Values)})
	}
	total := 0
	if len(offsets) > 0 {
		total = offsets[len(offsets)-1]
	}
	out := make([]T, 0, total)
	prev := 0
	for i, off := range offsets {
		for k := prev; k < off; k++ {
			out = append(out, c.Values[i])
		}
		prev = off
	}
	return &Numeric[T]{Values: out}
}

// CompareAt implements two NaN orderings, selected by nanHint (see
// DESIGN.md for the Open-Question decision):
//
//   - NaNLast: NaN always compares greatest, in both ascending and
//     descending sorts it therefore ends up at the high-index end
//     when reverse is false and the low-index end when reverse is
//     true; callers that want NaN fixed at one physical end regardless
//     of direction should negate the result when reverse is set.
//   - NaNFollowsDirection: NaN always compares greatest and is never
//     renegotiated by direction, so GetPermutation's reversal naturally
//     pushes NaN to the opposite physical end for descending sorts.
//
// Both hints produce the same CompareAt result; they differ only in
// how GetPermutation is expected to apply the `reverse` flag, which is
// why the hint is plumbed through to the permutation builder below.
func (c *Numeric[T]) CompareAt(i int, other Column, j int, nanHint NaNDirection) int {
	o, ok := other.(*Numeric[T])
	if !ok {
		panic(&ErrWrongVariant{Op: "CompareAt", Have: "column.Numeric", Want: "column.Numeric"})
	}
	a, b := c.Values[i], o.Values[j]
	af, aIsFloat := any(a).(float64)
	bf, _ := any(b).(float64)
	if aIsFloat {
		return compareFloat(af, bf)
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareFloat(a, b float64) int {
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return 1
	case bNaN:
		return -1
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (c *Numeric[T]) GetPermutation(reverse bool, limit int) []int {
	return c.getPermutation(reverse, limit, NaNFollowsDirection)
}

// GetPermutationNaN is GetPermutation with an explicit NaN-ordering hint.
func (c *Numeric[T]) GetPermutationNaN(reverse bool, limit int, hint NaNDirection) []int {
	return c.getPermutation(reverse, limit, hint)
}

func (c *Numeric[T]) getPermutation(reverse bool, limit int, hint NaNDirection) []int {
	n := len(c.Values)
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	less := func(i, j int) bool {
		cmp := c.CompareAt(perm[i], c, perm[j], hint)
		if hint == NaNLast {
			// pin NaN at the high end independent of direction
			_, aNaN := isNaNValue(c.Values[perm[i]])
			_, bNaN := isNaNValue(c.Values[perm[j]])
			if aNaN || bNaN {
				if aNaN && bNaN {
					return false
				}
				return bNaN // a is "less" than NaN, in either direction
			}
		}
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

func isNaNValue[T constraints.Integer | constraints.Float](v T) (float64, bool) {
	f, ok := any(v).(float64)
	if !ok {
		return 0, false
	}
	return f, math.IsNaN(f)
}

func (c *Numeric[T]) GetExtremes() (min, max Column, ok bool) {
	if len(c.Values) == 0 {
		return nil, nil, false
	}
	mn, mx := c.Values[0], c.Values[0]
	for _, v := range c.Values[1:] {
		if v < mn {
			mn = v
		}
		if v > mx {
			mx = v
		}
	}
	return &Numeric[T]{Values: []T{mn}}, &Numeric[T]{Values: []T{mx}}, true
}
