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

import "sort"

// Tuple is a block-of-columns: a fixed number of named sub-columns
// sharing one row count, used for the nested-struct field shape and
// for multi-column keys that get packed by the aggregation engine.
type Tuple struct {
	Names []string
	Cols  []Column
}

func NewTuple(names []string, cols []Column) *Tuple {
	return &Tuple{Names: names, Cols: cols}
}

func (c *Tuple) Size() int {
	if len(c.Cols) == 0 {
		return 0
	}
	return c.Cols[0].Size()
}

func (c *Tuple) ByteSize() int {
	n := 0
	for _, col := range c.Cols {
		n += col.ByteSize()
	}
	return n
}

// GetDataAt is undefined for a tuple; use Field(name).GetDataAt(i).
func (c *Tuple) GetDataAt(i int) []byte {
	panic("column.Tuple: GetDataAt is not defined, address a field instead")
}

func (c *Tuple) Field(name string) (Column, bool) {
	for i, n := range c.Names {
		if n == name {
			return c.Cols[i], true
		}
	}
	return nil, false
}

func (c *Tuple) InsertFrom(src Column, i int) error {
	s, ok := src.(*Tuple)
	if !ok || len(s.Cols) != len(c.Cols) {
		return &ErrWrongVariant{Op: "InsertFrom", Have: "column.Tuple", Want: "column.Tuple"}
	}
	for k := range c.Cols {
		if err := c.Cols[k].InsertFrom(s.Cols[k], i); err != nil {
			return err
		}
	}
	return nil
}

func (c *Tuple) InsertDefault() {
	for _, col := range c.Cols {
		col.InsertDefault()
	}
}

func (c *Tuple) Reserve(n int) {
	for _, col := range c.Cols {
		col.Reserve(n)
	}
}

func (c *Tuple) Cut(start, length int) Column {
	out := &Tuple{Names: c.Names, Cols: make([]Column, len(c.Cols))}
	for i, col := range c.Cols {
		out.Cols[i] = col.Cut(start, length)
	}
	return out
}

func (c *Tuple) Filter(mask []byte) Column {
	out := &Tuple{Names: c.Names, Cols: make([]Column, len(c.Cols))}
	for i, col := range c.Cols {
		out.Cols[i] = col.Filter(mask)
	}
	return out
}

func (c *Tuple) Permute(perm []int, limit int) Column {
	out := &Tuple{Names: c.Names, Cols: make([]Column, len(c.Cols))}
	for i, col := range c.Cols {
		out.Cols[i] = col.Permute(perm, limit)
	}
	return out
}

func (c *Tuple) Replicate(offsets []int) Column {
	out := &Tuple{Names: c.Names, Cols: make([]Column, len(c.Cols))}
	for i, col := range c.Cols {
		out.Cols[i] = col.Replicate(offsets)
	}
	return out
}

// CompareAt compares tuples lexicographically, field by field in
// declaration order: this is what the merge-tree ordering key relies
// on for multi-column primary keys.
func (c *Tuple) CompareAt(i int, other Column, j int, hint NaNDirection) int {
	o, ok := other.(*Tuple)
	if !ok || len(o.Cols) != len(c.Cols) {
		panic(&ErrWrongVariant{Op: "CompareAt", Have: "column.Tuple", Want: "column.Tuple"})
	}
	for k := range c.Cols {
		if cmp := c.Cols[k].CompareAt(i, o.Cols[k], j, hint); cmp != 0 {
			return cmp
		}
	}
	return 0
}

func (c *Tuple) GetPermutation(reverse bool, limit int) []int {
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

func (c *Tuple) GetExtremes() (min, max Column, ok bool) {
	if c.Size() == 0 {
		return nil, nil, false
	}
	minCols := make([]Column, len(c.Cols))
	maxCols := make([]Column, len(c.Cols))
	for i, col := range c.Cols {
		mn, mx, k := col.GetExtremes()
		if !k {
			return nil, nil, false
		}
		minCols[i], maxCols[i] = mn, mx
	}
	return &Tuple{Names: c.Names, Cols: minCols}, &Tuple{Names: c.Names, Cols: maxCols}, true
}

// Const wraps a single value repeated for every logical row, the way
// a literal or a broadcast scalar appears in a Block. It carries one
// underlying single-row column plus a row count, so every operation
// that must materialize rows (InsertFrom, GetDataAt, CompareAt)
// defers to the wrapped column's row 0.
type Const struct {
	Value Column // always Size() == 1
	Rows  int
}

func NewConst(value Column, rows int) *Const {
	return &Const{Value: value, Rows: rows}
}

func (c *Const) Size() int     { return c.Rows }
func (c *Const) ByteSize() int { return c.Value.ByteSize() }

func (c *Const) GetDataAt(i int) []byte { return c.Value.GetDataAt(0) }

func (c *Const) InsertFrom(src Column, i int) error {
	s, ok := src.(*Const)
	if !ok {
		return &ErrWrongVariant{Op: "InsertFrom", Have: "column.Const", Want: "column.Const"}
	}
	_ = s
	c.Rows++
	return nil
}

func (c *Const) InsertDefault() { c.Rows++ }
func (c *Const) Reserve(int)    {}

func (c *Const) Cut(start, length int) Column {
	return &Const{Value: c.Value, Rows: length}
}

func (c *Const) Filter(mask []byte) Column {
	if len(mask) != c.Rows {
		panic(&ErrSizeMismatch{Op: "Filter", Got: len(mask), Want: c.Rows})
	}
	return &Const{Value: c.Value, Rows: popcount(mask)}
}

func (c *Const) Permute(perm []int, limit int) Column {
	return &Const{Value: c.Value, Rows: permuteLen(perm, limit)}
}

func (c *Const) Replicate(offsets []int) Column {
	total := 0
	if len(offsets) > 0 {
		total = offsets[len(offsets)-1]
	}
	return &Const{Value: c.Value, Rows: total}
}

func (c *Const) CompareAt(i int, other Column, j int, hint NaNDirection) int {
	o, ok := other.(*Const)
	if !ok {
		panic(&ErrWrongVariant{Op: "CompareAt", Have: "column.Const", Want: "column.Const"})
	}
	return c.Value.CompareAt(0, o.Value, 0, hint)
}

func (c *Const) GetPermutation(reverse bool, limit int) []int {
	n := permuteLen(make([]int, c.Rows), limit)
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	return perm
}

func (c *Const) GetExtremes() (min, max Column, ok bool) {
	if c.Rows == 0 {
		return nil, nil, false
	}
	return c.Value, c.Value, true
}
