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

package aggregate

import (
	"encoding/binary"
	"math"

	"github.com/coretool/columnar/arena"
	"github.com/coretool/columnar/column"
)

// Count implements count(*) / count(col): an 8-byte running total.
type Count struct{ name string }

func NewCount(name string) *Count { return &Count{name: name} }

func (c *Count) Name() string    { return c.name }
func (c *Count) StateSize() int  { return 8 }
func (c *Count) Trivial() bool   { return true }
func (c *Count) Init(s []byte)   { binary.LittleEndian.PutUint64(s, 0) }

func (c *Count) Update(s []byte, src column.Column, i int, _ *arena.Arena) {
	n := binary.LittleEndian.Uint64(s)
	binary.LittleEndian.PutUint64(s, n+1)
}

func (c *Count) Merge(dst, src []byte) {
	a := binary.LittleEndian.Uint64(dst)
	b := binary.LittleEndian.Uint64(src)
	binary.LittleEndian.PutUint64(dst, a+b)
}

func (c *Count) Finalize(states [][]byte) column.Column {
	out := column.NewNumeric[int64](len(states))
	for _, s := range states {
		out.Values = append(out.Values, int64(binary.LittleEndian.Uint64(s)))
	}
	return out
}

// SumFloat64 implements sum(col) over a Float64 column using
// Kahan-Babushka-Neumaier compensated summation, grounded on the
// teacher's vm.aggregateOpSumF state layout (sum, compensation,
// count packed per-lane; here collapsed to the scalar case since
// this package has no SIMD lanes of its own).
type SumFloat64 struct{ name string }

func NewSumFloat64(name string) *SumFloat64 { return &SumFloat64{name: name} }

func (s *SumFloat64) Name() string   { return s.name }
func (s *SumFloat64) StateSize() int { return 24 } // sum, compensation, count
func (s *SumFloat64) Trivial() bool  { return true }

func (s *SumFloat64) Init(state []byte) {
	for i := range state {
		state[i] = 0
	}
}

func (s *SumFloat64) load(state []byte) (sum, comp float64, count uint64) {
	sum = math.Float64frombits(binary.LittleEndian.Uint64(state[0:8]))
	comp = math.Float64frombits(binary.LittleEndian.Uint64(state[8:16]))
	count = binary.LittleEndian.Uint64(state[16:24])
	return
}

func (s *SumFloat64) store(state []byte, sum, comp float64, count uint64) {
	binary.LittleEndian.PutUint64(state[0:8], math.Float64bits(sum))
	binary.LittleEndian.PutUint64(state[8:16], math.Float64bits(comp))
	binary.LittleEndian.PutUint64(state[16:24], count)
}

func neumaier(sum, x, c float64) (newsum, newc float64) {
	t := sum + x
	if math.Abs(sum) >= math.Abs(x) {
		c += (sum - t) + x
	} else {
		c += (x - t) + sum
	}
	return t, c
}

func (s *SumFloat64) Update(state []byte, src column.Column, i int, _ *arena.Arena) {
	num, ok := src.(*column.Numeric[float64])
	if !ok {
		return
	}
	sum, comp, count := s.load(state)
	sum, comp = neumaier(sum, num.Values[i], comp)
	s.store(state, sum, comp, count+1)
}

func (s *SumFloat64) Merge(dst, src []byte) {
	dSum, dComp, dCount := s.load(dst)
	sSum, sComp, sCount := s.load(src)
	sum, comp := neumaier(dSum, sSum, dComp+sComp)
	s.store(dst, sum, comp, dCount+sCount)
}

func (s *SumFloat64) Finalize(states [][]byte) column.Column {
	out := column.NewNumeric[float64](len(states))
	for _, st := range states {
		sum, comp, _ := s.load(st)
		out.Values = append(out.Values, sum+comp)
	}
	return out
}

// MinMax implements both min(col) and max(col) over Int64 columns,
// selected by the wantMax flag.
type MinMax struct {
	name    string
	wantMax bool
}

func NewMin(name string) *MinMax { return &MinMax{name: name} }
func NewMax(name string) *MinMax { return &MinMax{name: name, wantMax: true} }

func (m *MinMax) Name() string   { return m.name }
func (m *MinMax) StateSize() int { return 9 } // 8 bytes value + 1 byte "has value"
func (m *MinMax) Trivial() bool  { return true }

func (m *MinMax) Init(state []byte) {
	for i := range state {
		state[i] = 0
	}
}

func (m *MinMax) Update(state []byte, src column.Column, i int, _ *arena.Arena) {
	num, ok := src.(*column.Numeric[int64])
	if !ok {
		return
	}
	v := num.Values[i]
	if state[8] == 0 {
		binary.LittleEndian.PutUint64(state[:8], uint64(v))
		state[8] = 1
		return
	}
	cur := int64(binary.LittleEndian.Uint64(state[:8]))
	if (m.wantMax && v > cur) || (!m.wantMax && v < cur) {
		binary.LittleEndian.PutUint64(state[:8], uint64(v))
	}
}

func (m *MinMax) Merge(dst, src []byte) {
	if src[8] == 0 {
		return
	}
	if dst[8] == 0 {
		copy(dst, src)
		return
	}
	d := int64(binary.LittleEndian.Uint64(dst[:8]))
	s := int64(binary.LittleEndian.Uint64(src[:8]))
	if (m.wantMax && s > d) || (!m.wantMax && s < d) {
		binary.LittleEndian.PutUint64(dst[:8], uint64(s))
	}
}

func (m *MinMax) Finalize(states [][]byte) column.Column {
	out := column.NewNumeric[int64](len(states))
	for _, st := range states {
		out.Values = append(out.Values, int64(binary.LittleEndian.Uint64(st[:8])))
	}
	return out
}
