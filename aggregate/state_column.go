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
	"fmt"

	"github.com/coretool/columnar/arena"
	"github.com/coretool/columnar/column"
)

// StateColumn is the "aggregate-function column" concept: the
// Ownership paragraph: it holds one opaque aggregate-state slice per
// group and co-owns the Arena those slices live in via Pin/Unpin, so
// the column can outlive the Aggregator that produced it (final=false,
// used for distributed merge).
type StateColumn struct {
	states []([]byte)
	offset int
	size   int
	owner  *arena.Arena
}

func newStateColumn(states [][]byte, offset, size int, owner *arena.Arena) *StateColumn {
	return &StateColumn{states: states, offset: offset, size: size, owner: owner}
}

func (s *StateColumn) stateAt(i int) []byte {
	return s.states[i][s.offset : s.offset+s.size]
}

func (s *StateColumn) Size() int     { return len(s.states) }
func (s *StateColumn) ByteSize() int { return len(s.states) * s.size }

func (s *StateColumn) GetDataAt(i int) []byte { return s.stateAt(i) }

func (s *StateColumn) InsertFrom(src column.Column, i int) error {
	o, ok := src.(*StateColumn)
	if !ok {
		return fmt.Errorf("aggregate: StateColumn.InsertFrom: wrong column type")
	}
	s.states = append(s.states, o.states[i])
	return nil
}

func (s *StateColumn) InsertDefault() {
	panic("aggregate: StateColumn has no default state")
}

func (s *StateColumn) Reserve(n int) {
	if cap(s.states)-len(s.states) < n {
		grown := make([][]byte, len(s.states), len(s.states)+n)
		copy(grown, s.states)
		s.states = grown
	}
}

func (s *StateColumn) Cut(start, length int) column.Column {
	out := make([][]byte, length)
	copy(out, s.states[start:start+length])
	return &StateColumn{states: out, offset: s.offset, size: s.size, owner: s.owner}
}

func (s *StateColumn) Filter(mask []byte) column.Column {
	out := make([][]byte, 0, len(s.states))
	for i, m := range mask {
		if m != 0 {
			out = append(out, s.states[i])
		}
	}
	return &StateColumn{states: out, offset: s.offset, size: s.size, owner: s.owner}
}

func (s *StateColumn) Permute(perm []int, limit int) column.Column {
	n := len(perm)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([][]byte, n)
	for i := 0; i < n; i++ {
		out[i] = s.states[perm[i]]
	}
	return &StateColumn{states: out, offset: s.offset, size: s.size, owner: s.owner}
}

func (s *StateColumn) Replicate(offsets []int) column.Column {
	total := 0
	if len(offsets) > 0 {
		total = offsets[len(offsets)-1]
	}
	out := make([][]byte, 0, total)
	prev := 0
	for i, off := range offsets {
		for k := prev; k < off; k++ {
			out = append(out, s.states[i])
		}
		prev = off
	}
	return &StateColumn{states: out, offset: s.offset, size: s.size, owner: s.owner}
}

// CompareAt is not meaningful for opaque state blobs; states are
// never sorted, only merged by key.
func (s *StateColumn) CompareAt(i int, other column.Column, j int, _ column.NaNDirection) int {
	panic("aggregate: StateColumn is not comparable")
}

func (s *StateColumn) GetPermutation(reverse bool, limit int) []int {
	panic("aggregate: StateColumn is not sortable")
}

func (s *StateColumn) GetExtremes() (min, max column.Column, ok bool) {
	return nil, nil, false
}

// Release unpins the backing arena once the caller (typically the
// distributed-merge coordinator) is done reading every state.
func (s *StateColumn) Release() { s.owner.Unpin() }
