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

package hashtable

type packed128 [16]byte

type cell128 struct {
	key   packed128
	state uint32
	used  bool
}

// Keys128 is the KEYS_128 method: all key columns are fixed-width and
// their total width is <= 16 bytes, so the whole key tuple is packed
// bytewise into one 128-bit word and compared/hashed as a unit.
type Keys128 struct {
	cells     []cell128
	n         int
	growth    GrowthPolicy
	zeroUsed  bool
	zeroState uint32
}

func NewKeys128(g GrowthPolicy) *Keys128 {
	if g.InitialSize == 0 {
		g = DefaultGrowth()
	}
	return &Keys128{cells: make([]cell128, nextPow2(g.InitialSize)), growth: g}
}

func pack128(key []byte) packed128 {
	var p packed128
	copy(p[:], key)
	return p
}

func (p packed128) isZero() bool {
	for _, b := range p {
		if b != 0 {
			return false
		}
	}
	return true
}

func (t *Keys128) index(p packed128) uint64 {
	lo, hi := hash128(p[:])
	_ = hi
	return lo & uint64(len(t.cells)-1)
}

func (t *Keys128) Find(key []byte) (uint32, bool) {
	p := pack128(key)
	if p.isZero() {
		return t.zeroState, t.zeroUsed
	}
	mask := uint64(len(t.cells) - 1)
	i := t.index(p)
	for {
		c := &t.cells[i]
		if !c.used {
			return 0, false
		}
		if c.key == p {
			return c.state, true
		}
		i = (i + 1) & mask
	}
}

func (t *Keys128) Insert(key []byte, state uint32, noMoreKeys bool) bool {
	p := pack128(key)
	if p.isZero() {
		if !t.zeroUsed {
			if noMoreKeys {
				return false
			}
			t.zeroUsed = true
			t.n++
		}
		t.zeroState = state
		return true
	}
	if !noMoreKeys && float64(t.n+1) > t.growth.MaxLoadFactor*float64(len(t.cells)) {
		t.grow()
	}
	mask := uint64(len(t.cells) - 1)
	i := t.index(p)
	for {
		c := &t.cells[i]
		if !c.used {
			if noMoreKeys {
				return false
			}
			c.key, c.state, c.used = p, state, true
			t.n++
			return true
		}
		if c.key == p {
			c.state = state
			return true
		}
		i = (i + 1) & mask
	}
}

func (t *Keys128) grow() {
	old := t.cells
	t.cells = make([]cell128, len(old)*2)
	mask := uint64(len(t.cells) - 1)
	for _, c := range old {
		if !c.used {
			continue
		}
		i := t.index(c.key)
		for t.cells[i].used {
			i = (i + 1) & mask
		}
		t.cells[i] = c
	}
}

func (t *Keys128) Len() int { return t.n }

func (t *Keys128) Each(fn func(key []byte, state uint32)) {
	if t.zeroUsed {
		var z packed128
		fn(z[:], t.zeroState)
	}
	for _, c := range t.cells {
		if c.used {
			fn(c.key[:], c.state)
		}
	}
}
