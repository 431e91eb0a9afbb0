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

import (
	"bytes"

	"github.com/coretool/columnar/arena"
)

type cellHashed struct {
	hashLo, hashHi uint64
	key            []byte // arena-owned, concatenation of all key columns
	state          uint32
	used           bool
}

// Hashed is the fallback method used when the key shape doesn't
// qualify for Key64, KeyString or Keys128: the concatenated key bytes
// are reduced to a 128-bit siphash, and full key bytes are kept
// (arena-copied) to resolve collisions, the same way
// radix64 fallback keeps the full key alongside a saved hash.
type Hashed struct {
	cells     []cellHashed
	n         int
	growth    GrowthPolicy
	arena     *arena.Arena
	zeroUsed  bool
	zeroState uint32
}

func NewHashed(a *arena.Arena, g GrowthPolicy) *Hashed {
	if g.InitialSize == 0 {
		g = DefaultGrowth()
	}
	return &Hashed{cells: make([]cellHashed, nextPow2(g.InitialSize)), growth: g, arena: a}
}

func (t *Hashed) Find(key []byte) (uint32, bool) {
	if len(key) == 0 {
		return t.zeroState, t.zeroUsed
	}
	lo, hi := hash128(key)
	mask := uint64(len(t.cells) - 1)
	i := lo & mask
	for {
		c := &t.cells[i]
		if !c.used {
			return 0, false
		}
		if c.hashLo == lo && c.hashHi == hi && bytes.Equal(c.key, key) {
			return c.state, true
		}
		i = (i + 1) & mask
	}
}

func (t *Hashed) Insert(key []byte, state uint32, noMoreKeys bool) bool {
	if len(key) == 0 {
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
	lo, hi := hash128(key)
	if !noMoreKeys && float64(t.n+1) > t.growth.MaxLoadFactor*float64(len(t.cells)) {
		t.grow()
	}
	mask := uint64(len(t.cells) - 1)
	i := lo & mask
	for {
		c := &t.cells[i]
		if !c.used {
			if noMoreKeys {
				return false
			}
			c.hashLo, c.hashHi = lo, hi
			c.key = t.arena.CopyBytes(key)
			c.state = state
			c.used = true
			t.n++
			return true
		}
		if c.hashLo == lo && c.hashHi == hi && bytes.Equal(c.key, key) {
			c.state = state
			return true
		}
		i = (i + 1) & mask
	}
}

func (t *Hashed) grow() {
	old := t.cells
	t.cells = make([]cellHashed, len(old)*2)
	mask := uint64(len(t.cells) - 1)
	for _, c := range old {
		if !c.used {
			continue
		}
		i := c.hashLo & mask
		for t.cells[i].used {
			i = (i + 1) & mask
		}
		t.cells[i] = c
	}
}

func (t *Hashed) Len() int { return t.n }

func (t *Hashed) Each(fn func(key []byte, state uint32)) {
	if t.zeroUsed {
		fn(nil, t.zeroState)
	}
	for _, c := range t.cells {
		if c.used {
			fn(c.key, c.state)
		}
	}
}

// WithoutKey is the WITHOUT_KEY method: a single state slot used for
// aggregation with zero group-by keys (e.g. plain `SELECT count(*)`).
type WithoutKey struct {
	state uint32
	used  bool
}

func NewWithoutKey() *WithoutKey { return &WithoutKey{} }

func (t *WithoutKey) Find([]byte) (uint32, bool) { return t.state, t.used }

func (t *WithoutKey) Insert(_ []byte, state uint32, noMoreKeys bool) bool {
	if !t.used {
		if noMoreKeys {
			return false
		}
		t.used = true
	}
	t.state = state
	return true
}

func (t *WithoutKey) Len() int {
	if t.used {
		return 1
	}
	return 0
}

func (t *WithoutKey) Each(fn func(key []byte, state uint32)) {
	if t.used {
		fn(nil, t.state)
	}
}
