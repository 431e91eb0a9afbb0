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

type cellString struct {
	hash  uint64
	key   []byte // arena-owned
	state uint32
	used  bool
}

// KeyString is the KEY_STRING method: a single variable-length string
// key, copied once into the owning Arena on first insertion so the
// table never pins caller-owned memory. Cells save their hash to
// avoid rehashing the key bytes on grow.
type KeyString struct {
	cells     []cellString
	n         int
	growth    GrowthPolicy
	arena     *arena.Arena
	zeroUsed  bool
	zeroState uint32
}

func NewKeyString(a *arena.Arena, g GrowthPolicy) *KeyString {
	if g.InitialSize == 0 {
		g = DefaultGrowth()
	}
	return &KeyString{cells: make([]cellString, nextPow2(g.InitialSize)), growth: g, arena: a}
}

func (t *KeyString) Find(key []byte) (uint32, bool) {
	if len(key) == 0 {
		return t.zeroState, t.zeroUsed
	}
	h, _ := hash128(key)
	mask := uint64(len(t.cells) - 1)
	i := h & mask
	for {
		c := &t.cells[i]
		if !c.used {
			return 0, false
		}
		if c.hash == h && bytes.Equal(c.key, key) {
			return c.state, true
		}
		i = (i + 1) & mask
	}
}

func (t *KeyString) Insert(key []byte, state uint32, noMoreKeys bool) bool {
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
	h, _ := hash128(key)
	if !noMoreKeys && float64(t.n+1) > t.growth.MaxLoadFactor*float64(len(t.cells)) {
		t.grow()
	}
	mask := uint64(len(t.cells) - 1)
	i := h & mask
	for {
		c := &t.cells[i]
		if !c.used {
			if noMoreKeys {
				return false
			}
			c.hash = h
			c.key = t.arena.CopyBytes(key)
			c.state = state
			c.used = true
			t.n++
			return true
		}
		if c.hash == h && bytes.Equal(c.key, key) {
			c.state = state
			return true
		}
		i = (i + 1) & mask
	}
}

func (t *KeyString) grow() {
	old := t.cells
	t.cells = make([]cellString, len(old)*2)
	mask := uint64(len(t.cells) - 1)
	for _, c := range old {
		if !c.used {
			continue
		}
		i := c.hash & mask
		for t.cells[i].used {
			i = (i + 1) & mask
		}
		t.cells[i] = c
	}
}

func (t *KeyString) Len() int { return t.n }

func (t *KeyString) Each(fn func(key []byte, state uint32)) {
	if t.zeroUsed {
		fn(nil, t.zeroState)
	}
	for _, c := range t.cells {
		if c.used {
			fn(c.key, c.state)
		}
	}
}
