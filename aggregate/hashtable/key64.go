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

import "encoding/binary"

type cell64 struct {
	key   uint64
	state uint32
	used  bool
}

// Key64 is the KEY_64 method: a single fixed-width integer key of
// width <= 8 bytes, packed into a uint64. Zero-key rows are held in
// a dedicated side slot (zeroState/zeroUsed) because an empty cell
// and a cell holding the zero key are otherwise indistinguishable.
type Key64 struct {
	cells    []cell64
	n        int
	growth   GrowthPolicy
	zeroUsed bool
	zeroState uint32
}

func NewKey64(g GrowthPolicy) *Key64 {
	if g.InitialSize == 0 {
		g = DefaultGrowth()
	}
	return &Key64{cells: make([]cell64, nextPow2(g.InitialSize)), growth: g}
}

func decodeKey64(key []byte) uint64 {
	var buf [8]byte
	copy(buf[:], key)
	return binary.LittleEndian.Uint64(buf[:])
}

func (t *Key64) mix(k uint64) uint64 {
	// splitmix64 finalizer, fast and good enough for an internal
	// open-addressing probe sequence.
	k ^= k >> 30
	k *= 0xbf58476d1ce4e5b9
	k ^= k >> 27
	k *= 0x94d049bb133111eb
	k ^= k >> 31
	return k
}

func (t *Key64) Find(key []byte) (uint32, bool) {
	k := decodeKey64(key)
	if k == 0 {
		return t.zeroState, t.zeroUsed
	}
	mask := uint64(len(t.cells) - 1)
	i := t.mix(k) & mask
	for {
		c := &t.cells[i]
		if !c.used {
			return 0, false
		}
		if c.key == k {
			return c.state, true
		}
		i = (i + 1) & mask
	}
}

func (t *Key64) Insert(key []byte, state uint32, noMoreKeys bool) bool {
	k := decodeKey64(key)
	if k == 0 {
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
	if float64(t.n+1) > t.growth.MaxLoadFactor*float64(len(t.cells)) {
		if noMoreKeys {
			// fall through: still allow probing the existing table
			// for an *existing* key below, per the ANY overflow policy.
		} else {
			t.grow()
		}
	}
	mask := uint64(len(t.cells) - 1)
	i := t.mix(k) & mask
	for {
		c := &t.cells[i]
		if !c.used {
			if noMoreKeys {
				return false
			}
			c.key, c.state, c.used = k, state, true
			t.n++
			return true
		}
		if c.key == k {
			c.state = state
			return true
		}
		i = (i + 1) & mask
	}
}

func (t *Key64) grow() {
	old := t.cells
	t.cells = make([]cell64, len(old)*2)
	mask := uint64(len(t.cells) - 1)
	for _, c := range old {
		if !c.used {
			continue
		}
		i := t.mix(c.key) & mask
		for t.cells[i].used {
			i = (i + 1) & mask
		}
		t.cells[i] = c
	}
}

func (t *Key64) Len() int { return t.n }

func (t *Key64) Each(fn func(key []byte, state uint32)) {
	if t.zeroUsed {
		var buf [8]byte
		fn(buf[:], t.zeroState)
	}
	for _, c := range t.cells {
		if c.used {
			var buf [8]byte
			binary.LittleEndian.PutUint64(buf[:], c.key)
			fn(buf[:], c.state)
		}
	}
}
