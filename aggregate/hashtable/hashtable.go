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

// Package hashtable implements the open-addressing hash tables used
// by the aggregation engine (package aggregate), parametrized by cell
// layout and key family ():
//
//   - Key64: single fixed-width integer key, width <= 8 bytes
//   - KeyString: single variable-length string key, arena-copied
//   - Keys128: all keys fixed-width, packed into one 128-bit word
//   - Hashed: fallback, 128-bit siphash of concatenated key bytes
//
// Every table reserves a dedicated zero-key slot: the open-addressing
// probe cannot otherwise distinguish "key equals the type's zero
// value" from "cell empty".
package hashtable

import (
	"github.com/dchest/siphash"
)

// the siphash key used to derive 128-bit hashes for variable-shaped
// keys (HASHED method) and for Keys128's probe start index. Fixed
// and unkeyed, using dchest/siphash with a
// static process-wide key (see vm/siphash_generic.go).
const (
	hashK0 = 0x9ae16a3b2f90404f
	hashK1 = 0xc2b2ae3d27d4eb4f
)

func hash128(b []byte) (lo, hi uint64) {
	return siphash.Hash128(hashK0, hashK1, b)
}

// GrowthPolicy controls when a table rehashes: capacity (always a
// power of two) doubles once the load factor would exceed
// MaxLoadFactor.
type GrowthPolicy struct {
	MaxLoadFactor float64
	InitialSize   int
}

func DefaultGrowth() GrowthPolicy {
	return GrowthPolicy{MaxLoadFactor: 0.75, InitialSize: 256}
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Table is the common contract every key-family table implements.
// State is an opaque arena offset (or index) the aggregator uses to
// locate the per-group aggregate-state block; Table never interprets
// it.
type Table interface {
	// Find probes for key, returning the associated state and
	// whether it was found. For Key64/Keys128, key encodes the
	// packed bits; for KeyString/Hashed, key is the raw key bytes.
	Find(key []byte) (state uint32, found bool)
	// Insert inserts key with the given state and returns ok=false
	// only if noMoreKeys is set and key was not already present
	// (the ANY overflow policy).
	Insert(key []byte, state uint32, noMoreKeys bool) (inserted bool)
	// Len returns the number of live groups.
	Len() int
	// Each calls fn once per (key, state) pair. Iteration order is
	// unspecified.
	Each(fn func(key []byte, state uint32))
}
