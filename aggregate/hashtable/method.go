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

import "github.com/coretool/columnar/arena"

// Method names the hash layout chosen for a particular key shape; see
// the method-selection table below.
type Method int

const (
	WithoutKeyMethod Method = iota
	Key64Method
	KeyStringMethod
	KeyFixedStringMethod
	Keys128Method
	HashedMethod
)

func (m Method) String() string {
	switch m {
	case WithoutKeyMethod:
		return "WITHOUT_KEY"
	case Key64Method:
		return "KEY_64"
	case KeyStringMethod:
		return "KEY_STRING"
	case KeyFixedStringMethod:
		return "KEY_FIXED_STRING"
	case Keys128Method:
		return "KEYS_128"
	case HashedMethod:
		return "HASHED"
	default:
		return "UNKNOWN"
	}
}

// KeyColumn describes one group-by key column's shape, enough
// information to run the method-selection table without looking at
// any actual data.
type KeyColumn struct {
	FixedWidth int  // 0 if variable-length
	IsString   bool // string-family (variable or fixed-width string)
}

// SelectMethod implements the method-selection table below.
func SelectMethod(keys []KeyColumn) Method {
	switch len(keys) {
	case 0:
		return WithoutKeyMethod
	case 1:
		k := keys[0]
		switch {
		case !k.IsString && k.FixedWidth > 0 && k.FixedWidth <= 8:
			return Key64Method
		case k.IsString && k.FixedWidth == 0:
			return KeyStringMethod
		case k.IsString && k.FixedWidth > 0:
			return KeyFixedStringMethod
		}
	}
	total := 0
	allFixed := true
	for _, k := range keys {
		if k.FixedWidth == 0 {
			allFixed = false
			break
		}
		total += k.FixedWidth
	}
	if allFixed && total <= 16 {
		return Keys128Method
	}
	return HashedMethod
}

// New constructs the Table implementation for the given method.
// a is the arena backing arena-copied keys (KeyString/KeyFixedString/
// Hashed); it may be nil for WithoutKey/Key64/Keys128, which never
// copy key bytes.
func New(m Method, a *arena.Arena, g GrowthPolicy) Table {
	switch m {
	case WithoutKeyMethod:
		return NewWithoutKey()
	case Key64Method:
		return NewKey64(g)
	case KeyStringMethod, KeyFixedStringMethod:
		return NewKeyString(a, g)
	case Keys128Method:
		return NewKeys128(g)
	case HashedMethod:
		return NewHashed(a, g)
	default:
		panic("hashtable: unknown method")
	}
}
