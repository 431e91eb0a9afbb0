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

// Package block implements Block, the ordered (name, type, column)
// triple that flows between pipeline stages. Blocks are the unit of
// scheduling: every source produces blocks, every sink consumes them,
// and an empty block is the end-of-stream sentinel (see package
// stream).
package block

import (
	"fmt"

	"github.com/coretool/columnar/column"
)

// Type is the logical element type of a column, independent of its
// physical representation.
type Type int

const (
	TypeInt64 Type = iota
	TypeFloat64
	TypeString
	TypeFixedString
	TypeArray
	TypeTuple
	TypeBool
)

func (t Type) String() string {
	switch t {
	case TypeInt64:
		return "Int64"
	case TypeFloat64:
		return "Float64"
	case TypeString:
		return "String"
	case TypeFixedString:
		return "FixedString"
	case TypeArray:
		return "Array"
	case TypeTuple:
		return "Tuple"
	case TypeBool:
		return "Bool"
	default:
		return "Unknown"
	}
}

// IndexOf returns the position of name within b.Fields, or -1.
func (b *Block) IndexOf(name string) int {
	for i, f := range b.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Field describes one named column within a Block. Column order is
// preserved because some operators (PREWHERE re-ordering, positional
// tuple access) key by position, not just name.
type Field struct {
	Name   string
	Type   Type
	Column column.Column
}

// Block is a mapping from column name to (type, column), all sharing
// one logical row count. An empty Block (zero fields, or fields of
// Size() == 0 — by convention the latter is how sources construct it)
// is the end-of-stream sentinel; see stream.Source.
type Block struct {
	Fields []Field
}

// Empty reports whether b carries zero rows, regardless of how many
// (possibly zero-length) field columns it declares.
func (b *Block) Empty() bool {
	return b.Rows() == 0
}

// Rows returns the shared row count, or 0 for a Block with no fields.
func (b *Block) Rows() int {
	if len(b.Fields) == 0 {
		return 0
	}
	return b.Fields[0].Column.Size()
}

// ByteSize sums the approximate memory footprint of every field.
func (b *Block) ByteSize() int {
	n := 0
	for _, f := range b.Fields {
		n += f.Column.ByteSize()
	}
	return n
}

// Find returns the column named name, or ok=false if absent. Blocks
// never carry duplicate names; the invariant is enforced by Validate.
func (b *Block) Find(name string) (Field, bool) {
	for _, f := range b.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Validate checks the Block invariants: unique names, and every
// column sharing the block's row count.
func (b *Block) Validate() error {
	rows := b.Rows()
	seen := make(map[string]struct{}, len(b.Fields))
	for _, f := range b.Fields {
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("block: duplicate column name %q", f.Name)
		}
		seen[f.Name] = struct{}{}
		if f.Column.Size() != rows {
			return fmt.Errorf("block: column %q has %d rows, want %d", f.Name, f.Column.Size(), rows)
		}
	}
	return nil
}

// Filter applies mask (length == Rows()) to every field and returns a
// new Block of popcount(mask) rows.
func (b *Block) Filter(mask []byte) *Block {
	out := &Block{Fields: make([]Field, len(b.Fields))}
	for i, f := range b.Fields {
		out.Fields[i] = Field{Name: f.Name, Type: f.Type, Column: f.Column.Filter(mask)}
	}
	return out
}

// Permute reorders every field's rows by perm, truncated to limit
// (0 means no truncation).
func (b *Block) Permute(perm []int, limit int) *Block {
	out := &Block{Fields: make([]Field, len(b.Fields))}
	for i, f := range b.Fields {
		out.Fields[i] = Field{Name: f.Name, Type: f.Type, Column: f.Column.Permute(perm, limit)}
	}
	return out
}

// Cut returns the row range [start, start+length) of every field.
func (b *Block) Cut(start, length int) *Block {
	out := &Block{Fields: make([]Field, len(b.Fields))}
	for i, f := range b.Fields {
		out.Fields[i] = Field{Name: f.Name, Type: f.Type, Column: f.Column.Cut(start, length)}
	}
	return out
}

// Project returns a new Block retaining only the named columns, in
// the order requested.
func (b *Block) Project(names []string) (*Block, error) {
	out := &Block{Fields: make([]Field, 0, len(names))}
	for _, name := range names {
		f, ok := b.Find(name)
		if !ok {
			return nil, fmt.Errorf("block: unknown column %q", name)
		}
		out.Fields = append(out.Fields, f)
	}
	return out, nil
}
