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

package mtree

import (
	"fmt"
	"sync"

	"github.com/coretool/columnar/block"
	"github.com/coretool/columnar/column"
)

// newColumnOfType constructs an empty column of the concrete type that
// backs t, used to materialize a newly ADDed column's default values
//. Array/Tuple need an element schema ALTER does not
// carry here, so they are rejected explicitly rather than silently
// mishandled.
func newColumnOfType(t block.Type) column.Column {
	switch t {
	case block.TypeInt64:
		return column.NewNumeric[int64](0)
	case block.TypeFloat64:
		return column.NewNumeric[float64](0)
	case block.TypeBool:
		return column.NewNumeric[int8](0)
	case block.TypeString:
		return column.NewString()
	case block.TypeFixedString:
		return column.NewFixedString(0)
	default:
		panic(fmt.Sprintf("mtree: ALTER ADD COLUMN: unsupported type %s", t))
	}
}

// AlterOp is one step of an ALTER TABLE-style schema change applied to
// every part: add a new column (materialized with its default value)
// or drop an existing one.
type AlterOp struct {
	AddColumn  string
	AddType    block.Type
	DropColumn string
}

// Columns guards the set of columns every part is expected to carry.
// An AlterDataPartTransaction takes its write lock only for the
// instant it swaps in the new schema; the part rewrites before that
// run outside this lock.
type Columns struct {
	mu    sync.RWMutex
	names []string
	types map[string]block.Type
}

// NewColumns seeds the table's starting schema.
func NewColumns(b *block.Block) *Columns {
	c := &Columns{types: make(map[string]block.Type, len(b.Fields))}
	for _, f := range b.Fields {
		c.names = append(c.names, f.Name)
		c.types[f.Name] = f.Type
	}
	return c
}

// RLock/RUnlock let a writer read the current schema while shaping a
// block for Insert, without blocking concurrent readers of the schema.
func (c *Columns) RLock()   { c.mu.RLock() }
func (c *Columns) RUnlock() { c.mu.RUnlock() }

// Snapshot returns the current column list under a read lock.
func (c *Columns) Snapshot() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string{}, c.names...)
}

// AlterDataPartTransaction rewrites every part in parts to match a new
// schema, one part at a time, so a crash partway through leaves a
// mix of old- and new-schema parts rather than a half-written part
//. It holds alter_mutex for its entire duration,
// serializing against any other concurrent ALTER, and takes
// columns_lock only for the instant it swaps in the new schema so
// in-flight inserts observe either the whole old schema or the whole
// new one.
type AlterDataPartTransaction struct {
	alterMu sync.Mutex

	cols   *Columns
	parts  *PartSet
	writer *Writer
}

// NewAlterDataPartTransaction binds an alter transaction to a table's
// schema, part set and writer (the writer supplies Dir/Compressor/
// Granularity for rewritten parts).
func NewAlterDataPartTransaction(cols *Columns, parts *PartSet, writer *Writer) *AlterDataPartTransaction {
	return &AlterDataPartTransaction{cols: cols, parts: parts, writer: writer}
}

// Apply rewrites every currently-active part to carry op's column
// change, replacing each input part with exactly one output part via
// PartSet.ReplaceParts (so readers never observe a part missing the
// new column without also seeing it disappear from the active set).
func (t *AlterDataPartTransaction) Apply(op AlterOp) error {
	t.alterMu.Lock()
	defer t.alterMu.Unlock()

	active := t.parts.Active()
	defer ReleaseSnapshot(active)

	for _, p := range active {
		r, err := OpenPartReader(p.Dir)
		if err != nil {
			return err
		}
		b, err := r.ReadBlock()
		if err != nil {
			return err
		}
		rewritten, err := applyAlterOp(b, op)
		if err != nil {
			return fmt.Errorf("mtree: alter: part %s: %w", p.Name(), err)
		}
		out, err := t.writer.writeMergedPart([]*Part{p}, rewritten, p.Level)
		if err != nil {
			return err
		}
		if err := t.parts.ReplaceParts([]*Part{p}, []*Part{out}); err != nil {
			return err
		}
	}

	t.cols.mu.Lock()
	applyColumnsOp(t.cols, op)
	t.cols.mu.Unlock()
	return nil
}

func applyColumnsOp(c *Columns, op AlterOp) {
	if op.AddColumn != "" {
		c.names = append(c.names, op.AddColumn)
		c.types[op.AddColumn] = op.AddType
	}
	if op.DropColumn != "" {
		for i, n := range c.names {
			if n == op.DropColumn {
				c.names = append(c.names[:i], c.names[i+1:]...)
				break
			}
		}
		delete(c.types, op.DropColumn)
	}
}

func applyAlterOp(b *block.Block, op AlterOp) (*block.Block, error) {
	out := &block.Block{Fields: append([]block.Field{}, b.Fields...)}
	if op.AddColumn != "" {
		col := newColumnOfType(op.AddType)
		rows := b.Rows()
		for i := 0; i < rows; i++ {
			col.InsertDefault()
		}
		out.Fields = append(out.Fields, block.Field{Name: op.AddColumn, Type: op.AddType, Column: col})
	}
	if op.DropColumn != "" {
		idx := out.IndexOf(op.DropColumn)
		if idx < 0 {
			return nil, fmt.Errorf("column %q not present", op.DropColumn)
		}
		out.Fields = append(out.Fields[:idx], out.Fields[idx+1:]...)
	}
	return out, nil
}
