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

// Package aggregate implements the multi-method group-by operator: it
// selects among the hashtable package's specialized layouts by key
// shape, manages aggregate-state memory in an arena, and supports
// two-phase (partial + merge) aggregation.
package aggregate

import (
	"fmt"

	"github.com/coretool/columnar/arena"
	"github.com/coretool/columnar/block"
	"github.com/coretool/columnar/column"
	"github.com/coretool/columnar/aggregate/hashtable"
)

// Func is one aggregate function (sum, count, min, max, ...). State
// is a fixed-size byte blob living at a precomputed offset inside the
// per-group state block; Func never allocates it.
type Func interface {
	// Name identifies the function, e.g. "sum", "count".
	Name() string
	// StateSize is the fixed number of bytes this function's state
	// occupies.
	StateSize() int
	// Init zero-initializes a freshly created state.
	Init(state []byte)
	// Update folds row i of src into state. Non-trivial states
	// (e.g. holding a string) may allocate from a to extend their
	// payload; trivial states never touch a.
	Update(state []byte, src column.Column, i int, a *arena.Arena)
	// Merge combines src into dst (both already Init'd), the
	// associative step used by two-phase aggregation.
	Merge(dst, src []byte)
	// Finalize produces the externally visible result column for
	// the given list of per-group states (one row per group).
	Finalize(states [][]byte) column.Column
	// Trivial reports whether State requires no destruction beyond
	// the arena being reset (i.e. never embeds an external resource
	// outside the arena's ownership).
	Trivial() bool
}

// Overflow is the overflow-mode policy applied when
// max_rows_to_group_by is exceeded.
type Overflow int

const (
	OverflowThrow Overflow = iota
	OverflowBreak
	OverflowAny
)

// Config configures one Aggregator instance.
type Config struct {
	Keys       []hashtable.KeyColumn
	Funcs      []Func
	MaxRows    int // max_rows_to_group_by; 0 means unlimited
	Overflow   Overflow
	KeepOverflowRows bool // overflow-row accumulator under ANY
}

// layout precomputes each function's byte offset within the shared
// per-group state block.
type layout struct {
	offsets []int
	size    int
}

func buildLayout(funcs []Func) layout {
	l := layout{offsets: make([]int, len(funcs))}
	off := 0
	for i, f := range funcs {
		l.offsets[i] = off
		off += f.StateSize()
	}
	l.size = off
	return l
}

// ErrTooManyGroups is returned under OverflowThrow when MaxRows is
// exceeded. OverflowBreak does not use it: it sets Aggregator.Break
// and returns nil instead.
type ErrTooManyGroups struct{ Limit int }

func (e *ErrTooManyGroups) Error() string {
	return fmt.Sprintf("aggregate: exceeded max_rows_to_group_by=%d", e.Limit)
}

// Aggregator is the multi-method group-by operator.
type Aggregator struct {
	cfg     Config
	method  hashtable.Method
	table   hashtable.Table
	arena   *arena.Arena
	layout  layout
	states  [][]byte // index == insertion order; state slot per group
	keyCols []column.Column
	noMoreKeys bool
	overflowRows int
	// Break is set when OverflowBreak has fired; callers of
	// executeOnBlock should stop feeding rows and finish the stream.
	Break bool
}

// New constructs an Aggregator. keyCols holds one empty column per
// group-by key (used to materialize keys in convertToBlock), in the
// same order as cfg.Keys.
func New(cfg Config, keyCols []column.Column, a *arena.Arena) *Aggregator {
	if a == nil {
		a = arena.New(0)
	}
	method := hashtable.SelectMethod(cfg.Keys)
	return &Aggregator{
		cfg:     cfg,
		method:  method,
		table:   hashtable.New(method, a, hashtable.DefaultGrowth()),
		arena:   a,
		layout:  buildLayout(cfg.Funcs),
		keyCols: keyCols,
	}
}

// Method reports the hash method selected for this aggregator's key
// shape.
func (g *Aggregator) Method() hashtable.Method { return g.method }

// encodeKey packs one row's key columns into the byte form the
// selected hashtable.Method expects (raw concatenation; Key64/Keys128
// reinterpret the low bytes, KeyString/Hashed use it verbatim).
func encodeKey(cols []column.Column, row int, buf []byte) []byte {
	buf = buf[:0]
	for _, c := range cols {
		buf = append(buf, c.GetDataAt(row)...)
	}
	return buf
}

// ExecuteOnBlock folds rows rows worth of keyColsIn/valueCols into the
// aggregator's groups. keyColsIn must align positionally with
// g.cfg.Keys, and valueCols must align positionally with g.cfg.Funcs
// (each Func reads the column the caller resolved for it, e.g. by
// name, ahead of time -- this package has no expression layer of its
// own). Returns an error only under OverflowThrow; sets g.Break under
// OverflowBreak.
func (g *Aggregator) ExecuteOnBlock(keyColsIn, valueCols []column.Column, rows int) error {
	var keybuf []byte
	for i := 0; i < rows; i++ {
		keybuf = encodeKey(keyColsIn, i, keybuf)
		state, found := g.table.Find(keybuf)
		if !found {
			if g.cfg.MaxRows > 0 && g.table.Len() >= g.cfg.MaxRows {
				switch g.cfg.Overflow {
				case OverflowThrow:
					return &ErrTooManyGroups{Limit: g.cfg.MaxRows}
				case OverflowBreak:
					g.Break = true
					return nil
				case OverflowAny:
					g.noMoreKeys = true
					if g.cfg.KeepOverflowRows {
						g.overflowRows++
					}
					continue
				}
			}
			block := g.arena.Alloc(g.layout.size)
			for fi, f := range g.cfg.Funcs {
				f.Init(block[g.layout.offsets[fi]:])
			}
			idx := len(g.states)
			g.states = append(g.states, block)
			state = uint32(idx)
			if !g.table.Insert(keybuf, state, g.noMoreKeys) {
				// ANY mode: table refused a brand-new key once
				// no_more_keys flipped mid-batch.
				g.states = g.states[:idx]
				if g.cfg.KeepOverflowRows {
					g.overflowRows++
				}
				continue
			}
			for ki, kc := range g.keyCols {
				if err := kc.InsertFrom(keyColsIn[ki], i); err != nil {
					return err
				}
			}
		}
		st := g.states[state]
		for fi, f := range g.cfg.Funcs {
			var src column.Column
			if fi < len(valueCols) {
				src = valueCols[fi]
			}
			f.Update(st[g.layout.offsets[fi]:g.layout.offsets[fi]+f.StateSize()], src, i, g.arena)
		}
	}
	return nil
}

// ConvertToBlock materializes one result row per group.
// final=true finalizes every function's state and releases the
// arena afterward; final=false emits an opaque state column that
// co-owns the arena (via Pin) for a later Merge call.
func (g *Aggregator) ConvertToBlock(final bool) (*block.Block, error) {
	n := g.table.Len()
	_ = n
	out := &block.Block{}
	for i, kc := range g.keyCols {
		name := fmt.Sprintf("key%d", i)
		out.Fields = append(out.Fields, block.Field{Name: name, Column: kc})
	}
	for fi, f := range g.cfg.Funcs {
		if final {
			states := make([][]byte, len(g.states))
			for i, st := range g.states {
				states[i] = st[g.layout.offsets[fi] : g.layout.offsets[fi]+f.StateSize()]
			}
			out.Fields = append(out.Fields, block.Field{Name: f.Name(), Column: f.Finalize(states)})
		} else {
			g.arena.Pin()
			out.Fields = append(out.Fields, block.Field{
				Name:   f.Name() + "$state",
				Column: newStateColumn(g.states, g.layout.offsets[fi], f.StateSize(), g.arena),
			})
		}
	}
	if final {
		g.arena.Unpin()
	}
	return out, nil
}

// Merge implements the coordinator side of two-phase aggregation: for
// each incoming partially-aggregated row, the key is looked up/inserted
// in this aggregator's table; on collision each function's Merge
// combines the two states, and on fresh insertion the source's state
// bytes are copied into this aggregator's arena.
func (g *Aggregator) Merge(keyColsIn []column.Column, stateCols []*StateColumn) error {
	if len(stateCols) != len(g.cfg.Funcs) {
		return fmt.Errorf("aggregate: Merge: got %d state columns, want %d", len(stateCols), len(g.cfg.Funcs))
	}
	rows := 0
	if len(keyColsIn) > 0 {
		rows = keyColsIn[0].Size()
	} else if len(stateCols) > 0 {
		rows = stateCols[0].Size()
	}
	var keybuf []byte
	for i := 0; i < rows; i++ {
		keybuf = encodeKey(keyColsIn, i, keybuf)
		state, found := g.table.Find(keybuf)
		if !found {
			blk := g.arena.Alloc(g.layout.size)
			for fi, f := range g.cfg.Funcs {
				dst := blk[g.layout.offsets[fi] : g.layout.offsets[fi]+f.StateSize()]
				copy(dst, stateCols[fi].stateAt(i))
			}
			idx := len(g.states)
			g.states = append(g.states, blk)
			state = uint32(idx)
			g.table.Insert(keybuf, state, false)
			for ki, kc := range g.keyCols {
				if err := kc.InsertFrom(keyColsIn[ki], i); err != nil {
					return err
				}
			}
			continue
		}
		st := g.states[state]
		for fi, f := range g.cfg.Funcs {
			dst := st[g.layout.offsets[fi] : g.layout.offsets[fi]+f.StateSize()]
			f.Merge(dst, stateCols[fi].stateAt(i))
		}
	}
	return nil
}

// OverflowRows reports how many rows went to the overflow-row
// accumulator (ANY mode with KeepOverflowRows) after no_more_keys
// flipped. Without KeepOverflowRows unmatched rows are dropped
// uncounted and this stays 0.
func (g *Aggregator) OverflowRows() int { return g.overflowRows }
