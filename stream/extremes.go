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

package stream

import (
	"github.com/coretool/columnar/block"
	"github.com/coretool/columnar/column"
)

// Extremes accumulates a running 2-row (min, max) block across every
// block observed by a Profiled source
type Extremes struct {
	min, max *block.Block
}

// Update folds b's per-column extremes into the running totals.
func (e *Extremes) Update(b *block.Block) {
	if e.min == nil {
		e.min = &block.Block{Fields: make([]block.Field, len(b.Fields))}
		e.max = &block.Block{Fields: make([]block.Field, len(b.Fields))}
		for i, f := range b.Fields {
			mn, mx, ok := f.Column.GetExtremes()
			if !ok {
				continue
			}
			e.min.Fields[i] = block.Field{Name: f.Name, Type: f.Type, Column: mn}
			e.max.Fields[i] = block.Field{Name: f.Name, Type: f.Type, Column: mx}
		}
		return
	}
	for i, f := range b.Fields {
		mn, mx, ok := f.Column.GetExtremes()
		if !ok {
			continue
		}
		if e.min.Fields[i].Column == nil || mn.CompareAt(0, e.min.Fields[i].Column, 0, column.NaNLast) < 0 {
			e.min.Fields[i] = block.Field{Name: f.Name, Type: f.Type, Column: mn}
		}
		if e.max.Fields[i].Column == nil || mx.CompareAt(0, e.max.Fields[i].Column, 0, column.NaNLast) > 0 {
			e.max.Fields[i] = block.Field{Name: f.Name, Type: f.Type, Column: mx}
		}
	}
}

// Block returns the 2-row result: row 0 minima, row 1 maxima, merged
// field-by-field into a single Block by concatenation.
func (e *Extremes) Block() *block.Block {
	if e.min == nil {
		return &block.Block{}
	}
	out := &block.Block{Fields: make([]block.Field, len(e.min.Fields))}
	for i, f := range e.min.Fields {
		if f.Column == nil {
			continue
		}
		merged := f.Column.Permute([]int{0}, 0)
		if err := merged.InsertFrom(e.max.Fields[i].Column, 0); err != nil {
			continue
		}
		out.Fields[i] = block.Field{Name: f.Name, Type: f.Type, Column: merged}
	}
	return out
}
