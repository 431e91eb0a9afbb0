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

package aggregate

import (
	"testing"

	"github.com/coretool/columnar/aggregate/hashtable"
	"github.com/coretool/columnar/column"
)

func int64Col(vs ...int64) *column.Numeric[int64] { return &column.Numeric[int64]{Values: vs} }

func TestAggregatorGroupsByKeyAndCounts(t *testing.T) {
	cfg := Config{
		Keys:  []hashtable.KeyColumn{{FixedWidth: 8}},
		Funcs: []Func{NewCount("n")},
	}
	g := New(cfg, []column.Column{column.NewNumeric[int64](0)}, nil)
	if g.Method() != hashtable.Key64Method {
		t.Fatalf("Method() = %v, want Key64Method", g.Method())
	}

	keys := int64Col(1, 2, 1, 1, 2)
	if err := g.ExecuteOnBlock([]column.Column{keys}, nil, keys.Size()); err != nil {
		t.Fatalf("ExecuteOnBlock: %v", err)
	}

	blk, err := g.ConvertToBlock(true)
	if err != nil {
		t.Fatalf("ConvertToBlock: %v", err)
	}
	keyOut := blk.Fields[0].Column.(*column.Numeric[int64]).Values
	countOut := blk.Fields[1].Column.(*column.Numeric[int64]).Values
	if len(keyOut) != 2 {
		t.Fatalf("got %d groups, want 2", len(keyOut))
	}
	counts := map[int64]int64{}
	for i, k := range keyOut {
		counts[k] = countOut[i]
	}
	if counts[1] != 3 || counts[2] != 2 {
		t.Fatalf("counts = %v, want {1:3 2:2}", counts)
	}
}

func TestAggregatorSumFloat64(t *testing.T) {
	cfg := Config{
		Keys:  []hashtable.KeyColumn{{FixedWidth: 8}},
		Funcs: []Func{NewSumFloat64("s")},
	}
	g := New(cfg, []column.Column{column.NewNumeric[int64](0)}, nil)

	keys := int64Col(1, 1, 1)
	vals := &column.Numeric[float64]{Values: []float64{1.5, 2.5, 3.0}}
	if err := g.ExecuteOnBlock([]column.Column{keys}, []column.Column{vals}, keys.Size()); err != nil {
		t.Fatalf("ExecuteOnBlock: %v", err)
	}
	blk, err := g.ConvertToBlock(true)
	if err != nil {
		t.Fatalf("ConvertToBlock: %v", err)
	}
	sums := blk.Fields[1].Column.(*column.Numeric[float64]).Values
	if len(sums) != 1 || sums[0] != 7.0 {
		t.Fatalf("sums = %v, want [7]", sums)
	}
}

func TestAggregatorMinMax(t *testing.T) {
	cfg := Config{
		Keys:  []hashtable.KeyColumn{{FixedWidth: 8}},
		Funcs: []Func{NewMin("mn"), NewMax("mx")},
	}
	g := New(cfg, []column.Column{column.NewNumeric[int64](0)}, nil)

	keys := int64Col(1, 1, 1)
	vals := int64Col(5, -2, 9)
	if err := g.ExecuteOnBlock([]column.Column{keys}, []column.Column{vals, vals}, keys.Size()); err != nil {
		t.Fatalf("ExecuteOnBlock: %v", err)
	}
	blk, err := g.ConvertToBlock(true)
	if err != nil {
		t.Fatalf("ConvertToBlock: %v", err)
	}
	mn := blk.Fields[1].Column.(*column.Numeric[int64]).Values[0]
	mx := blk.Fields[2].Column.(*column.Numeric[int64]).Values[0]
	if mn != -2 || mx != 9 {
		t.Fatalf("min=%d max=%d, want min=-2 max=9", mn, mx)
	}
}

func TestAggregatorOverflowThrow(t *testing.T) {
	cfg := Config{
		Keys:     []hashtable.KeyColumn{{FixedWidth: 8}},
		Funcs:    []Func{NewCount("n")},
		MaxRows:  1,
		Overflow: OverflowThrow,
	}
	g := New(cfg, []column.Column{column.NewNumeric[int64](0)}, nil)
	keys := int64Col(1, 2)
	err := g.ExecuteOnBlock([]column.Column{keys}, nil, keys.Size())
	if err == nil {
		t.Fatal("expected an ErrTooManyGroups")
	}
	if _, ok := err.(*ErrTooManyGroups); !ok {
		t.Fatalf("error %v is not *ErrTooManyGroups", err)
	}
}

func TestAggregatorOverflowBreak(t *testing.T) {
	cfg := Config{
		Keys:     []hashtable.KeyColumn{{FixedWidth: 8}},
		Funcs:    []Func{NewCount("n")},
		MaxRows:  1,
		Overflow: OverflowBreak,
	}
	g := New(cfg, []column.Column{column.NewNumeric[int64](0)}, nil)
	keys := int64Col(1, 2)
	if err := g.ExecuteOnBlock([]column.Column{keys}, nil, keys.Size()); err != nil {
		t.Fatalf("ExecuteOnBlock: %v", err)
	}
	if !g.Break {
		t.Fatal("Break should be set once MaxRows is exceeded under OverflowBreak")
	}
}

func TestAggregatorOverflowAnyDropsExtraGroups(t *testing.T) {
	cfg := Config{
		Keys:     []hashtable.KeyColumn{{FixedWidth: 8}},
		Funcs:    []Func{NewCount("n")},
		MaxRows:  1,
		Overflow: OverflowAny,
	}
	g := New(cfg, []column.Column{column.NewNumeric[int64](0)}, nil)
	keys := int64Col(1, 2, 1, 3)
	if err := g.ExecuteOnBlock([]column.Column{keys}, nil, keys.Size()); err != nil {
		t.Fatalf("ExecuteOnBlock: %v", err)
	}
	blk, err := g.ConvertToBlock(true)
	if err != nil {
		t.Fatalf("ConvertToBlock: %v", err)
	}
	if len(blk.Fields[0].Column.(*column.Numeric[int64]).Values) != 1 {
		t.Fatal("ANY mode should cap the group count at MaxRows")
	}
}

func TestAggregatorOverflowAnyKeepsOverflowRowCount(t *testing.T) {
	cfg := Config{
		Keys:             []hashtable.KeyColumn{{FixedWidth: 8}},
		Funcs:            []Func{NewCount("n")},
		MaxRows:          1,
		Overflow:         OverflowAny,
		KeepOverflowRows: true,
	}
	g := New(cfg, []column.Column{column.NewNumeric[int64](0)}, nil)
	keys := int64Col(1, 2, 3)
	if err := g.ExecuteOnBlock([]column.Column{keys}, nil, keys.Size()); err != nil {
		t.Fatalf("ExecuteOnBlock: %v", err)
	}
	if g.OverflowRows() != 2 {
		t.Fatalf("OverflowRows() = %d, want 2", g.OverflowRows())
	}
}

func TestAggregatorTwoPhaseMerge(t *testing.T) {
	cfg := Config{
		Keys:  []hashtable.KeyColumn{{FixedWidth: 8}},
		Funcs: []Func{NewCount("n")},
	}
	part1 := New(cfg, []column.Column{column.NewNumeric[int64](0)}, nil)
	part2 := New(cfg, []column.Column{column.NewNumeric[int64](0)}, nil)

	if err := part1.ExecuteOnBlock([]column.Column{int64Col(1, 1)}, nil, 2); err != nil {
		t.Fatalf("part1 ExecuteOnBlock: %v", err)
	}
	if err := part2.ExecuteOnBlock([]column.Column{int64Col(1, 2)}, nil, 2); err != nil {
		t.Fatalf("part2 ExecuteOnBlock: %v", err)
	}

	partial1, err := part1.ConvertToBlock(false)
	if err != nil {
		t.Fatalf("part1 ConvertToBlock: %v", err)
	}
	partial2, err := part2.ConvertToBlock(false)
	if err != nil {
		t.Fatalf("part2 ConvertToBlock: %v", err)
	}

	coordinator := New(cfg, []column.Column{column.NewNumeric[int64](0)}, nil)
	keyCol1 := partial1.Fields[0].Column
	state1 := partial1.Fields[1].Column.(*StateColumn)
	if err := coordinator.Merge([]column.Column{keyCol1}, []*StateColumn{state1}); err != nil {
		t.Fatalf("Merge(part1): %v", err)
	}
	keyCol2 := partial2.Fields[0].Column
	state2 := partial2.Fields[1].Column.(*StateColumn)
	if err := coordinator.Merge([]column.Column{keyCol2}, []*StateColumn{state2}); err != nil {
		t.Fatalf("Merge(part2): %v", err)
	}

	final, err := coordinator.ConvertToBlock(true)
	if err != nil {
		t.Fatalf("coordinator ConvertToBlock: %v", err)
	}
	keys := final.Fields[0].Column.(*column.Numeric[int64]).Values
	counts := final.Fields[1].Column.(*column.Numeric[int64]).Values
	got := map[int64]int64{}
	for i, k := range keys {
		got[k] = counts[i]
	}
	if got[1] != 3 || got[2] != 1 {
		t.Fatalf("merged counts = %v, want {1:3 2:1}", got)
	}
}
