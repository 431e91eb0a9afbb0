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
	"testing"

	"github.com/coretool/columnar/block"
	"github.com/coretool/columnar/column"
)

func TestSelectPartsToMergePrefersSmallFragmentedRun(t *testing.T) {
	active := []*Part{
		{Partition: "p", MinID: 0, MaxID: 9},
		{Partition: "p", MinID: 10, MaxID: 19},
		{Partition: "p", MinID: 20, MaxID: 29},
	}
	sizes := map[*Part]int64{active[0]: 100, active[1]: 100, active[2]: 100000}
	sizeOf := func(p *Part) int64 { return sizes[p] }

	got := SelectPartsToMerge(active, sizeOf, MergePolicy{MaxPartsPerMerge: 8, MaxTotalBytes: 1 << 30})
	if len(got) != 2 || got[0] != active[0] || got[1] != active[1] {
		t.Fatalf("selected %v, want the two small adjacent parts", got)
	}
}

func TestSelectPartsToMergeRespectsMaxTotalBytes(t *testing.T) {
	active := []*Part{
		{Partition: "p", MinID: 0, MaxID: 9},
		{Partition: "p", MinID: 10, MaxID: 19},
	}
	sizeOf := func(p *Part) int64 { return 600 }
	got := SelectPartsToMerge(active, sizeOf, MergePolicy{MaxPartsPerMerge: 8, MaxTotalBytes: 1000})
	if got != nil {
		t.Fatalf("selected %v, want nil: combined size exceeds MaxTotalBytes", got)
	}
}

func TestSelectPartsToMergeNeverCrossesPartitions(t *testing.T) {
	active := []*Part{
		{Partition: "a", MinID: 0, MaxID: 9},
		{Partition: "b", MinID: 10, MaxID: 19},
	}
	sizeOf := func(p *Part) int64 { return 10 }
	got := SelectPartsToMerge(active, sizeOf, MergePolicy{MaxPartsPerMerge: 8, MaxTotalBytes: 1 << 30})
	if got != nil {
		t.Fatalf("selected %v across partitions, want nil", got)
	}
}

func numericPartBlock(ids ...int64) *block.Block {
	return &block.Block{Fields: []block.Field{
		{Name: "id", Type: block.TypeInt64, Column: &column.Numeric[int64]{Values: ids}},
		{Name: "v", Type: block.TypeInt64, Column: &column.Numeric[int64]{Values: ids}},
	}}
}

func writeTestPart(t *testing.T, dir string, ids ...int64) *Part {
	t.Helper()
	parts := NewPartSet()
	w := NewWriter(WriterConfig{Dir: dir, OrderBy: []string{"id"}}, parts)
	out, err := w.Insert(numericPartBlock(ids...))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	return out[0]
}

func TestMergerOrdinaryMode(t *testing.T) {
	dir := t.TempDir()
	a := writeTestPart(t, dir, 1, 3)
	b := writeTestPart(t, t.TempDir(), 2, 4)
	// writeTestPart allocates ids starting from 0 each time since every
	// call makes its own Writer, so a and b get the same part name and b
	// is written to a directory of its own; force disjoint MinID/MaxID
	// ranges like a real table would produce across successive inserts.
	b.MinID, b.MaxID = a.MaxID+1, a.MaxID+2

	m := &Merger{Dir: dir, Compressor: DefaultCompressor(), Policy: MergePolicy{Mode: ModeOrdinary, OrderKeyColumns: 1}}
	txn, err := m.Merge([]*Part{a, b})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(txn.Outputs) != 1 {
		t.Fatalf("Merge produced %d outputs, want 1", len(txn.Outputs))
	}
	out := txn.Outputs[0]
	if out.Level != 1 {
		t.Fatalf("merged part level = %d, want 1", out.Level)
	}

	r, err := OpenPartReader(out.Dir)
	if err != nil {
		t.Fatalf("OpenPartReader: %v", err)
	}
	idCol, err := r.ReadColumn("id")
	if err != nil {
		t.Fatalf("ReadColumn: %v", err)
	}
	ids := idCol.(*column.Numeric[int64]).Values
	if len(ids) != 4 {
		t.Fatalf("merged part has %d rows, want 4", len(ids))
	}
	for i := 1; i < len(ids); i++ {
		if ids[i-1] > ids[i] {
			t.Fatalf("merged ids not sorted: %v", ids)
		}
	}
}

// TestMergerSummingModePreservesInt64Precision guards sumValueColumns'
// int64 accumulation path: 9007199254740993 (2^53+1) is not exactly
// representable as float64, so routing the sum through float64 would
// silently round each addend before it was even added, landing on the
// wrong total.
func TestMergerSummingModePreservesInt64Precision(t *testing.T) {
	dir := t.TempDir()
	const v = int64(9007199254740993)
	parts := NewPartSet()
	w := NewWriter(WriterConfig{Dir: dir, OrderBy: []string{"id"}}, parts)
	a, err := w.Insert(&block.Block{Fields: []block.Field{
		{Name: "id", Type: block.TypeInt64, Column: &column.Numeric[int64]{Values: []int64{1}}},
		{Name: "v", Type: block.TypeInt64, Column: &column.Numeric[int64]{Values: []int64{v}}},
	}})
	if err != nil {
		t.Fatalf("Insert a: %v", err)
	}
	b, err := w.Insert(&block.Block{Fields: []block.Field{
		{Name: "id", Type: block.TypeInt64, Column: &column.Numeric[int64]{Values: []int64{1}}},
		{Name: "v", Type: block.TypeInt64, Column: &column.Numeric[int64]{Values: []int64{v}}},
	}})
	if err != nil {
		t.Fatalf("Insert b: %v", err)
	}

	m := &Merger{Dir: dir, Compressor: DefaultCompressor(), Policy: MergePolicy{Mode: ModeSumming, OrderKeyColumns: 1}}
	txn, err := m.Merge([]*Part{a[0], b[0]})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	r, err := OpenPartReader(txn.Outputs[0].Dir)
	if err != nil {
		t.Fatalf("OpenPartReader: %v", err)
	}
	vCol, err := r.ReadColumn("v")
	if err != nil {
		t.Fatalf("ReadColumn(v): %v", err)
	}
	vals := vCol.(*column.Numeric[int64]).Values
	if len(vals) != 1 {
		t.Fatalf("merged part has %d rows, want 1 (both inputs share id=1)", len(vals))
	}
	if want := 2 * v; vals[0] != want {
		t.Fatalf("summed v = %d, want %d (exact int64 sum, not float64-rounded)", vals[0], want)
	}
}
