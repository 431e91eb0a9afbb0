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

func writeReadPoolPart(t *testing.T, parts *PartSet) *Part {
	t.Helper()
	dir := t.TempDir()
	w := NewWriter(WriterConfig{Dir: dir, OrderBy: []string{"id"}}, parts)
	out, err := w.Insert(testInsertBlock())
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	return out[0]
}

// writeGranularTestPart writes a part with a small granularity so it
// accumulates more than one mark, letting a test exercise real
// sub-part mark ranges instead of the single-range-per-part fallback
// a part smaller than one granule always takes.
func writeGranularTestPart(t *testing.T, parts *PartSet, rows int, granularity int) *Part {
	t.Helper()
	dir := t.TempDir()
	w := NewWriter(WriterConfig{Dir: dir, OrderBy: []string{"id"}, Granularity: granularity}, parts)

	ids := make([]int64, rows)
	for i := range ids {
		ids[i] = int64(rows - i) // descending, so Insert's sort is exercised
	}
	b := &block.Block{Fields: []block.Field{
		{Name: "id", Type: block.TypeInt64, Column: &column.Numeric[int64]{Values: ids}},
	}}
	out, err := w.Insert(b)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	return out[0]
}

func TestReadPoolEachPartClaimedOnce(t *testing.T) {
	parts := NewPartSet()
	p1 := writeReadPoolPart(t, parts)
	// every writeReadPoolPart call starts its Writer at id 0, so the
	// second part goes into a PartSet of its own to pass Publish's
	// disjointness check.
	p2 := writeReadPoolPart(t, NewPartSet())

	// Neither part holds a full granule, so each gets exactly one
	// whole-part range regardless of minMarksPerRange.
	pool := NewReadPool([]*Part{p1, p2}, nil, 1, nil)

	seen := map[*Part]bool{}
	for {
		rng, ok := pool.Next()
		if !ok {
			break
		}
		if seen[rng.Part] {
			t.Fatalf("part %s claimed twice", rng.Part.Name())
		}
		seen[rng.Part] = true
	}
	if len(seen) != 2 {
		t.Fatalf("claimed %d parts, want 2", len(seen))
	}
}

// TestReadPoolSplitsPartIntoMultipleRanges checks that a part spanning
// several marks is handed out as several independently-claimable
// ranges, and that reading each range in turn reconstructs every row
// exactly once with no overlap or gap.
func TestReadPoolSplitsPartIntoMultipleRanges(t *testing.T) {
	parts := NewPartSet()
	p := writeGranularTestPart(t, parts, 7, 2) // granules at rows [0,2) [2,4) [4,6), tail [6,7)

	pool := NewReadPool([]*Part{p}, nil, 1, nil)

	var ranges []MarkRange
	for {
		rng, ok := pool.Next()
		if !ok {
			break
		}
		ranges = append(ranges, rng)
	}
	if len(ranges) != 3 {
		t.Fatalf("got %d ranges, want 3 (one per full granule, last one extended to EOF)", len(ranges))
	}

	var seenIDs []int64
	for _, rng := range ranges {
		src, err := NewRangeSource(rng, nil)
		if err != nil {
			t.Fatalf("NewRangeSource: %v", err)
		}
		b, err := src.Read()
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		ids := b.Fields[0].Column.(*column.Numeric[int64])
		seenIDs = append(seenIDs, ids.Values...)
	}
	if len(seenIDs) != 7 {
		t.Fatalf("reassembled %d rows across ranges, want 7", len(seenIDs))
	}
	for i, id := range seenIDs {
		if id != int64(i+1) {
			t.Fatalf("seenIDs = %v, want sorted [1..7]", seenIDs)
		}
	}
}

func TestRangeSourceReadDoesNotDuplicateRows(t *testing.T) {
	parts := NewPartSet()
	p := writeReadPoolPart(t, parts)

	// This part holds no full granule, so any LastMark at or past 0
	// resolves to "read to EOF" -- Read must still only ever emit the
	// part's rows once regardless of how many marks the range claims.
	src, err := NewRangeSource(MarkRange{Part: p, FirstMark: 0, LastMark: 5}, nil)
	if err != nil {
		t.Fatalf("NewRangeSource: %v", err)
	}
	first, err := src.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if first.Rows() != 3 {
		t.Fatalf("first Read() returned %d rows, want 3", first.Rows())
	}
	second, err := src.Read()
	if err != nil {
		t.Fatalf("second Read: %v", err)
	}
	if !second.Empty() {
		t.Fatalf("second Read() returned %d rows, want end-of-stream (0)", second.Rows())
	}
}

func TestRangeSourceProjectsRequiredColumns(t *testing.T) {
	parts := NewPartSet()
	p := writeReadPoolPart(t, parts)

	src, err := NewRangeSource(MarkRange{Part: p, FirstMark: 0, LastMark: 1}, []string{"id"})
	if err != nil {
		t.Fatalf("NewRangeSource: %v", err)
	}
	b, err := src.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(b.Fields) != 1 || b.Fields[0].Name != "id" {
		t.Fatalf("projected fields = %v, want just [id]", b.Fields)
	}
	ids := b.Fields[0].Column.(*column.Numeric[int64])
	if len(ids.Values) != 3 || ids.Values[0] != 1 {
		t.Fatalf("ids = %v, want sorted [1 2 3]", ids.Values)
	}
}
