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

func testInsertBlock() *block.Block {
	ids := &column.Numeric[int64]{Values: []int64{3, 1, 2}}
	names := column.NewString()
	for _, v := range []string{"carol", "alice", "bob"} {
		names.Chars = append(names.Chars, v...)
		names.Offsets = append(names.Offsets, len(names.Chars))
	}
	return &block.Block{Fields: []block.Field{
		{Name: "id", Type: block.TypeInt64, Column: ids},
		{Name: "name", Type: block.TypeString, Column: names},
	}}
}

func TestWriterInsertSortsAndPublishes(t *testing.T) {
	dir := t.TempDir()
	parts := NewPartSet()
	w := NewWriter(WriterConfig{Dir: dir, OrderBy: []string{"id"}}, parts)

	out, err := w.Insert(testInsertBlock())
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("Insert produced %d parts, want 1 (single partition)", len(out))
	}
	if out[0].MinID != 0 || out[0].MaxID != 2 {
		t.Fatalf("part id range = [%d,%d], want [0,2]", out[0].MinID, out[0].MaxID)
	}

	r, err := OpenPartReader(out[0].Dir)
	if err != nil {
		t.Fatalf("OpenPartReader: %v", err)
	}
	idCol, err := r.ReadColumn("id")
	if err != nil {
		t.Fatalf("ReadColumn(id): %v", err)
	}
	ids := idCol.(*column.Numeric[int64])
	if len(ids.Values) != 3 || ids.Values[0] != 1 || ids.Values[1] != 2 || ids.Values[2] != 3 {
		t.Fatalf("ids = %v, want sorted [1 2 3]", ids.Values)
	}

	nameCol, err := r.ReadColumn("name")
	if err != nil {
		t.Fatalf("ReadColumn(name): %v", err)
	}
	names := nameCol.(*column.String)
	if string(names.GetDataAt(0)) != "alice" || string(names.GetDataAt(2)) != "carol" {
		t.Fatalf("names did not follow the id-sorted permutation: %q, %q", names.GetDataAt(0), names.GetDataAt(2))
	}

	if err := parts.CheckInvariants(); err != nil {
		t.Fatalf("CheckInvariants: %v", err)
	}
}

func TestWriterStartIDSeedsAllocator(t *testing.T) {
	dir := t.TempDir()
	parts := NewPartSet()
	w := NewWriter(WriterConfig{Dir: dir, OrderBy: []string{"id"}, StartID: 100}, parts)

	out, err := w.Insert(testInsertBlock())
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if out[0].MinID != 100 {
		t.Fatalf("MinID = %d, want 100 (StartID honored)", out[0].MinID)
	}
}

func TestWriterInsertEmptyBlockIsNoop(t *testing.T) {
	dir := t.TempDir()
	parts := NewPartSet()
	w := NewWriter(WriterConfig{Dir: dir, OrderBy: []string{"id"}}, parts)
	out, err := w.Insert(&block.Block{})
	if err != nil || out != nil {
		t.Fatalf("Insert(empty) = %v, %v, want nil, nil", out, err)
	}
}
