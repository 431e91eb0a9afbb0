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

package block

import (
	"testing"

	"github.com/coretool/columnar/column"
)

func numCol(vs ...int64) *column.Numeric[int64] {
	return &column.Numeric[int64]{Values: vs}
}

func testBlock() *Block {
	return &Block{Fields: []Field{
		{Name: "a", Type: TypeInt64, Column: numCol(1, 2, 3)},
		{Name: "b", Type: TypeInt64, Column: numCol(10, 20, 30)},
	}}
}

func TestBlockEmptyIsEndOfStream(t *testing.T) {
	b := &Block{}
	if !b.Empty() {
		t.Fatal("a zero-field Block must be Empty")
	}
	b2 := &Block{Fields: []Field{{Name: "a", Type: TypeInt64, Column: numCol()}}}
	if !b2.Empty() {
		t.Fatal("a Block whose columns have zero rows must be Empty")
	}
}

func TestBlockIndexOfAndFind(t *testing.T) {
	b := testBlock()
	if b.IndexOf("b") != 1 {
		t.Fatalf("IndexOf(b) = %d, want 1", b.IndexOf("b"))
	}
	if b.IndexOf("missing") != -1 {
		t.Fatal("IndexOf(missing) should be -1")
	}
	if _, ok := b.Find("missing"); ok {
		t.Fatal("Find(missing) should report ok=false")
	}
}

func TestBlockValidateDuplicateName(t *testing.T) {
	b := &Block{Fields: []Field{
		{Name: "a", Type: TypeInt64, Column: numCol(1)},
		{Name: "a", Type: TypeInt64, Column: numCol(2)},
	}}
	if err := b.Validate(); err == nil {
		t.Fatal("Validate should reject duplicate column names")
	}
}

func TestBlockValidateRowMismatch(t *testing.T) {
	b := &Block{Fields: []Field{
		{Name: "a", Type: TypeInt64, Column: numCol(1, 2)},
		{Name: "b", Type: TypeInt64, Column: numCol(1)},
	}}
	if err := b.Validate(); err == nil {
		t.Fatal("Validate should reject a row-count mismatch between columns")
	}
}

func TestBlockFilterPermuteCut(t *testing.T) {
	b := testBlock()
	f := b.Filter([]byte{1, 0, 1})
	if f.Rows() != 2 {
		t.Fatalf("Filter rows = %d, want 2", f.Rows())
	}
	aCol := f.Fields[0].Column.(*column.Numeric[int64])
	if aCol.Values[0] != 1 || aCol.Values[1] != 3 {
		t.Fatalf("Filter kept %v, want [1 3]", aCol.Values)
	}

	p := b.Permute([]int{2, 0}, 0)
	pCol := p.Fields[0].Column.(*column.Numeric[int64])
	if pCol.Values[0] != 3 || pCol.Values[1] != 1 {
		t.Fatalf("Permute result %v, want [3 1]", pCol.Values)
	}

	c := b.Cut(1, 2)
	if c.Rows() != 2 {
		t.Fatalf("Cut rows = %d, want 2", c.Rows())
	}
}

func TestBlockProject(t *testing.T) {
	b := testBlock()
	p, err := b.Project([]string{"b", "a"})
	if err != nil {
		t.Fatal(err)
	}
	if p.Fields[0].Name != "b" || p.Fields[1].Name != "a" {
		t.Fatalf("Project did not preserve requested order: %v", p.Fields)
	}
	if _, err := b.Project([]string{"nope"}); err == nil {
		t.Fatal("Project should fail for an unknown column")
	}
}
