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
	"testing"

	"github.com/coretool/columnar/block"
	"github.com/coretool/columnar/column"
)

func rowsBlock(n int) *block.Block {
	vs := make([]int64, n)
	return &block.Block{Fields: []block.Field{
		{Name: "a", Type: block.TypeInt64, Column: &column.Numeric[int64]{Values: vs}},
	}}
}

func oneRowBlock() *block.Block { return rowsBlock(1) }

func TestProfiledEndOfStreamLatches(t *testing.T) {
	calls := 0
	p := &Profiled{Impl: func() (*block.Block, error) {
		calls++
		if calls == 1 {
			return oneRowBlock(), nil
		}
		return &block.Block{}, nil
	}}

	b, err := p.Read()
	if err != nil || b.Rows() != 1 {
		t.Fatalf("first Read: rows=%d err=%v, want 1 rows no error", b.Rows(), err)
	}
	b, err = p.Read()
	if err != nil || !b.Empty() {
		t.Fatalf("second Read: want empty block, got rows=%d err=%v", b.Rows(), err)
	}
	// the end-of-stream sentinel: once empty, every subsequent Read
	// must also be empty, even though Impl would produce more rows.
	calls = 0
	b, err = p.Read()
	if err != nil || !b.Empty() {
		t.Fatalf("third Read after EOF must stay empty, got rows=%d err=%v", b.Rows(), err)
	}
	if calls != 0 {
		t.Fatal("Read must not call Impl again once eofSeen is latched")
	}
}

func TestProfiledStatsAccumulate(t *testing.T) {
	rowsPerBlock := []int{3, 2, 0}
	i := 0
	p := &Profiled{Impl: func() (*block.Block, error) {
		n := rowsPerBlock[i]
		i++
		return rowsBlock(n), nil
	}}
	for j := 0; j < 3; j++ {
		p.Read()
	}
	st := p.Stats()
	if st.Rows != 5 {
		t.Fatalf("accumulated rows = %d, want 5", st.Rows)
	}
	if st.Blocks != 2 {
		t.Fatalf("accumulated blocks = %d, want 2 (the empty terminator doesn't count)", st.Blocks)
	}
}

func TestCancellerPropagatesToChildren(t *testing.T) {
	parent := &Canceller{}
	child := &Canceller{}
	parent.children = append(parent.children, child)
	parent.Cancel()
	if !child.Cancelled() {
		t.Fatal("Cancel on a parent must cancel its children")
	}
}
