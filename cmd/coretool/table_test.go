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

package main

import (
	"testing"

	"github.com/coretool/columnar/block"
	"github.com/coretool/columnar/column"
	"github.com/coretool/columnar/mtree"
)

func TestOpenPartsOnFreshDirIsEmpty(t *testing.T) {
	parts, err := openParts(t.TempDir())
	if err != nil {
		t.Fatalf("openParts: %v", err)
	}
	if len(parts.Active()) != 0 {
		t.Fatal("a fresh directory should have no active parts")
	}
}

func TestOpenPartsRediscoversWrittenParts(t *testing.T) {
	dir := t.TempDir()
	ps := mtree.NewPartSet()
	w := mtree.NewWriter(writerConfig(dir, []string{"id"}), ps)
	b := &block.Block{Fields: []block.Field{
		{Name: "id", Type: block.TypeInt64, Column: &column.Numeric[int64]{Values: []int64{1, 2, 3}}},
	}}
	if _, err := w.Insert(b); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	reopened, err := openParts(dir)
	if err != nil {
		t.Fatalf("openParts: %v", err)
	}
	active := reopened.Active()
	defer mtree.ReleaseSnapshot(active)
	if len(active) != 1 {
		t.Fatalf("openParts found %d parts, want 1", len(active))
	}
}
