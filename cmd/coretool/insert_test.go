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
	"os"
	"path/filepath"
	"testing"

	"github.com/coretool/columnar/block"
	"github.com/coretool/columnar/column"
)

func writeLines(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rows.json")
	var data string
	for _, l := range lines {
		data += l + "\n"
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadJSONLinesInfersColumnNames(t *testing.T) {
	path := writeLines(t,
		`{"id": 1, "name": "alice"}`,
		`{"id": 2, "name": "bob"}`,
	)
	rows, names := readJSONLines(path)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	want := []string{"id", "name"} // sorted
	for i, n := range want {
		if names[i] != n {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}
}

func TestReadJSONLinesSkipsBlankLines(t *testing.T) {
	path := writeLines(t, `{"a": 1}`, "", "  ", `{"a": 2}`)
	rows, _ := readJSONLines(path)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2 (blank lines should be skipped)", len(rows))
	}
}

func TestColumnKindInfersIntFloatString(t *testing.T) {
	path := writeLines(t, `{"i": 1, "f": 1.5, "s": "x"}`)
	rows, names := readJSONLines(path)
	kinds := map[string]block.Type{}
	for _, n := range names {
		kinds[n] = columnKind(n, rows)
	}
	if kinds["i"] != block.TypeInt64 {
		t.Errorf("i: got %v, want TypeInt64", kinds["i"])
	}
	if kinds["f"] != block.TypeFloat64 {
		t.Errorf("f: got %v, want TypeFloat64", kinds["f"])
	}
	if kinds["s"] != block.TypeString {
		t.Errorf("s: got %v, want TypeString", kinds["s"])
	}
}

func TestBuildBlockRoundTrip(t *testing.T) {
	path := writeLines(t,
		`{"id": 1, "score": 2.5, "name": "alice"}`,
		`{"id": 2, "score": 3.5, "name": "bob"}`,
	)
	rows, names := readJSONLines(path)
	b := buildBlock(names, rows)
	if err := b.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	idx := b.IndexOf("id")
	if idx < 0 {
		t.Fatal("missing id column")
	}
	ids := b.Fields[idx].Column.(*column.Numeric[int64]).Values
	if ids[0] != 1 || ids[1] != 2 {
		t.Fatalf("ids = %v, want [1 2]", ids)
	}
	nameIdx := b.IndexOf("name")
	nameCol := b.Fields[nameIdx].Column.(*column.String)
	if string(nameCol.GetDataAt(0)) != "alice" || string(nameCol.GetDataAt(1)) != "bob" {
		t.Fatalf("name column did not round-trip")
	}
}

func TestColumnKindDefaultsToStringOnNoValues(t *testing.T) {
	if got := columnKind("missing", nil); got != block.TypeString {
		t.Fatalf("columnKind with no rows = %v, want TypeString", got)
	}
}
