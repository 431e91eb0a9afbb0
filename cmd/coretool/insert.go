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
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/coretool/columnar/block"
	"github.com/coretool/columnar/column"
	"github.com/coretool/columnar/mtree"
)

// jsonRow is one decoded line: each present key is set either in num,
// or in both str and isStr.
type jsonRow struct {
	num   map[string]json.Number
	str   map[string]string
	isStr map[string]bool
}

// runInsert reads one JSON object per line of path, infers a column
// per distinct key seen across the file, and writes the whole file as
// a single new part.
func runInsert(dir, path string) {
	rows, names := readJSONLines(path)
	if len(rows) == 0 {
		exitf("insert: %s: no rows", path)
	}
	b := buildBlock(names, rows)
	if err := b.Validate(); err != nil {
		exitf("insert: %s", err)
	}

	orderBy := names[:1] // lexicographically first column name sorts the part
	parts, err := openParts(dir)
	if err != nil {
		exitf("insert: %s", err)
	}
	w := mtree.NewWriter(writerConfig(dir, orderBy), parts)
	written, err := w.Insert(b)
	if err != nil {
		exitf("insert: %s", err)
	}
	for _, p := range written {
		fmt.Printf("wrote part %s (%d rows)\n", p.Name(), p.MaxID-p.MinID+1)
	}
	if err := saveSnapshot(dir, parts); err != nil {
		exitf("insert: %s", err)
	}
}

func readJSONLines(path string) ([]jsonRow, []string) {
	f, err := os.Open(path)
	if err != nil {
		exitf("insert: %s", err)
	}
	defer f.Close()

	var rows []jsonRow
	keys := map[string]bool{}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(line))
		dec.UseNumber()
		var raw map[string]interface{}
		if err := dec.Decode(&raw); err != nil {
			exitf("insert: %s: %s", path, err)
		}
		row := jsonRow{num: map[string]json.Number{}, str: map[string]string{}, isStr: map[string]bool{}}
		for k, v := range raw {
			keys[k] = true
			switch x := v.(type) {
			case json.Number:
				row.num[k] = x
			case string:
				row.str[k] = x
				row.isStr[k] = true
			default:
				b, _ := json.Marshal(x)
				row.str[k] = string(b)
				row.isStr[k] = true
			}
		}
		rows = append(rows, row)
	}
	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)
	return rows, names
}

// buildBlock assembles one Block from the parsed rows, choosing
// Int64, Float64 or String per column from how the first occurrence of
// that column's value across rows was encoded.
func buildBlock(names []string, rows []jsonRow) *block.Block {
	b := &block.Block{Fields: make([]block.Field, len(names))}
	for fi, name := range names {
		switch columnKind(name, rows) {
		case block.TypeInt64:
			c := column.NewNumeric[int64](len(rows))
			for _, r := range rows {
				v, ok := r.num[name]
				var n int64
				if ok {
					var err error
					n, err = v.Int64()
					if err != nil {
						f, _ := v.Float64()
						n = int64(f)
					}
				}
				c.Values = append(c.Values, n)
			}
			b.Fields[fi] = block.Field{Name: name, Type: block.TypeInt64, Column: c}
		case block.TypeFloat64:
			c := column.NewNumeric[float64](len(rows))
			for _, r := range rows {
				v, ok := r.num[name]
				var f float64
				if ok {
					f, _ = v.Float64()
				}
				c.Values = append(c.Values, f)
			}
			b.Fields[fi] = block.Field{Name: name, Type: block.TypeFloat64, Column: c}
		default:
			c := column.NewString()
			for _, r := range rows {
				s := r.str[name]
				c.Chars = append(c.Chars, s...)
				c.Offsets = append(c.Offsets, len(c.Chars))
			}
			b.Fields[fi] = block.Field{Name: name, Type: block.TypeString, Column: c}
		}
	}
	return b
}

func columnKind(name string, rows []jsonRow) block.Type {
	for _, r := range rows {
		if r.isStr[name] {
			return block.TypeString
		}
		if v, ok := r.num[name]; ok {
			if _, err := v.Int64(); err == nil {
				return block.TypeInt64
			}
			return block.TypeFloat64
		}
	}
	return block.TypeString
}
