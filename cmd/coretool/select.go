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
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/coretool/columnar/column"
	"github.com/coretool/columnar/mtree"
)

// runSelect scans every active part and prints the requested columns
// (or every column the first part declares, if none were named) as
// tab-separated rows, one part's rows after another.
func runSelect(dir string, wanted []string) {
	parts, err := openParts(dir)
	if err != nil {
		exitf("select: %s", err)
	}
	active := parts.Active()
	defer mtree.ReleaseSnapshot(active)

	if len(active) == 0 {
		fmt.Fprintln(os.Stderr, "select: no parts")
		return
	}

	pool := mtree.NewReadPool(active, nil, 0, wanted)
	for {
		rng, ok := pool.Next()
		if !ok {
			break
		}
		src, err := mtree.NewRangeSource(rng, pool.RequiredColumns())
		if err != nil {
			exitf("select: %s: %s", rng.Part.Name(), err)
		}
		b, err := src.Read()
		if err != nil {
			exitf("select: %s: %s", rng.Part.Name(), err)
		}
		names := make([]string, len(b.Fields))
		cols := make([]column.Column, len(b.Fields))
		for i, f := range b.Fields {
			names[i] = f.Name
			cols[i] = f.Column
		}
		printRows(names, cols)
	}
}

// printRows renders cols (all the same Size()) as tab-separated text,
// one line per row, header first.
func printRows(names []string, cols []column.Column) {
	if len(cols) == 0 {
		return
	}
	fmt.Println(strings.Join(names, "\t"))
	rows := cols[0].Size()
	var sb strings.Builder
	for i := 0; i < rows; i++ {
		sb.Reset()
		for ci, c := range cols {
			if ci > 0 {
				sb.WriteByte('\t')
			}
			sb.WriteString(cellString(c, i))
		}
		fmt.Println(sb.String())
	}
}

// cellString renders row i of c as text, type-switching over the
// concrete column kinds the merge-tree reader can reconstruct
// (decodeColumn in mtree/reader.go covers the same set).
func cellString(c column.Column, i int) string {
	switch v := c.(type) {
	case *column.Numeric[int64]:
		return strconv.FormatInt(v.Values[i], 10)
	case *column.Numeric[float64]:
		return strconv.FormatFloat(v.Values[i], 'g', -1, 64)
	case *column.Numeric[int8]:
		return strconv.FormatInt(int64(v.Values[i]), 10)
	default:
		return string(c.GetDataAt(i))
	}
}
