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

	"github.com/coretool/columnar/mtree"
)

// runMerge merges every active part (per partition) into one, via the
// same SelectPartsToMerge heuristic the background scheduler uses,
// just run to exhaustion instead of one tick at a time.
func runMerge(dir string) {
	parts, err := openParts(dir)
	if err != nil {
		exitf("merge: %s", err)
	}
	merger := &mtree.Merger{
		Dir:        dir,
		Compressor: mtree.DefaultCompressor(),
		Policy: mtree.MergePolicy{
			MaxPartsPerMerge: 64,
			MaxTotalBytes:    1 << 40,
			Mode:             mtree.ModeOrdinary,
		},
	}

	for {
		active := parts.Active()
		selected := mtree.SelectPartsToMerge(active, partSize, merger.Policy)
		mtree.ReleaseSnapshot(active)
		if len(selected) < 2 {
			break
		}
		txn, err := merger.Merge(selected)
		if err != nil {
			exitf("merge: %s", err)
		}
		if err := txn.Commit(parts); err != nil {
			exitf("merge: %s", err)
		}
		fmt.Printf("merged %d parts into %s\n", len(txn.Inputs), txn.Outputs[0].Name())
	}
	if err := saveSnapshot(dir, parts); err != nil {
		exitf("merge: %s", err)
	}
}

func partSize(p *mtree.Part) int64 {
	info, err := os.Stat(p.Dir)
	if err != nil {
		return 0
	}
	return info.Size()
}
