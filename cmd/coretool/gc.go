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
	"path/filepath"
	"time"

	"github.com/coretool/columnar/mtree"
)

// runGC runs one mtree.GC pass (MinAge zero, quarantining under
// dir/quarantine rather than unlinking) over the PartSet openParts
// rebuilds. openParts republishes every part directory it finds as
// active, so this pass finds no retired part to reclaim; what it does
// is purge quarantine entries older than QuarantineAge.
func runGC(dir string) {
	parts, err := openParts(dir)
	if err != nil {
		exitf("gc: %s", err)
	}
	cfg := mtree.GCConfig{
		MinAge:        0,
		QuarantineDir: filepath.Join(dir, "quarantine"),
		QuarantineAge: 24 * time.Hour,
		Logf: func(f string, args ...interface{}) {
			if dashv {
				logf(f, args...)
			}
		},
	}
	if err := mtree.GC(parts, cfg); err != nil {
		exitf("gc: %s", err)
	}
	if err := saveSnapshot(dir, parts); err != nil {
		exitf("gc: %s", err)
	}
}
