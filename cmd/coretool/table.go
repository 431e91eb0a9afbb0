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
	"path/filepath"
	"strings"

	"github.com/coretool/columnar/mtree"
)

// nextID tracks, across a single process run, one past the highest
// part id seen by openParts, so a subsequent Writer never reallocates
// an id range a prior run already used.
var nextID int64

// openParts rebuilds a PartSet from whatever sealed part directories
// already sit under dir, the crash-recovery scan mtree.ParseName's doc
// comment names: every subdirectory that is not a
// tmp_ staging area or the quarantine directory is assumed to be a
// sealed part and is republished into the active set.
func openParts(dir string) (*mtree.PartSet, error) {
	parts := mtree.NewPartSet()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return parts, nil
		}
		return nil, err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "tmp_") || name == "quarantine" {
			continue
		}
		partition, minID, maxID, level, err := mtree.ParseName(name)
		if err != nil {
			continue // not a part directory, ignore (e.g. stray files)
		}
		p := &mtree.Part{
			Partition: partition,
			MinID:     minID,
			MaxID:     maxID,
			Level:     level,
			Dir:       filepath.Join(dir, name),
		}
		if err := parts.Publish(p); err != nil {
			return nil, err
		}
		if maxID+1 > nextID {
			nextID = maxID + 1
		}
	}
	if snap, ok, err := mtree.ReadSnapshot(dir); err == nil && ok && dashv {
		logf("mtree: last snapshot recorded %d part(s)", len(snap.Parts))
	} else if err != nil && dashv {
		logf("mtree: snapshot unusable, falling back to directory scan: %s", err)
	}
	return parts, nil
}

// saveSnapshot records the current active set to disk, a MAC'd trailer
// separate from the part directories themselves, so the next process
// to open dir can cross-check the directory scan against it.
func saveSnapshot(dir string, parts *mtree.PartSet) error {
	active := parts.Active()
	defer mtree.ReleaseSnapshot(active)
	return mtree.WriteSnapshot(dir, active)
}

func writerConfig(dir string, orderBy []string) mtree.WriterConfig {
	return mtree.WriterConfig{
		Dir:     dir,
		OrderBy: orderBy,
		StartID: nextID,
		Logf: func(f string, args ...interface{}) {
			if dashv {
				logf(f, args...)
			}
		},
	}
}

func logf(f string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, f+"\n", args...)
}
