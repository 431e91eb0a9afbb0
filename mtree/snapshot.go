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
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Snapshot is the table-level analogue of a content-MAC'd index: the
// list of part directory names that make up the active set at the
// instant the snapshot was taken, plus a blake2b MAC over that listing
// so a crash-recovery scan can detect a torn write instead of silently
// reopening a half-written snapshot file. It supplements, rather than
// replaces, the directory scan: a missing or MAC-mismatched snapshot
// just means recovery falls back to re-deriving the active set from
// the part directories themselves.
type Snapshot struct {
	Parts []string // part directory names, sorted
}

const snapshotFile = "snapshot.txt"

// WriteSnapshot records parts' active set to dir/snapshot.txt, fsynced
// so a crash after this call either sees the whole file or none of it.
func WriteSnapshot(dir string, parts []*Part) error {
	names := make([]string, len(parts))
	for i, p := range parts {
		names[i] = p.Name()
	}
	sort.Strings(names)

	var body bytes.Buffer
	for _, n := range names {
		fmt.Fprintf(&body, "%s\n", n)
	}
	mac := ContentHash(body.Bytes())

	var out bytes.Buffer
	fmt.Fprintf(&out, "snapshot format version: 1\n")
	fmt.Fprintf(&out, "mac: %x\n", mac)
	out.Write(body.Bytes())

	return writeFileFsync(filepath.Join(dir, snapshotFile), out.Bytes())
}

// ReadSnapshot reads back a snapshot written by WriteSnapshot, verifying
// its MAC. ok is false (with a nil error) when no snapshot file exists
// yet -- a fresh table, or one whose very first write crashed before
// ever completing one -- which is not a corruption, just "nothing to
// recover from here, fall back to the directory scan".
func ReadSnapshot(dir string) (Snapshot, bool, error) {
	data, err := os.ReadFile(filepath.Join(dir, snapshotFile))
	if os.IsNotExist(err) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, &systemIOErr{"read", err}
	}

	lines := bytes.SplitN(data, []byte("\n"), 3)
	if len(lines) < 3 || string(lines[0]) != "snapshot format version: 1" {
		return Snapshot{}, false, &StorageFormatErr{Part: dir, Msg: "malformed snapshot header"}
	}
	var wantMAC [16]byte
	rawMAC, err := hex.DecodeString(string(bytes.TrimPrefix(lines[1], []byte("mac: "))))
	if err != nil || !bytes.HasPrefix(lines[1], []byte("mac: ")) || len(rawMAC) != len(wantMAC) {
		return Snapshot{}, false, &StorageFormatErr{Part: dir, Msg: "malformed snapshot mac line"}
	}
	copy(wantMAC[:], rawMAC)
	body := lines[2]
	if ContentHash(body) != wantMAC {
		return Snapshot{}, false, &StorageFormatErr{Part: dir, Msg: "snapshot MAC mismatch: torn write"}
	}

	var snap Snapshot
	for _, line := range bytes.Split(bytes.TrimRight(body, "\n"), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		snap.Parts = append(snap.Parts, string(line))
	}
	return snap, true, nil
}
