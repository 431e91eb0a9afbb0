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

//go:build linux

package mtree

import (
	"os"

	"golang.org/x/sys/unix"
)

// fsyncFile flushes f's data to stable storage. On Linux
// this is fdatasync rather than fsync: the part writer never relies on
// file size/mtime surviving a crash on its own (the rename + parent
// directory fsync carries that), so skipping the extra metadata flush
// fsync would do is safe; this mirrors the build-tagged split
// between a fast Linux path and a portable fallback used elsewhere
// for OS-specific I/O.
func fsyncFile(f *os.File) error {
	if err := unix.Fdatasync(int(f.Fd())); err != nil {
		return &systemIOErr{"fdatasync", err}
	}
	return nil
}
