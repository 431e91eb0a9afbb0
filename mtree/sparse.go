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
	"encoding/binary"
	"os"
	"path/filepath"
)

// SparseIndex is a secondary, best-effort index over a
// non-ordering-key column: one (min, max) range per mark granule,
// mirroring primary.idx's layout but keyed by an arbitrary column
// instead of the ordering key. A part carries zero or more of these,
// one file each, named skp_<column>.idx. Because it only ever narrows
// candidate granules it can be dropped or stale without affecting
// correctness -- a query that can't find one just falls back to
// reading every granule of the required columns.
type SparseIndex struct {
	Column string
	Granules []SparseGranule
}

// SparseGranule is the (min, max) byte-range for one mark_granularity
// chunk of rows, ordered by granule index (not by value -- the column
// is not necessarily sorted).
type SparseGranule struct {
	Min, Max []byte
}

// BuildSparseIndex scans c in granularity-sized chunks and records the
// lexical min/max of each chunk's GetDataAt bytes. It is meaningful
// for any column whose GetDataAt bytes are lexically comparable in the
// same order as CompareAt (not guaranteed for Numeric's little-endian
// fixed widths; it holds for byte-comparable kinds such as
// String/FixedString). Neither this function nor the writer checks the
// column kind: callers pass in the row accessor directly rather than a
// column.Column to keep this file free of a column package type-switch.
func BuildSparseIndex(name string, rows int, granularity int, at func(i int) []byte) SparseIndex {
	idx := SparseIndex{Column: name}
	if granularity <= 0 {
		granularity = 8192
	}
	for start := 0; start < rows; start += granularity {
		end := start + granularity
		if end > rows {
			end = rows
		}
		min, max := at(start), at(start)
		for i := start + 1; i < end; i++ {
			v := at(i)
			if bytes.Compare(v, min) < 0 {
				min = v
			}
			if bytes.Compare(v, max) > 0 {
				max = v
			}
		}
		idx.Granules = append(idx.Granules, SparseGranule{
			Min: append([]byte{}, min...),
			Max: append([]byte{}, max...),
		})
	}
	return idx
}

// WriteSparseIndex persists idx as skp_<column>.idx: a sequence of
// (len(min), min, len(max), max) records, one per granule.
func WriteSparseIndex(dir string, idx SparseIndex) error {
	var buf []byte
	var hdr [4]byte
	for _, g := range idx.Granules {
		binary.LittleEndian.PutUint32(hdr[:], uint32(len(g.Min)))
		buf = append(buf, hdr[:]...)
		buf = append(buf, g.Min...)
		binary.LittleEndian.PutUint32(hdr[:], uint32(len(g.Max)))
		buf = append(buf, hdr[:]...)
		buf = append(buf, g.Max...)
	}
	return writeFileFsync(filepath.Join(dir, "skp_"+idx.Column+".idx"), buf)
}

// ReadSparseIndex loads a previously written skp_<column>.idx, or
// returns ok=false if the part was written before this column had one
// (the index is advisory, so a missing file is not an error).
func ReadSparseIndex(dir, column string) (SparseIndex, bool, error) {
	data, err := os.ReadFile(filepath.Join(dir, "skp_"+column+".idx"))
	if os.IsNotExist(err) {
		return SparseIndex{}, false, nil
	}
	if err != nil {
		return SparseIndex{}, false, &systemIOErr{"read", err}
	}
	idx := SparseIndex{Column: column}
	off := 0
	for off < len(data) {
		minLen := int(binary.LittleEndian.Uint32(data[off:]))
		off += 4
		min := data[off : off+minLen]
		off += minLen
		maxLen := int(binary.LittleEndian.Uint32(data[off:]))
		off += 4
		max := data[off : off+maxLen]
		off += maxLen
		idx.Granules = append(idx.Granules, SparseGranule{Min: min, Max: max})
	}
	return idx, true, nil
}

// CandidateGranules returns the indices of granules whose [Min, Max]
// range could possibly contain needle, given a three-way comparator;
// it never produces false negatives but may return granules that, on
// closer inspection, do not actually contain needle.
func (idx SparseIndex) CandidateGranules(needle []byte, cmp func(a, b []byte) int) []int {
	var out []int
	for i, g := range idx.Granules {
		if cmp(needle, g.Min) >= 0 && cmp(needle, g.Max) <= 0 {
			out = append(out, i)
		}
	}
	return out
}
