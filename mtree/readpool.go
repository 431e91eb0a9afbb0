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
	"sync"

	"github.com/coretool/columnar/block"
	"github.com/coretool/columnar/stream"
)

// MarkRange is a contiguous run of marks within one part, the unit of
// work the read pool hands out to a worker. LastMark is exclusive; a
// LastMark at or past the part's recorded mark count means "through
// end of file", which also covers the trailing partial granule no
// mark was ever recorded for.
type MarkRange struct {
	Part      *Part
	FirstMark int
	LastMark  int
}

// task is one claimable unit of a ReadPool: a single part's mark range
// split at minMarksPerRange boundaries.
type task struct {
	rng     MarkRange
	claimed bool
}

// ReadPool distributes a query's part set across a fixed worker count
// at mark granularity: a part wider than minMarksPerRange marks is
// split into several independently-claimable ranges, so an idle
// worker can steal the tail of a part another worker is still
// reading instead of sitting blocked on whole-part assignment.
type ReadPool struct {
	mu    sync.Mutex
	tasks []*task

	requiredColumns []string
}

// NewReadPool builds a pool over parts, splitting each part's marks
// into ranges of at least minMarksPerRange marks (minMarksPerRange<=0
// means one range per part). marksPerPart, if its i'th entry is >0,
// overrides the part's discovered mark count (useful for tests that
// don't want to pre-write real marks files); otherwise the pool reads
// the part's own .mrk file to learn how many marks it holds.
// requiredColumns narrows every part's column read to the
// PREWHERE/WHERE projection.
func NewReadPool(parts []*Part, marksPerPart []int, minMarksPerRange int, requiredColumns []string) *ReadPool {
	p := &ReadPool{requiredColumns: requiredColumns}
	for i, part := range parts {
		marks := 0
		if i < len(marksPerPart) && marksPerPart[i] > 0 {
			marks = marksPerPart[i]
		} else {
			marks = discoverMarkCount(part)
		}
		for _, rng := range splitMarkRanges(part, marks, minMarksPerRange) {
			p.tasks = append(p.tasks, &task{rng: rng})
		}
	}
	return p
}

// discoverMarkCount reads one representative column's .mrk file to
// learn how many full granules part holds; every column shares the
// same mark count since writePartFiles chunks every field at the same
// granularity over the same row range.
func discoverMarkCount(part *Part) int {
	r, err := OpenPartReader(part.Dir)
	if err != nil {
		return 0
	}
	names := r.Schema().Names
	if len(names) == 0 {
		return 0
	}
	marks, err := ReadMarks(part.Dir, names[0])
	if err != nil {
		return 0
	}
	return len(marks)
}

// splitMarkRanges divides [0, markCount) into chunks of at least
// minMarksPerRange marks each, folding a final undersized remainder
// into the preceding chunk rather than leaving a short straggler.
func splitMarkRanges(part *Part, markCount, minMarksPerRange int) []MarkRange {
	if minMarksPerRange <= 0 || markCount <= minMarksPerRange {
		return []MarkRange{{Part: part, FirstMark: 0, LastMark: markCount}}
	}
	var out []MarkRange
	for start := 0; start < markCount; start += minMarksPerRange {
		end := start + minMarksPerRange
		if end > markCount || markCount-end < minMarksPerRange {
			end = markCount
		}
		out = append(out, MarkRange{Part: part, FirstMark: start, LastMark: end})
		if end == markCount {
			break
		}
	}
	return out
}

// Next claims the next unclaimed range for a worker, or ok=false once
// every range has been claimed. Ranges are handed out in order within
// a part and parts in the order they were given to NewReadPool, so a
// worker that drains its own part's ranges naturally steals the next
// unclaimed range -- whether that is the tail of a part someone else
// is still reading or the head of a part nobody has touched yet.
func (p *ReadPool) Next() (MarkRange, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.tasks {
		if t.claimed {
			continue
		}
		t.claimed = true
		return t.rng, true
	}
	return MarkRange{}, false
}

// RequiredColumns returns the column projection every range read from
// this pool should request.
func (p *ReadPool) RequiredColumns() []string { return p.requiredColumns }

// RangeSource reads a single MarkRange as a stream.Source, exposing
// the PartReader plumbing to the vectorized pipeline (package stream).
// It decompresses only the marks its range covers (PartReader.
// ReadColumnsRange), so a worker handed the tail of a large part never
// pays to decode the rows another worker already claimed.
type RangeSource struct {
	rng     MarkRange
	columns []string
	reader  *PartReader
	done    bool
}

// NewRangeSource opens rng.Part and prepares to stream its assigned
// range, projected to columns (every column in the part, if columns is
// nil).
func NewRangeSource(rng MarkRange, columns []string) (*RangeSource, error) {
	r, err := OpenPartReader(rng.Part.Dir)
	if err != nil {
		return nil, err
	}
	want := columns
	if want == nil {
		want = r.Schema().Names
	} else {
		want = r.RequiredColumns(want)
	}
	return &RangeSource{rng: rng, columns: want, reader: r}, nil
}

// Read implements stream.ReadImplFunc: the first call returns the
// range's rows, every subsequent call returns an empty block, per the
// stream package's end-of-stream contract.
func (s *RangeSource) Read() (*block.Block, error) {
	if s.done {
		return &block.Block{}, nil
	}
	s.done = true
	return s.reader.ReadColumnsRange(s.columns, s.rng.FirstMark, s.rng.LastMark)
}

var _ stream.ReadImplFunc = (*RangeSource)(nil).Read
