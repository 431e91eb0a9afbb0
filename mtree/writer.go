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
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/coretool/columnar/block"
	"github.com/coretool/columnar/column"
)

// WriterConfig configures a Writer's part layout; it is intended to be
// built once per table and reused across every Insert call, mirroring
// a long-lived append config object.
type WriterConfig struct {
	Dir string // root directory holding one subdirectory per part

	// PartitionOf returns the partition key for row i of b; callers
	// with no partitioning can return a constant.
	PartitionOf func(b *block.Block, i int) string

	// OrderBy names, in priority order, the fields rows are sorted by
	// within a partition before being written.
	OrderBy []string

	// SparseIndexColumns names additional non-ordering-key columns to
	// build a secondary sparse index for; see sparse.go.
	SparseIndexColumns []string

	Granularity int       // index_granularity
	Compressor  Compressor // defaults to DefaultCompressor() if nil

	// StartID seeds the writer's monotonic id counter. A freshly started process that
	// reopens a table with existing parts must set this to one past the
	// highest MaxID already on disk, or newly written parts could reuse
	// ids and fail PartSet's disjointness check.
	StartID int64

	Logf func(string, ...interface{})
}

// Writer turns inserted blocks into sealed, published parts.
type Writer struct {
	cfg    WriterConfig
	parts  *PartSet
	nextID int64
}

// NewWriter constructs a Writer publishing into parts.
func NewWriter(cfg WriterConfig, parts *PartSet) *Writer {
	if cfg.Compressor == nil {
		cfg.Compressor = DefaultCompressor()
	}
	if cfg.Granularity <= 0 {
		cfg.Granularity = 8192
	}
	return &Writer{cfg: cfg, parts: parts, nextID: cfg.StartID}
}

func (w *Writer) logf(f string, args ...interface{}) {
	if w.cfg.Logf != nil {
		w.cfg.Logf(f, args...)
	}
}

// allocIDRange reserves [first, first+n) from the writer's monotonic
// id counter.
func (w *Writer) allocIDRange(n int) int64 {
	return atomic.AddInt64(&w.nextID, int64(n)) - int64(n)
}

// Insert partitions b, sorts each partition by the configured ordering
// key, and writes one new level-0 part per partition.
func (w *Writer) Insert(b *block.Block) ([]*Part, error) {
	if b.Empty() {
		return nil, nil
	}
	rows := b.Rows()
	if rows == 0 {
		return nil, nil
	}
	groups := make(map[string][]int)
	order := make([]string, 0)
	for i := 0; i < rows; i++ {
		key := ""
		if w.cfg.PartitionOf != nil {
			key = w.cfg.PartitionOf(b, i)
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}

	orderCols := make([]int, 0, len(w.cfg.OrderBy))
	for _, name := range w.cfg.OrderBy {
		idx := b.IndexOf(name)
		if idx < 0 {
			return nil, fmt.Errorf("mtree: Insert: ordering column %q not present in block", name)
		}
		orderCols = append(orderCols, idx)
	}

	var out []*Part
	for _, key := range order {
		rowIdx := groups[key]
		sort.SliceStable(rowIdx, func(x, y int) bool {
			a, bI := rowIdx[x], rowIdx[y]
			for _, ci := range orderCols {
				c := b.Fields[ci].Column
				cmp := c.CompareAt(a, c, bI, column.NaNLast)
				if cmp != 0 {
					return cmp < 0
				}
			}
			return false
		})
		sub := b.Permute(rowIdx, 0)
		p, err := w.writePart(key, sub)
		if err != nil {
			return out, err
		}
		out = append(out, p)
	}
	return out, nil
}

// writePart writes one sealed part directory for a single partition's
// worth of already-sorted rows, then publishes it into the active set.
func (w *Writer) writePart(partition string, sub *block.Block) (*Part, error) {
	rows := sub.Rows()
	first := w.allocIDRange(rows)
	last := first + int64(rows) - 1
	part := &Part{Partition: orDefault(partition), MinID: first, MaxID: last, Level: 0}

	dir, err := w.writePartFiles(part, sub)
	if err != nil {
		return nil, err
	}
	part.Dir = dir

	if err := w.parts.Publish(part); err != nil {
		return nil, err
	}
	w.logf("mtree: published part %s (%d rows)", part.Name(), rows)
	return part, nil
}

// writePartFiles does the on-disk work shared by a fresh insert and a
// merge output: write every column + checksums + sparse indexes to a
// tmp_ directory, fsync, and atomically rename into place. It fills in
// part.MinKey/MaxKey but does not touch the active set -- the caller
// decides whether that happens via PartSet.Publish (insert) or
// PartSet.ReplaceParts (merge).
func (w *Writer) writePartFiles(part *Part, sub *block.Block) (string, error) {
	rows := sub.Rows()
	// the uuid suffix keeps two concurrent writers that land on the
	// same part name (same partition/id-range/level, e.g. after a
	// crash-recovery restart reuses an id) from clobbering each
	// other's staging directory before either gets to rename.
	tmpDir := filepath.Join(w.cfg.Dir, "tmp_"+part.Name()+"_"+uuid.NewString())
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return "", &systemIOErr{"mkdir", err}
	}

	granularity := w.cfg.Granularity

	var sums []Checksum
	var minKey, maxKey []byte
	for _, f := range sub.Fields {
		cw, err := CreateColumnWriter(tmpDir, f.Name, granularity, w.cfg.Compressor)
		if err != nil {
			return "", err
		}
		var rawLen int64
		// One compressed block per granule, rather than one block for
		// the whole column: this is what lets a Mark's ByteOffset
		// actually address an independently-decompressible chunk of
		// the .bin file, instead of every mark in a part pointing at
		// the same monolithic blob (see RangeSource.Read).
		for start := 0; start < rows; start += granularity {
			n := granularity
			if start+n > rows {
				n = rows - start
			}
			raw := encodeColumn(f.Column, start, n)
			if err := cw.WriteBlock(int64(n), raw); err != nil {
				return "", err
			}
			rawLen += int64(len(raw))
		}
		sum, err := cw.Close()
		if err != nil {
			return "", err
		}
		sum.UncompressedSize = rawLen
		sums = append(sums, sum)
		if len(w.cfg.OrderBy) > 0 && f.Name == w.cfg.OrderBy[0] {
			minKey = f.Column.GetDataAt(0)
			maxKey = f.Column.GetDataAt(rows - 1)
		}
	}
	part.MinKey, part.MaxKey = minKey, maxKey

	if err := WriteChecksums(tmpDir, sums); err != nil {
		return "", err
	}
	if err := writeColumnsFile(tmpDir, sub); err != nil {
		return "", err
	}
	for _, name := range w.cfg.SparseIndexColumns {
		idx := sub.IndexOf(name)
		if idx < 0 {
			continue
		}
		col := sub.Fields[idx].Column
		spIdx := BuildSparseIndex(name, rows, w.cfg.Granularity, col.GetDataAt)
		if err := WriteSparseIndex(tmpDir, spIdx); err != nil {
			return "", err
		}
	}
	if err := fsyncDir(tmpDir); err != nil {
		return "", err
	}

	finalDir := filepath.Join(w.cfg.Dir, part.Name())
	if err := os.Rename(tmpDir, finalDir); err != nil {
		return "", &systemIOErr{"rename", err}
	}
	if err := fsyncDir(w.cfg.Dir); err != nil {
		return "", err
	}
	return finalDir, nil
}

func orDefault(key string) string {
	if key == "" {
		return "all"
	}
	return key
}

// encodeColumn serializes c[start:start+rows] as a length-prefixed
// sequence of GetDataAt byte strings. Every column.Column
// implementation exposes GetDataAt regardless of its concrete layout,
// so this is the one encoder the writer needs for any column type.
func encodeColumn(c column.Column, start, rows int) []byte {
	var buf []byte
	var hdr [4]byte
	for i := start; i < start+rows; i++ {
		data := c.GetDataAt(i)
		binary.LittleEndian.PutUint32(hdr[:], uint32(len(data)))
		buf = append(buf, hdr[:]...)
		buf = append(buf, data...)
	}
	return buf
}

// writeColumnsFile writes columns.txt, the human-readable column
// list/type manifest the reader consults to avoid opening .bin files
// for columns it does not need.
func writeColumnsFile(dir string, b *block.Block) error {
	var buf []byte
	for _, f := range b.Fields {
		buf = append(buf, []byte(fmt.Sprintf("%s\t%s\n", f.Name, f.Type))...)
	}
	return writeFileFsync(filepath.Join(dir, "columns.txt"), buf)
}
