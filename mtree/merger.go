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
	"fmt"
	"sort"

	"github.com/coretool/columnar/block"
	"github.com/coretool/columnar/column"
)

// MergeMode selects how rows that share an ordering key collapse when
// two parts are merged.
type MergeMode int

const (
	// ModeOrdinary concatenates inputs in key order without collapsing
	// duplicate keys.
	ModeOrdinary MergeMode = iota
	// ModeCollapsing cancels pairs of rows sharing an ordering key when
	// policy.SignColumn's values for that key sum to zero (a +1 insert
	// row matched by a -1 cancellation row), emitting only the residual
	// row when the sum is nonzero. See MergePolicy.SignColumn.
	ModeCollapsing
	// ModeSumming adds the value columns of rows sharing an ordering
	// key into one output row.
	ModeSumming
	// ModeAggregating names the two-phase aggregation's merge phase.
	// Merger does not merge aggregate states: mergeBlocks keeps the last
	// row per ordering key for this mode. Merging StateColumn values is
	// done by aggregate.Aggregator.Merge (see package aggregate).
	ModeAggregating
)

// MergePolicy bundles the knobs selectPartsToMerge needs: a maximum
// part count per merge, a maximum total byte size, and the number of
// order-key columns used to detect duplicate keys for Collapsing/
// Summing modes.
type MergePolicy struct {
	MaxPartsPerMerge int
	MaxTotalBytes    int64
	Mode             MergeMode
	OrderKeyColumns  int   // leading N fields of every part's schema
	MinAge           int64 // not consulted by SelectPartsToMerge: Part records no creation time, so every active part is a candidate

	// SignColumn is the field index of the numeric +1/-1 sign column
	// consulted by ModeCollapsing. A negative value disables sign-sum
	// cancellation; in that case ModeCollapsing falls back to keeping
	// the last row per key, which is only correct when every key is
	// known to appear at most once per merge (no cancellation rows are
	// ever written).
	SignColumn int
}

// picked names one source row during the k-way merge: which input
// block it came from and its row index within that block.
type picked struct {
	b   *block.Block
	row int
}

// SelectPartsToMerge implements the merge-selection heuristic and the
// "Thread-pool merge scheduling" design note: prefer merging several
// small, age-adjacent parts over repeatedly re-merging one giant part.
// It scans every run of at least two adjacent active parts in one
// partition whose combined size stays within MaxTotalBytes and whose
// count stays within MaxPartsPerMerge, and keeps the run with the
// lowest average part size (a proxy for "smallest, most fragmented
// region first"); on a tie the first such run wins, whatever its
// length.
func SelectPartsToMerge(active []*Part, sizeOf func(*Part) int64, policy MergePolicy) []*Part {
	if len(active) < 2 {
		return nil
	}
	sorted := append([]*Part{}, active...)
	sort.Slice(sorted, func(i, j int) bool { return Less(sorted[i], sorted[j]) })

	sizes := make([]int64, len(sorted))
	for i, p := range sorted {
		sizes[i] = sizeOf(p)
	}

	maxParts := policy.MaxPartsPerMerge
	if maxParts <= 0 {
		maxParts = 16
	}
	maxBytes := policy.MaxTotalBytes
	if maxBytes <= 0 {
		maxBytes = 1 << 30
	}

	var best []*Part
	var bestAvg float64 = -1
	for i := range sorted {
		var total int64
		samePartition := sorted[i].Partition
		for j := i; j < len(sorted) && j < i+maxParts; j++ {
			if sorted[j].Partition != samePartition {
				break
			}
			total += sizes[j]
			if total > maxBytes {
				break
			}
			n := j - i + 1
			if n < 2 {
				continue
			}
			avg := float64(total) / float64(n)
			if bestAvg < 0 || avg < bestAvg {
				bestAvg = avg
				best = append([]*Part{}, sorted[i:j+1]...)
			}
		}
	}
	return best
}

// Transaction bundles a set of input parts being replaced by a set of
// output parts into one atomic PartSet.ReplaceParts call, matching the
// requirement that a merge's effect on the active set is
// all-or-nothing.
type Transaction struct {
	Inputs  []*Part
	Outputs []*Part
}

// Commit applies the transaction to parts.
func (t *Transaction) Commit(parts *PartSet) error {
	return parts.ReplaceParts(t.Inputs, t.Outputs)
}

// Merger runs the mode-specific merge of a selected set of input parts
// into one new output part.
type Merger struct {
	Dir         string
	Granularity int
	Compressor  Compressor
	Policy      MergePolicy
	Logf        func(string, ...interface{})
}

func (m *Merger) logf(f string, args ...interface{}) {
	if m.Logf != nil {
		m.Logf(f, args...)
	}
}

// Merge reads every input part fully, merges rows according to
// m.Policy.Mode, and writes one new part at the next level. It
// returns the Transaction ready to Commit.
func (m *Merger) Merge(inputs []*Part) (*Transaction, error) {
	if len(inputs) < 2 {
		return nil, fmt.Errorf("mtree: Merge: need at least 2 input parts, got %d", len(inputs))
	}
	blocks := make([]*block.Block, len(inputs))
	maxLevel := 0
	for i, p := range inputs {
		r, err := OpenPartReader(p.Dir)
		if err != nil {
			return nil, err
		}
		b, err := r.ReadBlock()
		if err != nil {
			return nil, err
		}
		blocks[i] = b
		if p.Level > maxLevel {
			maxLevel = p.Level
		}
	}

	merged, err := mergeBlocks(blocks, m.Policy)
	if err != nil {
		return nil, err
	}

	w := NewWriter(WriterConfig{
		Dir:         m.Dir,
		Granularity: m.Granularity,
		Compressor:  m.Compressor,
		OrderBy:     orderByNamesFromBlock(blocks[0], m.Policy.OrderKeyColumns),
		Logf:        m.Logf,
	}, nil)
	// writeMergedPart reuses writePartFiles directly: rows are already
	// merged in key order, so Insert's own partitioning/sort pass would
	// be wasted work, and publishing happens via the returned
	// Transaction rather than PartSet.Publish.
	part, err := w.writeMergedPart(inputs, merged, maxLevel+1)
	if err != nil {
		return nil, err
	}
	m.logf("mtree: merged %d parts into %s (%d rows)", len(inputs), part.Name(), merged.Rows())
	return &Transaction{Inputs: inputs, Outputs: []*Part{part}}, nil
}

func orderByNamesFromBlock(b *block.Block, n int) []string {
	if n <= 0 || n > len(b.Fields) {
		n = len(b.Fields)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = b.Fields[i].Name
	}
	return out
}

// writeMergedPart is writePart without the Publish step: the caller
// (Merge) wraps the result in a Transaction instead, since replacing
// the input parts and inserting the output must happen atomically
// together via PartSet.ReplaceParts, not as two separate operations.
//
// The output's id range spans its inputs (min of their MinIDs to max
// of their MaxIDs) rather than being freshly allocated: a merge output
// replaces its inputs in the active set, so it must claim exactly the
// id space they held, or its range can collide with unrelated parts
// still active alongside it.
func (w *Writer) writeMergedPart(inputs []*Part, sub *block.Block, level int) (*Part, error) {
	minID, maxID := inputs[0].MinID, inputs[0].MaxID
	for _, p := range inputs[1:] {
		if p.MinID < minID {
			minID = p.MinID
		}
		if p.MaxID > maxID {
			maxID = p.MaxID
		}
	}
	part := &Part{Partition: orDefault(inputs[0].Partition), MinID: minID, MaxID: maxID, Level: level}

	dir, err := w.writePartFiles(part, sub)
	if err != nil {
		return nil, err
	}
	part.Dir = dir
	return part, nil
}

// mergeBlocks concatenates already key-sorted input blocks via a
// k-way merge on their leading OrderKeyColumns fields, collapsing rows
// per m.Mode. Ordinary mode's output is simply the stably-sorted
// concatenation; Collapsing cancels each key's rows by sign via
// collapseGroup; Summing adds every non-key numeric field across rows
// sharing a key. Aggregating mode gets no state merge here and keeps
// the last row for a duplicate key: its inputs are StateColumn-bearing
// blocks produced by package aggregate, not raw Part blocks -- callers
// needing it call aggregate.Aggregator.Merge directly instead of going
// through Merger.
func mergeBlocks(blocks []*block.Block, policy MergePolicy) (*block.Block, error) {
	if len(blocks) == 0 {
		return &block.Block{}, nil
	}
	nFields := len(blocks[0].Fields)
	keyCols := policy.OrderKeyColumns
	if keyCols <= 0 || keyCols > nFields {
		keyCols = nFields
	}

	type cursor struct {
		b   *block.Block
		row int
	}
	cursors := make([]*cursor, 0, len(blocks))
	for _, b := range blocks {
		if b.Rows() > 0 {
			cursors = append(cursors, &cursor{b: b})
		}
	}

	var order []picked
	for len(cursors) > 0 {
		best := 0
		for i := 1; i < len(cursors); i++ {
			if compareRows(cursors[i].b, cursors[i].row, cursors[best].b, cursors[best].row, keyCols) < 0 {
				best = i
			}
		}
		c := cursors[best]
		order = append(order, picked{c.b, c.row})
		c.row++
		if c.row >= c.b.Rows() {
			cursors = append(cursors[:best], cursors[best+1:]...)
		}
	}

	if policy.Mode == ModeOrdinary || len(order) == 0 {
		return assembleRows(blocks[0], order, nFields)
	}

	collapsed := make([]picked, 0, len(order))
	for i := 0; i < len(order); {
		j := i + 1
		for j < len(order) && compareRows(order[j].b, order[j].row, order[i].b, order[i].row, keyCols) == 0 {
			j++
		}
		switch policy.Mode {
		case ModeCollapsing:
			if r, keep := collapseGroup(order[i:j], policy.SignColumn); keep {
				collapsed = append(collapsed, r)
			}
		case ModeSumming:
			collapsed = append(collapsed, order[i])
			// summed value columns are folded into the kept row's
			// columns below, after assembly, since Numeric columns are
			// append-only.
		default:
			collapsed = append(collapsed, order[j-1])
		}
		i = j
	}

	out, err := assembleRows(blocks[0], collapsed, nFields)
	if err != nil {
		return nil, err
	}
	if policy.Mode == ModeSumming {
		sumValueColumns(out, blocks, order, keyCols, nFields)
	}
	return out, nil
}

// collapseGroup applies CollapsingMergeTree-style sign cancellation to
// a run of rows sharing one ordering key. With signCol < 0 (no sign
// column configured) it keeps the last row, matching the historical
// single-row-per-key behavior. Otherwise it sums signCol across the
// group: a zero sum means every insert was canceled by a matching
// negation and the whole group is dropped; a nonzero sum keeps the
// last row whose own sign matches the sum's sign, which is the residual
// ClickHouse's CollapsingMergeTree leaves behind for an unbalanced key.
func collapseGroup(rows []picked, signCol int) (picked, bool) {
	if signCol < 0 {
		return rows[len(rows)-1], true
	}
	var sum float64
	for _, r := range rows {
		sum += numericValueAt(r.b.Fields[signCol].Column, r.row)
	}
	if sum == 0 {
		return picked{}, false
	}
	want := sum > 0
	for i := len(rows) - 1; i >= 0; i-- {
		sign := numericValueAt(rows[i].b.Fields[signCol].Column, rows[i].row)
		if (sign > 0) == want {
			return rows[i], true
		}
	}
	return rows[len(rows)-1], true
}

func compareRows(a *block.Block, ai int, b *block.Block, bi int, keyCols int) int {
	for f := 0; f < keyCols; f++ {
		cmp := a.Fields[f].Column.CompareAt(ai, b.Fields[f].Column, bi, column.NaNLast)
		if cmp != 0 {
			return cmp
		}
	}
	return 0
}

func assembleRows(schema *block.Block, rows []picked, nFields int) (*block.Block, error) {
	out := &block.Block{Fields: make([]block.Field, nFields)}
	for f := 0; f < nFields; f++ {
		out.Fields[f] = block.Field{Name: schema.Fields[f].Name, Type: schema.Fields[f].Type, Column: newEmptyLike(schema.Fields[f].Column)}
	}
	for _, r := range rows {
		for f := 0; f < nFields; f++ {
			if err := out.Fields[f].Column.InsertFrom(r.b.Fields[f].Column, r.row); err != nil {
				return nil, fmt.Errorf("mtree: merge: %w", err)
			}
		}
	}
	return out, nil
}

// newEmptyLike returns a zero-row column of the same concrete type as
// c by cutting a zero-length slice from it (works for every Column
// implementation without a type switch).
func newEmptyLike(c column.Column) column.Column {
	return c.Cut(0, 0)
}

// sumValueColumns adds, in place, every non-key numeric column across
// rows that collapsed into the same output row (ModeSumming). Because
// Numeric columns are append-only, this walks the original `order`
// list again and accumulates sums into parallel slices before
// overwriting the already-assembled output columns. Int64 columns
// accumulate as int64 rather than through numericValueAt's float64
// path, since a float64 total silently loses precision for sums past
// 2^53; every other numeric type still goes through the float64 path.
func sumValueColumns(out *block.Block, blocks []*block.Block, order []picked, keyCols, nFields int) {
	type groupSum struct {
		intSums   map[int]int64
		floatSums map[int]float64
	}
	var groups []groupSum
	for i := 0; i < len(order); {
		j := i + 1
		for j < len(order) && compareRows(order[j].b, order[j].row, order[i].b, order[i].row, keyCols) == 0 {
			j++
		}
		gs := groupSum{intSums: map[int]int64{}, floatSums: map[int]float64{}}
		for f := keyCols; f < nFields; f++ {
			if _, ok := order[i].b.Fields[f].Column.(*column.Numeric[int64]); ok {
				var total int64
				for k := i; k < j; k++ {
					total += order[k].b.Fields[f].Column.(*column.Numeric[int64]).Values[order[k].row]
				}
				gs.intSums[f] = total
				continue
			}
			var total float64
			for k := i; k < j; k++ {
				total += numericValueAt(order[k].b.Fields[f].Column, order[k].row)
			}
			gs.floatSums[f] = total
		}
		groups = append(groups, gs)
		i = j
	}
	for gi, gs := range groups {
		for f, total := range gs.intSums {
			out.Fields[f].Column.(*column.Numeric[int64]).Values[gi] = total
		}
		for f, total := range gs.floatSums {
			setNumericValueAt(out.Fields[f].Column, gi, total)
		}
	}
}

func numericValueAt(c column.Column, i int) float64 {
	switch v := c.(type) {
	case *column.Numeric[int64]:
		return float64(v.Values[i])
	case *column.Numeric[float64]:
		return v.Values[i]
	case *column.Numeric[int32]:
		return float64(v.Values[i])
	default:
		return 0
	}
}

func setNumericValueAt(c column.Column, i int, v float64) {
	switch t := c.(type) {
	case *column.Numeric[int64]:
		t.Values[i] = int64(v)
	case *column.Numeric[float64]:
		t.Values[i] = v
	case *column.Numeric[int32]:
		t.Values[i] = int32(v)
	}
}
