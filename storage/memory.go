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

// Package storage implements simple in-memory and log-backed storage:
// trivial Source/Sink-compatible tables that need none of the
// merge-tree's part lifecycle, used for scratch tables, spill targets
// and tests that just want something to insert into and scan back.
package storage

import (
	"sync"

	"github.com/coretool/columnar/block"
	"github.com/coretool/columnar/stream"
)

// Memory is an in-memory, append-only table: every Insert appends one
// more Block to an internal slice, and Scan replays them in insertion
// order. It never coalesces or reorders blocks, so it works as a
// drop-in sink for a materialized subquery or a spill-to-memory
// intermediate result.
type Memory struct {
	mu     sync.Mutex
	blocks []*block.Block
	rows   int64
}

// NewMemory returns an empty in-memory table.
func NewMemory() *Memory { return &Memory{} }

// Write implements stream.Sink: it appends b verbatim, taking no
// ownership risk since Block holds only slice headers the caller is
// expected not to mutate afterward (the same convention package block
// and package column use throughout).
func (m *Memory) Write(b *block.Block) error {
	if b.Empty() {
		return nil
	}
	m.mu.Lock()
	m.blocks = append(m.blocks, b)
	m.rows += int64(b.Rows())
	m.mu.Unlock()
	return nil
}

// Insert is Write under the name the merge-tree writer and the rest
// of this module use for the same operation.
func (m *Memory) Insert(b *block.Block) error { return m.Write(b) }

// Rows returns the total row count inserted so far.
func (m *Memory) Rows() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows
}

// Scan returns a stream.Source replaying every block inserted so far,
// as of the call to Scan (later inserts are not visible to an
// in-progress scan, matching the snapshot semantics mtree.PartSet.Active
// gives merge-tree readers).
func (m *Memory) Scan() stream.Source {
	m.mu.Lock()
	snapshot := append([]*block.Block{}, m.blocks...)
	m.mu.Unlock()
	cur := 0
	p := &stream.Profiled{}
	p.Impl = func() (*block.Block, error) {
		if cur >= len(snapshot) {
			return &block.Block{}, nil
		}
		b := snapshot[cur]
		cur++
		return b, nil
	}
	return p
}

var (
	_ stream.Source = (*stream.Profiled)(nil)
	_ stream.Sink   = (*Memory)(nil)
)
