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

// Package scheduler runs the background merge loop: a fixed pool of
// worker goroutines repeatedly ask a Table for its next merge, apply a
// replication-aware CanMerge gate, and execute whichever merge wins.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/exp/maps"

	"github.com/coretool/columnar/mtree"
)

// CanMerge is the two-argument predicate: given two
// candidate parts, report whether merging them is currently allowed.
// The trivial, non-replicated implementation always returns true; a
// replicated table plugs in a version that also checks a replication
// log / coordination service has acknowledged both parts.
type CanMerge func(a, b *mtree.Part) bool

// AlwaysMerge is the non-replicated CanMerge: any two active parts may
// be merged whenever the part-selection heuristic picks them.
func AlwaysMerge(a, b *mtree.Part) bool { return true }

// Table is the subset of a table's state the scheduler needs per tick:
// its active parts, an approximate on-disk size function, the merger
// that executes a selected merge, and a merge policy.
type Table struct {
	Parts   *mtree.PartSet
	SizeOf  func(*mtree.Part) int64
	Merger  *mtree.Merger
	Policy  mtree.MergePolicy
	Gate    CanMerge // nil means AlwaysMerge
}

func (t *Table) gate() CanMerge {
	if t.Gate != nil {
		return t.Gate
	}
	return AlwaysMerge
}

// Tick selects and, if CanMerge allows it, executes one merge for t.
// It returns ok=false when there was nothing worth merging this round.
func (t *Table) Tick() (bool, error) {
	active := t.Parts.Active()
	defer mtree.ReleaseSnapshot(active)

	selected := mtree.SelectPartsToMerge(active, t.SizeOf, t.Policy)
	if len(selected) < 2 {
		return false, nil
	}
	gate := t.gate()
	for i := 0; i < len(selected)-1; i++ {
		if !gate(selected[i], selected[i+1]) {
			return false, nil
		}
	}

	txn, err := t.Merger.Merge(selected)
	if err != nil {
		return false, err
	}
	if err := txn.Commit(t.Parts); err != nil {
		return false, err
	}
	return true, nil
}

// Scheduler runs a fixed-size pool of workers, each looping: poll
// every registered Table for a tick's worth of work, sleep briefly if
// none had any, repeat until the context is cancelled. This favors
// simplicity over a priority queue of pending merges; tables with more
// fragmentation simply produce a non-nil tick more often and get
// revisited sooner on the next poll.
type Scheduler struct {
	mu     sync.Mutex
	tables map[string]*Table

	Workers  int
	Interval time.Duration
	Logf     func(string, ...interface{})
}

// NewScheduler returns a Scheduler with workers goroutines polling
// every registered table every interval when idle.
func NewScheduler(workers int, interval time.Duration) *Scheduler {
	if workers <= 0 {
		workers = 1
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Scheduler{Workers: workers, Interval: interval}
}

// Register adds a table to the scheduler's polling set under name,
// replacing any table already registered with that name.
func (s *Scheduler) Register(name string, t *Table) {
	s.mu.Lock()
	if s.tables == nil {
		s.tables = make(map[string]*Table)
	}
	s.tables[name] = t
	s.mu.Unlock()
}

// Names returns the currently registered table names in sorted order.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	names := maps.Keys(s.tables)
	s.mu.Unlock()
	sort.Strings(names)
	return names
}

func (s *Scheduler) logf(f string, args ...interface{}) {
	if s.Logf != nil {
		s.Logf(f, args...)
	}
}

// Run blocks until ctx is cancelled, running s.Workers worker
// goroutines that each repeatedly poll every registered table.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < s.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			s.worker(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (s *Scheduler) worker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		did := s.pollOnce(id)
		if !did {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.Interval):
			}
		}
	}
}

// pollOnce asks every registered table for one tick's worth of work,
// returning true if any table had something to merge. Running all
// tables from every worker (rather than statically sharding tables
// across workers) means a burst of work on one table can still use
// every worker that happens to reach it first.
func (s *Scheduler) pollOnce(workerID int) bool {
	s.mu.Lock()
	tables := make(map[string]*Table, len(s.tables))
	for name, t := range s.tables {
		tables[name] = t
	}
	s.mu.Unlock()

	did := false
	for name, t := range tables {
		ok, err := t.Tick()
		if err != nil {
			s.logf("scheduler: worker %d: table %s: merge failed: %v", workerID, name, err)
			continue
		}
		if ok {
			did = true
		}
	}
	return did
}
