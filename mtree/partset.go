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
	"sync"
	"time"
)

// PartSet holds the two in-memory structures the engine needs: the
// active set (disjoint parts currently visible to readers) and the
// all-parts set (active union retired-but-still-referenced). They are
// guarded by separate mutexes (activeMu before allMu is never
// required simultaneously by any operation here, so we never nest
// them).
type PartSet struct {
	activeMu sync.Mutex
	active   []*Part // sorted by Less

	allMu sync.Mutex
	all   []*Part // superset of active, sorted by Less

	clock func() int64 // injectable for tests; defaults to time.Now().UnixNano
}

// NewPartSet returns an empty PartSet.
func NewPartSet() *PartSet {
	return &PartSet{clock: func() int64 { return time.Now().UnixNano() }}
}

// Active returns a snapshot slice of the currently active parts, each
// with an additional reference taken on the caller's behalf; the
// caller must Unref every part once done reading it. A reader that
// started before a concurrent merge replaces parts keeps reading the
// old ones until it releases its references.
func (s *PartSet) Active() []*Part {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	out := make([]*Part, len(s.active))
	copy(out, s.active)
	for _, p := range out {
		p.Ref()
	}
	return out
}

// ReleaseSnapshot unrefs every part returned by a prior Active() call.
func ReleaseSnapshot(parts []*Part) {
	for _, p := range parts {
		p.Unref()
	}
}

// insertActive is the writer-side publish step: it adds p to both
// sets under their respective mutexes, never held simultaneously and
// never held across I/O.
func (s *PartSet) insertActive(p *Part) error {
	s.activeMu.Lock()
	for _, other := range s.active {
		if !Disjoint(p, other) {
			s.activeMu.Unlock()
			return fmt.Errorf("mtree: part %s is not disjoint from active part %s", p.Name(), other.Name())
		}
	}
	p.Ref() // active-set's own strong reference
	s.active = append(s.active, p)
	sort.Slice(s.active, func(i, j int) bool { return Less(s.active[i], s.active[j]) })
	s.activeMu.Unlock()

	s.allMu.Lock()
	s.all = append(s.all, p)
	sort.Slice(s.all, func(i, j int) bool { return Less(s.all[i], s.all[j]) })
	s.allMu.Unlock()
	return nil
}

// Publish inserts a freshly-written part into the active and
// all-parts sets under the active-set mutex.
func (s *PartSet) Publish(p *Part) error {
	return s.insertActive(p)
}

// ReplaceParts atomically swaps inputs for outputs in the active set:
// every row visible before remains visible after, because the retired
// inputs stay in the all-parts set (with their own reference held by
// the active set dropped, but any in-flight reader's reference kept)
// until GC reclaims them.
func (s *PartSet) ReplaceParts(inputs []*Part, outputs []*Part) error {
	s.activeMu.Lock()
	idx := make(map[*Part]int, len(s.active))
	for i, p := range s.active {
		idx[p] = i
	}
	for _, in := range inputs {
		if _, ok := idx[in]; !ok {
			s.activeMu.Unlock()
			return fmt.Errorf("mtree: replaceParts: input %s is not active", in.Name())
		}
	}
	remove := make(map[*Part]bool, len(inputs))
	for _, in := range inputs {
		remove[in] = true
	}
	next := s.active[:0:0]
	for _, p := range s.active {
		if !remove[p] {
			next = append(next, p)
		}
	}
	for _, out := range outputs {
		for _, p := range next {
			if !Disjoint(out, p) {
				s.activeMu.Unlock()
				return fmt.Errorf("mtree: replaceParts: output %s is not disjoint from retained active part %s", out.Name(), p.Name())
			}
		}
		next = append(next, out)
		out.Ref() // active-set's strong reference
	}
	sort.Slice(next, func(i, j int) bool { return Less(next[i], next[j]) })
	s.active = next
	s.activeMu.Unlock()

	now := s.clock()
	for _, in := range inputs {
		in.markRetired(now)
		in.Unref() // drop the active-set's reference; readers keep theirs
	}

	s.allMu.Lock()
	for _, out := range outputs {
		s.all = append(s.all, out)
	}
	sort.Slice(s.all, func(i, j int) bool { return Less(s.all[i], s.all[j]) })
	s.allMu.Unlock()
	return nil
}

// All returns a snapshot of the all-parts set (active ∪
// retired-but-referenced), without taking additional references; used
// by GC, which only inspects RefCount()/Retired(), not live data.
func (s *PartSet) All() []*Part {
	s.allMu.Lock()
	defer s.allMu.Unlock()
	out := make([]*Part, len(s.all))
	copy(out, s.all)
	return out
}

// forgetAll drops p from the all-parts set once GC has physically
// deleted it.
func (s *PartSet) forgetAll(p *Part) {
	s.allMu.Lock()
	defer s.allMu.Unlock()
	for i, q := range s.all {
		if q == p {
			s.all = append(s.all[:i], s.all[i+1:]...)
			return
		}
	}
}

// CheckInvariants verifies the properties required of the
// active set: pairwise disjointness and active ⊆ all-parts. It is
// intended for tests, not the hot path.
func (s *PartSet) CheckInvariants() error {
	s.activeMu.Lock()
	active := append([]*Part{}, s.active...)
	s.activeMu.Unlock()
	for i := range active {
		for j := i + 1; j < len(active); j++ {
			if !Disjoint(active[i], active[j]) {
				return fmt.Errorf("mtree: active parts %s and %s are not disjoint", active[i].Name(), active[j].Name())
			}
		}
	}
	all := s.All()
	allSet := make(map[*Part]bool, len(all))
	for _, p := range all {
		allSet[p] = true
	}
	for _, p := range active {
		if !allSet[p] {
			return fmt.Errorf("mtree: active part %s missing from all-parts set", p.Name())
		}
	}
	return nil
}
