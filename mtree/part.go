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

// Package mtree implements the merge-tree storage engine:
// the on-disk part layout, the primary-key sparse index, the part
// lifecycle (write-temp -> seal -> publish -> merge -> retire), and
// the concurrency discipline that lets inserts, merges, reads and
// ALTER overlap without corrupting the active set of parts.
package mtree

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
)

// Part is a sealed, immutable on-disk directory holding one
// contiguous range of sorted rows.
type Part struct {
	Partition string // e.g. a month bucket, "201612"
	MinID     int64
	MaxID     int64
	Level     int

	// Dir is the part's directory name (not the full path); it is
	// deterministic from the fields above, see Name.
	Dir string

	// MinKey/MaxKey bound the ordering key within the part; opaque
	// to mtree (comparisons go through the column package).
	MinKey, MaxKey []byte

	// refs is the shared-ownership reference count described in
	// the active set holds one reference, each
	// concurrent reader holds one more.
	refs int32

	// removeTime is set the instant the part leaves the active set
	//; zero means "still active".
	removeTime int64 // unix nanos, 0 if still active
}

// Name deterministically encodes partition/min_id/max_id/level, per
// the part directory layout.
func (p *Part) Name() string {
	return fmt.Sprintf("%s_%d_%d_%d", p.Partition, p.MinID, p.MaxID, p.Level)
}

// ParseName parses a directory name produced by Name back into its
// four components; used by the crash-recovery scan.
func ParseName(name string) (partition string, minID, maxID int64, level int, err error) {
	parts := strings.Split(name, "_")
	if len(parts) != 4 {
		return "", 0, 0, 0, fmt.Errorf("mtree: malformed part name %q", name)
	}
	minID, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", 0, 0, 0, fmt.Errorf("mtree: malformed part name %q: %w", name, err)
	}
	maxID, err = strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return "", 0, 0, 0, fmt.Errorf("mtree: malformed part name %q: %w", name, err)
	}
	level, err = strconv.Atoi(parts[3])
	if err != nil {
		return "", 0, 0, 0, fmt.Errorf("mtree: malformed part name %q: %w", name, err)
	}
	return parts[0], minID, maxID, level, nil
}

// Disjoint reports whether a and b cannot possibly overlap:
// a.MaxID < b.MinID or vice versa.
func Disjoint(a, b *Part) bool {
	return a.MaxID < b.MinID || b.MaxID < a.MinID
}

// Covers reports whether a fully contains b's id range.
func Covers(a, b *Part) bool {
	return a.MinID <= b.MinID && b.MaxID <= a.MaxID
}

// Less implements the ordering relation: A < B iff
// A.MaxID < B.MinID (disjoint, A entirely before B). Parts in
// different partitions are ordered by partition name first so the
// active/all-parts sets have one total order to sort by, even though
// merges never cross partitions.
func Less(a, b *Part) bool {
	if a.Partition != b.Partition {
		return a.Partition < b.Partition
	}
	if a.MinID != b.MinID {
		return a.MinID < b.MinID
	}
	return a.MaxID < b.MaxID
}

// Ref increments the shared-ownership refcount.
func (p *Part) Ref() { atomic.AddInt32(&p.refs, 1) }

// Unref decrements the refcount. It does not delete anything itself;
// physical deletion is strictly the job of the GC pass (see gc.go),
// which observes RefCount()==0 (the active set dropped its own
// reference when the part was retired, so 0 means no reader holds it)
// plus Retired() plus elapsed lifetime.
func (p *Part) Unref() {
	n := atomic.AddInt32(&p.refs, -1)
	if n < 0 {
		panic("mtree: Part.Unref called without matching Ref")
	}
}

// RefCount returns the current shared reference count.
func (p *Part) RefCount() int32 { return atomic.LoadInt32(&p.refs) }

// Retired reports whether this part has left the active set.
func (p *Part) Retired() bool { return atomic.LoadInt64(&p.removeTime) != 0 }

// RemoveTime returns the unix-nanos instant this part left the active
// set, or 0 if it is still active.
func (p *Part) RemoveTime() int64 { return atomic.LoadInt64(&p.removeTime) }

// markRetired records the retirement instant; called exactly once,
// under the data-parts mutex, by replaceParts.
func (p *Part) markRetired(nowUnixNano int64) {
	atomic.StoreInt64(&p.removeTime, nowUnixNano)
}
