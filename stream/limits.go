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

package stream

import (
	"fmt"
	"time"
)

// Overflow is the policy applied when a Limits check fails.
type Overflow int

const (
	// OverflowThrow raises a limit-exceeded error.
	OverflowThrow Overflow = iota
	// OverflowBreak returns an empty block (clean end).
	OverflowBreak
	// OverflowAny permits reading what already matched but admits
	// no new entries (used by the aggregator's no_more_keys).
	OverflowAny
)

// Limits mirrors the per-stream settings a query can be bounded by.
type Limits struct {
	MaxRowsToRead      int64
	MaxBytesToRead      int64
	MaxExecutionTime    time.Duration
	MinExecutionSpeed   float64 // rows/sec, checked only after Grace
	Grace               time.Duration
	Overflow            Overflow
}

// ErrLimitExceeded is the ResourceLimit error class.
type ErrLimitExceeded struct {
	Limit string
	Got, Want interface{}
}

func (e *ErrLimitExceeded) Error() string {
	return fmt.Sprintf("stream: limit exceeded: %s (got %v, want <= %v)", e.Limit, e.Got, e.Want)
}

// Check evaluates every configured limit against the running counters
// captured so far. ok=false with err=nil means "clean end" (an
// OverflowBreak firing); ok=false with err!=nil means "raise" (an
// OverflowThrow firing, or an unconditional check like MaxExecutionTime).
func (l *Limits) Check(rows, bytes int64, elapsed time.Duration) (ok bool, err error) {
	if l.MaxExecutionTime > 0 && elapsed > l.MaxExecutionTime {
		return false, &ErrLimitExceeded{Limit: "max_execution_time", Got: elapsed, Want: l.MaxExecutionTime}
	}
	if l.MinExecutionSpeed > 0 && elapsed > l.Grace {
		speed := float64(rows) / elapsed.Seconds()
		if speed < l.MinExecutionSpeed {
			return false, &ErrLimitExceeded{Limit: "min_execution_speed", Got: speed, Want: l.MinExecutionSpeed}
		}
	}
	if l.MaxRowsToRead > 0 && rows > l.MaxRowsToRead {
		return l.overflow("max_rows_to_read", rows, l.MaxRowsToRead)
	}
	if l.MaxBytesToRead > 0 && bytes > l.MaxBytesToRead {
		return l.overflow("max_bytes_to_read", bytes, l.MaxBytesToRead)
	}
	return true, nil
}

func (l *Limits) overflow(name string, got, want int64) (bool, error) {
	switch l.Overflow {
	case OverflowBreak, OverflowAny:
		return false, nil
	default:
		return false, &ErrLimitExceeded{Limit: name, Got: got, Want: want}
	}
}

// Quota is the process-list-wide resource ceiling that Quotas
// aggregates across sibling sources (distinct from the per-stream
// Limits above, which apply to a single query).
type Quota struct {
	MaxRows  int64
	MaxBytes int64
}

// QuotaTracker accumulates usage across every source sharing one
// Quota, checked alongside limits on every block.
type QuotaTracker struct {
	quota Quota
	rows, bytes int64
}

func NewQuotaTracker(q Quota) *QuotaTracker { return &QuotaTracker{quota: q} }

// Add records additional usage and reports whether the quota has been
// exceeded.
func (q *QuotaTracker) Add(rows, bytes int64) (ok bool, err error) {
	q.rows += rows
	q.bytes += bytes
	if q.quota.MaxRows > 0 && q.rows > q.quota.MaxRows {
		return false, &ErrLimitExceeded{Limit: "quota_rows", Got: q.rows, Want: q.quota.MaxRows}
	}
	if q.quota.MaxBytes > 0 && q.bytes > q.quota.MaxBytes {
		return false, &ErrLimitExceeded{Limit: "quota_bytes", Got: q.bytes, Want: q.quota.MaxBytes}
	}
	return true, nil
}
