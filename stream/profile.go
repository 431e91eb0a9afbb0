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
	"time"

	"github.com/google/uuid"

	"github.com/coretool/columnar/block"
)

// Progress is the aggregated-at-process-list-granularity callback
// every sibling source reports into.
type Progress struct {
	Rows, Bytes, Blocks int64
}

// ProgressFunc is invoked by Profiled.Read after every successfully
// read block.
type ProgressFunc func(Progress)

// ReadImplFunc is what a concrete source implements; Profiled.Read
// wraps it with counters, limit/quota checks and cancellation.
type ReadImplFunc func() (*block.Block, error)

// Profiled is the profiling mixin embedded by every block source
//. Concrete sources set Impl once and then call Read
// through the mixin rather than calling Impl directly.
type Profiled struct {
	Impl     ReadImplFunc
	Limits   *Limits
	Quota    *QuotaTracker
	Progress ProgressFunc
	Cancel   *Canceller

	start     time.Time
	started   bool
	rows      int64
	bytes     int64
	blocks    int64
	eofSeen   bool
	extremes  *Extremes
	totals    *block.Block
	queryID   uuid.UUID
	hasID     bool
}

// QueryID returns the id tagging this stream, minting one on first
// call. Sibling streams spawned for the same query should share one id
// by assigning it explicitly rather than calling this lazily on each.
func (p *Profiled) QueryID() uuid.UUID {
	if !p.hasID {
		p.queryID = uuid.New()
		p.hasID = true
	}
	return p.queryID
}

// SetQueryID tags this stream with an id a caller already minted (e.g.
// to share one id across every sibling stream of a single query).
func (p *Profiled) SetQueryID(id uuid.UUID) {
	p.queryID = id
	p.hasID = true
}

// EnableExtremes turns on the getExtremes/updateExtremes side-channel.
func (p *Profiled) EnableExtremes() { p.extremes = &Extremes{} }

// SetTotals installs a totals block (an aggregation-without-key
// result, possibly empty) that GetTotals will return.
func (p *Profiled) SetTotals(b *block.Block) { p.totals = b }

func (p *Profiled) GetTotals() *block.Block { return p.totals }

func (p *Profiled) GetExtremes() (*block.Block, bool) {
	if p.extremes == nil {
		return nil, false
	}
	return p.extremes.Block(), true
}

// Read implements Source.Read: it wraps Impl with profiling,
// cancellation, limit/quota enforcement and the end-of-stream
// sentinel contract.
func (p *Profiled) Read() (*block.Block, error) {
	if p.eofSeen {
		// once empty is returned, every subsequent Read
		// must also return empty, even across a cancellation.
		return &block.Block{}, nil
	}
	if p.Cancel != nil && p.Cancel.Cancelled() {
		p.eofSeen = true
		return &block.Block{}, ErrCancelled
	}
	if !p.started {
		p.start = time.Now()
		p.started = true
	}
	b, err := p.Impl()
	if err != nil {
		if p.Cancel != nil {
			// ensure sibling streams unwind quickly.
			p.Cancel.Cancel()
		}
		return nil, err
	}
	if b == nil || b.Rows() == 0 {
		p.eofSeen = true
		return &block.Block{}, nil
	}
	rows := int64(b.Rows())
	bytes := int64(b.ByteSize())
	p.rows += rows
	p.bytes += bytes
	p.blocks++
	if p.extremes != nil {
		p.extremes.Update(b)
	}
	if p.Progress != nil {
		p.Progress(Progress{Rows: p.rows, Bytes: p.bytes, Blocks: p.blocks})
	}
	if p.Limits != nil {
		ok, lerr := p.Limits.Check(p.rows, p.bytes, time.Since(p.start))
		if lerr != nil {
			if p.Cancel != nil {
				p.Cancel.Cancel()
			}
			return nil, lerr
		}
		if !ok {
			p.eofSeen = true
			return &block.Block{}, nil
		}
	}
	if p.Quota != nil {
		ok, qerr := p.Quota.Add(rows, bytes)
		if !ok {
			if qerr != nil {
				if p.Cancel != nil {
					p.Cancel.Cancel()
				}
				return nil, qerr
			}
			p.eofSeen = true
			return &block.Block{}, nil
		}
	}
	return b, nil
}

// ReadSuffix is the finalization hook invoked recursively after
// end-of-stream; the default implementation is a no-op. Sources that
// read children on separate threads should override this to sequence
// teardown after thread join.
func (p *Profiled) ReadSuffix() error { return nil }

// Stats returns the counters accumulated so far.
func (p *Profiled) Stats() Progress {
	return Progress{Rows: p.rows, Bytes: p.bytes, Blocks: p.blocks}
}
