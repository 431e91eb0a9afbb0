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

// Package stream implements the block-oriented source/sink contract
// every pipeline stage honors: a profiling mixin that
// tracks rows/bytes/time, checks limits, applies quotas, propagates
// progress, and supports cooperative cancellation.
package stream

import (
	"fmt"

	"github.com/coretool/columnar/block"
)

// Source is implemented by every block-producing pipeline stage.
// Read returns the empty block exactly once to signal end of stream;
// every subsequent call must also return an empty block.
type Source interface {
	// Read returns the next Block, or an empty Block at end of
	// stream. Implementations should use Profiled and set its Impl
	// instead of implementing Read directly; see Profiled.Read.
	Read() (*block.Block, error)
}

// Sink is implemented by every block-consuming pipeline stage.
type Sink interface {
	// Write consumes blk. Passing an empty Block signals end of
	// stream and must be forwarded to ReadSuffix semantics by the
	// sink's own children, if any.
	Write(blk *block.Block) error
}

// ErrCancelled is returned from Read/Write once a stream's
// cancellation flag has been observed.
var ErrCancelled = fmt.Errorf("stream: query cancelled")
