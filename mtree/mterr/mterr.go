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

// Package mterr names the storage engine's error taxonomy. Each kind is a
// distinct Go type so callers can branch with errors.As; none of them
// are retried automatically -- the caller (replication layer, reader,
// writer) decides policy.
package mterr

import "fmt"

// InputShape covers parameter-out-of-bound, size-mismatch, illegal
// type/column, and unknown-identifier errors: the contract was
// violated by the caller and is never retried.
type InputShape struct {
	Op  string
	Msg string
}

func (e *InputShape) Error() string { return fmt.Sprintf("mtree: %s: %s", e.Op, e.Msg) }

// StorageFormat covers no-file-in-part, bad-size-of-file, a too-old
// format version, or a checksum mismatch, detected while opening or
// verifying a part. The part is excluded from the active set while
// the caller decides whether to refetch it.
type StorageFormat struct {
	Part string
	Msg  string
}

func (e *StorageFormat) Error() string { return fmt.Sprintf("mtree: part %s: %s", e.Part, e.Msg) }

// SystemIO wraps a file-descriptor level failure (read/write/seek/
// truncate/fsync) with errno context. On a reader it propagates up
// and cancels the query; on a writer during ingest it causes the temp
// part to be abandoned.
type SystemIO struct {
	Op  string
	Err error
}

func (e *SystemIO) Error() string { return fmt.Sprintf("mtree: io: %s: %v", e.Op, e.Err) }
func (e *SystemIO) Unwrap() error { return e.Err }

// Coordination covers session-expired, operation-timeout and
// unexpected-node-exists conditions from an external coordination
// service. Session-expired is fatal for the current operation, but
// the in-progress local part is *kept* (); Timeout is
// reported separately so callers can enqueue the part for an
// integrity check instead of assuming it was never accepted.
type Coordination struct {
	Kind string // "session-expired", "operation-timeout", "node-exists"
	Msg  string
}

func (e *Coordination) Error() string { return fmt.Sprintf("mtree: coordination: %s: %s", e.Kind, e.Msg) }

// KeepLocalPart reports whether a Coordination error of this kind
// still leaves the locally-written part usable (it may have already
// been accepted upstream); both session-expired and operation-timeout
// do
func (e *Coordination) KeepLocalPart() bool {
	return e.Kind == "session-expired" || e.Kind == "operation-timeout"
}

// Logical is an internal invariant violation. It must surface, never
// be silently retried.
type Logical struct {
	Msg string
}

func (e *Logical) Error() string { return fmt.Sprintf("mtree: logical: %s", e.Msg) }
