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

import "sync/atomic"

// Canceller is the cooperative-cancellation primitive every stream
// embeds. Cancel is idempotent and safe to call from any goroutine;
// Profiled.Read checks Cancelled before every call to Impl, so
// cancellation is observed at the next block boundary.
type Canceller struct {
	flag     int32
	children []*Canceller
}

// Cancel sets the flag on c and recursively on every registered
// child.
func (c *Canceller) Cancel() {
	if !atomic.CompareAndSwapInt32(&c.flag, 0, 1) {
		return // already cancelled; idempotent
	}
	for _, ch := range c.children {
		ch.Cancel()
	}
}

// Cancelled reports whether Cancel has been called on c or an
// ancestor that propagated into c.
func (c *Canceller) Cancelled() bool {
	return atomic.LoadInt32(&c.flag) != 0
}

// Link registers child as a recipient of future Cancel calls made on
// c, the way a multi-threaded parent stream sequences teardown of its
// children.
func (c *Canceller) Link(child *Canceller) {
	c.children = append(c.children, child)
}
