// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package fqcodel

import "time"

// Packet is the opaque unit the core enqueues and dequeues. Embedders
// construct one per incoming frame; the core only ever reads FlowHash,
// Length and MemoryFootprint, and writes EnqueueTime and ECNMarked.
type Packet struct {
	// FlowHash is a stable 32-bit fingerprint of the packet's identifying
	// header fields, supplied by the caller (or by plugin/classify).
	FlowHash uint32

	// Length is billed against a flow's DRR deficit and backlog, in bytes.
	Length uint32

	// MemoryFootprint is billed against the scheduler's memory_usage
	// counter; typically Length plus a fixed per-packet overhead.
	MemoryFootprint uint32

	// Payload is opaque to the core; it is returned unchanged by Dequeue.
	Payload []byte

	// EnqueueTime is stamped by the core at Enqueue and read back by CoDel
	// to compute sojourn time.
	EnqueueTime time.Time

	// ECNMarked is set by the core when CoDel's ce_threshold path applies,
	// or when ECN is enabled and the dropping state marks the packet
	// instead of dropping it. The core does not check whether the packet's
	// transport is ECN-capable.
	ECNMarked bool

	// next chains packets within one flow's FIFO, an intrusive link
	// managed by flow.enqueueTail/dequeueHead (see flow.go).
	next *Packet
}

// Sojourn returns how long the packet has sat in its flow's queue as of
// now.
func (p *Packet) Sojourn(now time.Time) time.Duration {
	return now.Sub(p.EnqueueTime)
}
