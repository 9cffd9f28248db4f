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

// listID names which scheduling list, if any, a flow currently belongs
// to. A flow is a member of at most one.
type listID int8

const (
	listNone listID = iota
	listNew
	listOld
)

// codelVars is the per-flow CoDel state.
type codelVars struct {
	dropping       bool
	firstAboveTime time.Time
	dropNext       time.Time
	count          uint32
	lastCount      uint32
}

// flow is one slot of the fixed-size flow table. Scheduling-list
// membership is represented as sibling indices into the owning
// Scheduler's flows array (prev/next) rather than pointers, so no flow
// ever holds a pointer to another flow and the table can be moved or
// resized without fixing up links.
type flow struct {
	head, tail *Packet // FIFO of packets, oldest at head
	backlog    uint32  // bytes currently queued for this flow
	deficit    int64   // signed; DRR credit, bytes
	dropped    uint64  // drops + ECN marks; cleared only by Reset, not by FlowStats/Walk

	cvars codelVars

	list     listID
	prev     uint32 // sibling slot index, or noSlot at the head
	next     uint32 // sibling slot index, or noSlot at the tail
	onList   bool
	bucketH0 uint32 // cuckoo sub-table-0 bucket installed at allocation
	bucketH1 uint32 // cuckoo sub-table-1 bucket installed at allocation
	flowHash uint32 // flow-hash of the packet that allocated this slot
}

func (f *flow) empty() bool { return f.head == nil }

// enqueueTail appends pkt to the flow's FIFO. O(1).
func (f *flow) enqueueTail(pkt *Packet) {
	pkt.next = nil
	if f.tail == nil {
		f.head = pkt
		f.tail = pkt
		return
	}
	f.tail.next = pkt
	f.tail = pkt
}

// dequeueHead pops and returns the flow's oldest packet, or nil if empty.
// O(1).
func (f *flow) dequeueHead() *Packet {
	pkt := f.head
	if pkt == nil {
		return nil
	}
	f.head = pkt.next
	if f.head == nil {
		f.tail = nil
	}
	pkt.next = nil
	return pkt
}

// peekHead returns the flow's oldest packet without removing it.
func (f *flow) peekHead() *Packet { return f.head }
