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

// Reset drains every flow, clears the cuckoo table and empty-slot index,
// and zeros every counter and list. The flow table itself is not
// reallocated: Reset keeps FLOWS fixed and reuses the existing slice.
// Any packets still queued are appended to *drained* so the caller can
// return them to its own free list; Reset never drops them silently.
func (s *Scheduler) Reset() (drained []*Packet) {
	for i := range s.flows {
		f := &s.flows[i]
		for pkt := f.dequeueHead(); pkt != nil; pkt = f.dequeueHead() {
			drained = append(drained, pkt)
		}
		f.backlog = 0
		f.deficit = 0
		f.dropped = 0
		f.cvars = codelVars{}
		f.list = listNone
		f.onList = false
		f.prev = noSlot
		f.next = noSlot
		f.bucketH0 = 0
		f.bucketH1 = 0
		f.flowHash = 0
	}

	s.empty.reset()
	s.cuckoo.reset()

	s.newHead, s.newTail = noSlot, noSlot
	s.oldHead, s.oldTail = noSlot, noSlot
	s.newFlowsLen = 0
	s.oldFlowsLen = 0

	s.qlen = 0
	s.backlog = 0
	s.memoryUsage = 0
	s.dropOverlimit = 0
	s.dropOvermem = 0
	s.newFlowCount = 0
	s.maxPacket = 0
	s.ecnMark = 0
	s.ceMark = 0
	s.dropCount = 0
	s.dropLen = 0

	s.trace("reset", noSlot, "")
	return drained
}

// Destroy releases the Scheduler's backing storage. Since the core holds
// no OS resources (no file descriptors, no goroutines), Destroy is
// Reset plus dropping the slice references so the garbage collector can
// reclaim the flow table immediately rather than waiting for the
// Scheduler value itself to become unreachable.
func (s *Scheduler) Destroy() (drained []*Packet) {
	drained = s.Reset()
	s.flows = nil
	s.empty = nil
	s.cuckoo = nil
	return drained
}
