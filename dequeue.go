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

// pushNewTail appends slot to the new_flows list, using prev/next slot
// indices into the flows array instead of pointers so the list survives
// the table's own reuse and displacement without dangling references.
func (s *Scheduler) pushNewTail(slot uint32) {
	f := &s.flows[slot]
	f.list = listNew
	f.onList = true
	f.prev = s.newTail
	f.next = noSlot
	if s.newTail != noSlot {
		s.flows[s.newTail].next = slot
	} else {
		s.newHead = slot
	}
	s.newTail = slot
	s.newFlowsLen++
}

// pushOldTail appends slot to the old_flows list.
func (s *Scheduler) pushOldTail(slot uint32) {
	f := &s.flows[slot]
	f.list = listOld
	f.onList = true
	f.prev = s.oldTail
	f.next = noSlot
	if s.oldTail != noSlot {
		s.flows[s.oldTail].next = slot
	} else {
		s.oldHead = slot
	}
	s.oldTail = slot
	s.oldFlowsLen++
}

// popFrontNew and popFrontOld remove and return the head of new_flows or
// old_flows respectively (noSlot if the list is empty), leaving the
// flow's own prev/next unset (caller decides whether to re-push it).
func (s *Scheduler) popFrontNew() uint32 {
	slot := s.newHead
	if slot == noSlot {
		return noSlot
	}
	s.removeFromList(slot)
	return slot
}

func (s *Scheduler) popFrontOld() uint32 {
	slot := s.oldHead
	if slot == noSlot {
		return noSlot
	}
	s.removeFromList(slot)
	return slot
}

// removeFromList unlinks slot from whichever scheduling list it belongs
// to, patching the neighbors' sibling indices and the list's head/tail.
func (s *Scheduler) removeFromList(slot uint32) {
	f := &s.flows[slot]
	if !f.onList {
		return
	}
	prev, next := f.prev, f.next

	if prev != noSlot {
		s.flows[prev].next = next
	}
	if next != noSlot {
		s.flows[next].prev = prev
	}

	switch f.list {
	case listNew:
		if s.newHead == slot {
			s.newHead = next
		}
		if s.newTail == slot {
			s.newTail = prev
		}
		s.newFlowsLen--
	case listOld:
		if s.oldHead == slot {
			s.oldHead = next
		}
		if s.oldTail == slot {
			s.oldTail = prev
		}
		s.oldFlowsLen--
	}

	f.onList = false
	f.list = listNone
	f.prev = noSlot
	f.next = noSlot
}

// Dequeue runs the DRR scheduling loop: pop a flow off new_flows
// (demoting to old_flows, or requeueing with a fresh quantum if
// new_flows is exhausted once), pay its CoDel dequeue, and account for
// deficit. It returns the delivered packet (nil if both lists are
// empty), and appends any packets CoDel dropped along the way to
// *dropped.
func (s *Scheduler) Dequeue(now time.Time, dropped *[]*Packet) *Packet {
	for {
		slot, fromNew := s.selectFlow()
		if slot == noSlot {
			return nil
		}
		f := &s.flows[slot]

		if f.deficit <= 0 {
			f.deficit += int64(s.cfg.Quantum)
			s.removeFromList(slot)
			s.pushOldTail(slot)
			continue
		}

		before := len(*dropped)
		stats := &Stats{}
		pkt := codelDequeue(f, s.codel, now, dropped, stats)
		s.accountCoDelStats(stats)
		s.reclaimDropped(f, *dropped, before)

		if pkt == nil {
			// Flow drained entirely (including by CoDel drops).
			s.reapEmptyFlow(slot)
			if fromNew && s.oldHead == noSlot && s.newHead == noSlot {
				return nil
			}
			continue
		}

		f.deficit -= int64(pkt.Length)
		f.backlog -= pkt.Length
		s.backlog -= pkt.Length
		s.memoryUsage -= pkt.MemoryFootprint
		s.qlen--
		if pkt.Length > s.maxPacket {
			s.maxPacket = pkt.Length
		}

		if f.empty() {
			s.reapEmptyFlow(slot)
		} else if fromNew {
			// New flow still has data; it stays at the head of new_flows,
			// and once its deficit is used up the loop above demotes it
			// the next time it is selected.
		}

		s.trace("dequeue", slot, "")
		return pkt
	}
}

// selectFlow returns the head of new_flows if non-empty, else the head of
// old_flows: a freshly active flow always gets first crack at the link
// before flows that have already had a turn. It reports which list the
// slot came from.
func (s *Scheduler) selectFlow() (slot uint32, fromNew bool) {
	if s.newHead != noSlot {
		return s.newHead, true
	}
	if s.oldHead != noSlot {
		return s.oldHead, false
	}
	return noSlot, false
}

// accountCoDelStats folds a per-call CoDel stats delta into the
// scheduler's running counters.
func (s *Scheduler) accountCoDelStats(delta *Stats) {
	s.ecnMark += delta.ECNMark
	s.ceMark += delta.CEMark
	s.dropCount += delta.DropCount
	s.dropLen += delta.DropLen
}

// reclaimDropped updates f's backlog and the global backlog/memory/qlen
// bookkeeping for packets codelDequeue dropped from f (appended to
// dropped[before:]).
func (s *Scheduler) reclaimDropped(f *flow, dropped []*Packet, before int) {
	for _, pkt := range dropped[before:] {
		f.backlog -= pkt.Length
		s.backlog -= pkt.Length
		s.memoryUsage -= pkt.MemoryFootprint
		s.qlen--
	}
}
