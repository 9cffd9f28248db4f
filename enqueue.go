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

// Enqueue classifies pkt, appends it to its flow, and runs admission
// control: if the queue is now over its length or memory budget, it
// triggers a fat-flow drop pass before returning. It returns the packets
// that a fat-flow drop removed from the queue (for the caller's free
// list) and an error: ErrCongestion if the fat-flow drop fell on pkt's
// own flow, a *DroppedError if the external classifier shot the packet or
// returned a class id outside [1, N], or nil on plain success (including
// a classifier bypass or steal, where the packet is never queued).
func (s *Scheduler) Enqueue(pkt *Packet, now time.Time) (dropped []*Packet, err error) {
	var slot uint32
	if s.cfg.Classifier != nil {
		classID, outcome := s.cfg.Classifier.Classify(pkt)
		switch outcome {
		case ClassifyBypass, ClassifyStolen:
			return nil, nil
		case ClassifyShot:
			return nil, &DroppedError{Reason: DropClassifier}
		}
		if classID == 0 || classID > uint32(len(s.flows)) {
			return nil, &DroppedError{Reason: DropClassifier}
		}
		slot = classID - 1
	} else {
		slot = s.classify(pkt.FlowHash)
	}
	s.flowsFixed = true

	f := &s.flows[slot]
	wasEmpty := f.empty()

	pkt.EnqueueTime = now
	f.enqueueTail(pkt)
	f.backlog += pkt.Length
	s.backlog += pkt.Length
	s.memoryUsage += pkt.MemoryFootprint

	s.empty.markOccupied(slot)

	if wasEmpty && !f.onList {
		f.deficit = int64(s.cfg.Quantum)
		s.pushNewTail(slot)
		s.newFlowCount++
	}

	s.qlen++
	s.trace("enqueue", slot, "")

	overmem := s.memoryUsage > s.cfg.MemoryLimit
	if s.qlen <= s.cfg.Limit && !overmem {
		return nil, nil
	}

	removed, hitSelf := s.dropFatFlow(slot, overmem)
	if hitSelf {
		return removed, ErrCongestion
	}
	return removed, nil
}

// dropFatFlow scans backlogs linearly, picks the flow with maximum
// backlog, and drops from its head until drop_batch_size packets are
// gone or at least half its original backlog is removed (always at
// least one packet, once a nonzero-backlog victim is found). It reports
// whether the just-enqueued slot was the one drained from. overmem
// additionally bills the batch against DropOvermem, on top of the
// DropOverlimit count every fat-flow drop always incurs.
func (s *Scheduler) dropFatFlow(justEnqueued uint32, overmem bool) (removed []*Packet, hitSelf bool) {
	var victim uint32 = noSlot
	var maxBacklog uint32
	for i := range s.flows {
		if s.flows[i].backlog > maxBacklog {
			maxBacklog = s.flows[i].backlog
			victim = uint32(i)
		}
	}
	if victim == noSlot || maxBacklog == 0 {
		return nil, false
	}

	f := &s.flows[victim]
	original := f.backlog
	halfTarget := original / 2
	var droppedBytes uint32
	var count uint32

	for {
		pkt := f.dequeueHead()
		if pkt == nil {
			break
		}
		f.backlog -= pkt.Length
		s.backlog -= pkt.Length
		s.memoryUsage -= pkt.MemoryFootprint
		s.qlen--
		f.dropped++
		droppedBytes += pkt.Length
		count++
		s.dropOverlimit++
		if overmem {
			s.dropOvermem++
		}
		removed = append(removed, pkt)
		if count >= s.cfg.DropBatchSize || droppedBytes >= halfTarget {
			break
		}
	}

	if f.empty() {
		s.reapEmptyFlow(victim)
	}

	s.trace("fat-flow-drop", victim, "")
	return removed, victim == justEnqueued
}

// reapEmptyFlow marks a drained slot empty in C1, clears its two cuckoo
// bucket references, and removes it from whichever scheduling list it is
// on.
func (s *Scheduler) reapEmptyFlow(slot uint32) {
	f := &s.flows[slot]
	s.empty.markEmpty(slot)
	s.cuckoo.clearAt(f.bucketH0, f.bucketH1, slot)
	if f.onList {
		s.removeFromList(slot)
	}
}
