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

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// cuckoo is the flow classifier: two N-sized sub-tables (logically
// table[0:N] and table[N:2N]) of 1-based slot references, a value of 0
// meaning "empty."
//
// H0 and H1 are two independent hash families, not the same family seeded
// twice: H0 is FNV-1a over the flow hash mixed with seed0, H1 is
// xxhash.Sum64 over the flow hash mixed with seed1. Using two genuinely
// different hash functions, rather than one family perturbed twice,
// keeps the two probe sequences from correlating on adversarial inputs.
type cuckoo struct {
	n     uint32
	table []uint32 // len 2n
	seed0 uint32
	seed1 uint32
}

func newCuckoo(n, seed0, seed1 uint32) *cuckoo {
	return &cuckoo{n: n, table: make([]uint32, 2*n), seed0: seed0, seed1: seed1}
}

func (c *cuckoo) h0(flowHash uint32) uint32 {
	h := fnv1a32(flowHash, c.seed0)
	return h % c.n
}

func (c *cuckoo) h1(flowHash uint32) uint32 {
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[0:4], flowHash)
	binary.LittleEndian.PutUint32(buf[4:8], c.seed1)
	h := xxhash.Sum64(buf[:])
	return uint32(h) % c.n
}

func fnv1a32(flowHash, seed uint32) uint32 {
	const offset32 = 2166136261
	const prime32 = 16777619
	h := uint32(offset32) ^ seed
	b := []byte{
		byte(flowHash), byte(flowHash >> 8), byte(flowHash >> 16), byte(flowHash >> 24),
	}
	for _, x := range b {
		h ^= uint32(x)
		h *= prime32
	}
	return h
}

// reset zeros every bucket.
func (c *cuckoo) reset() {
	for i := range c.table {
		c.table[i] = 0
	}
}

// clearAt clears the two buckets a flow was installed at, if they still
// point at that flow's slot. This implements open question #5's
// recommended fix: indices are recovered from the flow record (set once,
// at allocation time), not recomputed from whichever packet happens to be
// dequeued last.
func (c *cuckoo) clearAt(bucketH0, bucketH1, slot uint32) {
	if c.table[bucketH0] == slot+1 {
		c.table[bucketH0] = 0
	}
	if c.table[c.n+bucketH1] == slot+1 {
		c.table[c.n+bucketH1] = 0
	}
}

// classify looks a flow up by its two candidate buckets (h0 in the first
// sub-table, h1 in the second), reusing a stale or matching occupant
// where possible and falling back to allocation and bounded displacement
// otherwise.
func (s *Scheduler) classify(flowHash uint32) (slot uint32) {
	c := s.cuckoo
	h0 := c.h0(flowHash)
	h1 := c.h1(flowHash)
	a := c.table[h0]
	b := c.table[c.n+h1]

	staleA := a != 0 && s.flows[a-1].empty()
	staleB := b != 0 && s.flows[b-1].empty()
	matchA := a != 0 && !staleA && s.flows[a-1].flowHash == flowHash
	matchB := b != 0 && !staleB && s.flows[b-1].flowHash == flowHash

	switch {
	case a == 0 && b == 0:
		slot := s.allocateSlot(flowHash, h0, h1)
		c.table[h0] = slot + 1
		return slot

	case a != 0 && b == 0:
		if staleA {
			s.reinstallFlow(a-1, flowHash, h0, h1)
			c.table[c.n+h1] = a
			return a - 1
		}
		if matchA {
			return a - 1
		}
		slot := s.allocateSlot(flowHash, h0, h1)
		c.table[c.n+h1] = slot + 1
		return slot

	case a == 0 && b != 0:
		if staleB {
			s.reinstallFlow(b-1, flowHash, h0, h1)
			c.table[h0] = b
			return b - 1
		}
		if matchB {
			return b - 1
		}
		slot := s.allocateSlot(flowHash, h0, h1)
		c.table[h0] = slot + 1
		return slot

	default: // a != 0 && b != 0
		if staleA {
			s.reinstallFlow(a-1, flowHash, h0, h1)
			c.table[c.n+h1] = a
			return a - 1
		}
		if staleB {
			s.reinstallFlow(b-1, flowHash, h0, h1)
			c.table[h0] = b
			return b - 1
		}
		if matchA {
			return a - 1
		}
		if matchB {
			return b - 1
		}
		slot := s.allocateSlot(flowHash, h0, h1)
		s.displace(slot, h0, flowHash)
		return slot
	}
}

// reinstallFlow re-stamps a drained (empty) slot that is about to be
// reused by a different flow identity: its flow-hash and installed bucket
// indices must be refreshed so a later drain clears the right buckets
// (open question #5).
func (s *Scheduler) reinstallFlow(slot, flowHash, h0, h1 uint32) {
	f := &s.flows[slot]
	f.flowHash = flowHash
	f.bucketH0 = h0
	f.bucketH1 = h1
	s.empty.markOccupied(slot)
}

// allocateSlot pulls a free slot from the empty-slot bitmask and
// initializes its flow record. If the table is exhausted, it degrades to
// merging onto the h0 bucket's current occupant, accepting the
// collision silently rather than dropping the packet outright.
func (s *Scheduler) allocateSlot(flowHash, h0, h1 uint32) uint32 {
	idx := s.empty.next()
	if idx == noSlot {
		// Table is full: merge into whatever currently occupies h0,
		// falling back to h1, per the documented mixed-sub-queue
		// trade-off. This never panics.
		if v := s.cuckoo.table[h0]; v != 0 {
			return v - 1
		}
		if v := s.cuckoo.table[s.cuckoo.n+h1]; v != 0 {
			return v - 1
		}
		// Both buckets are empty while every slot is occupied, so there
		// is no occupant to merge into; merge onto slot 0 rather than
		// return an out-of-range index.
		return 0
	}
	f := &s.flows[idx]
	f.flowHash = flowHash
	f.bucketH0 = h0
	f.bucketH1 = h1
	s.empty.markOccupied(idx)
	return idx
}

// displace runs bounded cuckoo displacement to place newSlot's 1-based
// reference into the table, starting from bucket h0.
// It bounds the number of swaps at n; on exhaustion, the last placement
// made stands (the displaced value is simply dropped from the table,
// meaning its flow becomes reachable only through its other bucket, or
// through a future merge).
func (s *Scheduler) displace(newSlot, h0, flowHash uint32) {
	c := s.cuckoo
	value := newSlot + 1
	bucket := h0
	useH0 := true
	curFlowHash := flowHash

	for i := uint32(0); i < c.n; i++ {
		existing := c.table[bucket]
		c.table[bucket] = value
		if existing == 0 {
			return
		}
		// The displaced occupant's representative packet tells us which
		// flow it was; recompute its alternate bucket to continue the
		// walk.
		displacedFlow := &s.flows[existing-1]
		pkt := displacedFlow.peekHead()
		if pkt == nil {
			// Nothing to walk further with; the displaced value is
			// simply dropped (its flow is still reachable via its other
			// bucket).
			return
		}
		curFlowHash = displacedFlow.flowHash
		value = existing
		if useH0 {
			bucket = c.n + c.h1(curFlowHash)
		} else {
			bucket = c.h0(curFlowHash)
		}
		useH0 = !useH0
		_ = pkt
	}
	// Exhausted the swap bound: accept the collision silently.
}
