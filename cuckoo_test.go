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
	"testing"
	"time"
)

func newTestScheduler(t *testing.T, flows uint32) *Scheduler {
	t.Helper()
	s, err := New(Config{
		Flows:         flows,
		Limit:         1000,
		MemoryLimit:   1 << 20,
		Quantum:       1514,
		DropBatchSize: 8,
		Seed0:         1,
		Seed1:         2,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestClassifySameFlowHashSameSlot(t *testing.T) {
	s := newTestScheduler(t, 64)
	now := time.Now()

	_, err := s.Enqueue(&Packet{FlowHash: 42, Length: 100}, now)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	slot1 := s.classify(42)
	slot2 := s.classify(42)
	if slot1 != slot2 {
		t.Fatalf("same flow hash classified to different slots: %d vs %d", slot1, slot2)
	}
}

func TestClassifyDistinctFlowsGetDistinctSlotsUsually(t *testing.T) {
	s := newTestScheduler(t, 256)
	now := time.Now()
	seen := map[uint32]uint32{}
	collisions := 0
	for fh := uint32(0); fh < 50; fh++ {
		if _, err := s.Enqueue(&Packet{FlowHash: fh, Length: 64}, now); err != nil {
			t.Fatalf("Enqueue(%d): %v", fh, err)
		}
		slot := s.classify(fh)
		if other, ok := seen[slot]; ok && other != fh {
			collisions++
		}
		seen[slot] = fh
	}
	if collisions > 5 {
		t.Fatalf("too many flow-identity collisions in a lightly-loaded table: %d", collisions)
	}
}

func TestCuckooClearAtRemovesOnlyMatchingSlot(t *testing.T) {
	s := newTestScheduler(t, 64)
	now := time.Now()
	s.Enqueue(&Packet{FlowHash: 7, Length: 10}, now)
	slot := s.classify(7)
	f := &s.flows[slot]
	h0, h1 := f.bucketH0, f.bucketH1

	s.cuckoo.clearAt(h0, h1, slot+1) // wrong slot: should not clear
	if s.cuckoo.table[h0] == 0 {
		t.Fatalf("clearAt cleared bucket for the wrong slot")
	}

	s.cuckoo.clearAt(h0, h1, slot)
	if s.cuckoo.table[h0] != 0 || s.cuckoo.table[s.cuckoo.n+h1] != 0 {
		t.Fatalf("clearAt did not clear the installed buckets")
	}
}

func TestCuckooDisplacementStaysWithinBound(t *testing.T) {
	// A tiny table forces heavy displacement traffic; classify must never
	// index out of range regardless of how much churn results.
	s := newTestScheduler(t, 8)
	now := time.Now()
	for fh := uint32(0); fh < 64; fh++ {
		if _, err := s.Enqueue(&Packet{FlowHash: fh, Length: 32}, now); err != nil && err != ErrCongestion {
			t.Fatalf("Enqueue(%d): %v", fh, err)
		}
	}
}

func TestReinstallRestampsBucketIndices(t *testing.T) {
	s := newTestScheduler(t, 16)
	now := time.Now()
	s.Enqueue(&Packet{FlowHash: 1, Length: 20}, now)

	dropped := []*Packet{}
	for {
		pkt := s.Dequeue(now, &dropped)
		if pkt == nil {
			break
		}
	}

	s.Enqueue(&Packet{FlowHash: 999, Length: 20}, now)
	newSlot := s.classify(999)
	f := &s.flows[newSlot]
	if f.flowHash != 999 {
		t.Fatalf("reinstalled slot has stale flowHash %d", f.flowHash)
	}
	if f.bucketH0 != s.cuckoo.h0(999) || f.bucketH1 != s.cuckoo.h1(999) {
		t.Fatalf("reinstalled slot has stale bucket indices (%d, %d)", f.bucketH0, f.bucketH1)
	}
}
