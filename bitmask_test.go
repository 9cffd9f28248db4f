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

import "testing"

func TestEmptyIndexAllFreeInitially(t *testing.T) {
	idx := newEmptyIndex(70)
	for i := uint32(0); i < 70; i++ {
		if !idx.isEmpty(i) {
			t.Fatalf("slot %d should start empty", i)
		}
	}
}

func TestEmptyIndexNextIsLSBFirst(t *testing.T) {
	idx := newEmptyIndex(40)
	idx.markOccupied(0)
	idx.markOccupied(1)
	got := idx.next()
	if got != 2 {
		t.Fatalf("next() = %d, want 2", got)
	}
}

func TestEmptyIndexExhaustionReturnsNoSlot(t *testing.T) {
	idx := newEmptyIndex(3)
	idx.markOccupied(0)
	idx.markOccupied(1)
	idx.markOccupied(2)
	if got := idx.next(); got != noSlot {
		t.Fatalf("next() = %d, want noSlot", got)
	}
}

func TestEmptyIndexDoesNotReportOutOfRangeSlots(t *testing.T) {
	// n = 33 is not a multiple of 32; the tail bits of the second word
	// must be masked off by reset, or next() would hand back slot 33..63.
	idx := newEmptyIndex(33)
	for i := 0; i < 33; i++ {
		slot := idx.next()
		if slot == noSlot {
			t.Fatalf("ran out of slots early at i=%d", i)
		}
		idx.markOccupied(slot)
	}
	if got := idx.next(); got != noSlot {
		t.Fatalf("next() = %d, want noSlot (table should be full at n=33)", got)
	}
}

func TestEmptyIndexMarkEmptyRestoresTopBit(t *testing.T) {
	idx := newEmptyIndex(32)
	for i := uint32(0); i < 32; i++ {
		idx.markOccupied(i)
	}
	if got := idx.next(); got != noSlot {
		t.Fatalf("next() = %d, want noSlot", got)
	}
	idx.markEmpty(17)
	if got := idx.next(); got != 17 {
		t.Fatalf("next() = %d, want 17", got)
	}
}

func TestEmptyIndexResetRefillsAfterUse(t *testing.T) {
	idx := newEmptyIndex(10)
	for i := uint32(0); i < 10; i++ {
		idx.markOccupied(i)
	}
	idx.reset()
	for i := uint32(0); i < 10; i++ {
		if !idx.isEmpty(i) {
			t.Fatalf("slot %d should be empty after reset", i)
		}
	}
}
