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

import "math/bits"

// noSlot is the sentinel returned by emptyIndex.next when no slot is
// free. The bitmask must not be able to confuse "table full" with "slot
// 0 is free," so noSlot is a value no real slot index can ever take.
const noSlot uint32 = ^uint32(0)

// emptyIndex is a two-level bitmask over slot indices [0, n); for n above
// 1024 the top level grows to more than one word instead of adding a
// level. Bit i%32 of empty[i/32] set means slot i is empty. Bit g%32 of
// top[g/32] set means empty[g] != 0. LSB-first
// convention throughout (bits.TrailingZeros32).
type emptyIndex struct {
	n     uint32
	empty []uint32 // ceil(n/32) words, one bit per slot
	top   []uint32 // ceil(len(empty)/32) words, one bit per empty[] word
}

func newEmptyIndex(n uint32) *emptyIndex {
	groups := (n + 31) / 32
	topWords := (groups + 31) / 32
	idx := &emptyIndex{
		n:     n,
		empty: make([]uint32, groups),
		top:   make([]uint32, topWords),
	}
	idx.reset()
	return idx
}

// reset marks every slot empty. This is the corrected form of open
// question #2: every bit of every empty[] word is set (0xFFFFFFFF), not
// byte-filled with the value 1.
func (idx *emptyIndex) reset() {
	for g := range idx.empty {
		idx.empty[g] = ^uint32(0)
	}
	// Clear the tail bits of the last group if n is not a multiple of 32,
	// so next() never reports a slot >= n as empty.
	if rem := idx.n % 32; rem != 0 && len(idx.empty) > 0 {
		last := len(idx.empty) - 1
		idx.empty[last] = (uint32(1) << rem) - 1
	}
	for t := range idx.top {
		idx.top[t] = ^uint32(0)
	}
	if rem := uint32(len(idx.empty)) % 32; rem != 0 && len(idx.top) > 0 {
		last := len(idx.top) - 1
		idx.top[last] = (uint32(1) << rem) - 1
	}
}

// next returns an empty slot index, or noSlot if every slot is occupied.
func (idx *emptyIndex) next() uint32 {
	for t, word := range idx.top {
		if word == 0 {
			continue
		}
		b := bits.TrailingZeros32(word)
		g := t*32 + b
		if g >= len(idx.empty) {
			continue
		}
		ew := idx.empty[g]
		if ew == 0 {
			continue
		}
		return uint32(g)*32 + uint32(bits.TrailingZeros32(ew))
	}
	return noSlot
}

// markEmpty sets slot i's bit (and its group's top bit).
func (idx *emptyIndex) markEmpty(i uint32) {
	g := i / 32
	idx.empty[g] |= 1 << (i % 32)
	idx.top[g/32] |= 1 << (g % 32)
}

// markOccupied clears slot i's bit; if its word becomes zero, clears the
// corresponding top-level bit too, keeping the top level an accurate
// summary of which words have any empty slots left.
func (idx *emptyIndex) markOccupied(i uint32) {
	g := i / 32
	idx.empty[g] &^= 1 << (i % 32)
	if idx.empty[g] == 0 {
		idx.top[g/32] &^= 1 << (g % 32)
	}
}

// isEmpty reports whether slot i's bit is currently set.
func (idx *emptyIndex) isEmpty(i uint32) bool {
	return idx.empty[i/32]&(1<<(i%32)) != 0
}
