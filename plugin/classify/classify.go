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

// Package classify is an external fqcodel.Classifier hook that maps a
// packet's 5-tuple directly to a flow class, bypassing the core's own
// cuckoo-hashed classify() step (C2) entirely. Embedders that already
// parse headers upstream (or want deterministic class assignment, e.g.
// for pinning a VIP flow to its own class) install this instead of
// relying on FlowHash alone.
package classify

import (
	"encoding/binary"
	"hash/fnv"
	"net"

	"fqcodel"
)

// FiveTuple identifies a flow the way a real packet classifier would:
// by its IP/port/protocol header fields, rather than a caller-supplied
// hash.
type FiveTuple struct {
	SrcIP    net.IP
	DstIP    net.IP
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8
}

// Lookup extracts a FiveTuple for a packet. Embedders supply this since
// the core's Packet type carries an opaque Payload; this package does
// not parse headers itself.
type Lookup func(payload []byte) (FiveTuple, bool)

// Shooter reports whether a 5-tuple should be dropped outright (an
// ACL-style block list), checked before class assignment.
type Shooter func(FiveTuple) bool

// Classifier assigns each packet a class in [1, N] by hashing its
// 5-tuple, in lieu of the core's cuckoo table.
type Classifier struct {
	Flows   uint32
	Lookup  Lookup
	Shooter Shooter
}

// New returns a Classifier for flows classes, using lookup to extract
// 5-tuples from packet payloads. shooter may be nil to disable the
// block-list check.
func New(flows uint32, lookup Lookup, shooter Shooter) *Classifier {
	return &Classifier{Flows: flows, Lookup: lookup, Shooter: shooter}
}

// Hash returns a stable 32-bit fingerprint of a 5-tuple, independent of
// the core's own FNV/xxhash pair used for cuckoo classification.
func Hash(t FiveTuple) uint32 {
	h := fnv.New64a()
	_, _ = h.Write(t.SrcIP)
	_, _ = h.Write(t.DstIP)
	var buf [5]byte
	binary.BigEndian.PutUint16(buf[0:2], t.SrcPort)
	binary.BigEndian.PutUint16(buf[2:4], t.DstPort)
	buf[4] = t.Protocol
	_, _ = h.Write(buf[:])
	sum := h.Sum64()
	return uint32(sum) ^ uint32(sum>>32)
}

// Classify implements fqcodel.Classifier. It never returns
// ClassifyStolen: this hook only re-derives the class id, it does not
// take packet ownership away from the core.
func (c *Classifier) Classify(pkt *fqcodel.Packet) (classID uint32, outcome fqcodel.ClassifyOutcome) {
	tuple, ok := c.Lookup(pkt.Payload)
	if !ok {
		return 0, fqcodel.ClassifyShot
	}
	if c.Shooter != nil && c.Shooter(tuple) {
		return 0, fqcodel.ClassifyShot
	}
	if c.Flows == 0 {
		return 0, fqcodel.ClassifyShot
	}
	class := Hash(tuple)%c.Flows + 1
	return class, fqcodel.ClassifyAccept
}
