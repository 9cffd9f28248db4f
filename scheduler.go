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
	"crypto/rand"
	"encoding/binary"
	"time"
)

// ClassifyOutcome is the out-parameter an external classifier hook uses
// to report what should happen to a packet.
type ClassifyOutcome int

const (
	// ClassifyAccept means ClassID is a valid [1, N] class to enqueue into.
	ClassifyAccept ClassifyOutcome = iota
	// ClassifyBypass means the packet should skip queueing entirely.
	ClassifyBypass
	// ClassifyStolen means another subsystem has taken ownership of the
	// packet; the core must not touch it further.
	ClassifyStolen
	// ClassifyShot means the packet should be dropped immediately.
	ClassifyShot
)

// Classifier is an external classifier hook. When installed, cuckoo
// classification is bypassed for every packet.
type Classifier interface {
	Classify(pkt *Packet) (classID uint32, outcome ClassifyOutcome)
}

// TraceFunc is a single structured-trace hook, used in place of ambient
// per-call logging. It is nil by default (zero cost on the hot path:
// one nil check, no formatting).
type TraceFunc func(event string, slot uint32, detail string)

// Config is the runtime-settable configuration surface.
type Config struct {
	Target        time.Duration // CoDel sojourn target
	Interval      time.Duration // CoDel control interval
	CEThreshold   time.Duration // 0 disables ECN mark threshold
	ECN           bool
	Limit         uint32 // total queue length bound, in packets
	MemoryLimit   uint32 // total memory bound, bytes, <= 1<<31
	Quantum       uint32 // DRR quantum, bytes; floored to 256
	DropBatchSize uint32 // fat-flow drop cap per invocation; floored to 1
	Flows         uint32 // N; fixable only before first enqueue, 1..65536
	MTU           uint32 // used by CoDel's backlog<=mtu escape hatch

	// HasECN and HasCEThreshold tell Configure that ECN/CEThreshold were
	// explicitly provided and should overwrite the running value; when
	// false, Configure leaves the current ECN/CEThreshold untouched, the
	// same "zero means leave unchanged" convention every other field in
	// this struct already gets for free from its zero value. ECN and
	// CEThreshold need their own flags because false/0 are themselves
	// meaningful settings (ECN off, CE marking disabled) and can't double
	// as the "not provided" sentinel the way Limit==0 or Quantum==0 can.
	HasECN         bool
	HasCEThreshold bool

	// Classifier is optional; when nil, classify() (C2) is used.
	Classifier Classifier

	// Trace is an optional structured-trace hook; nil disables tracing.
	Trace TraceFunc

	// Seed0, Seed1 seed the cuckoo table's two hash functions. Leave both
	// zero to have New derive random seeds via crypto/rand; set them to
	// fixed values for reproducible tests.
	Seed0, Seed1 uint32
}

const maxFlows = 65536

func (c *Config) validate(flowsFixed bool) error {
	// FLOWS cannot be changed once the table is in use (Configure rejects
	// that case itself), so its range is only checked while unfixed.
	if !flowsFixed && (c.Flows == 0 || c.Flows > maxFlows) {
		return ErrInvalidConfig
	}
	if c.MemoryLimit > 1<<31 {
		return ErrInvalidConfig
	}
	if c.Quantum < 256 {
		c.Quantum = 256
	}
	if c.DropBatchSize < 1 {
		c.DropBatchSize = 1
	}
	return nil
}

// Stats is the statistics export snapshot.
type Stats struct {
	QLen          uint32
	Backlog       uint32
	MemoryUsage   uint32
	DropOverlimit uint64
	DropOvermem   uint64
	NewFlowCount  uint64
	MaxPacket     uint32
	ECNMark       uint64
	CEMark        uint64
	DropCount     uint64
	DropLen       uint64
	NewFlowsLen   int
	OldFlowsLen   int
}

// FlowStats is a per-flow diagnostic dump, one entry per occupied class,
// mirroring the per-class counters a qdisc would expose to `tc -s`.
type FlowStats struct {
	Slot     uint32
	Deficit  int64
	Dropped  uint64
	Dropping bool
	DropNext time.Duration // signed, relative to now
	QLen     int
	Backlog  uint32
}

// Scheduler is the fair-queueing packet scheduler core (C1-C7). It
// performs no internal locking; see pkg/safe for a mutex-guarded
// wrapper.
type Scheduler struct {
	flows  []flow
	empty  *emptyIndex
	cuckoo *cuckoo

	newHead, newTail uint32
	oldHead, oldTail uint32
	newFlowsLen      int
	oldFlowsLen      int

	cfg         Config
	codel       codelParams
	flowsFixed  bool

	qlen        uint32
	backlog     uint32
	memoryUsage uint32

	dropOverlimit uint64
	dropOvermem   uint64
	newFlowCount  uint64
	maxPacket     uint32
	ecnMark       uint64
	ceMark        uint64
	dropCount     uint64
	dropLen       uint64
}

// New allocates a Scheduler per the given configuration. It returns
// ErrInvalidConfig for an out-of-range option and ErrOutOfMemory if the
// flow table cannot be allocated.
func New(cfg Config) (s *Scheduler, err error) {
	if err := cfg.validate(false); err != nil {
		return nil, err
	}
	// A pathological FLOWS value close to maxFlows can exhaust memory on
	// a constrained host; make() panics rather than returning nil, so
	// translate that panic into the documented OutOfMemory error instead
	// of letting init allocation failures crash the embedder.
	defer func() {
		if r := recover(); r != nil {
			s, err = nil, ErrOutOfMemory
		}
	}()
	if cfg.Target <= 0 {
		cfg.Target = 5 * time.Millisecond
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 100 * time.Millisecond
	}
	if cfg.MTU == 0 {
		cfg.MTU = 1500
	}
	if cfg.Seed0 == 0 && cfg.Seed1 == 0 {
		var err error
		cfg.Seed0, cfg.Seed1, err = randomSeeds()
		if err != nil {
			return nil, ErrOutOfMemory
		}
	}

	flows := make([]flow, cfg.Flows)

	s = &Scheduler{
		flows:      flows,
		empty:      newEmptyIndex(cfg.Flows),
		cuckoo:     newCuckoo(cfg.Flows, cfg.Seed0, cfg.Seed1),
		newHead:    noSlot,
		newTail:    noSlot,
		oldHead:    noSlot,
		oldTail:    noSlot,
		cfg:        cfg,
		flowsFixed: false,
	}
	s.codel = codelParams{
		target:      cfg.Target,
		interval:    cfg.Interval,
		ceThreshold: cfg.CEThreshold,
		ecn:         cfg.ECN,
		mtu:         cfg.MTU,
	}
	return s, nil
}

// randomSeeds draws two independent 32-bit seeds. This resolves open
// question #3 (the source's kvcalloc sizing bug): a fixed-size [2]uint32
// cannot be mis-sized by a literal the way a raw byte allocation can.
func randomSeeds() (uint32, uint32, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, 0, err
	}
	return binary.LittleEndian.Uint32(buf[0:4]), binary.LittleEndian.Uint32(buf[4:8]), nil
}

// Configure applies a configuration change. FLOWS cannot change once the
// first Enqueue has placed a packet in a flow slot (flowsFixed is set by
// Enqueue, not by classify); before that, a new Flows value reallocates
// the still-unused flow table.
func (s *Scheduler) Configure(cfg Config) error {
	if cfg.Flows != 0 && cfg.Flows != s.cfg.Flows && s.flowsFixed {
		return ErrInvalidConfig
	}
	if cfg.Flows == 0 {
		cfg.Flows = s.cfg.Flows
	}
	// validate floors Quantum and DropBatchSize; remember whether they were
	// set so that zero still leaves the running value unchanged.
	quantumSet, dropBatchSet := cfg.Quantum > 0, cfg.DropBatchSize > 0
	if err := cfg.validate(s.flowsFixed); err != nil {
		return err
	}
	if cfg.Flows != s.cfg.Flows {
		s.flows = make([]flow, cfg.Flows)
		s.empty = newEmptyIndex(cfg.Flows)
		s.cuckoo = newCuckoo(cfg.Flows, s.cfg.Seed0, s.cfg.Seed1)
		s.cfg.Flows = cfg.Flows
	}
	if cfg.Target > 0 {
		s.codel.target = cfg.Target
		s.cfg.Target = cfg.Target
	}
	if cfg.Interval > 0 {
		s.codel.interval = cfg.Interval
		s.cfg.Interval = cfg.Interval
	}
	if cfg.HasCEThreshold {
		s.codel.ceThreshold = cfg.CEThreshold
		s.cfg.CEThreshold = cfg.CEThreshold
	}
	if cfg.HasECN {
		s.codel.ecn = cfg.ECN
		s.cfg.ECN = cfg.ECN
	}
	if cfg.Limit > 0 {
		s.cfg.Limit = cfg.Limit
	}
	if cfg.MemoryLimit > 0 {
		s.cfg.MemoryLimit = cfg.MemoryLimit
	}
	if quantumSet {
		if cfg.Quantum < 256 {
			cfg.Quantum = 256
		}
		s.cfg.Quantum = cfg.Quantum
	}
	if dropBatchSet {
		s.cfg.DropBatchSize = cfg.DropBatchSize
	}
	if cfg.Classifier != nil {
		s.cfg.Classifier = cfg.Classifier
	}
	if cfg.Trace != nil {
		s.cfg.Trace = cfg.Trace
	}
	return nil
}

func (s *Scheduler) trace(event string, slot uint32, detail string) {
	if s.cfg.Trace != nil {
		s.cfg.Trace(event, slot, detail)
	}
}

// Stats returns a snapshot of the global counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		QLen:          s.qlen,
		Backlog:       s.backlog,
		MemoryUsage:   s.memoryUsage,
		DropOverlimit: s.dropOverlimit,
		DropOvermem:   s.dropOvermem,
		NewFlowCount:  s.newFlowCount,
		MaxPacket:     s.maxPacket,
		ECNMark:       s.ecnMark,
		CEMark:        s.ceMark,
		DropCount:     s.dropCount,
		DropLen:       s.dropLen,
		NewFlowsLen:   s.newFlowsLen,
		OldFlowsLen:   s.oldFlowsLen,
	}
}

// FlowStats returns the per-class dump for one slot.
func (s *Scheduler) FlowStats(slot uint32, now time.Time) FlowStats {
	f := &s.flows[slot]
	qlen := 0
	for pkt := f.head; pkt != nil; pkt = pkt.next {
		qlen++
	}
	return FlowStats{
		Slot:     slot,
		Deficit:  f.deficit,
		Dropped:  f.dropped,
		Dropping: f.cvars.dropping,
		DropNext: f.cvars.dropNext.Sub(now),
		QLen:     qlen,
		Backlog:  f.backlog,
	}
}

// Walk iterates active flows (new_flows first, then old_flows), calling
// fn with each one's stats. It stops early if fn returns false.
func (s *Scheduler) Walk(now time.Time, fn func(FlowStats) bool) {
	for slot := s.newHead; slot != noSlot; slot = s.flows[slot].next {
		if !fn(s.FlowStats(slot, now)) {
			return
		}
	}
	for slot := s.oldHead; slot != noSlot; slot = s.flows[slot].next {
		if !fn(s.FlowStats(slot, now)) {
			return
		}
	}
}
