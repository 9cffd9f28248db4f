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

// Package safe provides a thread-safe, mutex-guarded wrapper around the
// lock-free fqcodel.Scheduler core. The core performs no internal
// locking by design (see fqcodel's package doc); this wrapper is for
// embedders that enqueue and dequeue from more than one goroutine and
// would otherwise have to build that synchronization themselves.
package safe

import (
	"sync"
	"time"

	"fqcodel"
)

// Scheduler guards a *fqcodel.Scheduler with a single mutex. Enqueue and
// Dequeue both take the write lock: the core's DRR lists and cuckoo
// table are mutated by both paths, so there is no useful read/write
// split the way there is in a pure scalar accumulator.
type Scheduler struct {
	mu   sync.Mutex
	core *fqcodel.Scheduler
}

// New wraps a freshly constructed core scheduler.
func New(cfg fqcodel.Config) (*Scheduler, error) {
	core, err := fqcodel.New(cfg)
	if err != nil {
		return nil, err
	}
	return &Scheduler{core: core}, nil
}

// Enqueue classifies and admits pkt under the wrapper's lock.
func (s *Scheduler) Enqueue(pkt *fqcodel.Packet, now time.Time) (dropped []*fqcodel.Packet, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.core.Enqueue(pkt, now)
}

// Dequeue pops the next scheduled packet under the wrapper's lock.
func (s *Scheduler) Dequeue(now time.Time) (pkt *fqcodel.Packet, dropped []*fqcodel.Packet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pkt = s.core.Dequeue(now, &dropped)
	return pkt, dropped
}

// Configure applies a configuration change under the wrapper's lock.
func (s *Scheduler) Configure(cfg fqcodel.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.core.Configure(cfg)
}

// Stats returns a snapshot of the global counters under the wrapper's
// lock.
func (s *Scheduler) Stats() fqcodel.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.core.Stats()
}

// Reset drains every flow under the wrapper's lock.
func (s *Scheduler) Reset() (drained []*fqcodel.Packet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.core.Reset()
}

// Destroy releases the core's backing storage under the wrapper's lock.
func (s *Scheduler) Destroy() (drained []*fqcodel.Packet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.core.Destroy()
}
