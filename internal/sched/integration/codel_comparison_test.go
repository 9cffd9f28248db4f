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

package integration

import (
	"testing"
	"time"

	"fqcodel"
)

// seedBacklog enqueues count packets onto one flow, all stamped with the
// same enqueue time, simulating a burst that arrived well before the
// drain loop below starts pulling it out.
func seedBacklog(t *testing.T, sched *fqcodel.Scheduler, base time.Time, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		pkt := &fqcodel.Packet{FlowHash: 1, Length: 512, MemoryFootprint: 576}
		if _, err := sched.Enqueue(pkt, base); err != nil {
			t.Fatalf("seed enqueue %d: %v", i, err)
		}
	}
}

// drainAdvancing dequeues calls times from sched, advancing the
// simulated clock by step each call, modeling a drain rate slower than
// the burst arrival above: every packet still resident has the same
// old enqueue time, so sojourn grows with the simulated clock instead
// of with queue position.
func drainAdvancing(sched *fqcodel.Scheduler, base time.Time, step time.Duration, calls int) {
	for i := 0; i < calls; i++ {
		now := base.Add(time.Duration(i) * step)
		var dropped []*fqcodel.Packet
		if sched.Dequeue(now, &dropped) == nil {
			return
		}
	}
}

// Test_Integration_CoDelDropsUnderSustainedDelayTailDropDoesNot shows
// the concrete behavioral difference a tight CoDel target buys over an
// effectively tail-drop-only configuration (target/interval set so
// large the sojourn-time AQM can never trip within the run): the same
// sustained single-flow backlog makes the tight-target scheduler start
// dropping once delay has persisted past target+interval, while the
// relaxed scheduler keeps delivering everything and relies solely on
// the queue length/memory bounds as a backstop.
func Test_Integration_CoDelDropsUnderSustainedDelayTailDropDoesNot(t *testing.T) {
	const backlogSize = 3000
	const drainCalls = 300
	const drainStep = time.Millisecond

	codelSched, err := fqcodel.New(fqcodel.Config{
		Flows: 8, Limit: 5000, MemoryLimit: 1 << 23, Quantum: 1514, DropBatchSize: 64,
		Target: 5 * time.Millisecond, Interval: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New(codel): %v", err)
	}
	tailDropSched, err := fqcodel.New(fqcodel.Config{
		Flows: 8, Limit: 5000, MemoryLimit: 1 << 23, Quantum: 1514, DropBatchSize: 64,
		Target: time.Hour, Interval: time.Hour,
	})
	if err != nil {
		t.Fatalf("New(tail-drop): %v", err)
	}

	base := time.Now()
	seedBacklog(t, codelSched, base, backlogSize)
	seedBacklog(t, tailDropSched, base, backlogSize)

	drainAdvancing(codelSched, base, drainStep, drainCalls)
	drainAdvancing(tailDropSched, base, drainStep, drainCalls)

	codelStats := codelSched.Stats()
	tailStats := tailDropSched.Stats()

	if codelStats.DropCount == 0 {
		t.Fatalf("expected the tight-target scheduler to have dropped at least one packet via CoDel, got 0")
	}
	if tailStats.DropCount != 0 {
		t.Fatalf("expected the relaxed-target scheduler to never trip CoDel's AQM, got DropCount=%d", tailStats.DropCount)
	}
}
