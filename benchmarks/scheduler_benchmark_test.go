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

// Package benchmarks contains the performance tests for the fqcodel
// project.
package benchmarks

import (
	"sync/atomic"
	"testing"
	"time"

	"fqcodel"
	"fqcodel/pkg/safe"
)

func newBenchScheduler(b *testing.B, flows uint32) *fqcodel.Scheduler {
	b.Helper()
	s, err := fqcodel.New(fqcodel.Config{
		Flows: flows, Limit: 1 << 20, MemoryLimit: 1 << 30, Quantum: 1514, DropBatchSize: 64,
	})
	if err != nil {
		b.Fatalf("New: %v", err)
	}
	return s
}

// BenchmarkEnqueueDequeue_SingleFlow measures raw Enqueue+Dequeue
// overhead on a single flow, with no cuckoo-table contention, giving a
// baseline for the core's per-packet cost.
func BenchmarkEnqueueDequeue_SingleFlow(b *testing.B) {
	s := newBenchScheduler(b, 1024)
	now := time.Now()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pkt := &fqcodel.Packet{FlowHash: 7, Length: 512, MemoryFootprint: 576}
		_, _ = s.Enqueue(pkt, now)
		var dropped []*fqcodel.Packet
		s.Dequeue(now, &dropped)
	}
}

// BenchmarkEnqueueDequeue_ManyFlows measures the same workload spread
// across many distinct flow hashes, exercising cuckoo insertion and
// DRR list churn instead of a single already-resident flow.
func BenchmarkEnqueueDequeue_ManyFlows(b *testing.B) {
	const numFlows = 256
	s := newBenchScheduler(b, 1024)
	now := time.Now()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pkt := &fqcodel.Packet{FlowHash: uint32(i % numFlows), Length: 512, MemoryFootprint: 576}
		_, _ = s.Enqueue(pkt, now)
		var dropped []*fqcodel.Packet
		s.Dequeue(now, &dropped)
	}
}

// BenchmarkSafeScheduler_Concurrent measures pkg/safe's mutex overhead
// under concurrent Enqueue calls from many goroutines, simulating a
// single link's scheduler shared by multiple producer goroutines.
func BenchmarkSafeScheduler_Concurrent(b *testing.B) {
	sched, err := safe.New(fqcodel.Config{
		Flows: 1024, Limit: 1 << 20, MemoryLimit: 1 << 30, Quantum: 1514, DropBatchSize: 64,
	})
	if err != nil {
		b.Fatalf("safe.New: %v", err)
	}
	var flowCounter atomic.Uint32

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			flow := flowCounter.Add(1) % 256
			pkt := &fqcodel.Packet{FlowHash: flow, Length: 512, MemoryFootprint: 576}
			_, _ = sched.Enqueue(pkt, time.Now())
		}
	})
}

/*
## In-Memory Performance Comparison (CPU & Memory Only)

These benchmarks measure the core's per-packet admission and
scheduling cost in isolation, without any I/O: no persistence, no
network transport, no kernel qdisc involvement. They are meant to
answer "how much CPU does the scheduling decision itself cost", the
same question the VSA project's own in-memory comparison benchmarks
answered for its accumulator pattern, not "how fast can this process a
real NIC's line rate" (which additionally depends on the embedder's
packet I/O path).
*/
