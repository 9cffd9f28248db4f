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

// Package integration provides longer-running, cross-component tests.
package integration

import (
	"runtime"
	"testing"
	"time"

	"fqcodel"
	"fqcodel/pkg/safe"
)

// Test_Soak_MemoryBounded performs a short soak under hot-flow overload
// and asserts that heap usage stabilizes (no runaway growth), and that
// the scheduler's own memory_usage counter never drifts above its
// configured bound. This is a CI-friendly proxy for a longer 30-60m
// soak.
func Test_Soak_MemoryBounded(t *testing.T) {
	t.Helper()
	t.Setenv("GOMAXPROCS", "1")

	const memoryLimit = 4 << 20 // 4 MiB
	sched, err := safe.New(fqcodel.Config{
		Flows: 256, Limit: 1 << 16, MemoryLimit: memoryLimit, Quantum: 1514, DropBatchSize: 64,
	})
	if err != nil {
		t.Fatalf("safe.New: %v", err)
	}

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(200 * time.Microsecond) // ~5k/s
		defer ticker.Stop()
		flow := uint32(0)
		for {
			select {
			case <-ticker.C:
				pkt := &fqcodel.Packet{FlowHash: flow % 8, Length: 512, MemoryFootprint: 576}
				_, _ = sched.Enqueue(pkt, time.Now())
				sched.Dequeue(time.Now())
				flow++
			case <-stop:
				return
			}
		}
	}()

	samples := make([]uint64, 0, 12)
	duration := 4 * time.Second
	tick := 500 * time.Millisecond
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		samples = append(samples, ms.HeapAlloc)

		stats := sched.Stats()
		if stats.MemoryUsage > memoryLimit {
			close(stop)
			t.Fatalf("memory_usage exceeded configured limit: got=%d limit=%d", stats.MemoryUsage, memoryLimit)
		}
		time.Sleep(tick)
	}
	close(stop)

	if len(samples) < 2 {
		t.Skip("insufficient samples; skipping assertion")
	}

	first := samples[0]
	last := samples[len(samples)-1]

	// Allow generous 2x headroom to avoid false positives on GC timing.
	if last > first*2 && last-first > 8*1024*1024 {
		t.Fatalf("heap growth too high over soak: first=%d last=%d", first, last)
	}
}
