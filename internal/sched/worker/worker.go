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

// Package worker runs the background maintenance loops for a registry
// of link schedulers: periodic metrics export and idle-link eviction.
package worker

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"fqcodel/internal/sched/metrics"
	"fqcodel/internal/sched/registry"
	"fqcodel/pkg/safe"
)

// Worker periodically observes every link scheduler in a Registry for
// metrics export, and evicts links that have gone idle.
type Worker struct {
	reg *registry.Registry

	observeInterval  time.Duration
	evictionAge      time.Duration
	evictionInterval time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
	stopped  uint32
}

// New creates a configured, not-yet-started Worker over reg.
//
// observeInterval: how often every link's stats are pushed into the
// metrics package.
// evictionAge: a link idle for at least this long is removed.
// evictionInterval: how often the idle sweep runs.
func New(reg *registry.Registry, observeInterval, evictionAge, evictionInterval time.Duration) *Worker {
	return &Worker{
		reg:              reg,
		observeInterval:  observeInterval,
		evictionAge:      evictionAge,
		evictionInterval: evictionInterval,
		stopChan:         make(chan struct{}),
	}
}

// Start launches the background goroutines.
func (w *Worker) Start() {
	fmt.Println("Starting scheduler registry worker...")
	w.wg.Add(2)
	go func() {
		defer w.wg.Done()
		w.observeLoop()
	}()
	go func() {
		defer w.wg.Done()
		w.evictionLoop()
	}()
}

// Stop gracefully stops the worker and waits for its goroutines to exit.
func (w *Worker) Stop() {
	if !atomic.CompareAndSwapUint32(&w.stopped, 0, 1) {
		return
	}
	fmt.Println("Stopping scheduler registry worker...")
	close(w.stopChan)
	w.wg.Wait()
}

func (w *Worker) observeLoop() {
	ticker := time.NewTicker(w.observeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.runObserveCycle()
		case <-w.stopChan:
			return
		}
	}
}

func (w *Worker) runObserveCycle() {
	if !metrics.Enabled() {
		return
	}
	w.reg.ForEach(func(linkKey string, s *safe.Scheduler) {
		metrics.Observe(linkKey, s.Stats())
	})
}

func (w *Worker) evictionLoop() {
	ticker := time.NewTicker(w.evictionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.runEvictionCycle()
		case <-w.stopChan:
			return
		}
	}
}

func (w *Worker) runEvictionCycle() {
	evicted := w.reg.EvictIdle(w.evictionAge)
	if evicted > 0 {
		fmt.Printf("Evicted %d idle link schedulers\n", evicted)
	}
}
