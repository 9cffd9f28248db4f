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

// Package registry manages a collection of per-link schedulers in
// memory. Each link (an egress interface, a tunnel, a queueing
// discipline instance) gets its own mutex-guarded scheduler (see
// pkg/safe). ShardFor maps a link to one of a fixed set of shard names by
// rendezvous (highest random weight) hashing, so that a given link always
// maps to the same shard without the shard set needing to agree on a
// modulus; the registry itself runs no per-shard goroutines.
package registry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgryski/go-rendezvous"

	"fqcodel"
	"fqcodel/pkg/safe"
)

// managedScheduler wraps one link's scheduler with the metadata the
// eviction worker needs.
type managedScheduler struct {
	instance     *safe.Scheduler
	lastAccessed int64 // UnixNano, atomic
	shard        int
}

// Registry manages a collection of link schedulers in memory. It is
// thread-safe and designed for high-throughput concurrent access from
// many link workers at once.
type Registry struct {
	schedulers sync.Map
	cfg        fqcodel.Config
	shards     *rendezvous.Rendezvous
	numShards  int
}

// New creates a registry that constructs new link schedulers with cfg,
// distributed across numShards rendezvous-hashed shard names.
func New(cfg fqcodel.Config, numShards int) *Registry {
	if numShards < 1 {
		numShards = 1
	}
	names := make([]string, numShards)
	for i := range names {
		names[i] = shardName(i)
	}
	return &Registry{
		cfg:       cfg,
		shards:    rendezvous.New(names, rendezvousHash),
		numShards: numShards,
	}
}

func shardName(i int) string {
	const hex = "0123456789abcdef"
	if i < 16 {
		return string([]byte{hex[i]})
	}
	return string([]byte{hex[i/16], hex[i%16]})
}

func rendezvousHash(s string) uint64 {
	var h uint64 = 1469598103934665603 // FNV-1a offset
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}

// ShardFor reports which shard name owns linkKey, without allocating a
// scheduler.
func (r *Registry) ShardFor(linkKey string) string {
	return r.shards.Lookup(linkKey)
}

// GetOrCreate returns the scheduler for a given link key, creating one
// with the registry's configuration if it does not already exist.
//
// Fast path: a plain Load avoids allocating on the common case where the
// link is already registered. Only on a miss is a new scheduler built,
// mirroring the store's GetOrCreate shape for avoiding needless
// allocation under a cache-hit-heavy workload.
func (r *Registry) GetOrCreate(linkKey string) (*safe.Scheduler, error) {
	if actual, ok := r.schedulers.Load(linkKey); ok {
		m := actual.(*managedScheduler)
		atomic.StoreInt64(&m.lastAccessed, time.Now().UnixNano())
		return m.instance, nil
	}

	inst, err := safe.New(r.cfg)
	if err != nil {
		return nil, err
	}
	newManaged := &managedScheduler{instance: inst, lastAccessed: time.Now().UnixNano()}

	if actual, loaded := r.schedulers.LoadOrStore(linkKey, newManaged); loaded {
		m := actual.(*managedScheduler)
		atomic.StoreInt64(&m.lastAccessed, time.Now().UnixNano())
		return m.instance, nil
	}
	return newManaged.instance, nil
}

// ForEach iterates over every registered link scheduler.
func (r *Registry) ForEach(f func(linkKey string, s *safe.Scheduler)) {
	r.schedulers.Range(func(key, value interface{}) bool {
		m := value.(*managedScheduler)
		f(key.(string), m.instance)
		return true
	})
}

// Delete removes a link's scheduler from the registry, releasing its
// backing storage.
func (r *Registry) Delete(linkKey string) {
	if v, ok := r.schedulers.LoadAndDelete(linkKey); ok {
		m := v.(*managedScheduler)
		m.instance.Destroy()
	}
}

// EvictIdle removes every link scheduler that has not been touched
// since maxAge ago. It returns the number of evicted links.
func (r *Registry) EvictIdle(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge).UnixNano()
	evicted := 0
	r.schedulers.Range(func(key, value interface{}) bool {
		m := value.(*managedScheduler)
		if atomic.LoadInt64(&m.lastAccessed) < cutoff {
			r.Delete(key.(string))
			evicted++
		}
		return true
	})
	return evicted
}
