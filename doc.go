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

// Package fqcodel implements a fair-queueing packet scheduler core: a
// cuckoo-hashed flow classifier backed by a two-level empty-slot bitmask,
// per-flow CoDel active queue management, and a deficit round-robin
// scheduler across new and old flow lists.
//
// The Scheduler type performs no internal locking. Callers on the packet
// path (Enqueue, Dequeue, Configure, Stats, Walk) must serialize access to
// one Scheduler with an external lock; see pkg/safe for a mutex-guarded
// convenience wrapper.
package fqcodel
