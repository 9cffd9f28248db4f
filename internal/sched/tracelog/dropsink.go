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

// Package tracelog provides a buffered, append-only JSONL sink for
// fqcodel's trace events, for embedders that want an on-disk audit
// trail of enqueue/dequeue/drop/reset activity without paying a syscall
// per event.
package tracelog

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"
	"time"
)

// Event is one recorded trace call, in the shape fqcodel.TraceFunc
// receives it.
type Event struct {
	Time   time.Time `json:"time"`
	Link   string    `json:"link,omitempty"`
	Event  string    `json:"event"`
	Slot   uint32    `json:"slot"`
	Detail string    `json:"detail,omitempty"`
}

// DropSink is a buffered JSONL sink for trace events. It is safe for
// concurrent use and optimized for append-only workloads.
type DropSink struct {
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	path string

	lastFlush time.Time
}

// NewDropSink opens (or creates) the file at path in append mode with a
// buffered writer. Call Close() when done.
func NewDropSink(path string) (*DropSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &DropSink{f: f, w: bufio.NewWriterSize(f, 1<<20), path: path, lastFlush: time.Now()}, nil
}

// Trace adapts this sink to fqcodel's TraceFunc signature for a given
// link key, bound once at registration time.
func (s *DropSink) Trace(link string) func(event string, slot uint32, detail string) {
	return func(event string, slot uint32, detail string) {
		s.record(Event{Time: time.Now(), Link: link, Event: event, Slot: slot, Detail: detail})
	}
}

func (s *DropSink) record(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	enc := json.NewEncoder(s.w)
	if err := enc.Encode(&ev); err != nil {
		// best effort: on error, try to flush and retry once
		_ = s.w.Flush()
		_ = enc.Encode(&ev)
	}
	if time.Since(s.lastFlush) > 100*time.Millisecond {
		_ = s.w.Flush()
		s.lastFlush = time.Now()
	}
}

// Flush forces buffered data to be written to disk.
func (s *DropSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFlush = time.Now()
	return s.w.Flush()
}

// Close flushes and closes the underlying file.
func (s *DropSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.w.Flush()
	return s.f.Close()
}

// ReadAll reads the entire trace log file as a slice. Intended for
// debugging and post-incident review.
func ReadAll(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []Event
	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, 1<<20)
	scanner.Buffer(buf, 1<<26)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err == nil {
			out = append(out, ev)
		}
	}
	return out, scanner.Err()
}
