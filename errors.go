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
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned when Configure is given an out-of-range or
// otherwise disallowed option (e.g. changing FLOWS after the first
// enqueue).
var ErrInvalidConfig = errors.New("fqcodel: invalid config")

// ErrOutOfMemory is returned by New when the flow table cannot be
// allocated at the requested size.
var ErrOutOfMemory = errors.New("fqcodel: out of memory")

// ErrCongestion is returned by Enqueue when the packet was admitted but a
// fat-flow drop fell on the flow that was just enqueued. The caller
// should slow down; the packet itself stays queued unless the head drops
// reached it, in which case it is among the returned dropped packets.
var ErrCongestion = errors.New("fqcodel: congestion")

// DropReason classifies why a packet was dropped instead of delivered.
type DropReason int

const (
	// DropOverlimit means the total queue length exceeded LIMIT and the
	// packet fell to a fat-flow drop pass.
	DropOverlimit DropReason = iota
	// DropOvermemory means memory_usage exceeded MEMORY_LIMIT.
	DropOvermemory
	// DropCoDel means CoDel's sojourn-time AQM dropped the packet.
	DropCoDel
	// DropClassifier means the external classifier shot this packet or
	// returned a class id outside [1, N]. A bypass is not reported as a
	// drop.
	DropClassifier
)

func (r DropReason) String() string {
	switch r {
	case DropOverlimit:
		return "overlimit"
	case DropOvermemory:
		return "overmemory"
	case DropCoDel:
		return "codel"
	case DropClassifier:
		return "classifier"
	default:
		return "unknown"
	}
}

// DroppedError reports a packet that was not accepted, or was dropped in
// flight. The core never retries; a packet refused this way was never
// queued and remains with the caller.
type DroppedError struct {
	Reason DropReason
}

func (e *DroppedError) Error() string {
	return fmt.Sprintf("fqcodel: dropped (%s)", e.Reason)
}

// Dropped reports whether err is a DroppedError with the given reason.
func Dropped(err error, reason DropReason) bool {
	var de *DroppedError
	if errors.As(err, &de) {
		return de.Reason == reason
	}
	return false
}
