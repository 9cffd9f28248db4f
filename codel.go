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
	"math"
	"time"
)

// codelParams are the CoDel AQM parameters, shared across all flows.
type codelParams struct {
	target      time.Duration
	interval    time.Duration
	ceThreshold time.Duration // 0 means disabled
	ecn         bool
	mtu         uint32
}

// controlLaw schedules the next drop at t + interval/sqrt(count), the
// inverse-square-root backoff that makes CoDel's drop frequency track
// the persistence of the standing queue instead of a fixed rate.
func controlLaw(t time.Time, interval time.Duration, count uint32) time.Time {
	if count == 0 {
		count = 1
	}
	return t.Add(time.Duration(float64(interval) / math.Sqrt(float64(count))))
}

// codelDequeue pops packets from f's queue, applying the CoDel sojourn
// drop/mark policy, until it finds one to deliver or the queue empties.
// It returns the delivered packet (nil if the queue drained), and appends
// any packets it dropped to *dropped so the caller can free them.
//
// Backlog and memory_usage for every packet that leaves the queue here
// (delivered or dropped) are decremented by the caller (dequeue.go),
// which has access to the global counters; codelDequeue only manages
// per-flow CoDel state and classifies each popped packet as
// deliver/drop/mark.
func codelDequeue(f *flow, p codelParams, now time.Time, dropped *[]*Packet, stats *Stats) *Packet {
	for {
		pkt := f.dequeueHead()
		if pkt == nil {
			f.cvars.dropping = false
			f.cvars.firstAboveTime = time.Time{}
			return nil
		}

		sojourn := pkt.Sojourn(now)
		okToDrop := false
		if sojourn < p.target || f.backlog <= p.mtu {
			f.cvars.firstAboveTime = time.Time{}
		} else {
			if f.cvars.firstAboveTime.IsZero() {
				f.cvars.firstAboveTime = now.Add(p.interval)
			} else if !now.Before(f.cvars.firstAboveTime) {
				okToDrop = true
			}
		}

		if p.ceThreshold > 0 && sojourn > p.ceThreshold {
			pkt.ECNMarked = true
			stats.CEMark++
			f.dropped++
			return pkt
		}

		if f.cvars.dropping {
			if !okToDrop {
				f.cvars.dropping = false
				return pkt
			}
			if !now.Before(f.cvars.dropNext) {
				f.cvars.count++
				f.cvars.dropNext = controlLaw(f.cvars.dropNext, p.interval, f.cvars.count)
				if deliverViaECN(p, pkt, stats) {
					f.dropped++
					return pkt
				}
				*dropped = append(*dropped, pkt)
				f.dropped++
				stats.DropCount++
				stats.DropLen += uint64(pkt.Length)
				continue
			}
			return pkt
		}

		if okToDrop {
			f.cvars.dropping = true
			f.cvars.lastCount = f.cvars.count
			f.cvars.count = 1
			f.cvars.dropNext = now.Add(p.interval)
			if deliverViaECN(p, pkt, stats) {
				f.dropped++
				return pkt
			}
			*dropped = append(*dropped, pkt)
			f.dropped++
			stats.DropCount++
			stats.DropLen += uint64(pkt.Length)
			continue
		}

		return pkt
	}
}

// deliverViaECN marks and delivers instead of dropping, when ECN is
// enabled: ECN-capable transports get a congestion signal they can back
// off from instead of losing the packet outright.
func deliverViaECN(p codelParams, pkt *Packet, stats *Stats) bool {
	if !p.ecn {
		return false
	}
	pkt.ECNMarked = true
	stats.ECNMark++
	return true
}
