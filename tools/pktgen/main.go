// pktgen is a tiny, dependency-light packet generator for driving a
// fqcodel scheduler with synthetic traffic, independent of
// cmd/fqcodel-sim's own built-in generator. It is useful for load
// testing a scheduler embedded in another process via pkg/safe.
//
// Modes:
//   - single: every packet uses the same flow hash
//   - zipf:   approximate 80/20 skew (hot/cold) without PRNG: send the
//     hot flow 4/5 of the time
//
// Usage examples:
//
//	pktgen -mode=single -flow=7 -n=200000 -c=16
//	pktgen -mode=zipf -hot_flow=1 -cold_flows=50 -n=200000 -c=16
//
// Notes:
//   - Prints a one-line summary with duration, throughput, and the
//     fraction of enqueues that were dropped.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"fqcodel"
	"fqcodel/pkg/safe"
)

type modeType string

const (
	modeSingle modeType = "single"
	modeZipf   modeType = "zipf"
)

func main() {
	var (
		modeS     = flag.String("mode", string(modeSingle), "Mode: single|zipf")
		flowHash  = flag.Uint("flow", 7, "Flow hash for single mode")
		hotFlow   = flag.Uint("hot_flow", 1, "Hot flow hash for zipf mode")
		coldN     = flag.Int("cold_flows", 50, "Number of cold flow hashes to round-robin in zipf mode")
		hotEvery  = flag.Int("hot_every", 5, "Zipf-like skew period (all but one packet of each period go to the hot flow; minimum 2)")
		n         = flag.Int("n", 200000, "Total packets to enqueue")
		conc      = flag.Int("c", 8, "Number of concurrent workers")
		packetLen = flag.Uint("len", 512, "Packet length in bytes")
		flows     = flag.Uint("flows", 1024, "Scheduler flow-slot table size")
		limit     = flag.Uint("limit", 10000, "Scheduler queue length bound, in packets")
		timeout   = flag.Duration("timeout", 20*time.Second, "Overall timeout for the run")
	)
	flag.Parse()

	m := modeType(strings.ToLower(*modeS))
	if m != modeSingle && m != modeZipf {
		fmt.Fprintf(os.Stderr, "unknown -mode=%s (want single|zipf)\n", *modeS)
		os.Exit(2)
	}
	if *n <= 0 || *conc <= 0 {
		fmt.Fprintln(os.Stderr, "-n and -c must be > 0")
		os.Exit(2)
	}
	if m == modeZipf {
		if *coldN <= 0 {
			fmt.Fprintln(os.Stderr, "-cold_flows must be > 0 in zipf mode")
			os.Exit(2)
		}
		if *hotEvery < 2 {
			*hotEvery = 2
		}
	}

	sched, err := safe.New(fqcodel.Config{
		Flows: uint32(*flows), Limit: uint32(*limit), MemoryLimit: uint32(*limit) * uint32(*packetLen+64),
		Quantum: 1514, DropBatchSize: 64,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not build scheduler: %v\n", err)
		os.Exit(1)
	}

	deadline := time.Now().Add(*timeout)
	start := time.Now()
	var done, dropped int64

	worker := func(id, count int) {
		defer atomic.AddInt64(&done, int64(count))
		for i := 0; i < count; i++ {
			if time.Now().After(deadline) {
				return
			}
			var flow uint32
			if m == modeSingle {
				flow = uint32(*flowHash)
			} else if ((i + id) % *hotEvery) != 0 {
				flow = uint32(*hotFlow)
			} else {
				flow = 1000 + uint32((i+id)%*coldN)
			}
			pkt := &fqcodel.Packet{
				FlowHash:        flow,
				Length:          uint32(*packetLen),
				MemoryFootprint: uint32(*packetLen) + 64,
			}
			removed, enqErr := sched.Enqueue(pkt, time.Now())
			atomic.AddInt64(&dropped, int64(len(removed)))
			if enqErr != nil {
				atomic.AddInt64(&dropped, 1)
			}
			// Drain concurrently with generation so the scheduler's
			// queue length bound doesn't immediately saturate.
			for {
				out, _ := sched.Dequeue(time.Now())
				if out == nil {
					break
				}
			}
		}
	}

	per := *n / *conc
	rem := *n - per**conc
	var wg sync.WaitGroup
	wg.Add(*conc)
	for w := 0; w < *conc; w++ {
		count := per
		if w == *conc-1 {
			count += rem
		}
		go func(id, count int) {
			defer wg.Done()
			worker(id, count)
		}(w, count)
	}
	wg.Wait()

	elapsed := time.Since(start)
	if elapsed <= 0 {
		elapsed = time.Millisecond
	}
	pps := float64(*n) / elapsed.Seconds()
	dropRate := float64(atomic.LoadInt64(&dropped)) / float64(*n)
	fmt.Printf("pktgen: mode=%s n=%d c=%d go=%d duration=%s throughput=%.0f pkt/s drop_rate=%.4f\n",
		m, *n, *conc, runtime.GOMAXPROCS(0), elapsed.Truncate(time.Millisecond), pps, dropRate)
}
